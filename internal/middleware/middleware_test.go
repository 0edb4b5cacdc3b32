package middleware

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// TestLoggingMiddleware_PassesThrough はログミドルウェアがレスポンスを
// 変更しないことを検証する。
func TestLoggingMiddleware_PassesThrough(t *testing.T) {
	handler := NewLoggingMiddleware(discard(), nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/feeds", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

// TestRecoveryMiddleware_CatchesPanic はpanicが500レスポンスに
// 変換されることを検証する。
func TestRecoveryMiddleware_CatchesPanic(t *testing.T) {
	handler := NewRecoveryMiddleware(discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/feeds", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

// TestSecretMiddleware_RejectsMissingSecret はシークレット未設定の
// リクエストが401で拒否されることを検証する。
func TestSecretMiddleware_RejectsMissingSecret(t *testing.T) {
	handler := NewSecretMiddleware("s3cret")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/internal/regenerate", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

// TestSecretMiddleware_RejectsWrongSecret は不一致のシークレットが
// 拒否されることを検証する。
func TestSecretMiddleware_RejectsWrongSecret(t *testing.T) {
	handler := NewSecretMiddleware("s3cret")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/internal/regenerate", nil)
	req.Header.Set("X-Regenerate-Secret", "wrong")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

// TestSecretMiddleware_AllowsCorrectSecret は一致するシークレットで
// リクエストが通過することを検証する。
func TestSecretMiddleware_AllowsCorrectSecret(t *testing.T) {
	handler := NewSecretMiddleware("s3cret")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/internal/regenerate", nil)
	req.Header.Set("X-Regenerate-Secret", "s3cret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

// TestRateLimiter_BlocksOverLimit はバーストを超えたリクエストが
// 429で拒否されることを検証する。
func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		WebhookRate:     rate.Limit(0.001),
		WebhookBurst:    2,
		CleanupInterval: time.Minute,
	}, discard())
	defer rl.Stop()

	handler := rl.WebhookMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/products", nil)
		req.Header.Set("X-Shop-Domain", "demo.myshopify.com")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/webhooks/products", nil)
	req.Header.Set("X-Shop-Domain", "demo.myshopify.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

// TestRateLimiter_IsolatesShops はショップごとにリミッターが
// 独立していることを検証する。
func TestRateLimiter_IsolatesShops(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		WebhookRate:     rate.Limit(0.001),
		WebhookBurst:    1,
		CleanupInterval: time.Minute,
	}, discard())
	defer rl.Stop()

	handler := rl.WebhookMiddleware()(okHandler())

	first := httptest.NewRequest(http.MethodPost, "/webhooks/products", nil)
	first.Header.Set("X-Shop-Domain", "a.myshopify.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	if rec.Code != http.StatusOK {
		t.Fatalf("first shop: status = %d", rec.Code)
	}

	second := httptest.NewRequest(http.MethodPost, "/webhooks/products", nil)
	second.Header.Set("X-Shop-Domain", "b.myshopify.com")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, second)
	if rec.Code != http.StatusOK {
		t.Errorf("second shop should have its own limiter, status = %d", rec.Code)
	}

	if rl.LimiterCount() != 2 {
		t.Errorf("limiter count = %d, want 2", rl.LimiterCount())
	}
}
