package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/shopfeed/internal/metrics"
	"github.com/hitoshi/shopfeed/internal/middleware"
)

type mockPinger struct {
	err error
}

func (m *mockPinger) PingContext(ctx context.Context) error {
	return m.err
}

func newTestRouter(t *testing.T, db Pinger) http.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(), discard())
	t.Cleanup(rl.Stop)

	feeds := shopFeeds()
	feeds.feeds["feed-1"] = feeds.byShop["shop-1"][0]

	return NewRouter(&RouterDeps{
		Logger:           discard(),
		Collector:        collector,
		Gatherer:         reg,
		RateLimiter:      rl,
		Feeds:            feeds,
		FeedLister:       feeds,
		Shops:            newMockShopStore(),
		Enqueuer:         &mockEnqueuer{},
		Unpublisher:      &mockUnpublisher{},
		Validator:        allowAllValidator{},
		RegenerateSecret: "s3cret",
		DB:               db,
	})
}

// TestRouter_Health はヘルスチェックエンドポイントを検証する。
func TestRouter_Health(t *testing.T) {
	router := newTestRouter(t, &mockPinger{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

// TestRouter_HealthUnavailable はDB疎通失敗時に503を返すことを検証する。
func TestRouter_HealthUnavailable(t *testing.T) {
	router := newTestRouter(t, &mockPinger{err: errors.New("connection refused")})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

// TestRouter_Metrics はPrometheusエンドポイントが公開されることを検証する。
func TestRouter_Metrics(t *testing.T) {
	router := newTestRouter(t, &mockPinger{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

// TestRouter_FeedRoutes はフィード管理ルートが配線されていることを検証する。
func TestRouter_FeedRoutes(t *testing.T) {
	router := newTestRouter(t, &mockPinger{})

	req := httptest.NewRequest(http.MethodGet, "/api/feeds/feed-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("GET /api/feeds/feed-1 status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "feed-1") {
		t.Error("response should contain feed id")
	}
}

// TestRouter_InternalRequiresSecret は内部APIがシークレットなしで
// 401になることを検証する。
func TestRouter_InternalRequiresSecret(t *testing.T) {
	router := newTestRouter(t, &mockPinger{})

	req := httptest.NewRequest(http.MethodPost, "/internal/regenerate", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/internal/regenerate", nil)
	req.Header.Set("X-Regenerate-Secret", "s3cret")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Errorf("status with secret = %d, want 202", rec.Code)
	}
}

// TestRouter_WebhookRoute はWebhookルートがレート制限付きで
// 配線されていることを検証する。
func TestRouter_WebhookRoute(t *testing.T) {
	router := newTestRouter(t, &mockPinger{})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/products", nil)
	req.Header.Set("X-Shop-Domain", "demo.myshopify.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
}

// TestRouter_UnknownRoute は未定義ルートが404になることを検証する。
func TestRouter_UnknownRoute(t *testing.T) {
	router := newTestRouter(t, &mockPinger{})

	req := httptest.NewRequest(http.MethodGet, "/api/unknown", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
