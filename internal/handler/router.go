package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/shopfeed/internal/metrics"
	"github.com/hitoshi/shopfeed/internal/middleware"
)

// Pinger はヘルスチェックで使用するデータベース疎通確認。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger      *slog.Logger
	Collector   metrics.MetricsCollector
	Gatherer    prometheus.Gatherer
	RateLimiter *middleware.RateLimiter

	// フィード管理
	Feeds       FeedStore
	FeedLister  FeedLister
	Shops       ShopStore
	Enqueuer    Enqueuer
	Unpublisher Unpublisher

	// トリガー
	Validator        DomainValidator
	RegenerateSecret string

	// ヘルスチェック
	DB Pinger
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RecoveryMiddleware → LoggingMiddleware
//
// Webhookルートにはショップ単位のレート制限、内部ルートには共有シークレット検証を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Collector))

	feedHandler := NewFeedHandler(deps.Feeds, deps.Shops, deps.Enqueuer, deps.Unpublisher)
	triggerHandler := NewTriggerHandler(deps.FeedLister, deps.Shops, deps.Enqueuer, deps.Validator, deps.Logger)

	// 運用サーフェス
	r.Get("/health", healthHandler(deps.DB))
	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))

	// フィード管理
	r.Route("/api/feeds", func(r chi.Router) {
		r.Get("/", feedHandler.ListFeeds)
		r.Post("/", feedHandler.CreateFeed)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", feedHandler.GetFeed)
			r.Delete("/", feedHandler.DeleteFeed)
			r.Post("/generate", feedHandler.GenerateFeed)
		})
	})

	// Webhook受信（ショップ単位レート制限）
	r.With(deps.RateLimiter.WebhookMiddleware()).Post("/webhooks/products", triggerHandler.ProductsWebhook)

	// 内部API（共有シークレット検証）
	r.With(middleware.NewSecretMiddleware(deps.RegenerateSecret)).Post("/internal/regenerate", triggerHandler.Regenerate)

	return r
}

// healthHandler はヘルスチェックエンドポイントのハンドラーを返す。
// データベースに到達できない場合は503を返す。
func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
