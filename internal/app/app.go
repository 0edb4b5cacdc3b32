package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/shopfeed/internal/config"
	"github.com/hitoshi/shopfeed/internal/database"
	"github.com/hitoshi/shopfeed/internal/generator"
	"github.com/hitoshi/shopfeed/internal/handler"
	"github.com/hitoshi/shopfeed/internal/logger"
	"github.com/hitoshi/shopfeed/internal/metrics"
	"github.com/hitoshi/shopfeed/internal/middleware"
	"github.com/hitoshi/shopfeed/internal/publisher"
	"github.com/hitoshi/shopfeed/internal/queue"
	"github.com/hitoshi/shopfeed/internal/repository"
	"github.com/hitoshi/shopfeed/internal/scheduler"
	"github.com/hitoshi/shopfeed/internal/security"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	feedRepo := repository.NewPostgresFeedRepo(db)
	shopRepo := repository.NewPostgresShopRepo(db)

	// 3. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. 公開先ストレージの初期化
	pub, err := newPublisher(cfg)
	if err != nil {
		return err
	}

	// 5. 生成オーケストレータの初期化
	ssrfGuard := security.NewSSRFGuard()
	orch := generator.NewOrchestrator(
		feedRepo, shopRepo, pub, collector,
		ssrfGuard.NewSafeClient(cfg.CatalogTimeout),
		generator.Config{
			PageSize:                 cfg.CatalogPageSize,
			TranslationBatchSize:     cfg.TranslationBatchSize,
			TranslationBatchInterval: cfg.TranslationBatchInterval,
		},
		slog.Default(),
	)

	// 6. ジョブキューの初期化（Redis到達性に応じて分散/インラインを選択）
	q := queue.New(queue.Config{
		RedisAddr: cfg.RedisAddr,
		MaxRetry:  cfg.JobMaxRetry,
		Retention: cfg.JobRetention,
	}, orch, feedRepo, collector, slog.Default())
	defer q.Close()

	// 7. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(), slog.Default())
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:      slog.Default(),
		Collector:   collector,
		Gatherer:    registry,
		RateLimiter: rateLimiter,

		Feeds:       feedRepo,
		FeedLister:  feedRepo,
		Shops:       shopRepo,
		Enqueuer:    q,
		Unpublisher: pub,

		Validator:        ssrfGuard,
		RegenerateSecret: cfg.RegenerateSecret,

		DB: db,
	})

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
			slog.String("queue_mode", string(q.Mode())),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// asynqサーバーで生成ジョブを処理し、スケジュールレジストリを併走させる。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 分散キューが前提のモードのため、Redisなしでは起動できない
	if cfg.RedisAddr == "" {
		return fmt.Errorf("worker mode requires REDIS_ADDR")
	}

	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. リポジトリの初期化
	feedRepo := repository.NewPostgresFeedRepo(db)
	shopRepo := repository.NewPostgresShopRepo(db)
	scheduleRepo := repository.NewPostgresScheduleRepo(db)

	// 3. 生成オーケストレータの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	pub, err := newPublisher(cfg)
	if err != nil {
		return err
	}

	ssrfGuard := security.NewSSRFGuard()
	orch := generator.NewOrchestrator(
		feedRepo, shopRepo, pub, collector,
		ssrfGuard.NewSafeClient(cfg.CatalogTimeout),
		generator.Config{
			PageSize:                 cfg.CatalogPageSize,
			TranslationBatchSize:     cfg.TranslationBatchSize,
			TranslationBatchInterval: cfg.TranslationBatchInterval,
		},
		slog.Default(),
	)

	// 4. スケジュールレジストリの起動
	// 期限到来したスケジュールは通常の生成ジョブとしてキューに積まれる。
	q := queue.New(queue.Config{
		RedisAddr: cfg.RedisAddr,
		MaxRetry:  cfg.JobMaxRetry,
		Retention: cfg.JobRetention,
	}, orch, feedRepo, collector, slog.Default())
	defer q.Close()

	reg := scheduler.NewRegistry(
		scheduleRepo, feedRepo, shopRepo, q,
		slog.Default(), cfg.ScheduleScanInterval,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go reg.Start(ctx)

	slog.Info("worker starting",
		slog.Int("concurrency", cfg.WorkerConcurrency),
		slog.Duration("schedule_scan_interval", cfg.ScheduleScanInterval),
	)

	// 5. asynqワーカーをメインgoroutineで実行（ブロッキング）
	// asynq.Server.RunがSIGINT/SIGTERMを処理する。
	worker := queue.NewWorker(queue.WorkerConfig{
		RedisAddr:      cfg.RedisAddr,
		Concurrency:    cfg.WorkerConcurrency,
		BaseRetryDelay: cfg.JobBaseRetryDelay,
	}, orch, slog.Default())
	if err := worker.Run(); err != nil {
		return err
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// newPublisher はConfigからブロブストレージの公開クライアントを構築する。
func newPublisher(cfg *config.Config) (*publisher.Publisher, error) {
	pub, err := publisher.NewPublisher(publisher.Config{
		Endpoint:   cfg.S3Endpoint,
		AccessKey:  cfg.S3AccessKey,
		SecretKey:  cfg.S3SecretKey,
		Bucket:     cfg.S3Bucket,
		Region:     cfg.S3Region,
		UseSSL:     cfg.S3UseSSL,
		URLStyle:   publisher.URLStyle(cfg.S3URLStyle),
		CDNBaseURL: cfg.CDNBaseURL,
	}, slog.Default())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize publisher: %w", err)
	}
	return pub, nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
