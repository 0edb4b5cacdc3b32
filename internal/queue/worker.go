package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/hitoshi/shopfeed/internal/model"
)

const (
	defaultBaseRetryDelay = 30 * time.Second
	maxRetryDelay         = 10 * time.Minute
)

// WorkerConfig はワーカーの動作設定。ゼロ値のフィールドは既定値で補われる。
type WorkerConfig struct {
	RedisAddr      string
	Concurrency    int
	BaseRetryDelay time.Duration
}

// Worker はasynqサーバーを実行し、生成ジョブを処理する。
type Worker struct {
	srv    *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

// NewWorker はWorkerを生成する。キューの並列度は1フィード=1タスクの
// 排他があるためConcurrencyがそのまま同時生成数になる。
func NewWorker(cfg WorkerConfig, runner Runner, logger *slog.Logger) *Worker {
	base := cfg.BaseRetryDelay
	if base <= 0 {
		base = defaultBaseRetryDelay
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues:      map[string]int{queueName: 1},
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return retryDelay(n, base)
			},
		},
	)

	mux := asynq.NewServeMux()
	w := &Worker{srv: srv, mux: mux, logger: logger}
	mux.HandleFunc(TaskTypeGenerate, func(ctx context.Context, task *asynq.Task) error {
		return w.handleGenerate(ctx, task, runner)
	})
	return w
}

// Run はワーカーを起動し、停止するまでブロックする。
func (w *Worker) Run() error {
	if err := w.srv.Run(w.mux); err != nil {
		return fmt.Errorf("ワーカーの実行に失敗しました: %w", err)
	}
	return nil
}

// Shutdown はワーカーを停止する。処理中のタスクは完了を待つ。
func (w *Worker) Shutdown() {
	w.srv.Shutdown()
}

func (w *Worker) handleGenerate(ctx context.Context, task *asynq.Task, runner Runner) error {
	var job model.GenerationJob
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		// 復元できないペイロードはリトライしても成功しない。
		w.logger.Error("ジョブの復元に失敗しました", "error", err)
		return fmt.Errorf("ジョブの復元に失敗しました: %v: %w", err, asynq.SkipRetry)
	}

	if n, ok := asynq.GetRetryCount(ctx); ok {
		job.RetryCount = n
	}

	return runner.Generate(ctx, &job)
}

// retryDelay はリトライ回数に応じた指数バックオフの待機時間を返す。
func retryDelay(n int, base time.Duration) time.Duration {
	delay := base
	for i := 0; i < n; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}
