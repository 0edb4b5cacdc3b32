// Package queue はフィード生成ジョブの投入と実行を提供する。
// Redisが利用可能な場合はasynqによる分散キュー、利用できない場合は
// 同一プロセス内で即時実行するインラインモードで動作する。
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/shopfeed/internal/metrics"
	"github.com/hitoshi/shopfeed/internal/model"
)

// TaskTypeGenerate はフィード生成タスクの種別名。
const TaskTypeGenerate = "feed:generate"

// queueName は生成ジョブ専用のキュー名。
const queueName = "feeds"

const (
	defaultMaxRetry  = 3
	defaultRetention = 24 * time.Hour
	pingTimeout     = 3 * time.Second
)

// Mode はキューの実行モードを表す。
type Mode string

const (
	// ModeDistributed はRedis経由の分散キューで実行する。
	ModeDistributed Mode = "distributed"
	// ModeInline は同一プロセス内で同期実行する。
	ModeInline Mode = "inline"
)

// Runner は生成ジョブの実行者。
type Runner interface {
	Generate(ctx context.Context, job *model.GenerationJob) error
}

// FeedStatusStore はジョブ受理時のステータス遷移に使用する。
type FeedStatusStore interface {
	// TryMarkPending は処理中でない場合に限りpendingへ遷移させ、遷移できたかを返す。
	TryMarkPending(ctx context.Context, id string) (bool, error)
	// MarkPending は無条件にpendingへ遷移させる。遺棄ジョブの置き換え時のみ使用する。
	MarkPending(ctx context.Context, id string) error
	// MarkError はerrorへ遷移させる。投入失敗時にフィードを再投入可能な状態へ戻す。
	MarkError(ctx context.Context, id string, message string) error
}

// Config はキューの動作設定。ゼロ値のフィールドは既定値で補われる。
type Config struct {
	RedisAddr string
	MaxRetry  int
	Retention time.Duration
}

// Queue は生成ジョブの投入口。フィードIDをタスクIDとして使用することで
// 同一フィードのジョブが同時に複数存在しないことを保証する。
type Queue struct {
	mode      Mode
	client    *asynq.Client
	inspector *asynq.Inspector
	runner    Runner
	feeds     FeedStatusStore
	collector metrics.MetricsCollector
	logger    *slog.Logger
	maxRetry  int
	retention time.Duration
}

// New はQueueを生成する。Redisへの疎通を確認し、到達できる場合は
// 分散モード、できない場合（アドレス未設定を含む）はインラインモードを選択する。
func New(cfg Config, runner Runner, feeds FeedStatusStore, collector metrics.MetricsCollector, logger *slog.Logger) *Queue {
	q := &Queue{
		mode:      ModeInline,
		runner:    runner,
		feeds:     feeds,
		collector: collector,
		logger:    logger,
		maxRetry:  cfg.MaxRetry,
		retention: cfg.Retention,
	}
	if q.maxRetry <= 0 {
		q.maxRetry = defaultMaxRetry
	}
	if q.retention <= 0 {
		q.retention = defaultRetention
	}

	if cfg.RedisAddr == "" {
		logger.Info("Redisアドレスが未設定のためインラインモードで動作します")
		return q
	}

	if err := pingRedis(cfg.RedisAddr); err != nil {
		logger.Warn("Redisに接続できないためインラインモードに切り替えます",
			"addr", cfg.RedisAddr,
			"error", err,
		)
		return q
	}

	opt := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	q.mode = ModeDistributed
	q.client = asynq.NewClient(opt)
	q.inspector = asynq.NewInspector(opt)
	logger.Info("分散キューモードで動作します", "addr", cfg.RedisAddr)
	return q
}

// pingRedis はRedisへの疎通を確認する。
func pingRedis(addr string) error {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	return client.Ping(ctx).Err()
}

// Mode は現在の実行モードを返す。
func (q *Queue) Mode() Mode {
	return q.mode
}

// Close はキューの接続を閉じる。インラインモードでは何もしない。
func (q *Queue) Close() error {
	if q.client != nil {
		return q.client.Close()
	}
	return nil
}

// Enqueue はフィードの生成ジョブを投入する。
//
// 受理はpendingへの条件付き遷移で確定する。遷移はデータベース上の
// 条件付きUPDATEで行われるため、同一フィードへの同時投入は1件だけが
// 受理され、残りはスキップ（false）になる。
//
// ステータスがpending/runningのフィードは原則スキップするが、分散モードで
// キュー上に対応する生存タスクが存在しない場合はワーカーの異常終了で
// 遺棄されたジョブとみなし、置き換えて受理する。
//
// インラインモードでは受理後に同期実行し、生成エラーをそのまま返す。
func (q *Queue) Enqueue(ctx context.Context, feed *model.Feed, job *model.GenerationJob) (bool, error) {
	if feed.Status.CanEnqueue() {
		claimed, err := q.feeds.TryMarkPending(ctx, feed.ID)
		if err != nil {
			return false, err
		}
		if !claimed {
			q.logger.Info("別の投入が先に受理されたためスキップします",
				"feed_id", feed.ID,
			)
			return false, nil
		}
	} else {
		if q.mode != ModeDistributed || q.hasLiveTask(feed.ID) {
			q.logger.Info("処理中のジョブがあるため投入をスキップします",
				"feed_id", feed.ID,
				"status", string(feed.Status),
			)
			return false, nil
		}
		q.logger.Warn("遺棄されたジョブを置き換えます",
			"feed_id", feed.ID,
			"status", string(feed.Status),
		)
		if err := q.feeds.MarkPending(ctx, feed.ID); err != nil {
			return false, err
		}
	}

	if q.mode == ModeDistributed {
		if err := q.enqueueDistributed(ctx, feed.ID, job); err != nil {
			// pendingのままではフィードがロックされるため、errorに戻して
			// 再投入可能な状態にする。
			if markErr := q.feeds.MarkError(ctx, feed.ID, err.Error()); markErr != nil {
				q.logger.Error("投入失敗後のステータス復帰に失敗しました",
					"feed_id", feed.ID,
					"error", markErr,
				)
			}
			return false, err
		}
		q.collector.RecordEnqueue(string(ModeDistributed))
		return true, nil
	}

	q.collector.RecordEnqueue(string(ModeInline))
	if err := q.runner.Generate(ctx, job); err != nil {
		return true, err
	}
	return true, nil
}

// hasLiveTask はフィードIDに対応するタスクがキュー上で生存しているかを返す。
// 完了・アーカイブ済み・不存在のタスクは生存とみなさない。
func (q *Queue) hasLiveTask(feedID string) bool {
	info, err := q.inspector.GetTaskInfo(queueName, feedID)
	if err != nil {
		return false
	}
	switch info.State {
	case asynq.TaskStateActive, asynq.TaskStatePending, asynq.TaskStateScheduled, asynq.TaskStateRetry:
		return true
	default:
		return false
	}
}

// enqueueDistributed はasynqにタスクを投入する。タスクIDの衝突は
// 保持期限内の完了済みタスクや遺棄されたタスクが残っている場合に
// 起きるため、1度だけ削除して再投入する。
func (q *Queue) enqueueDistributed(ctx context.Context, feedID string, job *model.GenerationJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("ジョブのシリアライズに失敗しました: %w", err)
	}

	task := asynq.NewTask(TaskTypeGenerate, payload)
	opts := []asynq.Option{
		asynq.TaskID(feedID),
		asynq.Queue(queueName),
		asynq.MaxRetry(q.maxRetry),
		asynq.Retention(q.retention),
	}

	_, err = q.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		if delErr := q.inspector.DeleteTask(queueName, feedID); delErr != nil {
			return fmt.Errorf("残留タスクの削除に失敗しました: %w", delErr)
		}
		_, err = q.client.EnqueueContext(ctx, task, opts...)
	}
	if err != nil {
		return fmt.Errorf("ジョブの投入に失敗しました: %w", err)
	}
	return nil
}
