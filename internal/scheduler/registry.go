// Package scheduler はフィード生成スケジュールの定期実行を提供する。
// 1分間隔のティッカーで実行時刻を過ぎたスケジュールを取得し、
// 生成ジョブをキューに投入する。
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/shopfeed/internal/model"
)

// defaultScanInterval はスケジュールスキャンの間隔。
const defaultScanInterval = time.Minute

// ScheduleStore はスケジュールの読み取りと次回実行時刻の更新を行う。
type ScheduleStore interface {
	ListDue(ctx context.Context, now time.Time) ([]*model.FeedSchedule, error)
	AdvanceNextRun(ctx context.Context, id string, next time.Time) error
}

// FeedStore はスケジュール対象フィードの読み取りを行う。
type FeedStore interface {
	FindByID(ctx context.Context, id string) (*model.Feed, error)
}

// ShopStore はジョブ構築に必要なショップの読み取りを行う。
type ShopStore interface {
	FindByID(ctx context.Context, id string) (*model.Shop, error)
}

// Enqueuer は生成ジョブの投入口。
type Enqueuer interface {
	Enqueue(ctx context.Context, feed *model.Feed, job *model.GenerationJob) (bool, error)
}

// Registry はスケジュールをスキャンしジョブを投入するレジストリ。
type Registry struct {
	schedules ScheduleStore
	feeds     FeedStore
	shops     ShopStore
	enqueuer  Enqueuer
	logger    *slog.Logger
	interval  time.Duration

	now func() time.Time
}

// NewRegistry はRegistryを生成する。intervalが0以下の場合は1分を使用する。
func NewRegistry(schedules ScheduleStore, feeds FeedStore, shops ShopStore, enqueuer Enqueuer, logger *slog.Logger, interval time.Duration) *Registry {
	if interval <= 0 {
		interval = defaultScanInterval
	}
	return &Registry{
		schedules: schedules,
		feeds:     feeds,
		shops:     shops,
		enqueuer:  enqueuer,
		logger:    logger,
		interval:  interval,
		now:       time.Now,
	}
}

// Start はティッカーでレジストリを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (r *Registry) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("スケジュールレジストリを開始しました",
		slog.Duration("interval", r.interval),
	)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("スケジュールレジストリを停止しました")
			return
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				r.logger.Error("スケジュールスキャンに失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は実行時刻を過ぎたスケジュールを1回スキャンし、ジョブを投入する。
// 個々のスケジュールの失敗はログに記録して次に進む。
func (r *Registry) RunOnce(ctx context.Context) error {
	now := r.now()

	due, err := r.schedules.ListDue(ctx, now)
	if err != nil {
		return err
	}

	for _, schedule := range due {
		if err := r.dispatch(ctx, schedule, now); err != nil {
			r.logger.Error("スケジュールの実行に失敗しました",
				slog.String("schedule_id", schedule.ID),
				slog.String("feed_id", schedule.FeedID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// dispatch は1件のスケジュールについてジョブを投入し、次回実行時刻を進める。
// フィードが処理中でスキップされた場合も次回実行時刻は進める
// （同じスケジュールが毎分再発火するのを防ぐ）。
func (r *Registry) dispatch(ctx context.Context, schedule *model.FeedSchedule, now time.Time) error {
	feed, err := r.feeds.FindByID(ctx, schedule.FeedID)
	if err != nil {
		return err
	}
	if feed == nil {
		// フィード削除時にスケジュールもカスケード削除されるが、
		// スキャン中の競合で残留する場合がある。
		r.logger.Warn("スケジュール対象のフィードが存在しません",
			slog.String("feed_id", schedule.FeedID),
		)
		return r.schedules.AdvanceNextRun(ctx, schedule.ID, nextRun(schedule, now))
	}

	shop, err := r.shops.FindByID(ctx, feed.ShopID)
	if err != nil {
		return err
	}
	if shop == nil {
		return r.schedules.AdvanceNextRun(ctx, schedule.ID, nextRun(schedule, now))
	}

	job, err := model.NewGenerationJob(feed, shop, model.TriggerSchedule)
	if err != nil {
		return err
	}

	enqueued, err := r.enqueuer.Enqueue(ctx, feed, job)
	if err != nil {
		return err
	}
	if !enqueued {
		r.logger.Info("フィードが処理中のためスケジュール実行をスキップしました",
			slog.String("feed_id", feed.ID),
		)
	}

	return r.schedules.AdvanceNextRun(ctx, schedule.ID, nextRun(schedule, now))
}

// nextRun は現在時刻を基準に次回実行時刻を計算する。
// 停止期間で取りこぼした分を連続実行しないよう、過去の予定時刻ではなく
// 現在時刻に間隔を加算する。
func nextRun(schedule *model.FeedSchedule, now time.Time) time.Time {
	return now.Add(time.Duration(schedule.IntervalMinutes) * time.Minute)
}
