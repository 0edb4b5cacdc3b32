package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/shopfeed/internal/model"
)

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type mockScheduleStore struct {
	due      []*model.FeedSchedule
	err      error
	advanced map[string]time.Time
}

func (m *mockScheduleStore) ListDue(ctx context.Context, now time.Time) ([]*model.FeedSchedule, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.due, nil
}

func (m *mockScheduleStore) AdvanceNextRun(ctx context.Context, id string, next time.Time) error {
	if m.advanced == nil {
		m.advanced = map[string]time.Time{}
	}
	m.advanced[id] = next
	return nil
}

type mockFeedStore struct {
	feeds map[string]*model.Feed
}

func (m *mockFeedStore) FindByID(ctx context.Context, id string) (*model.Feed, error) {
	return m.feeds[id], nil
}

type mockShopStore struct {
	shops map[string]*model.Shop
}

func (m *mockShopStore) FindByID(ctx context.Context, id string) (*model.Shop, error) {
	return m.shops[id], nil
}

type mockEnqueuer struct {
	jobs    []*model.GenerationJob
	skipped bool
	err     error
}

func (m *mockEnqueuer) Enqueue(ctx context.Context, feed *model.Feed, job *model.GenerationJob) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if m.skipped {
		return false, nil
	}
	m.jobs = append(m.jobs, job)
	return true, nil
}

func fixedNow() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func dueSchedule() *model.FeedSchedule {
	return &model.FeedSchedule{
		ID:              "sched-1",
		FeedID:          "feed-1",
		IntervalMinutes: 60,
		NextRunAt:       fixedNow().Add(-time.Minute),
		Enabled:         true,
	}
}

func registryFixtures() (*mockScheduleStore, *mockFeedStore, *mockShopStore, *mockEnqueuer) {
	schedules := &mockScheduleStore{due: []*model.FeedSchedule{dueSchedule()}}
	feeds := &mockFeedStore{feeds: map[string]*model.Feed{
		"feed-1": {ID: "feed-1", ShopID: "shop-1", Status: model.FeedStatusIdle},
	}}
	shops := &mockShopStore{shops: map[string]*model.Shop{
		"shop-1": {ID: "shop-1", Domain: "demo.myshopify.com", AccessToken: "token"},
	}}
	return schedules, feeds, shops, &mockEnqueuer{}
}

func newTestRegistry(schedules *mockScheduleStore, feeds *mockFeedStore, shops *mockShopStore, enqueuer *mockEnqueuer) *Registry {
	r := NewRegistry(schedules, feeds, shops, enqueuer, discard(), time.Minute)
	r.now = fixedNow
	return r
}

// TestRunOnce_EnqueuesDueSchedules は実行時刻を過ぎたスケジュールから
// ジョブが投入されることを検証する。
func TestRunOnce_EnqueuesDueSchedules(t *testing.T) {
	schedules, feeds, shops, enqueuer := registryFixtures()
	r := newTestRegistry(schedules, feeds, shops, enqueuer)

	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if len(enqueuer.jobs) != 1 {
		t.Fatalf("enqueued jobs = %d, want 1", len(enqueuer.jobs))
	}
	job := enqueuer.jobs[0]
	if job.FeedID != "feed-1" {
		t.Errorf("job feed id = %q, want feed-1", job.FeedID)
	}
	if job.Reason != model.TriggerSchedule {
		t.Errorf("job reason = %q, want %q", job.Reason, model.TriggerSchedule)
	}
}

// TestRunOnce_AdvancesNextRun は次回実行時刻が現在時刻+間隔に
// 更新されることを検証する。
func TestRunOnce_AdvancesNextRun(t *testing.T) {
	schedules, feeds, shops, enqueuer := registryFixtures()
	r := newTestRegistry(schedules, feeds, shops, enqueuer)

	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	want := fixedNow().Add(60 * time.Minute)
	if got := schedules.advanced["sched-1"]; !got.Equal(want) {
		t.Errorf("next run = %v, want %v", got, want)
	}
}

// TestRunOnce_AdvancesEvenWhenSkipped はフィード処理中でジョブが
// スキップされても次回実行時刻が進むことを検証する。
func TestRunOnce_AdvancesEvenWhenSkipped(t *testing.T) {
	schedules, feeds, shops, enqueuer := registryFixtures()
	enqueuer.skipped = true
	r := newTestRegistry(schedules, feeds, shops, enqueuer)

	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if _, ok := schedules.advanced["sched-1"]; !ok {
		t.Error("next run should advance even when the job is skipped")
	}
}

// TestRunOnce_MissingFeedAdvances は対象フィードが削除済みでも
// スケジュールが進み、エラーにならないことを検証する。
func TestRunOnce_MissingFeedAdvances(t *testing.T) {
	schedules, _, shops, enqueuer := registryFixtures()
	feeds := &mockFeedStore{feeds: map[string]*model.Feed{}}
	r := newTestRegistry(schedules, feeds, shops, enqueuer)

	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if len(enqueuer.jobs) != 0 {
		t.Errorf("enqueued jobs = %d, want 0", len(enqueuer.jobs))
	}
	if _, ok := schedules.advanced["sched-1"]; !ok {
		t.Error("next run should advance for a missing feed")
	}
}

// TestRunOnce_ListDueFailureReturnsError はスキャン自体の失敗が
// エラーとして返ることを検証する。
func TestRunOnce_ListDueFailureReturnsError(t *testing.T) {
	schedules, feeds, shops, enqueuer := registryFixtures()
	schedules.err = errors.New("db down")
	r := newTestRegistry(schedules, feeds, shops, enqueuer)

	if err := r.RunOnce(context.Background()); err == nil {
		t.Fatal("expected error when ListDue fails")
	}
}

// TestRunOnce_EnqueueFailureContinues は個別の投入失敗が他の
// スケジュールの処理を止めないことを検証する。
func TestRunOnce_EnqueueFailureContinues(t *testing.T) {
	schedules, feeds, shops, _ := registryFixtures()
	second := dueSchedule()
	second.ID = "sched-2"
	second.FeedID = "feed-2"
	schedules.due = append(schedules.due, second)
	feeds.feeds["feed-2"] = &model.Feed{ID: "feed-2", ShopID: "shop-1", Status: model.FeedStatusIdle}

	enqueuer := &mockEnqueuer{err: errors.New("queue down")}
	r := newTestRegistry(schedules, feeds, shops, enqueuer)

	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce should not fail on individual enqueue errors: %v", err)
	}
}

// TestStart_StopsOnContextCancel はコンテキストキャンセルで
// レジストリが停止することを検証する。
func TestStart_StopsOnContextCancel(t *testing.T) {
	schedules, feeds, shops, enqueuer := registryFixtures()
	r := newTestRegistry(schedules, feeds, shops, enqueuer)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("registry did not stop after context cancellation")
	}
}
