package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/shopfeed/internal/model"
)

// PostgresScheduleRepo はPostgreSQLを使用したスケジュールリポジトリ。
type PostgresScheduleRepo struct {
	db *sql.DB
}

// NewPostgresScheduleRepo はPostgresScheduleRepoを生成する。
func NewPostgresScheduleRepo(db *sql.DB) *PostgresScheduleRepo {
	return &PostgresScheduleRepo{db: db}
}

// ListDue は実行時刻を過ぎた有効なスケジュールを取得する。
func (r *PostgresScheduleRepo) ListDue(ctx context.Context, now time.Time) ([]*model.FeedSchedule, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, feed_id, interval_minutes, next_run_at, enabled
		 FROM feed_schedules
		 WHERE enabled AND next_run_at <= $1
		 ORDER BY next_run_at`, now)
	if err != nil {
		return nil, fmt.Errorf("スケジュールの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var schedules []*model.FeedSchedule
	for rows.Next() {
		s := &model.FeedSchedule{}
		if err := rows.Scan(&s.ID, &s.FeedID, &s.IntervalMinutes, &s.NextRunAt, &s.Enabled); err != nil {
			return nil, fmt.Errorf("スケジュールの読み取りに失敗しました: %w", err)
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

// AdvanceNextRun は次回実行時刻を更新する。
func (r *PostgresScheduleRepo) AdvanceNextRun(ctx context.Context, id string, next time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE feed_schedules SET next_run_at = $1 WHERE id = $2`,
		next, id,
	)
	if err != nil {
		return fmt.Errorf("スケジュールの更新に失敗しました: %w", err)
	}
	return nil
}
