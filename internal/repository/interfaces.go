// Package repository はデータベースアクセス層のインターフェースと実装を提供する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/shopfeed/internal/model"
)

// FeedRepository はフィード設定と生成状態の永続化のインターフェース。
// ステータス遷移（MarkPending/MarkRunning/MarkSuccess/MarkError）は
// ジェネレータとキューのみが呼び出す唯一の書き込み経路として使用する。
type FeedRepository interface {
	// FindByID は指定IDのフィードを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Feed, error)
	// ListByShopID はショップの全フィードを取得する。
	ListByShopID(ctx context.Context, shopID string) ([]*model.Feed, error)
	// ListAll は全フィードを取得する。一括再生成APIで使用する。
	ListAll(ctx context.Context) ([]*model.Feed, error)
	// Create はフィードと子レコード（マッピング・フィルタ・スケジュール）を登録する。
	Create(ctx context.Context, feed *model.Feed, mappings []model.FieldMapping, filters []model.FeedFilter, schedules []model.FeedSchedule) error
	// Delete はフィードを削除する。子レコードはカスケード削除される。
	Delete(ctx context.Context, id string) error

	// TryMarkPending はステータスがpending/running以外の場合に限りpendingに
	// 遷移させ、遷移できたかを返す。同時投入の排他はこの条件付き更新が担う。
	TryMarkPending(ctx context.Context, id string) (bool, error)
	// MarkPending はステータスを無条件にpendingに遷移させる。
	// 遺棄されたジョブの置き換え時のみ使用する。
	MarkPending(ctx context.Context, id string) error
	// MarkRunning はステータスをrunningに遷移させ、実行タイムスタンプを記録する。
	MarkRunning(ctx context.Context, id string, runAt time.Time) error
	// MarkSuccess はステータスをsuccessに遷移させ、件数・保存先・公開URLを記録する。
	MarkSuccess(ctx context.Context, id string, productCount, variantCount int, storagePath, publicURL string) error
	// MarkError はステータスをerrorに遷移させ、エラーメッセージを記録する。
	// 件数と公開URLは直前の成功時の値を維持する。
	MarkError(ctx context.Context, id string, message string) error

	// ListMappings はフィードのフィールドマッピングをPosition昇順で取得する。
	ListMappings(ctx context.Context, feedID string) ([]model.FieldMapping, error)
	// ListFilters はフィードのフィルタを取得する。
	ListFilters(ctx context.Context, feedID string) ([]model.FeedFilter, error)
}

// ShopRepository はショップ資格情報の読み取りのインターフェース。
type ShopRepository interface {
	// FindByID は指定IDのショップを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Shop, error)
	// FindByDomain はショップドメインでショップを検索する。見つからない場合はnilを返す。
	FindByDomain(ctx context.Context, domain string) (*model.Shop, error)
	// UpdateStorefrontToken は取得済みStorefrontトークンを保存する。
	UpdateStorefrontToken(ctx context.Context, id, token string) error
}

// ScheduleRepository はフィード生成スケジュールの永続化のインターフェース。
type ScheduleRepository interface {
	// ListDue は実行時刻を過ぎた有効なスケジュールを取得する。
	ListDue(ctx context.Context, now time.Time) ([]*model.FeedSchedule, error)
	// AdvanceNextRun は次回実行時刻を更新する。
	AdvanceNextRun(ctx context.Context, id string, next time.Time) error
}
