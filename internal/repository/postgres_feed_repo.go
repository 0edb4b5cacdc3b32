package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/shopfeed/internal/model"
)

// PostgresFeedRepo はPostgreSQLを使用したフィードリポジトリ。
type PostgresFeedRepo struct {
	db *sql.DB
}

// NewPostgresFeedRepo はPostgresFeedRepoを生成する。
func NewPostgresFeedRepo(db *sql.DB) *PostgresFeedRepo {
	return &PostgresFeedRepo{db: db}
}

// feedColumns はフィード取得クエリの共通カラムリスト。
const feedColumns = `id, shop_id, name, channel, language, country, currency, timezone,
	file_type, filter_mode, status, last_run_at, last_success_at, last_error,
	product_count, variant_count, storage_path, public_url, created_at, updated_at`

// FindByID は指定IDのフィードを取得する。見つからない場合はnilを返す。
func (r *PostgresFeedRepo) FindByID(ctx context.Context, id string) (*model.Feed, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+feedColumns+` FROM feeds WHERE id = $1`, id)

	feed, err := scanFeed(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("フィードの取得に失敗しました: %w", err)
	}
	return feed, nil
}

// ListByShopID はショップの全フィードを作成日時順で取得する。
func (r *PostgresFeedRepo) ListByShopID(ctx context.Context, shopID string) ([]*model.Feed, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+feedColumns+` FROM feeds WHERE shop_id = $1 ORDER BY created_at`, shopID)
	if err != nil {
		return nil, fmt.Errorf("フィード一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectFeeds(rows)
}

// ListAll は全フィードを作成日時順で取得する。
func (r *PostgresFeedRepo) ListAll(ctx context.Context) ([]*model.Feed, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+feedColumns+` FROM feeds ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("フィード一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectFeeds(rows)
}

// Create はフィードと子レコードを1トランザクションで登録する。
func (r *PostgresFeedRepo) Create(ctx context.Context, feed *model.Feed, mappings []model.FieldMapping, filters []model.FeedFilter, schedules []model.FeedSchedule) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO feeds (id, shop_id, name, channel, language, country, currency,
		        timezone, file_type, filter_mode, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		feed.ID, feed.ShopID, feed.Name, feed.Channel, feed.Language, feed.Country,
		feed.Currency, feed.Timezone, feed.FileType, string(feed.FilterMode),
		string(feed.Status), feed.CreatedAt, feed.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("フィードの登録に失敗しました: %w", err)
	}

	for _, m := range mappings {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO field_mappings (id, feed_id, position, column_name, source_kind, source_value)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			m.ID, feed.ID, m.Position, m.ColumnName, string(m.SourceKind), m.SourceValue,
		)
		if err != nil {
			return fmt.Errorf("フィールドマッピングの登録に失敗しました: %w", err)
		}
	}

	for _, f := range filters {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO feed_filters (id, feed_id, scope, field_name, operator, compare_value)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			f.ID, feed.ID, string(f.Scope), f.FieldName, string(f.Operator), f.CompareValue,
		)
		if err != nil {
			return fmt.Errorf("フィルタの登録に失敗しました: %w", err)
		}
	}

	for _, s := range schedules {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO feed_schedules (id, feed_id, interval_minutes, next_run_at, enabled)
			 VALUES ($1, $2, $3, $4, $5)`,
			s.ID, feed.ID, s.IntervalMinutes, s.NextRunAt, s.Enabled,
		)
		if err != nil {
			return fmt.Errorf("スケジュールの登録に失敗しました: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// Delete はフィードを削除する。子レコードは外部キーでカスケード削除される。
func (r *PostgresFeedRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM feeds WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("フィードの削除に失敗しました: %w", err)
	}
	return nil
}

// TryMarkPending はステータスが処理中でない場合に限りpendingに遷移させる。
// 遷移できたかを条件付きUPDATEの更新行数で返すため、同時刻の複数投入は
// データベース上で1件だけが受理される。
func (r *PostgresFeedRepo) TryMarkPending(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE feeds SET status = $1, updated_at = now()
		 WHERE id = $2 AND status NOT IN ($3, $4)`,
		string(model.FeedStatusPending), id,
		string(model.FeedStatusPending), string(model.FeedStatusRunning),
	)
	if err != nil {
		return false, fmt.Errorf("ステータスの更新に失敗しました: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ステータスの更新に失敗しました: %w", err)
	}
	return n > 0, nil
}

// MarkPending はステータスを無条件にpendingに遷移させる。
// 遺棄されたジョブの置き換え時のみ使用する。通常の投入はTryMarkPendingを使うこと。
func (r *PostgresFeedRepo) MarkPending(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE feeds SET status = $1, updated_at = now() WHERE id = $2`,
		string(model.FeedStatusPending), id,
	)
	if err != nil {
		return fmt.Errorf("ステータスの更新に失敗しました: %w", err)
	}
	return nil
}

// MarkRunning はステータスをrunningに遷移させ、実行タイムスタンプを記録する。
func (r *PostgresFeedRepo) MarkRunning(ctx context.Context, id string, runAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE feeds SET status = $1, last_run_at = $2, updated_at = now() WHERE id = $3`,
		string(model.FeedStatusRunning), runAt, id,
	)
	if err != nil {
		return fmt.Errorf("ステータスの更新に失敗しました: %w", err)
	}
	return nil
}

// MarkSuccess はステータスをsuccessに遷移させ、生成結果を記録する。
func (r *PostgresFeedRepo) MarkSuccess(ctx context.Context, id string, productCount, variantCount int, storagePath, publicURL string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE feeds
		 SET status = $1, last_success_at = now(), last_error = NULL,
		     product_count = $2, variant_count = $3, storage_path = $4, public_url = $5,
		     updated_at = now()
		 WHERE id = $6`,
		string(model.FeedStatusSuccess), productCount, variantCount, storagePath, publicURL, id,
	)
	if err != nil {
		return fmt.Errorf("ステータスの更新に失敗しました: %w", err)
	}
	return nil
}

// MarkError はステータスをerrorに遷移させ、エラーメッセージを記録する。
// 件数・保存先・公開URLは直前の成功時の値を維持する。
func (r *PostgresFeedRepo) MarkError(ctx context.Context, id string, message string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE feeds SET status = $1, last_error = $2, updated_at = now() WHERE id = $3`,
		string(model.FeedStatusError), message, id,
	)
	if err != nil {
		return fmt.Errorf("ステータスの更新に失敗しました: %w", err)
	}
	return nil
}

// ListMappings はフィードのフィールドマッピングをPosition昇順で取得する。
func (r *PostgresFeedRepo) ListMappings(ctx context.Context, feedID string) ([]model.FieldMapping, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, feed_id, position, column_name, source_kind, source_value
		 FROM field_mappings WHERE feed_id = $1 ORDER BY position`, feedID)
	if err != nil {
		return nil, fmt.Errorf("フィールドマッピングの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var mappings []model.FieldMapping
	for rows.Next() {
		var m model.FieldMapping
		var kind string
		if err := rows.Scan(&m.ID, &m.FeedID, &m.Position, &m.ColumnName, &kind, &m.SourceValue); err != nil {
			return nil, fmt.Errorf("フィールドマッピングの読み取りに失敗しました: %w", err)
		}
		m.SourceKind = model.SourceKind(kind)
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

// ListFilters はフィードのフィルタを取得する。
func (r *PostgresFeedRepo) ListFilters(ctx context.Context, feedID string) ([]model.FeedFilter, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, feed_id, scope, field_name, operator, compare_value
		 FROM feed_filters WHERE feed_id = $1 ORDER BY id`, feedID)
	if err != nil {
		return nil, fmt.Errorf("フィルタの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var filters []model.FeedFilter
	for rows.Next() {
		var f model.FeedFilter
		var scope, op string
		if err := rows.Scan(&f.ID, &f.FeedID, &scope, &f.FieldName, &op, &f.CompareValue); err != nil {
			return nil, fmt.Errorf("フィルタの読み取りに失敗しました: %w", err)
		}
		f.Scope = model.FilterScope(scope)
		f.Operator = model.FilterOperator(op)
		filters = append(filters, f)
	}
	return filters, rows.Err()
}

// rowScanner はsql.Rowとsql.Rowsの共通Scanインターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanFeed は1行分のフィードレコードを読み取る。
func scanFeed(row rowScanner) (*model.Feed, error) {
	feed := &model.Feed{}
	var filterMode, status string
	var lastRunAt, lastSuccessAt sql.NullTime
	var lastError, storagePath, publicURL sql.NullString

	err := row.Scan(
		&feed.ID, &feed.ShopID, &feed.Name, &feed.Channel, &feed.Language,
		&feed.Country, &feed.Currency, &feed.Timezone, &feed.FileType,
		&filterMode, &status, &lastRunAt, &lastSuccessAt, &lastError,
		&feed.ProductCount, &feed.VariantCount, &storagePath, &publicURL,
		&feed.CreatedAt, &feed.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	feed.FilterMode = model.FilterMode(filterMode)
	feed.Status = model.FeedStatus(status)
	if lastRunAt.Valid {
		feed.LastRunAt = &lastRunAt.Time
	}
	if lastSuccessAt.Valid {
		feed.LastSuccessAt = &lastSuccessAt.Time
	}
	feed.LastError = nullStringValue(lastError)
	feed.StoragePath = nullStringValue(storagePath)
	feed.PublicURL = nullStringValue(publicURL)

	return feed, nil
}

// collectFeeds は複数行のフィードレコードを読み取る。
func collectFeeds(rows *sql.Rows) ([]*model.Feed, error) {
	var feeds []*model.Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("フィードの読み取りに失敗しました: %w", err)
		}
		feeds = append(feeds, feed)
	}
	return feeds, rows.Err()
}

// nullStringValue はsql.NullStringの値を返す。NULLの場合は空文字列。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}
