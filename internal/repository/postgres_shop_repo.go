package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/shopfeed/internal/model"
)

// PostgresShopRepo はPostgreSQLを使用したショップリポジトリ。
type PostgresShopRepo struct {
	db *sql.DB
}

// NewPostgresShopRepo はPostgresShopRepoを生成する。
func NewPostgresShopRepo(db *sql.DB) *PostgresShopRepo {
	return &PostgresShopRepo{db: db}
}

const shopColumns = `id, domain, access_token, storefront_token, primary_locale,
	country, currency, created_at, updated_at`

// FindByID は指定IDのショップを取得する。見つからない場合はnilを返す。
func (r *PostgresShopRepo) FindByID(ctx context.Context, id string) (*model.Shop, error) {
	return r.findOne(ctx, `SELECT `+shopColumns+` FROM shops WHERE id = $1`, id)
}

// FindByDomain はショップドメインでショップを検索する。見つからない場合はnilを返す。
func (r *PostgresShopRepo) FindByDomain(ctx context.Context, domain string) (*model.Shop, error) {
	return r.findOne(ctx, `SELECT `+shopColumns+` FROM shops WHERE domain = $1`, domain)
}

func (r *PostgresShopRepo) findOne(ctx context.Context, query string, arg any) (*model.Shop, error) {
	shop := &model.Shop{}
	var storefrontToken sql.NullString

	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&shop.ID, &shop.Domain, &shop.AccessToken, &storefrontToken,
		&shop.PrimaryLocale, &shop.Country, &shop.Currency,
		&shop.CreatedAt, &shop.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ショップの取得に失敗しました: %w", err)
	}

	shop.StorefrontToken = nullStringValue(storefrontToken)
	return shop, nil
}

// UpdateStorefrontToken は取得済みStorefrontトークンを保存する。
func (r *PostgresShopRepo) UpdateStorefrontToken(ctx context.Context, id, token string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE shops SET storefront_token = $1, updated_at = now() WHERE id = $2`,
		token, id,
	)
	if err != nil {
		return fmt.Errorf("Storefrontトークンの更新に失敗しました: %w", err)
	}
	return nil
}
