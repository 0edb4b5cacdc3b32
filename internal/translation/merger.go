// Package translation はロケール別のテキスト上書きの取得とマージを提供する。
// 対象言語がショップの基準言語と異なり、かつセカンダリソース
// （未翻訳テキストを返す）が使用された場合にのみ呼び出される。
package translation

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/hitoshi/shopfeed/internal/model"
)

// DefaultBatchSize は1バッチあたりの最大商品数。
// アップストリームのレート制限を尊重するため10以下に保つ。
const DefaultBatchSize = 10

// Fetcher は翻訳フィールドのバッチ取得のインターフェース。
// テスト時にモックに差し替え可能。
type Fetcher interface {
	// FetchBatch は商品バッチの翻訳済みフィールドを取得する。
	// 返り値のマップのキーは商品ID。翻訳が存在しない商品は含まれない。
	FetchBatch(ctx context.Context, locale string, products []model.Product) (map[string]model.TranslatedFields, error)
}

// Merger は取得済み商品リストに翻訳を適用する。
// バッチ間にはレートリミッタによる待機を挟み、アップストリームの
// レート制限を尊重する。個別バッチの失敗はログに記録してスキップし、
// 該当商品は未翻訳のテキストを維持する（生成全体は中断しない）。
type Merger struct {
	fetcher   Fetcher
	logger    *slog.Logger
	batchSize int
	limiter   *rate.Limiter
}

// NewMerger はMergerの新しいインスタンスを生成する。
// batchSizeが0以下または10を超える場合はDefaultBatchSizeを使用する。
func NewMerger(fetcher Fetcher, logger *slog.Logger, batchSize int, limiter *rate.Limiter) *Merger {
	if batchSize <= 0 || batchSize > DefaultBatchSize {
		batchSize = DefaultBatchSize
	}
	return &Merger{
		fetcher:   fetcher,
		logger:    logger,
		batchSize: batchSize,
		limiter:   limiter,
	}
}

// Apply は商品リストに対象ロケールの翻訳をマージする。
// 商品タイトル・説明・バリアントタイトルの上書きを適用し、
// 翻訳が適用された商品数を返す。取得の完全失敗は「翻訳なし」に
// 縮退させ、エラーとして伝播しない。
func (m *Merger) Apply(ctx context.Context, locale string, products []model.Product) int {
	if len(products) == 0 {
		return 0
	}

	applied := 0

	for start := 0; start < len(products); start += m.batchSize {
		if ctx.Err() != nil {
			m.logger.Warn("コンテキストがキャンセルされたため翻訳マージを中断します",
				slog.String("locale", locale),
				slog.Int("applied", applied),
			)
			return applied
		}

		// バッチ間のレート制限待機（初回はバーストで即時通過する）
		if m.limiter != nil {
			if err := m.limiter.Wait(ctx); err != nil {
				return applied
			}
		}

		end := start + m.batchSize
		if end > len(products) {
			end = len(products)
		}
		batch := products[start:end]

		translations, err := m.fetcher.FetchBatch(ctx, locale, batch)
		if err != nil {
			m.logger.Error("翻訳バッチの取得に失敗しました",
				slog.String("locale", locale),
				slog.Int("batch_start", start),
				slog.Int("batch_size", len(batch)),
				slog.String("error", err.Error()),
			)
			continue // このバッチの商品は未翻訳のまま維持
		}

		for i := range batch {
			fields, ok := translations[batch[i].ID]
			if !ok {
				continue
			}
			mergeFields(&products[start+i], fields)
			applied++
		}
	}

	m.logger.Info("翻訳マージが完了しました",
		slog.String("locale", locale),
		slog.Int("product_count", len(products)),
		slog.Int("applied", applied),
	)

	return applied
}

// mergeFields は1商品に翻訳フィールドを適用する。空の翻訳は上書きしない。
func mergeFields(p *model.Product, fields model.TranslatedFields) {
	if fields.Title != "" {
		p.Title = fields.Title
	}
	if fields.Description != "" {
		p.Description = fields.Description
	}
	for i := range p.Variants {
		if title, ok := fields.VariantTitles[p.Variants[i].ID]; ok && title != "" {
			p.Variants[i].Title = title
		}
	}
}
