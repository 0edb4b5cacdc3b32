// Package generator はフィード生成のオーケストレーションを提供する。
// カタログ取得・翻訳マージ・フィルタ・価格解決・シリアライズ・公開を
// 1回の生成実行として束ね、フィードのステータス遷移を管理する。
package generator

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/shopfeed/internal/catalog"
	"github.com/hitoshi/shopfeed/internal/filter"
	"github.com/hitoshi/shopfeed/internal/mapper"
	"github.com/hitoshi/shopfeed/internal/metrics"
	"github.com/hitoshi/shopfeed/internal/model"
	"github.com/hitoshi/shopfeed/internal/pricing"
	"github.com/hitoshi/shopfeed/internal/publisher"
	"github.com/hitoshi/shopfeed/internal/translation"
)

// defaultTranslationBatchInterval は翻訳バッチ間の最小間隔のデフォルト。
const defaultTranslationBatchInterval = 500 * time.Millisecond

// Config はジェネレータの動作設定。ゼロ値のフィールドにはデフォルトが適用される。
type Config struct {
	PageSize                 int           // カタログ取得の1ページあたり件数
	TranslationBatchSize     int           // 翻訳取得の1バッチあたり商品数
	TranslationBatchInterval time.Duration // 翻訳バッチ間の最小間隔
}

// FeedStore はジェネレータが必要とするフィード永続化の操作。
type FeedStore interface {
	FindByID(ctx context.Context, id string) (*model.Feed, error)
	MarkRunning(ctx context.Context, id string, runAt time.Time) error
	MarkSuccess(ctx context.Context, id string, productCount, variantCount int, storagePath, publicURL string) error
	MarkError(ctx context.Context, id string, message string) error
	ListMappings(ctx context.Context, feedID string) ([]model.FieldMapping, error)
	ListFilters(ctx context.Context, feedID string) ([]model.FeedFilter, error)
}

// ShopStore はジェネレータが必要とするショップの操作。
type ShopStore interface {
	FindByID(ctx context.Context, id string) (*model.Shop, error)
	UpdateStorefrontToken(ctx context.Context, id, token string) error
}

// TokenSource はStorefrontアクセストークンの調達操作。
type TokenSource interface {
	Provision(ctx context.Context) (string, error)
}

// Publisher は生成済みドキュメントの公開操作。
type Publisher interface {
	Publish(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Orchestrator はフィード生成の全工程を実行する。
type Orchestrator struct {
	feeds      FeedStore
	shops      ShopStore
	publisher  Publisher
	collector  metrics.MetricsCollector
	httpClient *http.Client
	cfg        Config
	logger     *slog.Logger

	// ファクトリはテストで差し替える。
	newPrimary     func(shop *model.Shop) catalog.Source
	newSecondary   func(shop *model.Shop) catalog.Source
	newFetcher     func(shop *model.Shop) translation.Fetcher
	newProvisioner func(shop *model.Shop) TokenSource
}

// NewOrchestrator はOrchestratorを生成する。
// httpClientにはSSRFガード済みクライアントを渡すこと。
func NewOrchestrator(feeds FeedStore, shops ShopStore, pub Publisher, collector metrics.MetricsCollector, httpClient *http.Client, cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.PageSize <= 0 {
		cfg.PageSize = catalog.DefaultPageSize
	}
	if cfg.TranslationBatchSize <= 0 {
		cfg.TranslationBatchSize = translation.DefaultBatchSize
	}
	if cfg.TranslationBatchInterval <= 0 {
		cfg.TranslationBatchInterval = defaultTranslationBatchInterval
	}
	o := &Orchestrator{
		feeds:      feeds,
		shops:      shops,
		publisher:  pub,
		collector:  collector,
		httpClient: httpClient,
		cfg:        cfg,
		logger:     logger,
	}
	o.newPrimary = func(shop *model.Shop) catalog.Source {
		return catalog.NewStorefrontSource(o.httpClient, shop.Domain, shop.StorefrontToken, o.cfg.PageSize)
	}
	o.newSecondary = func(shop *model.Shop) catalog.Source {
		return catalog.NewAdminSource(o.httpClient, shop.Domain, shop.AccessToken, o.cfg.PageSize)
	}
	o.newFetcher = func(shop *model.Shop) translation.Fetcher {
		return translation.NewAdminClient(o.httpClient, shop.Domain, shop.AccessToken)
	}
	o.newProvisioner = func(shop *model.Shop) TokenSource {
		return catalog.NewTokenProvisioner(o.httpClient, shop.Domain, shop.AccessToken)
	}
	return o
}

// Generate は1フィードの生成を実行し、結果をステータスに反映する。
// 生成に失敗した場合はerrorステータスを記録した上でエラーを返す
// （リトライ判断は呼び出し側のキューが行う）。
func (o *Orchestrator) Generate(ctx context.Context, job *model.GenerationJob) error {
	start := time.Now()

	feed, err := o.feeds.FindByID(ctx, job.FeedID)
	if err != nil {
		return fmt.Errorf("フィードの取得に失敗しました: %w", err)
	}
	if feed == nil {
		// 削除済みフィードへの残留ジョブはリトライせず破棄する。
		o.logger.Warn("フィードが存在しないためジョブを破棄します", "feed_id", job.FeedID)
		return nil
	}

	shop, err := o.shops.FindByID(ctx, feed.ShopID)
	if err != nil {
		return fmt.Errorf("ショップの取得に失敗しました: %w", err)
	}
	if shop == nil {
		o.logger.Warn("ショップが存在しないためジョブを破棄します", "feed_id", feed.ID, "shop_id", feed.ShopID)
		return nil
	}

	if err := o.feeds.MarkRunning(ctx, feed.ID, start); err != nil {
		return fmt.Errorf("ステータスの更新に失敗しました: %w", err)
	}

	o.logger.Info("フィード生成を開始します",
		"feed_id", feed.ID,
		"shop", shop.Domain,
		"reason", string(job.Reason),
	)

	productCount, variantCount, err := o.run(ctx, feed, shop)
	duration := time.Since(start)
	o.collector.RecordGenerateDuration(duration)

	if err != nil {
		o.collector.RecordGenerateFailure(feed.ID, err.Error())
		if markErr := o.feeds.MarkError(ctx, feed.ID, err.Error()); markErr != nil {
			o.logger.Error("エラーステータスの記録に失敗しました", "feed_id", feed.ID, "error", markErr)
		}
		o.logger.Error("フィード生成に失敗しました",
			"feed_id", feed.ID,
			"shop", shop.Domain,
			"duration", duration,
			"error", err,
		)
		return model.NewGenerateFailedError(err.Error())
	}

	o.collector.RecordGenerateSuccess(feed.ID)
	o.collector.RecordItemsPublished(variantCount)
	o.logger.Info("フィード生成が完了しました",
		"feed_id", feed.ID,
		"shop", shop.Domain,
		"products", productCount,
		"variants", variantCount,
		"duration", duration,
	)
	return nil
}

// run は生成本体を実行し、出力された商品数とバリアント数を返す。
// 成功時にはMarkSuccessまで行う。
func (o *Orchestrator) run(ctx context.Context, feed *model.Feed, shop *model.Shop) (int, int, error) {
	products, usedSecondary, err := o.fetchCatalog(ctx, feed, shop)
	if err != nil {
		return 0, 0, err
	}

	// プライマリソースは@inContextで翻訳済みのため、セカンダリ経由で
	// かつフィード言語がショップの基準ロケールと異なる場合のみマージする。
	if usedSecondary && !strings.EqualFold(feed.Language, shop.PrimaryLocale) {
		merger := translation.NewMerger(o.newFetcher(shop), o.logger, o.cfg.TranslationBatchSize,
			rate.NewLimiter(rate.Every(o.cfg.TranslationBatchInterval), 1))
		applied := merger.Apply(ctx, feed.Language, products)
		o.logger.Info("翻訳をマージしました", "feed_id", feed.ID, "locale", feed.Language, "applied", applied)
	}

	mappings, err := o.feeds.ListMappings(ctx, feed.ID)
	if err != nil {
		return 0, 0, err
	}
	filters, err := o.feeds.ListFilters(ctx, feed.ID)
	if err != nil {
		return 0, 0, err
	}

	resolver := &pricing.Resolver{
		CurrencySelector: feed.Currency,
		Country:          feed.Country,
		ShopCurrency:     shop.Currency,
	}
	m := mapper.NewMapper(shop.Domain)

	var items []mapper.Item
	productCount := 0
	for _, p := range products {
		if p.Status != "" && p.Status != "active" {
			continue
		}
		included := false
		for _, v := range p.Variants {
			if !filter.Passes(p, v, filters, feed.FilterMode) {
				continue
			}
			price := resolver.Resolve(v)
			items = append(items, m.MapItem(p, v, price, mappings))
			included = true
		}
		if included {
			productCount++
		}
	}

	document := mapper.NewSerializer().Serialize(feed, shop.Domain, items)

	key := publisher.ObjectKey(feed.ShopID, feed.ID, fileExtension(feed.FileType))
	url, err := o.publisher.Publish(ctx, key, document, "application/rss+xml; charset=utf-8")
	if err != nil {
		return 0, 0, err
	}

	if err := o.feeds.MarkSuccess(ctx, feed.ID, productCount, len(items), key, url); err != nil {
		return 0, 0, err
	}
	return productCount, len(items), nil
}

// fetchCatalog はカタログを取得する。プライマリ（Storefront）を試行し、
// 失敗時は1度だけセカンダリ（Admin REST）で先頭から取得し直す。
// 戻り値のboolはセカンダリを使用したかを示す。
func (o *Orchestrator) fetchCatalog(ctx context.Context, feed *model.Feed, shop *model.Shop) ([]model.Product, bool, error) {
	if shop.StorefrontToken == "" {
		token, err := o.newProvisioner(shop).Provision(ctx)
		if err != nil {
			o.logger.Warn("Storefrontトークンの調達に失敗しました", "shop", shop.Domain, "error", err)
		} else {
			shop.StorefrontToken = token
			if err := o.shops.UpdateStorefrontToken(ctx, shop.ID, token); err != nil {
				// 保存失敗でも取得したトークンで今回の生成は続行できる。
				o.logger.Error("Storefrontトークンの保存に失敗しました", "shop", shop.Domain, "error", err)
			}
		}
	}

	if shop.StorefrontToken != "" {
		primary := o.newPrimary(shop)
		products, err := primary.FetchAll(ctx, feed.Language, feed.Country)
		if err == nil {
			return products, false, nil
		}
		o.logger.Warn("プライマリソースの取得に失敗したためセカンダリに切り替えます",
			"feed_id", feed.ID,
			"source", primary.Name(),
			"error", err,
		)
	}

	secondary := o.newSecondary(shop)
	products, err := secondary.FetchAll(ctx, feed.Language, feed.Country)
	if err != nil {
		return nil, true, fmt.Errorf("カタログの取得に失敗しました: %w", err)
	}
	return products, true, nil
}

func fileExtension(fileType string) string {
	if fileType == "" {
		return "xml"
	}
	return fileType
}
