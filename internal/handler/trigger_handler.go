package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/shopfeed/internal/model"
)

// FeedLister はトリガーハンドラーが必要とするフィード一覧の操作。
type FeedLister interface {
	ListByShopID(ctx context.Context, shopID string) ([]*model.Feed, error)
	ListAll(ctx context.Context) ([]*model.Feed, error)
}

// DomainValidator はショップドメインの事前検証を行う。
type DomainValidator interface {
	ValidateShopDomain(domain string) error
}

// TriggerHandler はWebhookと内部再生成APIのハンドラー。
// どちらもショップ単位で複数フィードへジョブをファンアウトする。
type TriggerHandler struct {
	feeds     FeedLister
	shops     ShopStore
	enqueuer  Enqueuer
	validator DomainValidator
	logger    *slog.Logger
}

// NewTriggerHandler はTriggerHandlerを生成する。
func NewTriggerHandler(feeds FeedLister, shops ShopStore, enqueuer Enqueuer, validator DomainValidator, logger *slog.Logger) *TriggerHandler {
	return &TriggerHandler{
		feeds:     feeds,
		shops:     shops,
		enqueuer:  enqueuer,
		validator: validator,
		logger:    logger,
	}
}

// fanOutResult はファンアウトの集計結果。
type fanOutResult struct {
	Total    int `json:"total"`
	Enqueued int `json:"enqueued"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// ProductsWebhook は商品更新Webhookを処理する。
// POST /webhooks/products
//
// ショップの全フィードに生成ジョブを投入する。処理中のフィードは
// スキップする（Webhookのバーストで同じフィードが多重生成されない）。
func (h *TriggerHandler) ProductsWebhook(w http.ResponseWriter, r *http.Request) {
	domain := r.Header.Get("X-Shop-Domain")
	if domain == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  "X-Shop-Domainヘッダが必要です。",
			Category: "validation",
			Action:   "Webhook設定を確認してください。",
		})
		return
	}

	if err := h.validator.ValidateShopDomain(domain); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  "不正なショップドメインです。",
			Category: "validation",
			Action:   "ショップドメインを確認してください。",
		})
		return
	}

	shop, err := h.shops.FindByDomain(r.Context(), domain)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if shop == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewShopNotFoundError(domain))
		return
	}

	feeds, err := h.feeds.ListByShopID(r.Context(), shop.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	result := h.fanOut(r.Context(), feeds, shop, model.TriggerWebhook)
	writeJSON(w, http.StatusAccepted, result)
}

// Regenerate は内部APIから全フィードまたは特定ショップのフィードを再生成する。
// POST /internal/regenerate?shop={domain}
//
// 設定変更のデプロイ後などに運用者が使用する。処理中のフィードはスキップする。
func (h *TriggerHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	domain := r.URL.Query().Get("shop")

	if domain != "" {
		shop, err := h.shops.FindByDomain(r.Context(), domain)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		if shop == nil {
			writeAPIErrorResponse(w, http.StatusNotFound, model.NewShopNotFoundError(domain))
			return
		}

		feeds, err := h.feeds.ListByShopID(r.Context(), shop.ID)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		result := h.fanOut(r.Context(), feeds, shop, model.TriggerRegenerate)
		writeJSON(w, http.StatusAccepted, result)
		return
	}

	feeds, err := h.feeds.ListAll(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	// 全件再生成はフィードごとに所属ショップを解決する。
	result := fanOutResult{Total: len(feeds)}
	shops := map[string]*model.Shop{}
	for _, feed := range feeds {
		shop, ok := shops[feed.ShopID]
		if !ok {
			shop, err = h.shops.FindByID(r.Context(), feed.ShopID)
			if err != nil || shop == nil {
				result.Failed++
				continue
			}
			shops[feed.ShopID] = shop
		}
		h.dispatch(r.Context(), feed, shop, model.TriggerRegenerate, &result)
	}

	writeJSON(w, http.StatusAccepted, result)
}

// fanOut は1ショップの全フィードへジョブを投入し、結果を集計する。
func (h *TriggerHandler) fanOut(ctx context.Context, feeds []*model.Feed, shop *model.Shop, reason model.TriggerReason) fanOutResult {
	result := fanOutResult{Total: len(feeds)}
	for _, feed := range feeds {
		h.dispatch(ctx, feed, shop, reason, &result)
	}
	return result
}

// dispatch は1フィードへのジョブ投入を試み、結果を集計に加算する。
func (h *TriggerHandler) dispatch(ctx context.Context, feed *model.Feed, shop *model.Shop, reason model.TriggerReason, result *fanOutResult) {
	job, err := model.NewGenerationJob(feed, shop, reason)
	if err != nil {
		result.Failed++
		return
	}

	enqueued, err := h.enqueuer.Enqueue(ctx, feed, job)
	if err != nil {
		h.logger.Error("ジョブの投入に失敗しました",
			slog.String("feed_id", feed.ID),
			slog.String("reason", string(reason)),
			slog.String("error", err.Error()),
		)
		result.Failed++
		return
	}
	if !enqueued {
		result.Skipped++
		return
	}
	result.Enqueued++
}
