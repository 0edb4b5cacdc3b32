package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/shopfeed/internal/model"
)

// FeedStore はフィードハンドラーが必要とする永続化の操作。
type FeedStore interface {
	FindByID(ctx context.Context, id string) (*model.Feed, error)
	ListByShopID(ctx context.Context, shopID string) ([]*model.Feed, error)
	Create(ctx context.Context, feed *model.Feed, mappings []model.FieldMapping, filters []model.FeedFilter, schedules []model.FeedSchedule) error
	Delete(ctx context.Context, id string) error
}

// ShopStore はショップ読み取りの操作。
type ShopStore interface {
	FindByID(ctx context.Context, id string) (*model.Shop, error)
	FindByDomain(ctx context.Context, domain string) (*model.Shop, error)
}

// Enqueuer は生成ジョブの投入口。
type Enqueuer interface {
	Enqueue(ctx context.Context, feed *model.Feed, job *model.GenerationJob) (bool, error)
}

// Unpublisher は公開済みドキュメントの削除操作。
// フィード削除時にストレージ上のファイルを片付けるために使用する。
type Unpublisher interface {
	Unpublish(ctx context.Context, key string) error
}

// FeedHandler はフィード管理のHTTPハンドラー。
type FeedHandler struct {
	feeds       FeedStore
	shops       ShopStore
	enqueuer    Enqueuer
	unpublisher Unpublisher
}

// NewFeedHandler はFeedHandlerを生成する。
func NewFeedHandler(feeds FeedStore, shops ShopStore, enqueuer Enqueuer, unpublisher Unpublisher) *FeedHandler {
	return &FeedHandler{
		feeds:       feeds,
		shops:       shops,
		enqueuer:    enqueuer,
		unpublisher: unpublisher,
	}
}

// createFeedRequest はフィード作成リクエストのボディ。
type createFeedRequest struct {
	ShopID     string            `json:"shop_id"`
	Name       string            `json:"name"`
	Channel    string            `json:"channel"`
	Language   string            `json:"language"`
	Country    string            `json:"country"`
	Currency   string            `json:"currency"`
	Timezone   string            `json:"timezone"`
	FileType   string            `json:"file_type"`
	FilterMode string            `json:"filter_mode"`
	Mappings   []mappingRequest  `json:"mappings"`
	Filters    []filterRequest   `json:"filters"`
	Schedules  []scheduleRequest `json:"schedules"`
}

type mappingRequest struct {
	Position    int    `json:"position"`
	ColumnName  string `json:"column_name"`
	SourceKind  string `json:"source_kind"`
	SourceValue string `json:"source_value"`
}

type filterRequest struct {
	Scope        string `json:"scope"`
	FieldName    string `json:"field_name"`
	Operator     string `json:"operator"`
	CompareValue string `json:"compare_value"`
}

type scheduleRequest struct {
	IntervalMinutes int  `json:"interval_minutes"`
	Enabled         bool `json:"enabled"`
}

// feedResponse はフィード情報のAPIレスポンス。
type feedResponse struct {
	ID            string     `json:"id"`
	ShopID        string     `json:"shop_id"`
	Name          string     `json:"name"`
	Channel       string     `json:"channel"`
	Language      string     `json:"language"`
	Country       string     `json:"country"`
	Currency      string     `json:"currency"`
	FileType      string     `json:"file_type"`
	FilterMode    string     `json:"filter_mode"`
	Status        string     `json:"status"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	ProductCount  int        `json:"product_count"`
	VariantCount  int        `json:"variant_count"`
	PublicURL     string     `json:"public_url,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// CreateFeed はフィードを作成し、初回生成ジョブを投入する。
// POST /api/feeds
func (h *FeedHandler) CreateFeed(w http.ResponseWriter, r *http.Request) {
	var req createFeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestBodyError())
		return
	}

	if err := validateCreateFeedRequest(&req); err != nil {
		handleServiceError(w, err)
		return
	}

	shop, err := h.shops.FindByID(r.Context(), req.ShopID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if shop == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewShopNotFoundError(req.ShopID))
		return
	}

	now := time.Now()
	feed := &model.Feed{
		ID:         uuid.NewString(),
		ShopID:     req.ShopID,
		Name:       req.Name,
		Channel:    defaultString(req.Channel, "google"),
		Language:   req.Language,
		Country:    req.Country,
		Currency:   defaultString(req.Currency, model.CurrencyLocal),
		Timezone:   defaultString(req.Timezone, "UTC"),
		FileType:   defaultString(req.FileType, "xml"),
		FilterMode: model.FilterMode(defaultString(req.FilterMode, string(model.FilterModeAll))),
		Status:     model.FeedStatusIdle,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	mappings := make([]model.FieldMapping, 0, len(req.Mappings))
	for _, m := range req.Mappings {
		mappings = append(mappings, model.FieldMapping{
			ID:          uuid.NewString(),
			FeedID:      feed.ID,
			Position:    m.Position,
			ColumnName:  m.ColumnName,
			SourceKind:  model.SourceKind(m.SourceKind),
			SourceValue: m.SourceValue,
		})
	}

	filters := make([]model.FeedFilter, 0, len(req.Filters))
	for _, f := range req.Filters {
		filters = append(filters, model.FeedFilter{
			ID:           uuid.NewString(),
			FeedID:       feed.ID,
			Scope:        model.FilterScope(f.Scope),
			FieldName:    f.FieldName,
			Operator:     model.FilterOperator(f.Operator),
			CompareValue: f.CompareValue,
		})
	}

	schedules := make([]model.FeedSchedule, 0, len(req.Schedules))
	for _, s := range req.Schedules {
		schedules = append(schedules, model.FeedSchedule{
			ID:              uuid.NewString(),
			FeedID:          feed.ID,
			IntervalMinutes: s.IntervalMinutes,
			NextRunAt:       now.Add(time.Duration(s.IntervalMinutes) * time.Minute),
			Enabled:         s.Enabled,
		})
	}

	if err := h.feeds.Create(r.Context(), feed, mappings, filters, schedules); err != nil {
		handleServiceError(w, err)
		return
	}

	// 作成直後の初回生成。投入失敗は作成自体を失敗にしない。
	if job, err := model.NewGenerationJob(feed, shop, model.TriggerCreation); err == nil {
		h.enqueuer.Enqueue(r.Context(), feed, job)
	}

	writeJSON(w, http.StatusCreated, toFeedResponse(feed))
}

// ListFeeds はショップのフィード一覧を取得する。
// GET /api/feeds?shop_id={id}
func (h *FeedHandler) ListFeeds(w http.ResponseWriter, r *http.Request) {
	shopID := r.URL.Query().Get("shop_id")
	if shopID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  "shop_idクエリパラメータが必要です。",
			Category: "validation",
			Action:   "shop_idを指定してください。",
		})
		return
	}

	feeds, err := h.feeds.ListByShopID(r.Context(), shopID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]feedResponse, 0, len(feeds))
	for _, feed := range feeds {
		responses = append(responses, toFeedResponse(feed))
	}
	writeJSON(w, http.StatusOK, responses)
}

// GetFeed はフィード詳細を取得する。
// GET /api/feeds/{id}
func (h *FeedHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	feedID := chi.URLParam(r, "id")

	feed, err := h.feeds.FindByID(r.Context(), feedID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if feed == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewFeedNotFoundError(feedID))
		return
	}

	writeJSON(w, http.StatusOK, toFeedResponse(feed))
}

// DeleteFeed はフィードを削除する。公開済みドキュメントも片付ける。
// DELETE /api/feeds/{id}
func (h *FeedHandler) DeleteFeed(w http.ResponseWriter, r *http.Request) {
	feedID := chi.URLParam(r, "id")

	feed, err := h.feeds.FindByID(r.Context(), feedID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if feed == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewFeedNotFoundError(feedID))
		return
	}

	if err := h.feeds.Delete(r.Context(), feedID); err != nil {
		handleServiceError(w, err)
		return
	}

	// ストレージ上のファイル削除はベストエフォート
	if feed.StoragePath != "" {
		h.unpublisher.Unpublish(r.Context(), feed.StoragePath)
	}

	w.WriteHeader(http.StatusNoContent)
}

// GenerateFeed は手動トリガーで生成ジョブを投入する。
// POST /api/feeds/{id}/generate
func (h *FeedHandler) GenerateFeed(w http.ResponseWriter, r *http.Request) {
	feedID := chi.URLParam(r, "id")

	feed, err := h.feeds.FindByID(r.Context(), feedID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if feed == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewFeedNotFoundError(feedID))
		return
	}

	shop, err := h.shops.FindByID(r.Context(), feed.ShopID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if shop == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewShopNotFoundError(feed.ShopID))
		return
	}

	job, err := model.NewGenerationJob(feed, shop, model.TriggerManual)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	enqueued, err := h.enqueuer.Enqueue(r.Context(), feed, job)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if !enqueued {
		writeAPIErrorResponse(w, http.StatusConflict, &model.APIError{
			Code:     model.ErrCodeAlreadyRunning,
			Message:  "このフィードには処理中の生成ジョブがあります。",
			Category: "feed",
			Action:   "現在のジョブの完了を待ってから再度お試しください。",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]bool{"enqueued": true})
}

// validateCreateFeedRequest はフィード作成リクエストを検証する。
func validateCreateFeedRequest(req *createFeedRequest) error {
	if req.ShopID == "" || req.Name == "" || req.Language == "" || req.Country == "" {
		return &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  "shop_id、name、language、countryは必須です。",
			Category: "validation",
			Action:   "必須項目を指定してください。",
		}
	}

	if req.FilterMode != "" && req.FilterMode != string(model.FilterModeAll) && req.FilterMode != string(model.FilterModeAny) {
		return model.NewInvalidFilterError("filter_modeはALLまたはANYを指定してください")
	}

	for _, m := range req.Mappings {
		if m.ColumnName == "" {
			return model.NewInvalidMappingError("column_nameが空です")
		}
		switch model.SourceKind(m.SourceKind) {
		case model.SourceKindField, model.SourceKindConstant, model.SourceKindRule:
		default:
			return model.NewInvalidMappingError("不明なsource_kind: " + m.SourceKind)
		}
	}

	for _, f := range req.Filters {
		switch model.FilterScope(f.Scope) {
		case model.FilterScopeProduct, model.FilterScopeVariant:
		default:
			return model.NewInvalidFilterError("不明なscope: " + f.Scope)
		}
		switch model.FilterOperator(f.Operator) {
		case model.OperatorEquals, model.OperatorNotEquals, model.OperatorContains,
			model.OperatorGreaterThan, model.OperatorLessThan, model.OperatorExists:
		default:
			return model.NewInvalidFilterError("不明なoperator: " + f.Operator)
		}
	}

	for _, s := range req.Schedules {
		if s.IntervalMinutes <= 0 {
			return &model.APIError{
				Code:     model.ErrCodeInvalidRequest,
				Message:  "interval_minutesは正の値を指定してください。",
				Category: "validation",
				Action:   "スケジュール間隔を分単位の正の整数で指定してください。",
			}
		}
	}

	return nil
}

// toFeedResponse はmodel.FeedからAPIレスポンスに変換する。
func toFeedResponse(feed *model.Feed) feedResponse {
	return feedResponse{
		ID:            feed.ID,
		ShopID:        feed.ShopID,
		Name:          feed.Name,
		Channel:       feed.Channel,
		Language:      feed.Language,
		Country:       feed.Country,
		Currency:      feed.Currency,
		FileType:      feed.FileType,
		FilterMode:    string(feed.FilterMode),
		Status:        string(feed.Status),
		LastRunAt:     feed.LastRunAt,
		LastSuccessAt: feed.LastSuccessAt,
		LastError:     feed.LastError,
		ProductCount:  feed.ProductCount,
		VariantCount:  feed.VariantCount,
		PublicURL:     feed.PublicURL,
		CreatedAt:     feed.CreatedAt,
	}
}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
