package model

import "fmt"

// TriggerReason は生成ジョブの発火理由を表す。
type TriggerReason string

const (
	// TriggerManual はマーチャントの手動操作による発火。
	TriggerManual TriggerReason = "manual"
	// TriggerWebhook は商品変更Webhookによる発火。
	TriggerWebhook TriggerReason = "webhook"
	// TriggerSchedule は定期スケジュールによる発火。
	TriggerSchedule TriggerReason = "schedule"
	// TriggerCreation はフィード作成完了による発火。
	TriggerCreation TriggerReason = "creation"
	// TriggerRegenerate は運用向け一括再生成APIによる発火。
	TriggerRegenerate TriggerReason = "manual-regenerate"
)

// GenerationJob は1フィードの生成を実行するためのジョブペイロード。
// 必須フィールドはNewGenerationJobで構築時に検証される。
// キューまたはインプロセスの同期呼び出しとして保持される一時データで、
// データベースには永続化されない。
type GenerationJob struct {
	FeedID          string        `json:"feed_id"`
	ShopID          string        `json:"shop_id"`
	ShopDomain      string        `json:"shop_domain"`
	AccessToken     string        `json:"access_token"`
	StorefrontToken string        `json:"storefront_token,omitempty"`
	Reason          TriggerReason `json:"reason"`
	RetryCount      int           `json:"retry_count"`
}

// NewGenerationJob は必須フィールドを検証してGenerationJobを構築する。
// FeedID・ShopID・ShopDomain・AccessTokenのいずれかが空の場合はエラーを返す。
func NewGenerationJob(feed *Feed, shop *Shop, reason TriggerReason) (*GenerationJob, error) {
	if feed == nil || feed.ID == "" {
		return nil, fmt.Errorf("生成ジョブの構築に失敗しました: フィードIDが空です")
	}
	if shop == nil || shop.ID == "" {
		return nil, fmt.Errorf("生成ジョブの構築に失敗しました: ショップIDが空です")
	}
	if shop.Domain == "" {
		return nil, fmt.Errorf("生成ジョブの構築に失敗しました: ショップドメインが空です")
	}
	if shop.AccessToken == "" {
		return nil, fmt.Errorf("生成ジョブの構築に失敗しました: アクセストークンが空です")
	}
	if reason == "" {
		return nil, fmt.Errorf("生成ジョブの構築に失敗しました: トリガー理由が空です")
	}

	return &GenerationJob{
		FeedID:          feed.ID,
		ShopID:          shop.ID,
		ShopDomain:      shop.Domain,
		AccessToken:     shop.AccessToken,
		StorefrontToken: shop.StorefrontToken,
		Reason:          reason,
	}, nil
}
