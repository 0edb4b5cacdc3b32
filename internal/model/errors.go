package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// 運用者/マーチャントに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, feed, shop, system
	Action   string // 利用者向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeFeedNotFound    = "FEED_NOT_FOUND"
	ErrCodeShopNotFound    = "SHOP_NOT_FOUND"
	ErrCodeInvalidRequest  = "INVALID_REQUEST"
	ErrCodeInvalidMapping  = "INVALID_MAPPING"
	ErrCodeInvalidFilter   = "INVALID_FILTER"
	ErrCodeGenerateFailed  = "GENERATE_FAILED"
	ErrCodeAlreadyRunning  = "ALREADY_RUNNING"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
)

// NewFeedNotFoundError はフィード未検出エラーを生成する。
func NewFeedNotFoundError(feedID string) *APIError {
	return &APIError{
		Code:     ErrCodeFeedNotFound,
		Message:  fmt.Sprintf("指定されたフィードが見つかりません: %s", feedID),
		Category: "feed",
		Action:   "フィードIDを確認してください。",
	}
}

// NewShopNotFoundError はショップ未検出エラーを生成する。
func NewShopNotFoundError(domain string) *APIError {
	return &APIError{
		Code:     ErrCodeShopNotFound,
		Message:  fmt.Sprintf("指定されたショップが見つかりません: %s", domain),
		Category: "shop",
		Action:   "ショップドメインを確認してください。",
	}
}

// NewInvalidMappingError は無効なフィールドマッピングエラーを生成する。
func NewInvalidMappingError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidMapping,
		Message:  fmt.Sprintf("無効なフィールドマッピングです: %s", reason),
		Category: "validation",
		Action:   "マッピングの種別には field、constant、rule のいずれかを指定してください。",
	}
}

// NewInvalidFilterError は無効なフィルタエラーを生成する。
func NewInvalidFilterError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFilter,
		Message:  fmt.Sprintf("無効なフィルタです: %s", reason),
		Category: "validation",
		Action:   "フィルタの演算子と対象スコープを確認してください。",
	}
}

// NewGenerateFailedError はフィード生成失敗エラーを生成する。
func NewGenerateFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeGenerateFailed,
		Message:  fmt.Sprintf("フィードの生成に失敗しました: %s", reason),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。解消しない場合はフィードのlast_errorを確認してください。",
	}
}
