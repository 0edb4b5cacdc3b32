// Package model はドメインモデルを定義する。
package model

import "time"

// CurrencyLocal はフィードの通貨設定が「対象国のローカル通貨を使用する」
// ことを示すセンチネル値。国コードから静的テーブルで通貨を導出する。
const CurrencyLocal = "local"

// Feed はマーチャントが設定した商品フィードの公開設定を表す。
// ステータス・カウンタ・公開URLはジェネレータのみが更新する。
type Feed struct {
	ID            string
	ShopID        string
	Name          string
	Channel       string
	Language      string
	Country       string
	Currency      string // ISO 4217コードまたはCurrencyLocal
	Timezone      string
	FileType      string
	FilterMode    FilterMode
	Status        FeedStatus
	LastRunAt     *time.Time
	LastSuccessAt *time.Time
	LastError     string
	ProductCount  int
	VariantCount  int
	StoragePath   string
	PublicURL     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// FeedStatus はフィード生成の状態を表す。
// 遷移はジェネレータのみが行う: idle → pending → running → success|error。
// successとerrorは終端ではなく、次回トリガーで再びpendingに戻る。
type FeedStatus string

const (
	// FeedStatusIdle は一度も生成されていない初期状態。
	FeedStatusIdle FeedStatus = "idle"
	// FeedStatusPending は生成ジョブが受理され実行待ちの状態。
	FeedStatusPending FeedStatus = "pending"
	// FeedStatusRunning は生成処理が実行中の状態。
	FeedStatusRunning FeedStatus = "running"
	// FeedStatusSuccess は直近の生成が成功した状態。
	FeedStatusSuccess FeedStatus = "success"
	// FeedStatusError は直近の生成が失敗した状態。
	FeedStatusError FeedStatus = "error"
)

// CanEnqueue は現在のステータスから新しい生成ジョブを受理できるかを返す。
// pending/runningのフィードは処理中ジョブがあるため新規受理しない。
func (s FeedStatus) CanEnqueue() bool {
	switch s {
	case FeedStatusIdle, FeedStatusSuccess, FeedStatusError:
		return true
	default:
		return false
	}
}

// SourceKind はFieldMappingの出力値の導出方法を表す。
type SourceKind string

const (
	// SourceKindField は商品/バリアントの名前付きフィールドから読み取る。
	SourceKindField SourceKind = "field"
	// SourceKindConstant は固定値をそのまま出力する。
	SourceKindConstant SourceKind = "constant"
	// SourceKindRule は名前付きルールセットを評価する。
	SourceKindRule SourceKind = "rule"
)

// FieldMapping は出力ドキュメントの1カラムの導出ルールを表す。
// Positionの昇順が出力カラムの順序になる。
type FieldMapping struct {
	ID          string
	FeedID      string
	Position    int
	ColumnName  string
	SourceKind  SourceKind
	SourceValue string
}

// FilterScope はフィルタの評価対象を表す。
type FilterScope string

const (
	// FilterScopeProduct は商品レコードのフィールドを評価する。
	FilterScopeProduct FilterScope = "product"
	// FilterScopeVariant はバリアントレコードのフィールドを評価する。
	FilterScopeVariant FilterScope = "variant"
)

// FilterOperator はフィルタの比較演算子を表す。
type FilterOperator string

const (
	OperatorEquals      FilterOperator = "equals"
	OperatorNotEquals   FilterOperator = "not_equals"
	OperatorContains    FilterOperator = "contains"
	OperatorGreaterThan FilterOperator = "greater_than"
	OperatorLessThan    FilterOperator = "less_than"
	OperatorExists      FilterOperator = "exists"
)

// FilterMode は複数フィルタの結合方法を表す。
type FilterMode string

const (
	// FilterModeAll は全フィルタを満たす場合のみ通過させる（AND結合）。
	FilterModeAll FilterMode = "ALL"
	// FilterModeAny はいずれかのフィルタを満たせば通過させる（OR結合）。
	FilterModeAny FilterMode = "ANY"
)

// FeedFilter は商品/バリアントに対する包含条件を表す。
type FeedFilter struct {
	ID           string
	FeedID       string
	Scope        FilterScope
	FieldName    string
	Operator     FilterOperator
	CompareValue string
}

// FeedSchedule はフィードの定期生成スケジュールを表す。
type FeedSchedule struct {
	ID              string
	FeedID          string
	IntervalMinutes int
	NextRunAt       time.Time
	Enabled         bool
}

// Shop は連携済みShopifyショップを表す。
// AccessTokenはAdmin API用、StorefrontTokenはStorefront API用で
// 後者は未取得の場合がある（その場合プライマリソースは使用できない）。
type Shop struct {
	ID              string
	Domain          string
	AccessToken     string
	StorefrontToken string
	PrimaryLocale   string
	Country         string
	Currency        string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
