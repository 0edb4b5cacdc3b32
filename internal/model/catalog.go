package model

// Product はカタログAPIから取得した商品レコードを表す。
// バリアントのリストをネストして保持する。
type Product struct {
	ID          string
	Title       string
	Description string
	Handle      string
	Vendor      string
	ProductType string
	Tags        []string
	Category    string
	ImageURL    string
	Status      string
	Variants    []Variant
}

// Variant は商品の1バリアントを表す。
// Priceはソースに応じてショップ基準通貨（セカンダリ）または
// ローカライズ済み通貨（プライマリ）の金額を保持する。
type Variant struct {
	ID                string
	ProductID         string
	Title             string
	SKU               string
	Barcode           string
	Price             float64
	CompareAtPrice    float64
	InventoryQuantity int
	ImageURL          string
	// ContextualPrice は対象国向けのコンテキスト価格。未取得の場合はnil。
	ContextualPrice *ContextualPrice
}

// ContextualPrice は特定の国/通貨コンテキストでの価格見積もりを表す。
// CompareAtAmountはAmountと同じコンテキスト通貨建てのcompare-at価格。
// コンテキストにcompare-atがない場合は0。
type ContextualPrice struct {
	Amount          float64
	CurrencyCode    string
	CompareAtAmount float64
}

// TranslatedFields は1商品分の翻訳済みテキストフィールドを表す。
// VariantTitlesのキーはバリアントID。翻訳がないフィールドは空のまま。
type TranslatedFields struct {
	Title         string
	Description   string
	VariantTitles map[string]string
}
