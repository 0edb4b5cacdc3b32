// Package mapper は(商品, バリアント)の組から出力スキーマのフィールド集合への
// マッピングと、フィード全体のドキュメントへのシリアライズを提供する。
package mapper

import (
	"fmt"
	"html"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hitoshi/shopfeed/internal/filter"
	"github.com/hitoshi/shopfeed/internal/model"
	"github.com/hitoshi/shopfeed/internal/pricing"
)

// Item は出力ドキュメントの1アイテム（1バリアント）を表す。
// 省略可能フィールド（SalePrice、GTIN、MPN）は空の場合は出力されない。
type Item struct {
	ID                    string
	ItemGroupID           string
	Title                 string
	Description           string
	Link                  string
	ImageLink             string
	Availability          string
	Price                 string
	SalePrice             string
	GoogleProductCategory string
	ProductType           string
	Brand                 string
	GTIN                  string
	MPN                   string
	IdentifierExists      bool
	Condition             string
	// Custom はマーチャント定義のFieldMappingから導出した追加カラム。
	// 出力順はマッピングのPosition昇順。
	Custom []CustomField
}

// CustomField はマーチャント定義の追加出力カラムを表す。
type CustomField struct {
	Name  string
	Value string
}

// Mapper は(商品, バリアント)を出力アイテムにマッピングする。
// 入力のみから出力を決定する純粋な変換で、隠れた状態を持たない。
type Mapper struct {
	shopDomain string
	stripper   *bluemonday.Policy
}

// NewMapper はMapperの新しいインスタンスを生成する。
// shopDomainはアイテムの正規リンクの構築に使用する。
func NewMapper(shopDomain string) *Mapper {
	return &Mapper{
		shopDomain: shopDomain,
		stripper:   bluemonday.StrictPolicy(),
	}
}

// MapItem は(商品, バリアント)の組を出力アイテムにマッピングする。
// タイトルはバリアントタイトルが商品タイトルと異なる場合のみ連結し、
// 説明はマークアップを除去したプレーンテキストにする。
func (m *Mapper) MapItem(product model.Product, variant model.Variant, price pricing.ResolvedPrice, mappings []model.FieldMapping) Item {
	item := Item{
		ID:                    variant.ID,
		ItemGroupID:           product.ID,
		Title:                 itemTitle(product, variant),
		Description:           m.stripMarkup(product.Description),
		Link:                  m.itemLink(product, variant, price.Currency),
		ImageLink:             itemImage(product, variant),
		Availability:          availability(variant.InventoryQuantity),
		Price:                 pricing.Format(price.Amount, price.Currency),
		GoogleProductCategory: product.Category,
		ProductType:           product.ProductType,
		Brand:                 product.Vendor,
		GTIN:                  variant.Barcode,
		MPN:                   variant.SKU,
		IdentifierExists:      variant.Barcode != "" || variant.SKU != "",
		Condition:             "new",
	}
	if price.HasSale {
		item.SalePrice = pricing.Format(price.SaleAmount, price.Currency)
	}

	for _, mapping := range mappings {
		item.Custom = append(item.Custom, CustomField{
			Name:  mapping.ColumnName,
			Value: m.resolveMapping(mapping, product, variant, price),
		})
	}

	return item
}

// resolveMapping は1つのFieldMappingの出力値を導出する。
func (m *Mapper) resolveMapping(mapping model.FieldMapping, product model.Product, variant model.Variant, price pricing.ResolvedPrice) string {
	switch mapping.SourceKind {
	case model.SourceKindField:
		return filter.ResolveField(product, variant, mapping.SourceValue)
	case model.SourceKindConstant:
		return mapping.SourceValue
	case model.SourceKindRule:
		return evaluateRule(mapping.SourceValue, product, variant, price)
	default:
		return ""
	}
}

// itemTitle は商品タイトルとバリアントタイトルを連結する。
// バリアントタイトルが空、商品タイトルと同一、または既定値の場合は
// 商品タイトルのみを返す。
func itemTitle(product model.Product, variant model.Variant) string {
	vt := strings.TrimSpace(variant.Title)
	if vt == "" || vt == product.Title || vt == "Default Title" {
		return product.Title
	}
	return fmt.Sprintf("%s - %s", product.Title, vt)
}

// itemLink はバリアントと通貨のクエリパラメータ付きの正規商品URLを構築する。
func (m *Mapper) itemLink(product model.Product, variant model.Variant, currencyCode string) string {
	q := url.Values{}
	q.Set("variant", variant.ID)
	q.Set("currency", currencyCode)
	return fmt.Sprintf("https://%s/products/%s?%s", m.shopDomain, product.Handle, q.Encode())
}

// itemImage はバリアント画像を優先し、なければ商品画像を返す。
func itemImage(product model.Product, variant model.Variant) string {
	if variant.ImageURL != "" {
		return variant.ImageURL
	}
	return product.ImageURL
}

// availability は在庫数から在庫状態の値を導出する。
func availability(quantity int) string {
	if quantity > 0 {
		return "in stock"
	}
	return "out of stock"
}

// stripMarkup はHTMLマークアップを除去してプレーンテキストを返す。
// bluemondayのStrictPolicyで全タグを除去した後、エンティティを復元する。
func (m *Mapper) stripMarkup(raw string) string {
	if raw == "" {
		return ""
	}
	stripped := m.stripper.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(stripped))
}
