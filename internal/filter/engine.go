// Package filter はマーチャント定義の包含ルールの評価を提供する。
package filter

import (
	"strconv"
	"strings"

	"github.com/hitoshi/shopfeed/internal/model"
)

// Passes は(商品, バリアント)の組がフィルタ集合を通過するかを判定する。
// フィルタが空の場合は常に通過する。
// FilterModeAllでは全フィルタを満たす必要があり、FilterModeAnyでは
// いずれか1つを満たせばよい。
func Passes(product model.Product, variant model.Variant, filters []model.FeedFilter, mode model.FilterMode) bool {
	if len(filters) == 0 {
		return true
	}

	for _, f := range filters {
		ok := evaluate(product, variant, f)
		if mode == model.FilterModeAny {
			if ok {
				return true
			}
		} else if !ok {
			return false
		}
	}

	// ALLモードで全フィルタを通過した場合true、ANYモードで1つも通過しなかった場合false。
	return mode != model.FilterModeAny
}

// evaluate は1つのフィルタを評価する。
func evaluate(product model.Product, variant model.Variant, f model.FeedFilter) bool {
	value := fieldValue(product, variant, f.Scope, f.FieldName)

	switch f.Operator {
	case model.OperatorEquals:
		return value == f.CompareValue
	case model.OperatorNotEquals:
		return value != f.CompareValue
	case model.OperatorContains:
		return strings.Contains(value, f.CompareValue)
	case model.OperatorGreaterThan:
		return compareNumeric(value, f.CompareValue, func(a, b float64) bool { return a > b })
	case model.OperatorLessThan:
		return compareNumeric(value, f.CompareValue, func(a, b float64) bool { return a < b })
	case model.OperatorExists:
		return value != ""
	default:
		return false
	}
}

// compareNumeric は両辺を浮動小数点としてパースして比較する。
// いずれかが数値としてパースできない場合は不通過とする（エラーにしない）。
func compareNumeric(left, right string, cmp func(a, b float64) bool) bool {
	a, err := strconv.ParseFloat(strings.TrimSpace(left), 64)
	if err != nil {
		return false
	}
	b, err := strconv.ParseFloat(strings.TrimSpace(right), 64)
	if err != nil {
		return false
	}
	return cmp(a, b)
}

// ResolveField はバリアント優先で名前付きフィールドを文字列として解決する。
// スコープ指定を持たないフィールドマッピングからの参照に使用する。
// バリアントにないフィールドは商品から解決し、未知の名前は空文字列を返す。
func ResolveField(product model.Product, variant model.Variant, field string) string {
	if value := variantField(variant, field); value != "" {
		return value
	}
	return productField(product, field)
}

// fieldValue はスコープに応じて商品またはバリアントの名前付きフィールドを
// 文字列として解決する。未知のフィールド名は空文字列を返す。
func fieldValue(product model.Product, variant model.Variant, scope model.FilterScope, field string) string {
	if scope == model.FilterScopeVariant {
		return variantField(variant, field)
	}
	return productField(product, field)
}

func productField(p model.Product, field string) string {
	switch field {
	case "id":
		return p.ID
	case "title":
		return p.Title
	case "description":
		return p.Description
	case "handle":
		return p.Handle
	case "vendor":
		return p.Vendor
	case "product_type":
		return p.ProductType
	case "tags":
		return strings.Join(p.Tags, ", ")
	case "category":
		return p.Category
	case "status":
		return p.Status
	default:
		return ""
	}
}

func variantField(v model.Variant, field string) string {
	switch field {
	case "id":
		return v.ID
	case "title":
		return v.Title
	case "sku":
		return v.SKU
	case "barcode":
		return v.Barcode
	case "price":
		return strconv.FormatFloat(v.Price, 'f', -1, 64)
	case "compare_at_price":
		if v.CompareAtPrice == 0 {
			return ""
		}
		return strconv.FormatFloat(v.CompareAtPrice, 'f', -1, 64)
	case "inventory_quantity":
		return strconv.Itoa(v.InventoryQuantity)
	default:
		return ""
	}
}
