package mapper

import (
	"strings"

	"github.com/hitoshi/shopfeed/internal/model"
	"github.com/hitoshi/shopfeed/internal/pricing"
)

// ruleFunc は名前付きルールの評価関数。
type ruleFunc func(product model.Product, variant model.Variant, price pricing.ResolvedPrice) string

// rules はFieldMappingのSourceKindRuleから参照できる名前付きルールセット。
var rules = map[string]ruleFunc{
	// on_sale はセール価格が設定されているかを yes/no で返す。
	"on_sale": func(_ model.Product, _ model.Variant, price pricing.ResolvedPrice) string {
		if price.HasSale {
			return "yes"
		}
		return "no"
	},
	// stock_status は在庫状態のラベルを返す。
	"stock_status": func(_ model.Product, v model.Variant, _ pricing.ResolvedPrice) string {
		return availability(v.InventoryQuantity)
	},
	// tag_list は商品タグをカンマ区切りで返す。
	"tag_list": func(p model.Product, _ model.Variant, _ pricing.ResolvedPrice) string {
		return strings.Join(p.Tags, ",")
	},
}

// evaluateRule は名前付きルールを評価する。未知のルール名は空文字列を返す。
func evaluateRule(name string, product model.Product, variant model.Variant, price pricing.ResolvedPrice) string {
	fn, ok := rules[name]
	if !ok {
		return ""
	}
	return fn(product, variant, price)
}
