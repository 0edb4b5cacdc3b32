// Package pricing はバリアント価格の解決と通貨変換を提供する。
// コンテキスト価格（対象国向けの見積もり）を優先し、なければ
// ショップ基準通貨の価格を静的為替テーブルで対象通貨に変換する。
package pricing

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/currency"

	"github.com/hitoshi/shopfeed/internal/model"
)

// ResolvedPrice は解決済みの表示価格を表す。
// HasSaleがtrueの場合、Amountは定価（compare-at）、SaleAmountが販売価格。
type ResolvedPrice struct {
	Amount     float64
	SaleAmount float64
	Currency   string
	HasSale    bool
}

// Resolver はフィードの通貨設定に基づいてバリアント価格を解決する。
type Resolver struct {
	// CurrencySelector はISO通貨コードまたはmodel.CurrencyLocal。
	CurrencySelector string
	// Country は対象国コード。ローカル通貨の導出に使用する。
	Country string
	// ShopCurrency はショップの基準（表示）通貨。基準価格の通貨として扱う。
	ShopCurrency string
}

// TargetCurrency は解決対象の通貨コードを返す。
// セレクタがリテラルコードの場合はそれを、ローカル指定の場合は
// 国→通貨テーブルから導出する。導出できない場合はショップ基準通貨に退避する。
func (r *Resolver) TargetCurrency() string {
	if r.CurrencySelector != "" && r.CurrencySelector != model.CurrencyLocal {
		return strings.ToUpper(r.CurrencySelector)
	}
	if code, ok := CurrencyForCountry(strings.ToUpper(r.Country)); ok {
		return code
	}
	return strings.ToUpper(r.ShopCurrency)
}

// Resolve はバリアントの表示価格とセール価格を解決する。
//
// コンテキスト価格が存在しかつ非ゼロの場合はその金額と通貨をそのまま採用する。
// ゼロのコンテキスト価格は「未取得」として基準価格に退避する（仕入れ元の挙動を踏襲）。
// 基準価格はショップ基準通貨とみなし、対象通貨と異なる場合は静的テーブルで変換する。
// 未知の通貨コードは変換せず金額をそのまま返す（エラーにしない）。
// セール価格はcompare-at価格が存在し、解決済み価格より大きい場合のみ設定される。
// compare-atはコンテキスト価格採用時は同じコンテキスト通貨建てのものを
// そのまま使い、基準価格採用時のみショップ基準通貨から変換する。
func (r *Resolver) Resolve(v model.Variant) ResolvedPrice {
	target := r.TargetCurrency()

	var amount, compareAt float64
	var cur string

	if v.ContextualPrice != nil && v.ContextualPrice.Amount != 0 {
		amount = v.ContextualPrice.Amount
		cur = strings.ToUpper(v.ContextualPrice.CurrencyCode)
		if cur == "" {
			cur = target
		}
		compareAt = v.ContextualPrice.CompareAtAmount
	} else {
		shopCur := strings.ToUpper(r.ShopCurrency)
		amount = Convert(v.Price, shopCur, target)
		cur = target
		if v.CompareAtPrice > 0 {
			compareAt = Convert(v.CompareAtPrice, shopCur, target)
		}
	}

	amount = roundTo(amount, DecimalsFor(cur))
	resolved := ResolvedPrice{Amount: amount, Currency: cur}

	if compareAt > 0 {
		compareAt = roundTo(compareAt, DecimalsFor(cur))
		if compareAt > amount {
			resolved.Amount = compareAt
			resolved.SaleAmount = amount
			resolved.HasSale = true
		}
	}

	return resolved
}

// Convert は金額をfrom通貨からto通貨に静的レートテーブルで変換する。
// 同一通貨の場合はそのまま返す。いずれかの通貨コードがテーブルに
// 存在しない場合は変換せず金額をそのまま返す。
func Convert(amount float64, from, to string) float64 {
	if from == to {
		return amount
	}
	fromRate, okFrom := exchangeRates[from]
	toRate, okTo := exchangeRates[to]
	if !okFrom || !okTo {
		return amount
	}
	return amount / fromRate * toRate
}

// DecimalsFor は通貨の慣例的な小数桁数を返す。
// ISO 4217のマイナーユニットに従い、JPY/KRWなどのゼロ小数通貨は0桁、
// それ以外は2桁。不明なコードは2桁とする。
func DecimalsFor(code string) int {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return 2
	}
	scale, _ := currency.Standard.Rounding(unit)
	return scale
}

// Format は解決済み金額を「20.00 EUR」形式の文字列に整形する。
// 小数桁数は通貨の慣例に従う。
func Format(amount float64, code string) string {
	return fmt.Sprintf("%.*f %s", DecimalsFor(code), amount, code)
}

// roundTo は金額を指定小数桁で四捨五入する。
func roundTo(amount float64, decimals int) float64 {
	factor := math.Pow(10, float64(decimals))
	return math.Round(amount*factor) / factor
}
