// Package catalog はアップストリームのカタログAPIからの商品取得を提供する。
// ローカライズ済み価格を返すプライマリソース（Storefront API）と、
// 基準通貨価格のみを返すセカンダリソース（Admin REST API)の2実装を持つ。
package catalog

import (
	"context"
	"errors"

	"github.com/hitoshi/shopfeed/internal/model"
)

// DefaultPageSize は1ページあたりの最大取得件数。
const DefaultPageSize = 250

// apiVersion は呼び出すShopify APIのバージョン。
const apiVersion = "2024-01"

// ErrNoStorefrontToken はプライマリソースに必要なStorefrontトークンが
// ショップに未設定であることを示す。呼び出し元はセカンダリソースに退避する。
var ErrNoStorefrontToken = errors.New("storefrontアクセストークンが設定されていません")

// Source はカタログAPIからの商品取得のインターフェース。
// 取得はカーソルでページングされ、途中から再開はできない（先頭からの再実行のみ）。
// ページ取得中のエラーはシーケンス全体を中断して伝播する。
// リトライは呼び出し元の責務であり、ソース内部では行わない。
type Source interface {
	// FetchAll は対象言語/国のコンテキストで全商品を取得する。
	FetchAll(ctx context.Context, language, country string) ([]model.Product, error)
	// Name はログ出力用のソース名を返す。
	Name() string
}
