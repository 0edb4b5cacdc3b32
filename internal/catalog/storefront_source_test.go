package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStorefrontSource_FetchAll_MissingTokenReturnsSentinel(t *testing.T) {
	src := NewStorefrontSource(http.DefaultClient, "example.myshopify.com", "", 250)

	_, err := src.FetchAll(context.Background(), "de", "DE")
	if !errors.Is(err, ErrNoStorefrontToken) {
		t.Errorf("Storefrontトークン未設定時はErrNoStorefrontTokenを返すべき, got %v", err)
	}
}

func TestStorefrontSource_FetchAll_ParsesLocalizedPricing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Shopify-Storefront-Access-Token") != "sf-token" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"data":{"products":{
			"pageInfo":{"hasNextPage":false,"endCursor":""},
			"edges":[{"node":{
				"id":"gid://shopify/Product/100",
				"title":"Wollpullover",
				"description":"Warm und weich",
				"handle":"wool-sweater",
				"vendor":"Acme",
				"productType":"Apparel",
				"tags":["winter"],
				"featuredImage":{"url":"https://cdn.example.com/1.jpg"},
				"variants":{"edges":[{"node":{
					"id":"gid://shopify/ProductVariant/200",
					"title":"Klein",
					"sku":"SW-S",
					"quantityAvailable":3,
					"price":{"amount":"27.50","currencyCode":"EUR"},
					"compareAtPrice":{"amount":"35.00","currencyCode":"EUR"}
				}}]}
			}}]}}}`)
	}))
	defer srv.Close()

	src := NewStorefrontSource(srv.Client(), "example.myshopify.com", "sf-token", 250)
	src.baseURL = srv.URL

	products, err := src.FetchAll(context.Background(), "de", "DE")
	if err != nil {
		t.Fatalf("FetchAll がエラーを返した: %v", err)
	}
	if len(products) != 1 {
		t.Fatalf("商品数 = %d, want 1", len(products))
	}

	p := products[0]
	if p.ID != "100" {
		t.Errorf("グローバルIDは数値部分に正規化されるべき, got %s", p.ID)
	}
	if p.Title != "Wollpullover" {
		t.Errorf("翻訳済みタイトルが保持されるべき, got %s", p.Title)
	}

	v := p.Variants[0]
	if v.ID != "200" {
		t.Errorf("バリアントIDの正規化が不正: %s", v.ID)
	}
	if v.ContextualPrice == nil {
		t.Fatal("プライマリソースはコンテキスト価格を設定すべき")
	}
	if v.ContextualPrice.Amount != 27.50 || v.ContextualPrice.CurrencyCode != "EUR" {
		t.Errorf("コンテキスト価格の変換が不正: %+v", v.ContextualPrice)
	}
	if v.CompareAtPrice != 35.00 {
		t.Errorf("compare-at価格 = %v, want 35.00", v.CompareAtPrice)
	}
	if v.ContextualPrice.CompareAtAmount != 35.00 {
		t.Errorf("コンテキストcompare-at = %v, want 35.00", v.ContextualPrice.CompareAtAmount)
	}
}

func TestStorefrontSource_FetchAll_CursorPagination(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req graphqlRequest
		json.NewDecoder(r.Body).Decode(&req)
		calls++

		if req.Variables["after"] == nil {
			fmt.Fprint(w, `{"data":{"products":{
				"pageInfo":{"hasNextPage":true,"endCursor":"c1"},
				"edges":[{"node":{"id":"gid://shopify/Product/1","title":"A","variants":{"edges":[]}}}]}}}`)
			return
		}
		if req.Variables["after"] != "c1" {
			t.Errorf("2ページ目のカーソル = %v, want c1", req.Variables["after"])
		}
		fmt.Fprint(w, `{"data":{"products":{
			"pageInfo":{"hasNextPage":false,"endCursor":""},
			"edges":[{"node":{"id":"gid://shopify/Product/2","title":"B","variants":{"edges":[]}}}]}}}`)
	}))
	defer srv.Close()

	src := NewStorefrontSource(srv.Client(), "example.myshopify.com", "sf-token", 1)
	src.baseURL = srv.URL

	products, err := src.FetchAll(context.Background(), "en", "US")
	if err != nil {
		t.Fatalf("FetchAll がエラーを返した: %v", err)
	}
	if calls != 2 {
		t.Errorf("API呼び出し回数 = %d, want 2", calls)
	}
	if len(products) != 2 || products[0].ID != "1" || products[1].ID != "2" {
		t.Errorf("ページングの結合が不正: %+v", products)
	}
}

func TestStorefrontSource_FetchAll_MidPaginationFailureDiscardsPartial(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			fmt.Fprint(w, `{"data":{"products":{
				"pageInfo":{"hasNextPage":true,"endCursor":"c1"},
				"edges":[{"node":{"id":"gid://shopify/Product/1","title":"A","variants":{"edges":[]}}}]}}}`)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	src := NewStorefrontSource(srv.Client(), "example.myshopify.com", "sf-token", 1)
	src.baseURL = srv.URL

	products, err := src.FetchAll(context.Background(), "en", "US")
	if err == nil {
		t.Fatal("途中ページの失敗はエラーを返すべき")
	}
	if len(products) != 0 {
		t.Errorf("失敗時に部分結果を返すべきではない: %d件", len(products))
	}
	if calls != 2 {
		t.Errorf("API呼び出し回数 = %d, want 2", calls)
	}
}

func TestStorefrontSource_FetchAll_GraphQLErrorAborts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"errors":[{"message":"throttled"}]}`)
	}))
	defer srv.Close()

	src := NewStorefrontSource(srv.Client(), "example.myshopify.com", "sf-token", 250)
	src.baseURL = srv.URL

	_, err := src.FetchAll(context.Background(), "en", "US")
	if err == nil {
		t.Fatal("GraphQLエラーはシーケンス全体を中断すべき")
	}
}
