package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// newPagedAdminServer はpage_infoカーソルでページングする疑似Admin APIを返す。
// pagesは各ページのレスポンスボディ。
func newPagedAdminServer(t *testing.T, pages []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := 0
		if cursor := r.URL.Query().Get("page_info"); cursor != "" {
			fmt.Sscanf(cursor, "cursor-%d", &page)
		}
		if page >= len(pages) {
			http.Error(w, "no such page", http.StatusBadRequest)
			return
		}
		if page < len(pages)-1 {
			w.Header().Set("Link",
				fmt.Sprintf(`<https://example.myshopify.com/admin/api/2024-01/products.json?page_info=cursor-%d>; rel="next"`, page+1))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, pages[page])
	}))
}

func adminPage(ids ...int) string {
	body := `{"products":[`
	for i, id := range ids {
		if i > 0 {
			body += ","
		}
		body += fmt.Sprintf(`{"id":%d,"title":"Product %d","variants":[{"id":%d0,"title":"Default","price":"10.00"}]}`, id, id, id)
	}
	return body + `]}`
}

func TestAdminSource_FetchAll_PaginationComplete(t *testing.T) {
	// 3ページ構成: 各ページの商品がすべて元の順序で1回ずつ取得される。
	srv := newPagedAdminServer(t, []string{adminPage(1, 2), adminPage(3, 4), adminPage(5)})
	defer srv.Close()

	src := NewAdminSource(srv.Client(), "example.myshopify.com", "token", 2)
	src.baseURL = srv.URL

	products, err := src.FetchAll(context.Background(), "en", "US")
	if err != nil {
		t.Fatalf("FetchAll がエラーを返した: %v", err)
	}

	if len(products) != 5 {
		t.Fatalf("商品数 = %d, want 5", len(products))
	}
	for i, p := range products {
		want := fmt.Sprintf("%d", i+1)
		if p.ID != want {
			t.Errorf("products[%d].ID = %s, want %s (元の順序を保持すべき)", i, p.ID, want)
		}
	}
}

func TestAdminSource_FetchAll_VariantFieldsParsed(t *testing.T) {
	body := `{"products":[{"id":1,"title":"Sweater","body_html":"<p>Warm</p>","vendor":"Acme",
		"product_type":"Apparel","tags":"winter, wool","status":"active",
		"image":{"src":"https://cdn.example.com/1.jpg"},
		"variants":[{"id":11,"title":"Small","sku":"SW-S","barcode":"0123","price":"29.99",
		"compare_at_price":"39.99","inventory_quantity":5}]}]}`
	srv := newPagedAdminServer(t, []string{body})
	defer srv.Close()

	src := NewAdminSource(srv.Client(), "example.myshopify.com", "token", 250)
	src.baseURL = srv.URL

	products, err := src.FetchAll(context.Background(), "en", "US")
	if err != nil {
		t.Fatalf("FetchAll がエラーを返した: %v", err)
	}
	if len(products) != 1 || len(products[0].Variants) != 1 {
		t.Fatalf("商品/バリアントの件数が不正: %+v", products)
	}

	p := products[0]
	if p.Vendor != "Acme" || p.ImageURL != "https://cdn.example.com/1.jpg" {
		t.Errorf("商品フィールドの変換が不正: %+v", p)
	}
	if len(p.Tags) != 2 || p.Tags[0] != "winter" || p.Tags[1] != "wool" {
		t.Errorf("タグの分割が不正: %v", p.Tags)
	}

	v := p.Variants[0]
	if v.Price != 29.99 || v.CompareAtPrice != 39.99 || v.InventoryQuantity != 5 {
		t.Errorf("バリアントフィールドの変換が不正: %+v", v)
	}
	if v.ContextualPrice != nil {
		t.Error("セカンダリソースはコンテキスト価格を設定しないべき")
	}
}

func TestAdminSource_FetchAll_ErrorAbortsSequence(t *testing.T) {
	// 2ページ目でエラー: シーケンス全体が中断され、エラーが伝播する。
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Link", `<https://x/admin/api/2024-01/products.json?page_info=cursor-1>; rel="next"`)
			fmt.Fprint(w, adminPage(1))
			return
		}
		http.Error(w, "server error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	src := NewAdminSource(srv.Client(), "example.myshopify.com", "token", 1)
	src.baseURL = srv.URL

	_, err := src.FetchAll(context.Background(), "en", "US")
	if err == nil {
		t.Fatal("ページ取得エラーはシーケンス全体を中断すべき")
	}
}

func TestNextPageInfo(t *testing.T) {
	header := `<https://x.myshopify.com/admin/api/2024-01/products.json?limit=250&page_info=abc123>; rel="next", ` +
		`<https://x.myshopify.com/admin/api/2024-01/products.json?page_info=prev>; rel="previous"`
	if got := nextPageInfo(header); got != "abc123" {
		t.Errorf("nextPageInfo = %q, want \"abc123\"", got)
	}
	if got := nextPageInfo(`<https://x/products.json?page_info=prev>; rel="previous"`); got != "" {
		t.Errorf("nextリンクがない場合は空文字列を返すべき, got %q", got)
	}
	if got := nextPageInfo(""); got != "" {
		t.Errorf("空ヘッダは空文字列を返すべき, got %q", got)
	}
}
