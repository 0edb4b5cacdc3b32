package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/hitoshi/shopfeed/internal/model"
)

// AdminSource はAdmin REST APIを使用するセカンダリのカタログソース。
// 基準通貨の価格と未翻訳のテキストのみを返す。
// カーソル（page_infoパラメータ）でページングし、Linkヘッダの
// rel="next" が存在する限り取得を継続する。
type AdminSource struct {
	httpClient  *http.Client
	shopDomain  string
	accessToken string
	pageSize    int
	baseURL     string // テスト用にエンドポイントを差し替え可能
}

// NewAdminSource はAdminSourceの新しいインスタンスを生成する。
// pageSizeが0以下の場合はDefaultPageSizeを使用する。
func NewAdminSource(httpClient *http.Client, shopDomain, accessToken string, pageSize int) *AdminSource {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &AdminSource{
		httpClient:  httpClient,
		shopDomain:  shopDomain,
		accessToken: accessToken,
		pageSize:    pageSize,
		baseURL:     fmt.Sprintf("https://%s", shopDomain),
	}
}

// Name はソース名を返す。
func (s *AdminSource) Name() string { return "admin" }

// adminProductsResponse はAdmin REST APIの商品一覧レスポンス。
type adminProductsResponse struct {
	Products []adminProduct `json:"products"`
}

type adminProduct struct {
	ID          int64          `json:"id"`
	Title       string         `json:"title"`
	BodyHTML    string         `json:"body_html"`
	Handle      string         `json:"handle"`
	Vendor      string         `json:"vendor"`
	ProductType string         `json:"product_type"`
	Tags        string         `json:"tags"`
	Status      string         `json:"status"`
	Image       *adminImage    `json:"image"`
	Variants    []adminVariant `json:"variants"`
}

type adminImage struct {
	Src string `json:"src"`
}

type adminVariant struct {
	ID                int64  `json:"id"`
	ProductID         int64  `json:"product_id"`
	Title             string `json:"title"`
	SKU               string `json:"sku"`
	Barcode           string `json:"barcode"`
	Price             string `json:"price"`
	CompareAtPrice    string `json:"compare_at_price"`
	InventoryQuantity int    `json:"inventory_quantity"`
}

// FetchAll は全商品をページングしながら取得する。
// countryは明細価格のスコープ指定にのみ使用され、テキストの翻訳は行われない。
// ページ取得中のエラーはシーケンス全体を中断して伝播する。
func (s *AdminSource) FetchAll(ctx context.Context, language, country string) ([]model.Product, error) {
	var products []model.Product
	pageInfo := ""

	for {
		page, next, err := s.fetchPage(ctx, pageInfo)
		if err != nil {
			return nil, err
		}
		products = append(products, page...)

		if next == "" {
			break
		}
		pageInfo = next
	}

	return products, nil
}

// fetchPage は1ページ分の商品を取得し、次ページのpage_infoカーソルを返す。
// 次ページがない場合は空文字列を返す。
func (s *AdminSource) fetchPage(ctx context.Context, pageInfo string) ([]model.Product, string, error) {
	reqURL := fmt.Sprintf("%s/admin/api/%s/products.json?limit=%d", s.baseURL, apiVersion, s.pageSize)
	if pageInfo != "" {
		reqURL += "&page_info=" + url.QueryEscape(pageInfo)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("カタログリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("X-Shopify-Access-Token", s.accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("カタログAPIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, "", fmt.Errorf("カタログAPIが異常ステータスを返しました: %d: %s", resp.StatusCode, string(body))
	}

	var decoded adminProductsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, "", fmt.Errorf("カタログレスポンスの解析に失敗しました: %w", err)
	}

	products := make([]model.Product, 0, len(decoded.Products))
	for _, p := range decoded.Products {
		products = append(products, convertAdminProduct(p))
	}

	return products, nextPageInfo(resp.Header.Get("Link")), nil
}

// nextPageInfo はLinkヘッダからrel="next"のpage_infoカーソルを抽出する。
// 次ページリンクがない場合は空文字列を返す。
func nextPageInfo(linkHeader string) string {
	if linkHeader == "" {
		return ""
	}

	for _, part := range strings.Split(linkHeader, ",") {
		if !strings.Contains(part, `rel="next"`) {
			continue
		}
		start := strings.Index(part, "<")
		end := strings.Index(part, ">")
		if start < 0 || end < 0 || end <= start {
			continue
		}
		u, err := url.Parse(part[start+1 : end])
		if err != nil {
			continue
		}
		return u.Query().Get("page_info")
	}

	return ""
}

// convertAdminProduct はAdmin APIの商品レコードをドメインモデルに変換する。
func convertAdminProduct(p adminProduct) model.Product {
	product := model.Product{
		ID:          strconv.FormatInt(p.ID, 10),
		Title:       p.Title,
		Description: p.BodyHTML,
		Handle:      p.Handle,
		Vendor:      p.Vendor,
		ProductType: p.ProductType,
		Status:      p.Status,
	}
	if p.Tags != "" {
		for _, tag := range strings.Split(p.Tags, ",") {
			product.Tags = append(product.Tags, strings.TrimSpace(tag))
		}
	}
	if p.Image != nil {
		product.ImageURL = p.Image.Src
	}

	for _, v := range p.Variants {
		variant := model.Variant{
			ID:                strconv.FormatInt(v.ID, 10),
			ProductID:         product.ID,
			Title:             v.Title,
			SKU:               v.SKU,
			Barcode:           v.Barcode,
			InventoryQuantity: v.InventoryQuantity,
		}
		variant.Price = parseAmount(v.Price)
		variant.CompareAtPrice = parseAmount(v.CompareAtPrice)
		product.Variants = append(product.Variants, variant)
	}

	return product
}

// parseAmount はAPIの文字列金額をfloat64にパースする。空または不正な値は0。
func parseAmount(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
