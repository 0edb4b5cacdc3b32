package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hitoshi/shopfeed/internal/model"
)

// StorefrontSource はStorefront GraphQL APIを使用するプライマリのカタログソース。
// @inContextディレクティブにより、対象の言語/国にローカライズされた
// テキストと通貨変換済みの価格を直接返す。
// Storefrontスコープのアクセストークンが必要で、未設定の場合は
// ErrNoStorefrontTokenを返し呼び出し元がセカンダリソースに退避する。
type StorefrontSource struct {
	httpClient      *http.Client
	shopDomain      string
	storefrontToken string
	pageSize        int
	baseURL         string // テスト用にエンドポイントを差し替え可能
}

// NewStorefrontSource はStorefrontSourceの新しいインスタンスを生成する。
func NewStorefrontSource(httpClient *http.Client, shopDomain, storefrontToken string, pageSize int) *StorefrontSource {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &StorefrontSource{
		httpClient:      httpClient,
		shopDomain:      shopDomain,
		storefrontToken: storefrontToken,
		pageSize:        pageSize,
		baseURL:         fmt.Sprintf("https://%s", shopDomain),
	}
}

// Name はソース名を返す。
func (s *StorefrontSource) Name() string { return "storefront" }

// productsQuery はローカライズ済み商品を取得するGraphQLクエリ。
// priceV2はコンテキスト国の通貨に変換された金額を返す。
const productsQuery = `
query Products($first: Int!, $after: String) @inContext(country: %s, language: %s) {
  products(first: $first, after: $after) {
    pageInfo { hasNextPage endCursor }
    edges {
      node {
        id
        title
        description
        handle
        vendor
        productType
        tags
        featuredImage { url }
        variants(first: 100) {
          edges {
            node {
              id
              title
              sku
              barcode
              quantityAvailable
              image { url }
              price { amount currencyCode }
              compareAtPrice { amount currencyCode }
            }
          }
        }
      }
    }
  }
}`

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type storefrontResponse struct {
	Data struct {
		Products struct {
			PageInfo struct {
				HasNextPage bool   `json:"hasNextPage"`
				EndCursor   string `json:"endCursor"`
			} `json:"pageInfo"`
			Edges []struct {
				Node storefrontProduct `json:"node"`
			} `json:"edges"`
		} `json:"products"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type storefrontProduct struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Handle        string   `json:"handle"`
	Vendor        string   `json:"vendor"`
	ProductType   string   `json:"productType"`
	Tags          []string `json:"tags"`
	FeaturedImage *struct {
		URL string `json:"url"`
	} `json:"featuredImage"`
	Variants struct {
		Edges []struct {
			Node storefrontVariant `json:"node"`
		} `json:"edges"`
	} `json:"variants"`
}

type storefrontVariant struct {
	ID                string `json:"id"`
	Title             string `json:"title"`
	SKU               string `json:"sku"`
	Barcode           string `json:"barcode"`
	QuantityAvailable int    `json:"quantityAvailable"`
	Image             *struct {
		URL string `json:"url"`
	} `json:"image"`
	Price          *storefrontMoney `json:"price"`
	CompareAtPrice *storefrontMoney `json:"compareAtPrice"`
}

type storefrontMoney struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
}

// FetchAll は全商品をカーソルでページングしながら取得する。
// 返される価格はコンテキスト国の通貨に変換済みのため、
// ContextualPriceとしてバリアントに設定される。
func (s *StorefrontSource) FetchAll(ctx context.Context, language, country string) ([]model.Product, error) {
	if s.storefrontToken == "" {
		return nil, ErrNoStorefrontToken
	}

	query := fmt.Sprintf(productsQuery,
		strings.ToUpper(country),
		strings.ToUpper(strings.ReplaceAll(language, "-", "_")),
	)

	var products []model.Product
	cursor := ""

	for {
		page, nextCursor, hasNext, err := s.fetchPage(ctx, query, cursor)
		if err != nil {
			return nil, err
		}
		products = append(products, page...)

		if !hasNext {
			break
		}
		cursor = nextCursor
	}

	return products, nil
}

// fetchPage は1ページ分の商品を取得する。
func (s *StorefrontSource) fetchPage(ctx context.Context, query, cursor string) ([]model.Product, string, bool, error) {
	variables := map[string]any{"first": s.pageSize}
	if cursor != "" {
		variables["after"] = cursor
	}

	body, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, "", false, fmt.Errorf("GraphQLリクエストの構築に失敗しました: %w", err)
	}

	reqURL := fmt.Sprintf("%s/api/%s/graphql.json", s.baseURL, apiVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, "", false, fmt.Errorf("カタログリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Storefront-Access-Token", s.storefrontToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, "", false, fmt.Errorf("カタログAPIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, "", false, fmt.Errorf("カタログAPIが異常ステータスを返しました: %d: %s", resp.StatusCode, string(raw))
	}

	var decoded storefrontResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, "", false, fmt.Errorf("カタログレスポンスの解析に失敗しました: %w", err)
	}
	if len(decoded.Errors) > 0 {
		return nil, "", false, fmt.Errorf("カタログAPIがエラーを返しました: %s", decoded.Errors[0].Message)
	}

	conn := decoded.Data.Products
	products := make([]model.Product, 0, len(conn.Edges))
	for _, edge := range conn.Edges {
		products = append(products, convertStorefrontProduct(edge.Node))
	}

	return products, conn.PageInfo.EndCursor, conn.PageInfo.HasNextPage, nil
}

// convertStorefrontProduct はStorefront APIの商品レコードをドメインモデルに変換する。
// GraphQLのグローバルID（gid://shopify/Product/123）は数値部分に正規化する。
func convertStorefrontProduct(p storefrontProduct) model.Product {
	product := model.Product{
		ID:          normalizeGID(p.ID),
		Title:       p.Title,
		Description: p.Description,
		Handle:      p.Handle,
		Vendor:      p.Vendor,
		ProductType: p.ProductType,
		Tags:        p.Tags,
	}
	if p.FeaturedImage != nil {
		product.ImageURL = p.FeaturedImage.URL
	}

	for _, edge := range p.Variants.Edges {
		v := edge.Node
		variant := model.Variant{
			ID:                normalizeGID(v.ID),
			ProductID:         product.ID,
			Title:             v.Title,
			SKU:               v.SKU,
			Barcode:           v.Barcode,
			InventoryQuantity: v.QuantityAvailable,
		}
		if v.Image != nil {
			variant.ImageURL = v.Image.URL
		}
		if v.Price != nil {
			variant.Price = parseAmount(v.Price.Amount)
			variant.ContextualPrice = &model.ContextualPrice{
				Amount:       parseAmount(v.Price.Amount),
				CurrencyCode: v.Price.CurrencyCode,
			}
		}
		if v.CompareAtPrice != nil {
			variant.CompareAtPrice = parseAmount(v.CompareAtPrice.Amount)
			// @inContextのcompare-atは価格と同じコンテキスト通貨建て。
			if variant.ContextualPrice != nil {
				variant.ContextualPrice.CompareAtAmount = parseAmount(v.CompareAtPrice.Amount)
			}
		}
		product.Variants = append(product.Variants, variant)
	}

	return product
}

// normalizeGID はGraphQLのグローバルIDから末尾の数値IDを抽出する。
// グローバルID形式でない場合はそのまま返す。
func normalizeGID(gid string) string {
	idx := strings.LastIndex(gid, "/")
	if idx < 0 {
		return gid
	}
	return gid[idx+1:]
}
