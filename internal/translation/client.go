package translation

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

// apiVersion は呼び出すAdmin GraphQL APIのバージョン。
const apiVersion = "2024-01"

// translationsQuery は翻訳可能リソースをIDで一括取得するGraphQLクエリ。
// 商品とバリアントのGIDを同一リクエストで問い合わせる。
const translationsQuery = `
query Translations($ids: [ID!]!, $locale: String!) {
  translatableResourcesByIds(first: 250, resourceIds: $ids) {
    edges {
      node {
        resourceId
        translations(locale: $locale) { key value }
      }
    }
  }
}`

// AdminClient はAdmin GraphQL APIで翻訳を取得するFetcher実装。
type AdminClient struct {
	httpClient  *http.Client
	shopDomain  string
	accessToken string
	baseURL     string // テスト用にエンドポイントを差し替え可能
}

// NewAdminClient はAdminClientの新しいインスタンスを生成する。
func NewAdminClient(httpClient *http.Client, shopDomain, accessToken string) *AdminClient {
	return &AdminClient{
		httpClient:  httpClient,
		shopDomain:  shopDomain,
		accessToken: accessToken,
		baseURL:     fmt.Sprintf("https://%s", shopDomain),
	}
}

type translationsResponse struct {
	Data struct {
		TranslatableResourcesByIds struct {
			Edges []struct {
				Node struct {
					ResourceID   string `json:"resourceId"`
					Translations []struct {
						Key   string `json:"key"`
						Value string `json:"value"`
					} `json:"translations"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"translatableResourcesByIds"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// FetchBatch は商品バッチの翻訳を取得する。
// 商品GIDと各商品のバリアントGIDを1リクエストで問い合わせ、
// バリアントのタイトル上書きは所属商品のTranslatedFieldsに束ねて返す。
func (c *AdminClient) FetchBatch(ctx context.Context, locale string, products []model.Product) (map[string]model.TranslatedFields, error) {
	if len(products) == 0 {
		return map[string]model.TranslatedFields{}, nil
	}

	// GID → 商品IDの逆引きマップを構築する
	variantOwner := make(map[string]string)
	ids := make([]string, 0, len(products))
	for _, p := range products {
		ids = append(ids, "gid://shopify/Product/"+p.ID)
		for _, v := range p.Variants {
			ids = append(ids, "gid://shopify/ProductVariant/"+v.ID)
			variantOwner[v.ID] = p.ID
		}
	}

	body, err := json.Marshal(map[string]any{
		"query":     translationsQuery,
		"variables": map[string]any{"ids": ids, "locale": locale},
	})
	if err != nil {
		return nil, fmt.Errorf("翻訳リクエストの構築に失敗しました: %w", err)
	}

	reqURL := fmt.Sprintf("%s/admin/api/%s/graphql.json", c.baseURL, apiVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("翻訳リクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("翻訳APIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("翻訳APIが異常ステータスを返しました: %d: %s", resp.StatusCode, string(raw))
	}

	var decoded translationsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("翻訳レスポンスの解析に失敗しました: %w", err)
	}
	if len(decoded.Errors) > 0 {
		return nil, fmt.Errorf("翻訳APIがエラーを返しました: %s", decoded.Errors[0].Message)
	}

	result := make(map[string]model.TranslatedFields)
	for _, edge := range decoded.Data.TranslatableResourcesByIds.Edges {
		resourceID := edge.Node.ResourceID
		numericID := resourceID[strings.LastIndex(resourceID, "/")+1:]

		switch {
		case strings.Contains(resourceID, "/Product/"):
			fields := result[numericID]
			for _, tr := range edge.Node.Translations {
				switch tr.Key {
				case "title":
					fields.Title = tr.Value
				case "body_html":
					fields.Description = tr.Value
				}
			}
			result[numericID] = fields

		case strings.Contains(resourceID, "/ProductVariant/"):
			productID, ok := variantOwner[numericID]
			if !ok {
				continue
			}
			for _, tr := range edge.Node.Translations {
				if tr.Key != "title" || tr.Value == "" {
					continue
				}
				fields := result[productID]
				if fields.VariantTitles == nil {
					fields.VariantTitles = make(map[string]string)
				}
				fields.VariantTitles[numericID] = tr.Value
				result[productID] = fields
			}
		}
	}

	return result, nil
}
