package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// tokenTitle は本サービスが払い出すStorefrontトークンの識別名。
const tokenTitle = "shopfeed"

// TokenProvisioner はAdmin API経由でStorefrontアクセストークンを調達する。
// 既に本サービス名義のトークンが存在する場合はそれを再利用し、
// なければ新規に作成する。
type TokenProvisioner struct {
	httpClient  *http.Client
	baseURL     string // テスト用にエンドポイントを差し替え可能
	accessToken string
}

// NewTokenProvisioner はTokenProvisionerを生成する。
func NewTokenProvisioner(httpClient *http.Client, shopDomain, accessToken string) *TokenProvisioner {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &TokenProvisioner{
		httpClient:  httpClient,
		baseURL:     fmt.Sprintf("https://%s", shopDomain),
		accessToken: accessToken,
	}
}

type storefrontAccessToken struct {
	AccessToken string `json:"access_token"`
	Title       string `json:"title"`
}

// Provision はStorefrontアクセストークンを返す。
// 既存トークンの照会に失敗した場合は作成を試みずエラーを返す。
func (p *TokenProvisioner) Provision(ctx context.Context) (string, error) {
	existing, err := p.listTokens(ctx)
	if err != nil {
		return "", err
	}
	for _, token := range existing {
		if token.Title == tokenTitle && token.AccessToken != "" {
			return token.AccessToken, nil
		}
	}
	return p.createToken(ctx)
}

func (p *TokenProvisioner) listTokens(ctx context.Context) ([]storefrontAccessToken, error) {
	reqURL := fmt.Sprintf("%s/admin/api/%s/storefront_access_tokens.json", p.baseURL, apiVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("X-Shopify-Access-Token", p.accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Storefrontトークンの照会に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("Storefrontトークンの照会に失敗しました: status=%d body=%s", resp.StatusCode, body)
	}

	var payload struct {
		Tokens []storefrontAccessToken `json:"storefront_access_tokens"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("レスポンスの解析に失敗しました: %w", err)
	}
	return payload.Tokens, nil
}

func (p *TokenProvisioner) createToken(ctx context.Context) (string, error) {
	body, err := json.Marshal(map[string]any{
		"storefront_access_token": map[string]string{"title": tokenTitle},
	})
	if err != nil {
		return "", fmt.Errorf("リクエストのシリアライズに失敗しました: %w", err)
	}

	reqURL := fmt.Sprintf("%s/admin/api/%s/storefront_access_tokens.json", p.baseURL, apiVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("リクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("X-Shopify-Access-Token", p.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("Storefrontトークンの作成に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("Storefrontトークンの作成に失敗しました: status=%d body=%s", resp.StatusCode, respBody)
	}

	var payload struct {
		Token storefrontAccessToken `json:"storefront_access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("レスポンスの解析に失敗しました: %w", err)
	}
	if payload.Token.AccessToken == "" {
		return "", fmt.Errorf("作成されたStorefrontトークンが空です")
	}
	return payload.Token.AccessToken, nil
}
