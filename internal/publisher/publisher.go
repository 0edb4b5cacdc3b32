// Package publisher は生成済みフィードドキュメントのブロブストレージへの
// アップロードと公開URLの導出を提供する。
package publisher

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// URLStyle は公開URLのアドレス形式を表す。
type URLStyle string

const (
	// URLStylePath はS3互換エンドポイント向けのパス形式
	// （https://endpoint/bucket/key）。
	URLStylePath URLStyle = "path"
	// URLStyleVirtualHosted はAWS形式の仮想ホスト形式
	// （https://bucket.endpoint/key）。
	URLStyleVirtualHosted URLStyle = "virtual"
)

// Config はストレージ接続と公開URL導出の設定。
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	URLStyle  URLStyle
	// CDNBaseURL が設定されている場合、公開URLはこのベースから導出される
	// （エンドポイント形式より優先）。
	CDNBaseURL string
}

// Publisher はブロブストレージへのドキュメント公開を行う。
// 同一キーへのPublishは冪等で、返される公開URLは安定している。
type Publisher struct {
	client *minio.Client
	config Config
	logger *slog.Logger
}

// NewPublisher はPublisherの新しいインスタンスを生成する。
func NewPublisher(config Config, logger *slog.Logger) (*Publisher, error) {
	lookup := minio.BucketLookupPath
	if config.URLStyle == URLStyleVirtualHosted {
		lookup = minio.BucketLookupDNS
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure:       config.UseSSL,
		Region:       config.Region,
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, fmt.Errorf("ストレージクライアントの作成に失敗しました: %w", err)
	}

	return &Publisher{client: client, config: config, logger: logger}, nil
}

// ObjectKey はフィードドキュメントの決定的なオブジェクトキーを返す。
func ObjectKey(shopID, feedID, extension string) string {
	return fmt.Sprintf("%s/%s.%s", shopID, feedID, extension)
}

// Publish はドキュメントをアップロードし、安定した公開URLを返す。
func (p *Publisher) Publish(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := p.client.PutObject(ctx, p.config.Bucket, key,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType},
	)
	if err != nil {
		return "", fmt.Errorf("ドキュメントのアップロードに失敗しました: %w", err)
	}

	url := p.PublicURL(key)
	p.logger.Info("フィードドキュメントを公開しました",
		slog.String("key", key),
		slog.Int("size_bytes", len(data)),
		slog.String("public_url", url),
	)

	return url, nil
}

// Unpublish は公開済みドキュメントを削除する。
// ベストエフォートの操作で、失敗してもフィード削除フローは中断しない
// （呼び出し元はエラーをログに記録するのみ）。
func (p *Publisher) Unpublish(ctx context.Context, key string) error {
	err := p.client.RemoveObject(ctx, p.config.Bucket, key, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("ドキュメントの削除に失敗しました: %w", err)
	}
	return nil
}

// PublicURL はオブジェクトキーから公開URLを導出する。
// 優先順位: CDNベースURL > パス形式 > 仮想ホスト形式。
// 同一キーに対して常に同一のURLを返す。
func (p *Publisher) PublicURL(key string) string {
	if p.config.CDNBaseURL != "" {
		return strings.TrimRight(p.config.CDNBaseURL, "/") + "/" + key
	}

	scheme := "http"
	if p.config.UseSSL {
		scheme = "https"
	}

	if p.config.URLStyle == URLStyleVirtualHosted {
		return fmt.Sprintf("%s://%s.%s/%s", scheme, p.config.Bucket, p.config.Endpoint, key)
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, p.config.Endpoint, p.config.Bucket, key)
}
