package publisher

import (
	"log/slog"
	"testing"
)

func newTestPublisher(t *testing.T, config Config) *Publisher {
	t.Helper()
	config.AccessKey = "test-access"
	config.SecretKey = "test-secret"
	p, err := NewPublisher(config, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("Publisherの作成に失敗した: %v", err)
	}
	return p
}

func TestObjectKey(t *testing.T) {
	got := ObjectKey("shop-1", "feed-2", "xml")
	if got != "shop-1/feed-2.xml" {
		t.Errorf("ObjectKey = %q, want \"shop-1/feed-2.xml\"", got)
	}
}

func TestPublicURL_CDNBaseTakesPrecedence(t *testing.T) {
	p := newTestPublisher(t, Config{
		Endpoint:   "s3.amazonaws.com",
		Bucket:     "feeds",
		UseSSL:     true,
		URLStyle:   URLStyleVirtualHosted,
		CDNBaseURL: "https://cdn.example.com/",
	})

	got := p.PublicURL("shop-1/feed-2.xml")
	if got != "https://cdn.example.com/shop-1/feed-2.xml" {
		t.Errorf("CDNベースURLが最優先であるべき, got %q", got)
	}
}

func TestPublicURL_PathStyle(t *testing.T) {
	p := newTestPublisher(t, Config{
		Endpoint: "minio.internal:9000",
		Bucket:   "feeds",
		UseSSL:   false,
		URLStyle: URLStylePath,
	})

	got := p.PublicURL("shop-1/feed-2.xml")
	if got != "http://minio.internal:9000/feeds/shop-1/feed-2.xml" {
		t.Errorf("パス形式のURL導出が不正: %q", got)
	}
}

func TestPublicURL_VirtualHostedStyle(t *testing.T) {
	p := newTestPublisher(t, Config{
		Endpoint: "s3.eu-central-1.amazonaws.com",
		Bucket:   "feeds",
		UseSSL:   true,
		URLStyle: URLStyleVirtualHosted,
	})

	got := p.PublicURL("shop-1/feed-2.xml")
	if got != "https://feeds.s3.eu-central-1.amazonaws.com/shop-1/feed-2.xml" {
		t.Errorf("仮想ホスト形式のURL導出が不正: %q", got)
	}
}

func TestPublicURL_StableForSameKey(t *testing.T) {
	p := newTestPublisher(t, Config{
		Endpoint: "s3.amazonaws.com",
		Bucket:   "feeds",
		UseSSL:   true,
		URLStyle: URLStylePath,
	})

	a := p.PublicURL("shop-1/feed-2.xml")
	b := p.PublicURL("shop-1/feed-2.xml")
	if a != b {
		t.Errorf("同一キーのURLは安定しているべき: %q != %q", a, b)
	}
}
