package translation

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"golang.org/x/time/rate"

	"github.com/hitoshi/shopfeed/internal/model"
)

// mockFetcher はテスト用のFetcher実装。
type mockFetcher struct {
	batches  [][]string // 呼び出しごとのバッチ内商品ID
	fail     map[int]bool
	response map[string]model.TranslatedFields
}

func (m *mockFetcher) FetchBatch(ctx context.Context, locale string, products []model.Product) (map[string]model.TranslatedFields, error) {
	var ids []string
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	call := len(m.batches)
	m.batches = append(m.batches, ids)

	if m.fail[call] {
		return nil, fmt.Errorf("upstream error")
	}

	result := make(map[string]model.TranslatedFields)
	for _, id := range ids {
		if fields, ok := m.response[id]; ok {
			result[id] = fields
		}
	}
	return result, nil
}

func makeProducts(n int) []model.Product {
	products := make([]model.Product, n)
	for i := range products {
		id := fmt.Sprintf("p%d", i)
		products[i] = model.Product{
			ID:    id,
			Title: "Original " + id,
			Variants: []model.Variant{
				{ID: id + "-v1", Title: "Default"},
			},
		}
	}
	return products
}

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestApply_MergesTranslatedFields(t *testing.T) {
	fetcher := &mockFetcher{
		fail: map[int]bool{},
		response: map[string]model.TranslatedFields{
			"p0": {
				Title:         "Übersetzt",
				Description:   "Beschreibung",
				VariantTitles: map[string]string{"p0-v1": "Klein"},
			},
		},
	}
	merger := NewMerger(fetcher, discard(), 10, nil)

	products := makeProducts(2)
	applied := merger.Apply(context.Background(), "de", products)

	if applied != 1 {
		t.Errorf("適用数 = %d, want 1", applied)
	}
	if products[0].Title != "Übersetzt" || products[0].Description != "Beschreibung" {
		t.Errorf("商品フィールドの翻訳が適用されるべき: %+v", products[0])
	}
	if products[0].Variants[0].Title != "Klein" {
		t.Errorf("バリアントタイトルの上書きが適用されるべき: %s", products[0].Variants[0].Title)
	}
	if products[1].Title != "Original p1" {
		t.Errorf("翻訳のない商品は元のテキストを維持すべき: %s", products[1].Title)
	}
}

func TestApply_BatchSizeLimit(t *testing.T) {
	fetcher := &mockFetcher{fail: map[int]bool{}}
	merger := NewMerger(fetcher, discard(), 10, nil)

	merger.Apply(context.Background(), "de", makeProducts(25))

	if len(fetcher.batches) != 3 {
		t.Fatalf("バッチ数 = %d, want 3", len(fetcher.batches))
	}
	for i, batch := range fetcher.batches {
		if len(batch) > 10 {
			t.Errorf("バッチ%dのサイズ = %d, 10以下であるべき", i, len(batch))
		}
	}
}

func TestApply_OversizedBatchConfigClamped(t *testing.T) {
	fetcher := &mockFetcher{fail: map[int]bool{}}
	merger := NewMerger(fetcher, discard(), 100, nil)

	merger.Apply(context.Background(), "de", makeProducts(15))

	if len(fetcher.batches) != 2 {
		t.Errorf("バッチサイズ設定は10に制限されるべき, バッチ数 = %d", len(fetcher.batches))
	}
}

func TestApply_IndividualBatchFailureSkipped(t *testing.T) {
	// 1バッチ目が失敗: その商品は未翻訳のまま、2バッチ目は適用される。
	fetcher := &mockFetcher{
		fail: map[int]bool{0: true},
		response: map[string]model.TranslatedFields{
			"p10": {Title: "Translated p10"},
		},
	}
	merger := NewMerger(fetcher, discard(), 10, nil)

	products := makeProducts(11)
	applied := merger.Apply(context.Background(), "de", products)

	if applied != 1 {
		t.Errorf("適用数 = %d, want 1", applied)
	}
	if products[0].Title != "Original p0" {
		t.Errorf("失敗バッチの商品は未翻訳を維持すべき: %s", products[0].Title)
	}
	if products[10].Title != "Translated p10" {
		t.Errorf("後続バッチは継続して適用されるべき: %s", products[10].Title)
	}
}

func TestApply_TotalFailureDegradesToNoTranslations(t *testing.T) {
	fetcher := &mockFetcher{fail: map[int]bool{0: true, 1: true}}
	merger := NewMerger(fetcher, discard(), 10, nil)

	products := makeProducts(15)
	applied := merger.Apply(context.Background(), "de", products)

	if applied != 0 {
		t.Errorf("完全失敗時の適用数 = %d, want 0", applied)
	}
	for _, p := range products {
		if p.Title != "Original "+p.ID {
			t.Errorf("完全失敗時は全商品が未翻訳を維持すべき: %s", p.Title)
		}
	}
}

func TestApply_RespectsRateLimiter(t *testing.T) {
	fetcher := &mockFetcher{fail: map[int]bool{}}
	// バースト1、十分に高いレート: 待機はするがテストは即座に完了する。
	limiter := rate.NewLimiter(rate.Inf, 1)
	merger := NewMerger(fetcher, discard(), 10, limiter)

	applied := merger.Apply(context.Background(), "de", makeProducts(30))
	if applied != 0 {
		t.Errorf("適用数 = %d, want 0", applied)
	}
	if len(fetcher.batches) != 3 {
		t.Errorf("バッチ数 = %d, want 3", len(fetcher.batches))
	}
}

func TestApply_EmptyProductList(t *testing.T) {
	fetcher := &mockFetcher{fail: map[int]bool{}}
	merger := NewMerger(fetcher, discard(), 10, nil)

	if got := merger.Apply(context.Background(), "de", nil); got != 0 {
		t.Errorf("空リストの適用数 = %d, want 0", got)
	}
	if len(fetcher.batches) != 0 {
		t.Error("空リストではAPIを呼び出さないべき")
	}
}
