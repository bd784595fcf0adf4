package search

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/frontdoorrr/hotly-app-sub001/internal/analyzer"
	"github.com/frontdoorrr/hotly-app-sub001/internal/cache"
	"github.com/frontdoorrr/hotly-app-sub001/internal/models"
)

// fakeCompleter is an in-memory Completer for tests.
type fakeCompleter struct {
	completions []Completion
	err         error
	calls       int
}

func (f *fakeCompleter) Suggest(ctx context.Context, prefix string, categories []string, size int) ([]Completion, error) {
	f.calls++
	return f.completions, f.err
}

func newTestAggregator(store Store, repo PlaceRepository, completer Completer) *Aggregator {
	g := NewAggregator(store, repo, completer, analyzer.New(), testSearchConfig())
	g.syncLog = true
	return g
}

func historyJSON(t *testing.T, rec HistoryRecord) string {
	t.Helper()
	b, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal history record: %v", err)
	}
	return string(b)
}

func TestSuggestDeduplicatesKeepingHigherScore(t *testing.T) {
	store := newFakeStore()
	// 같은 질의어가 개인 히스토리와 트렌딩에 다른 점수로 존재
	store.lists[historyKey(7)] = []string{
		historyJSON(t, HistoryRecord{Query: "홍대 카페", Frequency: 5, LastSearched: time.Now()}),
	}
	store.zsets[trendingKey(time.Now())] = []cache.ScoredMember{
		{Member: "홍대 카페", Score: 2},
	}

	g := newTestAggregator(store, &fakeRepo{}, &fakeCompleter{})
	resp := g.Suggest(context.Background(), 7, "홍대", nil, 10)

	count := 0
	var winner Suggestion
	for _, s := range resp.Suggestions {
		if analyzer.NormalizeText(s.Text) == "홍대 카페" {
			count++
			winner = s
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one deduplicated entry, got %d", count)
	}
	// history 5×2.0=10 > trending 2×1.5=3 → 히스토리 쪽이 남아야 한다
	if winner.Type != SuggestionPersonalHistory {
		t.Errorf("dedup should keep the higher-scored source, got %s", winner.Type)
	}
}

func TestSuggestNormalizedTextsAreUnique(t *testing.T) {
	store := newFakeStore()
	store.zsets[trendingKey(time.Now())] = []cache.ScoredMember{
		{Member: "홍대  카페", Score: 3},
		{Member: "홍대 카페", Score: 1},
	}

	g := newTestAggregator(store, &fakeRepo{}, &fakeCompleter{})
	resp := g.Suggest(context.Background(), 0, "홍대", nil, 10)

	seen := make(map[string]bool)
	for _, s := range resp.Suggestions {
		key := analyzer.NormalizeText(s.Text)
		if seen[key] {
			t.Errorf("duplicate normalized suggestion %q", key)
		}
		seen[key] = true
	}
}

func TestSuggestPartialSourceFailure(t *testing.T) {
	store := newFakeStore()
	store.zsets[trendingKey(time.Now())] = []cache.ScoredMember{
		{Member: "홍대 맛집", Score: 4},
	}

	// completion 소스만 실패
	completer := &fakeCompleter{err: errors.New("index down")}
	g := newTestAggregator(store, &fakeRepo{}, completer)

	resp := g.Suggest(context.Background(), 0, "홍대", nil, 10)

	if len(resp.Suggestions) == 0 {
		t.Fatal("remaining sources must still contribute when one fails")
	}
	if resp.Suggestions[0].Text != "홍대 맛집" {
		t.Errorf("expected trending suggestion, got %+v", resp.Suggestions[0])
	}
}

func TestSuggestAllSourcesEmptyUsesDirectFallback(t *testing.T) {
	repo := &fakeRepo{
		prefixHits: []models.Place{makePlace(1, "홍대돈부리")},
	}
	g := newTestAggregator(newFakeStore(), repo, &fakeCompleter{})

	resp := g.Suggest(context.Background(), 0, "홍대", nil, 10)

	if repo.prefixCalls != 1 {
		t.Error("direct fallback must run when all sources return nothing")
	}
	if len(resp.Suggestions) != 1 || resp.Suggestions[0].Type != SuggestionBasic {
		t.Errorf("expected basic suggestion from direct fallback, got %+v", resp.Suggestions)
	}
}

func TestSuggestDirectFallbackFailureReturnsEmpty(t *testing.T) {
	repo := &fakeRepo{
		aggErr:    errors.New("db down"),
		prefixErr: errors.New("db down"),
	}
	completer := &fakeCompleter{err: errors.New("index down")}
	g := newTestAggregator(newFakeStore(), repo, completer)

	resp := g.Suggest(context.Background(), 0, "홍대", nil, 10)

	if resp == nil {
		t.Fatal("aggregator must never return nil")
	}
	if len(resp.Suggestions) != 0 || resp.Total != 0 {
		t.Errorf("expected empty suggestion list, got %+v", resp)
	}
}

func TestSuggestBucketsOmitEmpty(t *testing.T) {
	store := newFakeStore()
	store.zsets[trendingKey(time.Now())] = []cache.ScoredMember{
		{Member: "홍대 카페", Score: 3},
	}
	g := newTestAggregator(store, &fakeRepo{}, &fakeCompleter{})

	resp := g.Suggest(context.Background(), 0, "홍대", nil, 10)

	if _, ok := resp.Categories["trending"]; !ok {
		t.Error("trending bucket missing")
	}
	for name, bucket := range resp.Categories {
		if len(bucket) == 0 {
			t.Errorf("empty bucket %q must be omitted", name)
		}
	}
	if _, ok := resp.Categories["personal"]; ok {
		t.Error("personal bucket should be absent when the user has no history")
	}
}

func TestSuggestPrefixPositionBonus(t *testing.T) {
	store := newFakeStore()
	store.zsets[trendingKey(time.Now())] = []cache.ScoredMember{
		{Member: "홍대 카페", Score: 1},
		{Member: "카페 홍대점", Score: 1},
	}
	g := newTestAggregator(store, &fakeRepo{}, &fakeCompleter{})

	resp := g.Suggest(context.Background(), 0, "홍대", nil, 10)

	if len(resp.Suggestions) < 2 {
		t.Fatalf("expected both candidates, got %+v", resp.Suggestions)
	}
	// 동일 원점수면 질의가 앞에 오는 후보가 우선
	if resp.Suggestions[0].Text != "홍대 카페" {
		t.Errorf("prefix-position bonus should rank %q first, got %q", "홍대 카페", resp.Suggestions[0].Text)
	}
}

func TestSuggestLogsTrendingAndHistory(t *testing.T) {
	store := newFakeStore()
	g := newTestAggregator(store, &fakeRepo{}, &fakeCompleter{})

	g.Suggest(context.Background(), 42, "홍대 카페", nil, 10)

	members := store.zsets[trendingKey(time.Now())]
	if len(members) != 1 || members[0].Member != "홍대 카페" || members[0].Score != 1 {
		t.Errorf("trending counter not incremented: %+v", members)
	}

	history := store.lists[historyKey(42)]
	if len(history) != 1 {
		t.Fatalf("history not written: %v", history)
	}
	var rec HistoryRecord
	if err := json.Unmarshal([]byte(history[0]), &rec); err != nil {
		t.Fatalf("bad history record: %v", err)
	}
	if rec.Query != "홍대 카페" || rec.Frequency != 1 {
		t.Errorf("unexpected history record: %+v", rec)
	}

	// 같은 질의 반복 → 빈도 증가, 항목 수 유지
	g.Suggest(context.Background(), 42, "홍대 카페", nil, 10)
	history = store.lists[historyKey(42)]
	if len(history) != 1 {
		t.Fatalf("exact-match history must merge, got %d entries", len(history))
	}
	if err := json.Unmarshal([]byte(history[0]), &rec); err != nil {
		t.Fatalf("bad history record: %v", err)
	}
	if rec.Frequency != 2 {
		t.Errorf("frequency = %d, want 2", rec.Frequency)
	}
}

func TestSuggestTrendingHonorsLargeLimit(t *testing.T) {
	store := newFakeStore()
	for i := 0; i < 30; i++ {
		store.zsets[trendingKey(time.Now())] = append(store.zsets[trendingKey(time.Now())],
			cache.ScoredMember{Member: "홍대 가게 " + strconv.Itoa(i), Score: float64(30 - i)})
	}
	g := newTestAggregator(store, &fakeRepo{}, &fakeCompleter{})

	resp := g.Suggest(context.Background(), 0, "홍대", nil, 30)

	// limit이 20을 넘으면 트렌딩 읽기도 그만큼 넓어져야 한다
	if len(resp.Suggestions) != 30 {
		t.Errorf("expected 30 trending suggestions, got %d", len(resp.Suggestions))
	}
}

func TestSuggestLimitTruncation(t *testing.T) {
	store := newFakeStore()
	store.zsets[trendingKey(time.Now())] = []cache.ScoredMember{
		{Member: "홍대 카페", Score: 5},
		{Member: "홍대 맛집", Score: 4},
		{Member: "홍대 술집", Score: 3},
	}
	g := newTestAggregator(store, &fakeRepo{}, &fakeCompleter{})

	resp := g.Suggest(context.Background(), 0, "홍대", nil, 2)

	if len(resp.Suggestions) != 2 {
		t.Errorf("limit not applied: got %d suggestions", len(resp.Suggestions))
	}
	if resp.Suggestions[0].Score < resp.Suggestions[1].Score {
		t.Error("suggestions must be sorted by score descending")
	}
}
