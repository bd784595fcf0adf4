package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/frontdoorrr/hotly-app-sub001/internal/cache"
	"github.com/frontdoorrr/hotly-app-sub001/internal/config"
	"github.com/frontdoorrr/hotly-app-sub001/internal/models"
)

func testSearchConfig() config.SearchConfig {
	return config.SearchConfig{
		TTLConservative:       5 * time.Minute,
		TTLBalanced:           15 * time.Minute,
		TTLAggressive:         time.Hour,
		SimilarityFloor:       0.3,
		WeightHistory:         2.0,
		WeightTrending:        1.5,
		WeightPopular:         1.0,
		WeightCompletion:      1.2,
		IndexTimeout:          2500 * time.Millisecond,
		CacheTimeout:          time.Second,
		SourceTimeout:         1500 * time.Millisecond,
		TrendingRetentionDays: 7,
		HistoryMaxEntries:     100,
		HistoryRetentionDays:  30,
		MinQueryLength:        2,
		MaxLimit:              100,
	}
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

// fakeRepo is an in-memory PlaceRepository for tests.
type fakeRepo struct {
	ranked       []RankedPlace
	similar      []SimilarPlace
	aggregates   []PlaceNameCount
	prefixHits   []models.Place
	exactTotal   int64
	similarTotal int64
	exactErr     error
	similarErr   error
	countErr     error
	aggErr       error
	prefixErr    error
	exactCalls   int
	fuzzyCalls   int
	countCalls   int
	aggCalls     int
	prefixCalls  int
}

func (f *fakeRepo) FindByTextMatch(ctx context.Context, userID uint, query string, categoryID uint, limit int) ([]RankedPlace, error) {
	f.exactCalls++
	return f.ranked, f.exactErr
}

func (f *fakeRepo) FindBySimilarity(ctx context.Context, userID uint, query string, minSimilarity float64, limit int) ([]SimilarPlace, error) {
	f.fuzzyCalls++
	return f.similar, f.similarErr
}

func (f *fakeRepo) CountByTextMatch(ctx context.Context, userID uint, query string, categoryID uint) (int64, error) {
	f.countCalls++
	return f.exactTotal, f.countErr
}

func (f *fakeRepo) CountBySimilarity(ctx context.Context, userID uint, query string, minSimilarity float64) (int64, error) {
	f.countCalls++
	return f.similarTotal, f.countErr
}

func (f *fakeRepo) AggregateByNameMatch(ctx context.Context, userID uint, prefix string, category string, limit int) ([]PlaceNameCount, error) {
	f.aggCalls++
	return f.aggregates, f.aggErr
}

func (f *fakeRepo) FindByNamePrefix(ctx context.Context, userID uint, prefix string, limit int) ([]models.Place, error) {
	f.prefixCalls++
	return f.prefixHits, f.prefixErr
}

// fakeStore is an in-memory Store for tests.
type fakeStore struct {
	kv      map[string]string
	zsets   map[string][]cache.ScoredMember
	lists   map[string][]string
	getHits int
	sets    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		kv:    make(map[string]string),
		zsets: make(map[string][]cache.ScoredMember),
		lists: make(map[string][]string),
	}
}

func (f *fakeStore) Get(ctx context.Context, key string) (string, bool) {
	v, ok := f.kv[key]
	if ok {
		f.getHits++
	}
	return v, ok
}

func (f *fakeStore) Set(ctx context.Context, key, value string, ttl time.Duration) {
	f.sets++
	f.kv[key] = value
}

func (f *fakeStore) IncrSortedSet(ctx context.Context, setKey, member string, delta float64, ttl time.Duration) {
	for i := range f.zsets[setKey] {
		if f.zsets[setKey][i].Member == member {
			f.zsets[setKey][i].Score += delta
			return
		}
	}
	f.zsets[setKey] = append(f.zsets[setKey], cache.ScoredMember{Member: member, Score: delta})
}

func (f *fakeStore) TopSortedSet(ctx context.Context, setKey string, n int64) []cache.ScoredMember {
	members := f.zsets[setKey]
	if int64(len(members)) > n {
		members = members[:n]
	}
	return members
}

func (f *fakeStore) GetList(ctx context.Context, listKey string) []string {
	return f.lists[listKey]
}

func (f *fakeStore) SetList(ctx context.Context, listKey string, values []string, maxLen int64, ttl time.Duration) {
	if maxLen > 0 && int64(len(values)) > maxLen {
		values = values[:maxLen]
	}
	f.lists[listKey] = values
}

func makePlace(id uint, name string) models.Place {
	return models.Place{ID: id, Name: name, CreatedAt: time.Now()}
}

func TestFallbackExactStage(t *testing.T) {
	repo := &fakeRepo{
		ranked: []RankedPlace{
			{Place: makePlace(1, "카페 드림"), Rank: 0.9},
			{Place: makePlace(2, "카페 온도"), Rank: 0.5},
		},
	}
	f := NewFallback(repo, 0.3)

	q := &Query{Text: "카페", Limit: 10}
	if err := q.Validate(testSearchConfig()); err != nil {
		t.Fatalf("validate: %v", err)
	}

	resp := f.Search(context.Background(), q)

	if resp.Source != SourceRelationalFallback {
		t.Errorf("source = %s, want relational_fallback", resp.Source)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(resp.Items))
	}
	if repo.fuzzyCalls != 0 {
		t.Error("fuzzy stage must not run when exact stage matched")
	}
	if resp.Items[0].Score < resp.Items[1].Score {
		t.Error("items must be sorted by score descending")
	}
}

func TestFallbackFuzzyStage(t *testing.T) {
	// 오타 질의: exact는 0건, fuzzy가 의도한 레코드를 찾는 시나리오
	repo := &fakeRepo{
		similar: []SimilarPlace{
			{Place: makePlace(1, "카페 드림"), Similarity: 0.45},
		},
	}
	f := NewFallback(repo, 0.3)

	q := &Query{Text: "카페 드립", Limit: 10}
	if err := q.Validate(testSearchConfig()); err != nil {
		t.Fatalf("validate: %v", err)
	}

	resp := f.Search(context.Background(), q)

	if repo.exactCalls != 1 || repo.fuzzyCalls != 1 {
		t.Errorf("expected exact then fuzzy, got exact=%d fuzzy=%d", repo.exactCalls, repo.fuzzyCalls)
	}
	if len(resp.Items) != 1 || resp.Items[0].Name != "카페 드림" {
		t.Fatalf("fuzzy stage should return the intended record, got %+v", resp.Items)
	}
	if resp.Items[0].Score < 0.3 {
		t.Errorf("similarity %f below floor", resp.Items[0].Score)
	}
}

func TestFallbackNoResults(t *testing.T) {
	repo := &fakeRepo{}
	f := NewFallback(repo, 0.3)

	q := &Query{Text: "없는가게", Limit: 10}
	if err := q.Validate(testSearchConfig()); err != nil {
		t.Fatalf("validate: %v", err)
	}

	resp := f.Search(context.Background(), q)

	if resp.Total != 0 || len(resp.Items) != 0 {
		t.Errorf("NO_RESULTS must be an empty response, got %+v", resp)
	}
	if resp.Items == nil {
		t.Error("items must be an empty slice, not nil")
	}
}

func TestFallbackRepoErrorDegrades(t *testing.T) {
	repo := &fakeRepo{
		exactErr:   errors.New("connection refused"),
		similarErr: errors.New("connection refused"),
	}
	f := NewFallback(repo, 0.3)

	q := &Query{Text: "카페", Limit: 10}
	if err := q.Validate(testSearchConfig()); err != nil {
		t.Fatalf("validate: %v", err)
	}

	resp := f.Search(context.Background(), q)
	if resp == nil || resp.Total != 0 {
		t.Errorf("repository errors must degrade to empty results, got %+v", resp)
	}
}

func TestFallbackDistanceSort(t *testing.T) {
	near := makePlace(1, "근처 카페")
	near.Lat = floatPtr(37.556)
	near.Lng = floatPtr(126.922)
	far := makePlace(2, "먼 카페")
	far.Lat = floatPtr(37.400)
	far.Lng = floatPtr(127.100)

	repo := &fakeRepo{
		ranked: []RankedPlace{
			{Place: far, Rank: 0.9},
			{Place: near, Rank: 0.5},
		},
	}
	f := NewFallback(repo, 0.3)

	q := &Query{
		Text:     "카페",
		Limit:    10,
		Center:   &GeoPoint{Lat: 37.557, Lng: 126.924}, // 홍대 근처
		RadiusKm: 10,
		Sort:     SortDistance,
	}
	if err := q.Validate(testSearchConfig()); err != nil {
		t.Fatalf("validate: %v", err)
	}

	resp := f.Search(context.Background(), q)
	if len(resp.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(resp.Items))
	}
	if resp.Items[0].Name != "근처 카페" {
		t.Errorf("distance sort should put the nearest first, got %s", resp.Items[0].Name)
	}
	if resp.Items[0].DistanceKm == nil || *resp.Items[0].DistanceKm > *resp.Items[1].DistanceKm {
		t.Error("distances must be ascending")
	}
}

func TestFallbackTotalBeyondWindow(t *testing.T) {
	// 가져온 윈도가 가득 차면 전체 매치 수는 count 쿼리로 채운다
	repo := &fakeRepo{
		ranked: []RankedPlace{
			{Place: makePlace(1, "카페 드림"), Rank: 0.9},
			{Place: makePlace(2, "카페 온도"), Rank: 0.5},
		},
		exactTotal: 10,
	}
	f := NewFallback(repo, 0.3)

	q := &Query{Text: "카페", Limit: 2}
	if err := q.Validate(testSearchConfig()); err != nil {
		t.Fatalf("validate: %v", err)
	}

	resp := f.Search(context.Background(), q)
	if resp.Total != 10 {
		t.Errorf("total = %d, want true match count 10", resp.Total)
	}
	if len(resp.Items) != 2 {
		t.Errorf("page size = %d, want 2", len(resp.Items))
	}
}

func TestFallbackTotalWithinWindow(t *testing.T) {
	// 윈도가 다 차지 않으면 그 길이가 곧 전체 건수 — count 쿼리는 생략
	repo := &fakeRepo{
		ranked: []RankedPlace{
			{Place: makePlace(1, "카페 드림"), Rank: 0.9},
		},
	}
	f := NewFallback(repo, 0.3)

	q := &Query{Text: "카페", Limit: 10}
	if err := q.Validate(testSearchConfig()); err != nil {
		t.Fatalf("validate: %v", err)
	}

	resp := f.Search(context.Background(), q)
	if resp.Total != 1 {
		t.Errorf("total = %d, want 1", resp.Total)
	}
	if repo.countCalls != 0 {
		t.Errorf("count query should be skipped for a partial window, got %d calls", repo.countCalls)
	}
}

func TestFallbackRecentSort(t *testing.T) {
	older := makePlace(1, "옛 카페")
	older.CreatedAt = time.Now().Add(-48 * time.Hour)
	newer := makePlace(2, "새 카페")

	repo := &fakeRepo{
		ranked: []RankedPlace{
			{Place: older, Rank: 0.9},
			{Place: newer, Rank: 0.1},
		},
	}
	f := NewFallback(repo, 0.3)

	q := &Query{Text: "카페", Limit: 10, Sort: SortRecent}
	if err := q.Validate(testSearchConfig()); err != nil {
		t.Fatalf("validate: %v", err)
	}

	resp := f.Search(context.Background(), q)
	if len(resp.Items) != 2 || resp.Items[0].PlaceID != 2 {
		t.Errorf("recent sort should put the newest first, got %+v", resp.Items)
	}
}

func TestFallbackPagination(t *testing.T) {
	repo := &fakeRepo{
		ranked: []RankedPlace{
			{Place: makePlace(1, "a"), Rank: 0.9},
			{Place: makePlace(2, "b"), Rank: 0.8},
			{Place: makePlace(3, "c"), Rank: 0.7},
		},
	}
	f := NewFallback(repo, 0.3)

	q := &Query{Text: "카페", Limit: 2, Offset: 2}
	if err := q.Validate(testSearchConfig()); err != nil {
		t.Fatalf("validate: %v", err)
	}

	resp := f.Search(context.Background(), q)
	if len(resp.Items) != 1 || resp.Items[0].PlaceID != 3 {
		t.Errorf("offset pagination broken: %+v", resp.Items)
	}
}
