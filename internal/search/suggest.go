package search

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/frontdoorrr/hotly-app-sub001/internal/analyzer"
	"github.com/frontdoorrr/hotly-app-sub001/internal/config"
	"github.com/frontdoorrr/hotly-app-sub001/internal/logger"
)

// Aggregator fans out to the four suggestion sources, merges their
// differently-scaled scores, and writes query telemetry back to the cache.
// 개별 소스 실패는 무시되고, 전부 실패해야 최소 경로로 degrade한다.
type Aggregator struct {
	store     Store
	repo      PlaceRepository
	completer Completer
	analyzer  *analyzer.Analyzer
	cfg       config.SearchConfig
	log       *zap.SugaredLogger

	now func() time.Time
	// 테스트에서 비동기 로깅을 동기로 돌리기 위한 스위치
	syncLog bool
}

func NewAggregator(store Store, repo PlaceRepository, completer Completer, an *analyzer.Analyzer, cfg config.SearchConfig) *Aggregator {
	return &Aggregator{
		store:     store,
		repo:      repo,
		completer: completer,
		analyzer:  an,
		cfg:       cfg,
		log:       logger.GetLogger("search.suggest"),
		now:       time.Now,
	}
}

func historyKey(userID uint) string {
	return "search:history:" + strconv.FormatUint(uint64(userID), 10)
}

func trendingKey(day time.Time) string {
	return "search:trending:" + day.Format("20060102")
}

// sourceResult is one source's contribution plus its failure flag.
type sourceResult struct {
	suggestions []Suggestion
	failed      bool
}

// Suggest aggregates the four sources concurrently and returns a merged,
// deduplicated, bucketed suggestion list. It never fails.
func (g *Aggregator) Suggest(ctx context.Context, userID uint, query string, categories []string, limit int) *SuggestResponse {
	if limit <= 0 {
		limit = 10
	}
	if limit > g.cfg.MaxLimit {
		limit = g.cfg.MaxLimit
	}

	results := make([]sourceResult, 4)
	var wg sync.WaitGroup

	run := func(slot int, fn func(context.Context) ([]Suggestion, error)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			srcCtx, cancel := context.WithTimeout(ctx, g.cfg.SourceTimeout)
			defer cancel()

			suggestions, err := fn(srcCtx)
			if err != nil {
				// 한 소스의 실패가 나머지 소스 결과에 영향을 주지 않는다
				g.log.Warnw("suggestion source failed", "slot", slot, "query", query, "error", err)
				results[slot] = sourceResult{failed: true}
				return
			}
			results[slot] = sourceResult{suggestions: suggestions}
		}()
	}

	run(0, func(ctx context.Context) ([]Suggestion, error) {
		return g.personalHistory(ctx, userID, query)
	})
	run(1, func(ctx context.Context) ([]Suggestion, error) {
		return g.trending(ctx, query, limit)
	})
	run(2, func(ctx context.Context) ([]Suggestion, error) {
		return g.popularPlaces(ctx, query, categories, limit)
	})
	run(3, func(ctx context.Context) ([]Suggestion, error) {
		return g.completions(ctx, query, categories, limit)
	})

	wg.Wait()

	var candidates []Suggestion
	failures := 0
	for _, r := range results {
		if r.failed {
			failures++
		}
		candidates = append(candidates, r.suggestions...)
	}

	merged := g.merge(query, candidates, limit)

	if len(merged) == 0 {
		if failures == len(results) {
			g.log.Warnw("all suggestion sources failed, using direct fallback", "query", query)
		}
		merged = g.directFallback(ctx, userID, query, limit)
	}

	// 검색 로그 기록은 응답 경로를 막지 않는다
	if g.syncLog {
		g.logQuery(context.Background(), userID, query)
	} else {
		go g.logQuery(context.Background(), userID, query)
	}

	return &SuggestResponse{
		Suggestions: merged,
		Categories:  bucketize(merged),
		Total:       len(merged),
	}
}

// personalHistory reads the user's capped history list and keeps entries
// matching the query.
func (g *Aggregator) personalHistory(ctx context.Context, userID uint, query string) ([]Suggestion, error) {
	if userID == 0 {
		return nil, nil
	}

	normQuery := analyzer.NormalizeText(query)
	var suggestions []Suggestion
	for _, raw := range g.store.GetList(ctx, historyKey(userID)) {
		var rec HistoryRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue
		}
		if !strings.Contains(analyzer.NormalizeText(rec.Query), normQuery) {
			continue
		}
		suggestions = append(suggestions, Suggestion{
			Text:  rec.Query,
			Type:  SuggestionPersonalHistory,
			Score: float64(rec.Frequency),
			Metadata: map[string]interface{}{
				"last_searched": rec.LastSearched,
			},
		})
	}
	return suggestions, nil
}

// trending reads today's day-scoped counter and keeps matching terms.
func (g *Aggregator) trending(ctx context.Context, query string, limit int) ([]Suggestion, error) {
	// contains 필터로 걸러지는 항목을 감안해 최소 20개는 읽는다
	n := int64(limit)
	if n < 20 {
		n = 20
	}
	normQuery := analyzer.NormalizeText(query)
	var suggestions []Suggestion
	for _, m := range g.store.TopSortedSet(ctx, trendingKey(g.now()), n) {
		if !strings.Contains(analyzer.NormalizeText(m.Member), normQuery) {
			continue
		}
		suggestions = append(suggestions, Suggestion{
			Text:  m.Member,
			Type:  SuggestionTrending,
			Score: m.Score,
		})
	}
	return suggestions, nil
}

// popularPlaces aggregates prefix-matching places from the relational store.
func (g *Aggregator) popularPlaces(ctx context.Context, query string, categories []string, limit int) ([]Suggestion, error) {
	category := ""
	if len(categories) > 0 {
		category = categories[0]
	}

	rows, err := g.repo.AggregateByNameMatch(ctx, 0, query, category, limit)
	if err != nil {
		return nil, err
	}

	suggestions := make([]Suggestion, 0, len(rows))
	for _, row := range rows {
		// 방문수 보너스는 로그 스케일의 소폭 가산
		score := float64(row.MatchCount) + 0.1*math.Log1p(float64(row.VisitCount))
		suggestions = append(suggestions, Suggestion{
			Text:     row.Name,
			Type:     SuggestionPopularPlace,
			Score:    score,
			Category: row.Category,
			Metadata: map[string]interface{}{
				"place_id": row.PlaceID,
			},
		})
	}
	return suggestions, nil
}

// completions queries the index backend's completion suggester.
func (g *Aggregator) completions(ctx context.Context, query string, categories []string, limit int) ([]Suggestion, error) {
	if g.completer == nil {
		return nil, nil
	}
	items, err := g.completer.Suggest(ctx, query, categories, limit)
	if err != nil {
		return nil, err
	}

	suggestions := make([]Suggestion, 0, len(items))
	for _, item := range items {
		suggestions = append(suggestions, Suggestion{
			Text:  item.Text,
			Type:  SuggestionIndexCompletion,
			Score: item.Score,
		})
	}
	return suggestions, nil
}

// sourceWeight maps a suggestion type to its configured merge weight.
func (g *Aggregator) sourceWeight(t SuggestionType) float64 {
	switch t {
	case SuggestionPersonalHistory:
		return g.cfg.WeightHistory
	case SuggestionTrending:
		return g.cfg.WeightTrending
	case SuggestionPopularPlace:
		return g.cfg.WeightPopular
	case SuggestionIndexCompletion:
		return g.cfg.WeightCompletion
	default:
		return 1.0
	}
}

// merge applies source weights and relevance bonuses, deduplicates by
// normalized text keeping the higher score, and truncates to limit.
func (g *Aggregator) merge(query string, candidates []Suggestion, limit int) []Suggestion {
	queryKeywords := g.analyzer.Analyze(query)
	normQuery := analyzer.NormalizeText(query)

	best := make(map[string]Suggestion)
	for _, c := range candidates {
		score := c.Score * g.sourceWeight(c.Type)

		// 공유 키워드 수에 비례한 보너스
		score += 0.5 * float64(analyzer.Overlap(queryKeywords, g.analyzer.Analyze(c.Text)))

		// 질의가 후보 텍스트의 앞쪽에 나타날수록 큰 보너스
		if pos := strings.Index(analyzer.NormalizeText(c.Text), normQuery); pos >= 0 {
			score += 1.0 / (1.0 + float64(pos))
		}

		c.Score = score
		key := analyzer.NormalizeText(c.Text)
		if prev, ok := best[key]; !ok || c.Score > prev.Score {
			best[key] = c
		}
	}

	merged := make([]Suggestion, 0, len(best))
	for _, s := range best {
		merged = append(merged, s)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].Text < merged[j].Text
	})

	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

// directFallback is the minimal-dependency path used when every source
// failed or returned nothing: 이름 prefix 매칭만 수행한다.
func (g *Aggregator) directFallback(ctx context.Context, userID uint, query string, limit int) []Suggestion {
	places, err := g.repo.FindByNamePrefix(ctx, userID, query, limit)
	if err != nil {
		g.log.Warnw("direct fallback failed", "query", query, "error", err)
		return []Suggestion{}
	}

	suggestions := make([]Suggestion, 0, len(places))
	for _, p := range places {
		s := Suggestion{
			Text:  p.Name,
			Type:  SuggestionBasic,
			Score: math.Log1p(float64(p.Popularity + p.VisitCount)),
			Metadata: map[string]interface{}{
				"place_id": p.ID,
			},
		}
		if p.Category != nil {
			s.Category = p.Category.Name
		}
		suggestions = append(suggestions, s)
	}
	return suggestions
}

// bucketName maps suggestion types to response buckets.
func bucketName(t SuggestionType) string {
	switch t {
	case SuggestionPersonalHistory:
		return "personal"
	case SuggestionTrending:
		return "trending"
	case SuggestionPopularPlace:
		return "popular"
	case SuggestionIndexCompletion:
		return "places"
	default:
		return "other"
	}
}

// bucketize groups suggestions into named buckets, omitting empty ones.
func bucketize(suggestions []Suggestion) map[string][]Suggestion {
	if len(suggestions) == 0 {
		return nil
	}
	buckets := make(map[string][]Suggestion)
	for _, s := range suggestions {
		name := bucketName(s.Type)
		buckets[name] = append(buckets[name], s)
	}
	return buckets
}

// logQuery increments the day's trending counter and merges the query into
// the user's capped history. 단일 키 연산만 사용한다.
func (g *Aggregator) logQuery(ctx context.Context, userID uint, query string) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.CacheTimeout*2)
	defer cancel()

	now := g.now()
	retention := time.Duration(g.cfg.TrendingRetentionDays) * 24 * time.Hour
	g.store.IncrSortedSet(ctx, trendingKey(now), query, 1, retention)

	if userID == 0 {
		return
	}

	historyTTL := time.Duration(g.cfg.HistoryRetentionDays) * 24 * time.Hour
	cutoff := now.Add(-historyTTL)

	var records []HistoryRecord
	for _, raw := range g.store.GetList(ctx, historyKey(userID)) {
		var rec HistoryRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue
		}
		if rec.LastSearched.Before(cutoff) {
			continue
		}
		records = append(records, rec)
	}

	// 동일 질의는 빈도 증가 + 최신화, 아니면 맨 앞에 추가
	updated := false
	for i := range records {
		if records[i].Query == query {
			records[i].Frequency++
			records[i].LastSearched = now
			rec := records[i]
			records = append(records[:i], records[i+1:]...)
			records = append([]HistoryRecord{rec}, records...)
			updated = true
			break
		}
	}
	if !updated {
		records = append([]HistoryRecord{{Query: query, Frequency: 1, LastSearched: now}}, records...)
	}

	if len(records) > g.cfg.HistoryMaxEntries {
		records = records[:g.cfg.HistoryMaxEntries]
	}

	values := make([]string, 0, len(records))
	for _, rec := range records {
		b, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		values = append(values, string(b))
	}
	g.store.SetList(ctx, historyKey(userID), values, int64(g.cfg.HistoryMaxEntries), historyTTL)
}
