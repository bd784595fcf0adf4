package search

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/frontdoorrr/hotly-app-sub001/internal/analyzer"
	"github.com/frontdoorrr/hotly-app-sub001/internal/config"
	"github.com/frontdoorrr/hotly-app-sub001/internal/logger"
)

var (
	searchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hotly_search_requests_total",
			Help: "Total number of search requests by serving source",
		},
		[]string{"source"},
	)

	searchCacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hotly_search_cache_hits_total",
			Help: "Total number of search responses served from cache",
		},
	)

	searchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hotly_search_duration_seconds",
			Help:    "Search latency in seconds by serving source",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"source"},
	)
)

// Orchestrator owns the search request lifecycle:
// 캐시 read-through → primary index (circuit breaker) → relational fallback.
// Validation 실패만 에러이고, 백엔드 장애는 전부 내부에서 흡수된다.
type Orchestrator struct {
	primary  Searcher // nil이면 인덱스 없이 fallback 전용으로 동작
	fallback *Fallback
	store    Store
	cfg      config.SearchConfig
	breaker  *gobreaker.CircuitBreaker[*Response]
	log      *zap.SugaredLogger
}

func NewOrchestrator(primary Searcher, fallback *Fallback, store Store, cfg config.SearchConfig) *Orchestrator {
	log := logger.GetLogger("search.orchestrator")

	breaker := gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        "primary-index",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnw("circuit breaker state change", "breaker", name,
				"from", from.String(), "to", to.String())
		},
	})

	return &Orchestrator{
		primary:  primary,
		fallback: fallback,
		store:    store,
		cfg:      cfg,
		breaker:  breaker,
		log:      log,
	}
}

// Search validates, then serves from cache or the primary→fallback cascade.
func (o *Orchestrator) Search(ctx context.Context, q *Query) (*Response, error) {
	if err := q.Validate(o.cfg); err != nil {
		return nil, err
	}

	start := time.Now()
	key := cacheKey(q)

	if raw, hit := o.store.Get(ctx, key); hit {
		var resp Response
		if err := json.Unmarshal([]byte(raw), &resp); err == nil {
			resp.CacheHit = true
			searchCacheHitsTotal.Inc()
			searchRequestsTotal.WithLabelValues(string(resp.Source)).Inc()
			return &resp, nil
		}
		// 캐시 엔트리가 깨져 있으면 miss로 처리
		o.log.Warnw("corrupt cache entry dropped", "key", key)
	}

	resp := o.attempt(ctx, q)

	if body, err := json.Marshal(resp); err == nil {
		o.store.Set(ctx, key, string(body), o.ttlFor(q.CacheStrategy))
	}

	searchRequestsTotal.WithLabelValues(string(resp.Source)).Inc()
	searchDuration.WithLabelValues(string(resp.Source)).Observe(time.Since(start).Seconds())
	return resp, nil
}

// attempt runs ATTEMPT_PRIMARY → (error|timeout) → ATTEMPT_FALLBACK.
// Fallback 자체는 실패하지 않는다.
func (o *Orchestrator) attempt(ctx context.Context, q *Query) *Response {
	if o.primary != nil {
		resp, err := o.breaker.Execute(func() (*Response, error) {
			return o.primary.Search(ctx, q)
		})
		if err == nil {
			return resp
		}
		o.log.Warnw("primary index unavailable, degrading to relational fallback",
			"query", q.Text, "error", err)
	}

	// 호출자 데드라인이 이미 지났으면 더 기다리지 않고 빈 degraded 응답 반환
	if ctx.Err() != nil {
		o.log.Warnw("caller deadline elapsed before fallback, returning degraded empty response",
			"query", q.Text)
		return &Response{Items: []ResultItem{}, Source: SourceRelationalFallback}
	}

	return o.fallback.Search(ctx, q)
}

func (o *Orchestrator) ttlFor(strategy CacheStrategy) time.Duration {
	switch strategy {
	case CacheConservative:
		return o.cfg.TTLConservative
	case CacheAggressive:
		return o.cfg.TTLAggressive
	default:
		return o.cfg.TTLBalanced
	}
}

// cacheKey derives a stable key from the normalized query, scope, filters,
// pagination, and sort. 동일 요청은 항상 동일 키가 된다.
func cacheKey(q *Query) string {
	parts := []string{
		analyzer.NormalizeText(q.Text),
		fmt.Sprintf("u=%d", q.UserID),
		fmt.Sprintf("c=%d", q.CategoryID),
		fmt.Sprintf("l=%d,o=%d", q.Limit, q.Offset),
		"s=" + string(q.Sort),
	}
	if len(q.Tags) > 0 {
		tags := append([]string(nil), q.Tags...)
		sort.Strings(tags)
		parts = append(parts, "t="+strings.Join(tags, ","))
	}
	if q.Center != nil {
		parts = append(parts, fmt.Sprintf("g=%.4f:%.4f:%.1f", q.Center.Lat, q.Center.Lng, q.RadiusKm))
	}

	sum := sha1.Sum([]byte(strings.Join(parts, "|")))
	return "search:result:" + hex.EncodeToString(sum[:])
}
