package search

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/frontdoorrr/hotly-app-sub001/internal/cache"
	"github.com/frontdoorrr/hotly-app-sub001/internal/config"
	"github.com/frontdoorrr/hotly-app-sub001/internal/models"
)

// Source tags which backend produced a search response.
type Source string

const (
	SourcePrimaryIndex       Source = "primary_index"
	SourceRelationalFallback Source = "relational_fallback"
)

// SortMode selects the result ordering.
type SortMode string

const (
	SortRelevance SortMode = "relevance"
	SortRecent    SortMode = "recent"
	SortDistance  SortMode = "distance"
	SortName      SortMode = "name"
)

// CacheStrategy selects the response cache TTL.
type CacheStrategy string

const (
	CacheConservative CacheStrategy = "conservative"
	CacheBalanced     CacheStrategy = "balanced"
	CacheAggressive   CacheStrategy = "aggressive"
)

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Query is a validated search request.
type Query struct {
	Text          string        `json:"query"`
	UserID        uint          `json:"-"`
	CategoryID    uint          `json:"category_id,omitempty"`
	Tags          []string      `json:"tags,omitempty"`
	Center        *GeoPoint     `json:"geo,omitempty"`
	RadiusKm      float64       `json:"radius_km,omitempty"`
	Limit         int           `json:"limit,omitempty"`
	Offset        int           `json:"offset,omitempty"`
	Sort          SortMode      `json:"sort,omitempty"`
	CacheStrategy CacheStrategy `json:"cache_strategy,omitempty"`
}

// ValidationError is the only error surfaced to API callers.
// 백엔드 장애는 내부에서 degrade되고, 잘못된 요청만 에러가 된다.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid search query: " + e.Reason
}

// Validate normalizes defaults and enforces query invariants.
func (q *Query) Validate(cfg config.SearchConfig) error {
	if utf8.RuneCountInString(q.Text) < cfg.MinQueryLength {
		return &ValidationError{Reason: fmt.Sprintf("query must be at least %d characters", cfg.MinQueryLength)}
	}
	if q.Limit == 0 {
		q.Limit = 20
	}
	if q.Limit < 1 || q.Limit > cfg.MaxLimit {
		return &ValidationError{Reason: fmt.Sprintf("limit must be between 1 and %d", cfg.MaxLimit)}
	}
	if q.Offset < 0 {
		return &ValidationError{Reason: "offset must not be negative"}
	}
	if q.RadiusKm > 0 && q.Center == nil {
		return &ValidationError{Reason: "radius requires a geo center"}
	}
	if q.Center != nil && q.RadiusKm <= 0 {
		q.RadiusKm = 5 // 기본 반경 5km
	}
	switch q.Sort {
	case "":
		q.Sort = SortRelevance
	case SortRelevance, SortRecent, SortName:
	case SortDistance:
		if q.Center == nil {
			return &ValidationError{Reason: "distance sort requires a geo center"}
		}
	default:
		return &ValidationError{Reason: "unknown sort mode: " + string(q.Sort)}
	}
	switch q.CacheStrategy {
	case "":
		q.CacheStrategy = CacheBalanced
	case CacheConservative, CacheBalanced, CacheAggressive:
	default:
		return &ValidationError{Reason: "unknown cache strategy: " + string(q.CacheStrategy)}
	}
	return nil
}

// ResultItem is one ranked search hit.
type ResultItem struct {
	PlaceID     uint     `json:"place_id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Address     string   `json:"address,omitempty"`
	CategoryID  uint     `json:"category_id,omitempty"`
	Lat         *float64 `json:"lat,omitempty"`
	Lng         *float64 `json:"lng,omitempty"`
	Score       float64  `json:"relevance_score"`
	DistanceKm  *float64 `json:"distance_km,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Response is a complete, well-formed search answer. Degraded responses are
// distinguished only by Source, never by an error.
type Response struct {
	Items    []ResultItem `json:"items"`
	Total    int64        `json:"total"`
	TookMs   int64        `json:"took_ms"`
	Source   Source       `json:"source"`
	CacheHit bool         `json:"cache_hit"`
}

// SuggestionType tags which source produced a suggestion.
type SuggestionType string

const (
	SuggestionPersonalHistory SuggestionType = "personal_history"
	SuggestionTrending        SuggestionType = "trending"
	SuggestionPopularPlace    SuggestionType = "popular_place"
	SuggestionIndexCompletion SuggestionType = "index_completion"
	SuggestionBasic           SuggestionType = "basic"
)

// Suggestion is one autocomplete candidate.
type Suggestion struct {
	Text     string                 `json:"text"`
	Type     SuggestionType         `json:"type"`
	Score    float64                `json:"score"`
	Category string                 `json:"category,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// SuggestResponse buckets merged suggestions for client convenience.
type SuggestResponse struct {
	Suggestions []Suggestion            `json:"suggestions"`
	Categories  map[string][]Suggestion `json:"categories,omitempty"`
	Total       int                     `json:"total"`
}

// HistoryRecord is one entry of a user's capped search history.
type HistoryRecord struct {
	Query        string    `json:"query"`
	Frequency    int       `json:"frequency"`
	LastSearched time.Time `json:"last_searched"`
}

// RankedPlace is a relational hit with its full-text rank.
type RankedPlace struct {
	Place models.Place
	Rank  float64
}

// SimilarPlace is a fuzzy hit with its trigram similarity.
type SimilarPlace struct {
	Place      models.Place
	Similarity float64
}

// PlaceNameCount is a popularity aggregate row (place grouped by name match).
type PlaceNameCount struct {
	PlaceID    uint
	Name       string
	Category   string
	VisitCount int
	MatchCount int64
}

// Completion is one prefix-completion candidate from the index backend.
type Completion struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// PlaceRepository is the read-only relational collaborator used by the
// fallback search and popularity aggregation.
type PlaceRepository interface {
	FindByTextMatch(ctx context.Context, userID uint, query string, categoryID uint, limit int) ([]RankedPlace, error)
	FindBySimilarity(ctx context.Context, userID uint, query string, minSimilarity float64, limit int) ([]SimilarPlace, error)
	CountByTextMatch(ctx context.Context, userID uint, query string, categoryID uint) (int64, error)
	CountBySimilarity(ctx context.Context, userID uint, query string, minSimilarity float64) (int64, error)
	AggregateByNameMatch(ctx context.Context, userID uint, prefix string, category string, limit int) ([]PlaceNameCount, error)
	FindByNamePrefix(ctx context.Context, userID uint, prefix string, limit int) ([]models.Place, error)
}

// Searcher is a backend capable of answering a full search query.
type Searcher interface {
	Search(ctx context.Context, q *Query) (*Response, error)
}

// Completer issues prefix-completion queries against the index backend.
type Completer interface {
	Suggest(ctx context.Context, prefix string, categories []string, size int) ([]Completion, error)
}

// Store is the cache surface the search core depends on. *cache.Store
// satisfies it; tests substitute fakes.
type Store interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
	IncrSortedSet(ctx context.Context, setKey, member string, delta float64, ttl time.Duration)
	TopSortedSet(ctx context.Context, setKey string, n int64) []cache.ScoredMember
	GetList(ctx context.Context, listKey string) []string
	SetList(ctx context.Context, listKey string, values []string, maxLen int64, ttl time.Duration)
}
