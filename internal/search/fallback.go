package search

import (
	"context"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/frontdoorrr/hotly-app-sub001/internal/logger"
	"github.com/frontdoorrr/hotly-app-sub001/internal/models"
)

// fallbackStage tracks the two-stage fallback search state machine:
// EXACT → (empty) → FUZZY → (empty) → NO_RESULTS
type fallbackStage string

const (
	stageExact     fallbackStage = "EXACT"
	stageFuzzy     fallbackStage = "FUZZY"
	stageNoResults fallbackStage = "NO_RESULTS"
)

// Fallback answers search queries directly from the relational store when the
// primary index is unavailable. It never fails: 저장소 에러까지 포함해 모든
// 실패는 빈 결과로 degrade된다.
type Fallback struct {
	repo            PlaceRepository
	similarityFloor float64
	log             *zap.SugaredLogger
}

func NewFallback(repo PlaceRepository, similarityFloor float64) *Fallback {
	return &Fallback{
		repo:            repo,
		similarityFloor: similarityFloor,
		log:             logger.GetLogger("search.fallback"),
	}
}

// Search runs exact full-text search first, then fuzzy similarity search if
// nothing matched. The response is always well-formed.
func (f *Fallback) Search(ctx context.Context, q *Query) *Response {
	start := time.Now()
	resp := &Response{
		Items:  []ResultItem{},
		Source: SourceRelationalFallback,
	}

	fetch := q.Offset + q.Limit
	stage := stageExact

	ranked, err := f.repo.FindByTextMatch(ctx, q.UserID, q.Text, q.CategoryID, fetch)
	if err != nil {
		f.log.Warnw("full-text search failed", "query", q.Text, "error", err)
		ranked = nil
	}

	items := make([]ResultItem, 0, len(ranked))
	for _, r := range ranked {
		items = append(items, toResultItem(r.Place, r.Rank))
	}

	if len(items) == 0 {
		stage = stageFuzzy
		similar, err := f.repo.FindBySimilarity(ctx, q.UserID, q.Text, f.similarityFloor, fetch)
		if err != nil {
			f.log.Warnw("similarity search failed", "query", q.Text, "error", err)
			similar = nil
		}
		for _, r := range similar {
			items = append(items, toResultItem(r.Place, r.Similarity))
		}
	}

	if len(items) == 0 {
		stage = stageNoResults
	}

	f.log.Debugw("fallback search finished",
		"query", q.Text, "stage", string(stage), "hits", len(items))

	if q.Center != nil {
		attachDistances(items, q.Center)
	}
	sortItems(items, q.Sort)

	resp.Total = f.totalFor(ctx, q, stage, len(items), fetch)
	if q.Offset < len(items) {
		end := q.Offset + q.Limit
		if end > len(items) {
			end = len(items)
		}
		resp.Items = items[q.Offset:end]
	}
	resp.TookMs = time.Since(start).Milliseconds()
	return resp
}

// totalFor returns the true match count. 가져온 윈도가 다 차지 않았으면 그
// 길이가 곧 전체 건수라 count 쿼리를 생략한다. Count 실패는 윈도 길이로 degrade.
func (f *Fallback) totalFor(ctx context.Context, q *Query, stage fallbackStage, hits, fetch int) int64 {
	if hits < fetch {
		return int64(hits)
	}

	var total int64
	var err error
	switch stage {
	case stageExact:
		total, err = f.repo.CountByTextMatch(ctx, q.UserID, q.Text, q.CategoryID)
	case stageFuzzy:
		total, err = f.repo.CountBySimilarity(ctx, q.UserID, q.Text, f.similarityFloor)
	default:
		return 0
	}
	if err != nil {
		f.log.Warnw("match count failed", "query", q.Text, "stage", string(stage), "error", err)
		return int64(hits)
	}
	return total
}

func toResultItem(p models.Place, score float64) ResultItem {
	item := ResultItem{
		PlaceID:   p.ID,
		Name:      p.Name,
		Score:     score,
		CreatedAt: p.CreatedAt,
	}
	if p.Description != nil {
		item.Description = *p.Description
	}
	if p.Address != nil {
		item.Address = *p.Address
	}
	if p.CategoryID != nil {
		item.CategoryID = *p.CategoryID
	}
	item.Lat = p.Lat
	item.Lng = p.Lng
	return item
}

// attachDistances fills DistanceKm for items that carry coordinates.
func attachDistances(items []ResultItem, center *GeoPoint) {
	for i := range items {
		if items[i].Lat == nil || items[i].Lng == nil {
			continue
		}
		d := haversineKm(center.Lat, center.Lng, *items[i].Lat, *items[i].Lng)
		items[i].DistanceKm = &d
	}
}

// sortItems re-sorts by the requested mode. Relevance ordering is already the
// repository's ordering; 나머지 모드는 여기서 재정렬한다.
func sortItems(items []ResultItem, mode SortMode) {
	switch mode {
	case SortDistance:
		sort.SliceStable(items, func(i, j int) bool {
			di, dj := items[i].DistanceKm, items[j].DistanceKm
			// 좌표 없는 항목은 뒤로
			if di == nil {
				return false
			}
			if dj == nil {
				return true
			}
			if *di != *dj {
				return *di < *dj
			}
			return items[i].Score > items[j].Score
		})
	case SortRecent:
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		})
	case SortName:
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].Name < items[j].Name
		})
	default:
		// relevance: 저장소 정렬 유지 (rank DESC, created_at DESC)
	}
}

// haversineKm computes the great-circle distance between two coordinates.
func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadiusKm = 6371
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	a := math.Pow(math.Sin(dLat/2), 2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Pow(math.Sin(dLng/2), 2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}
