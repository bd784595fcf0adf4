package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/frontdoorrr/hotly-app-sub001/internal/database"
	"github.com/frontdoorrr/hotly-app-sub001/internal/logger"
	"github.com/frontdoorrr/hotly-app-sub001/internal/models"
	"github.com/frontdoorrr/hotly-app-sub001/internal/search"
)

// PlaceService implements search.PlaceRepository on PostgreSQL.
// FTS는 simple config의 ts_rank, fuzzy는 pg_trgm similarity를 사용한다.
type PlaceService struct {
	db  *database.DB
	log *zap.SugaredLogger
}

func NewPlaceService(db *database.DB) *PlaceService {
	return &PlaceService{db: db, log: logger.GetLogger("place")}
}

// placeRow is the flat scan target for the raw search queries.
type placeRow struct {
	ID          uint
	UserID      *uint
	CategoryID  *uint
	Name        string
	Description *string
	Address     *string
	Lat         *float64
	Lng         *float64
	Popularity  int
	VisitCount  int
	CreatedAt   time.Time
	Rank        float64
	Similarity  float64
}

func (r placeRow) toPlace() models.Place {
	return models.Place{
		ID:          r.ID,
		UserID:      r.UserID,
		CategoryID:  r.CategoryID,
		Name:        r.Name,
		Description: r.Description,
		Address:     r.Address,
		Lat:         r.Lat,
		Lng:         r.Lng,
		Popularity:  r.Popularity,
		VisitCount:  r.VisitCount,
		CreatedAt:   r.CreatedAt,
	}
}

const searchableVector = `to_tsvector('simple', coalesce(name,'') || ' ' || coalesce(description,'') || ' ' || coalesce(address,''))`

// FindByTextMatch runs ranked full-text search over name/description/address.
// 동점은 created_at DESC, id ASC로 결정적으로 정렬한다.
func (s *PlaceService) FindByTextMatch(ctx context.Context, userID uint, query string, categoryID uint, limit int) ([]search.RankedPlace, error) {
	var rows []placeRow
	err := s.db.WithContext(ctx).Raw(`
		SELECT id, user_id, category_id, name, description, address, lat, lng,
		       popularity, visit_count, created_at,
		       ts_rank(`+searchableVector+`, plainto_tsquery('simple', ?)) AS rank
		FROM place
		WHERE deleted_at IS NULL
		  AND (status IS NULL OR status = ?)
		  AND (? = 0 OR user_id = ?)
		  AND (? = 0 OR category_id = ?)
		  AND `+searchableVector+` @@ plainto_tsquery('simple', ?)
		ORDER BY rank DESC, created_at DESC, id ASC
		LIMIT ?`,
		query, models.PlaceStatusActive, userID, userID, categoryID, categoryID, query, limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	results := make([]search.RankedPlace, 0, len(rows))
	for _, r := range rows {
		results = append(results, search.RankedPlace{Place: r.toPlace(), Rank: r.Rank})
	}
	return results, nil
}

// FindBySimilarity runs pg_trgm fuzzy matching, keeping rows above minSimilarity.
func (s *PlaceService) FindBySimilarity(ctx context.Context, userID uint, query string, minSimilarity float64, limit int) ([]search.SimilarPlace, error) {
	var rows []placeRow
	err := s.db.WithContext(ctx).Raw(`
		SELECT id, user_id, category_id, name, description, address, lat, lng,
		       popularity, visit_count, created_at,
		       GREATEST(similarity(name, ?),
		                similarity(coalesce(description, ''), ?),
		                similarity(coalesce(address, ''), ?)) AS similarity
		FROM place
		WHERE deleted_at IS NULL
		  AND (status IS NULL OR status = ?)
		  AND (? = 0 OR user_id = ?)
		  AND GREATEST(similarity(name, ?),
		               similarity(coalesce(description, ''), ?),
		               similarity(coalesce(address, ''), ?)) >= ?
		ORDER BY similarity DESC, created_at DESC, id ASC
		LIMIT ?`,
		query, query, query, models.PlaceStatusActive, userID, userID,
		query, query, query, minSimilarity, limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	results := make([]search.SimilarPlace, 0, len(rows))
	for _, r := range rows {
		results = append(results, search.SimilarPlace{Place: r.toPlace(), Similarity: r.Similarity})
	}
	return results, nil
}

// CountByTextMatch returns the total full-text match count for pagination.
func (s *PlaceService) CountByTextMatch(ctx context.Context, userID uint, query string, categoryID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Raw(`
		SELECT count(*)
		FROM place
		WHERE deleted_at IS NULL
		  AND (status IS NULL OR status = ?)
		  AND (? = 0 OR user_id = ?)
		  AND (? = 0 OR category_id = ?)
		  AND `+searchableVector+` @@ plainto_tsquery('simple', ?)`,
		models.PlaceStatusActive, userID, userID, categoryID, categoryID, query,
	).Scan(&n).Error
	return n, err
}

// CountBySimilarity returns the total fuzzy match count above minSimilarity.
func (s *PlaceService) CountBySimilarity(ctx context.Context, userID uint, query string, minSimilarity float64) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Raw(`
		SELECT count(*)
		FROM place
		WHERE deleted_at IS NULL
		  AND (status IS NULL OR status = ?)
		  AND (? = 0 OR user_id = ?)
		  AND GREATEST(similarity(name, ?),
		               similarity(coalesce(description, ''), ?),
		               similarity(coalesce(address, ''), ?)) >= ?`,
		models.PlaceStatusActive, userID, userID,
		query, query, query, minSimilarity,
	).Scan(&n).Error
	return n, err
}

// aggregateRow is the scan target for AggregateByNameMatch.
type aggregateRow struct {
	PlaceID    uint
	Name       string
	Category   string
	VisitCount int
	MatchCount int64
}

// AggregateByNameMatch groups prefix-matching places by name for the
// popular-places suggestion source.
func (s *PlaceService) AggregateByNameMatch(ctx context.Context, userID uint, prefix string, category string, limit int) ([]search.PlaceNameCount, error) {
	var rows []aggregateRow
	err := s.db.WithContext(ctx).Raw(`
		SELECT min(p.id) AS place_id, p.name,
		       coalesce(c.name, '') AS category,
		       max(p.visit_count) AS visit_count,
		       count(*) AS match_count
		FROM place p
		LEFT JOIN categories c ON c.id = p.category_id
		WHERE p.deleted_at IS NULL
		  AND (p.status IS NULL OR p.status = ?)
		  AND (? = 0 OR p.user_id = ?)
		  AND (? = '' OR c.name = ?)
		  AND p.name ILIKE ? || '%'
		GROUP BY p.name, c.name
		ORDER BY count(*) DESC, max(p.visit_count) DESC, p.name ASC
		LIMIT ?`,
		models.PlaceStatusActive, userID, userID, category, category, prefix, limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	results := make([]search.PlaceNameCount, 0, len(rows))
	for _, r := range rows {
		results = append(results, search.PlaceNameCount{
			PlaceID:    r.PlaceID,
			Name:       r.Name,
			Category:   r.Category,
			VisitCount: r.VisitCount,
			MatchCount: r.MatchCount,
		})
	}
	return results, nil
}

// FindByNamePrefix is the minimal direct-match path used when every
// suggestion source fails.
func (s *PlaceService) FindByNamePrefix(ctx context.Context, userID uint, prefix string, limit int) ([]models.Place, error) {
	var places []models.Place
	q := s.db.WithContext(ctx).Model(&models.Place{}).
		Where("name ILIKE ?", prefix+"%")
	if userID > 0 {
		q = q.Where("user_id = ?", userID)
	}
	err := q.Order("popularity DESC, visit_count DESC, id ASC").
		Limit(limit).
		Find(&places).Error
	if err != nil {
		return nil, err
	}
	return places, nil
}

// FindByIDs loads places for index upserts.
func (s *PlaceService) FindByIDs(ctx context.Context, ids []uint) ([]models.Place, error) {
	var places []models.Place
	err := s.db.WithContext(ctx).Preload("Category").Preload("Tags").
		Where("id IN ?", ids).
		Find(&places).Error
	if err != nil {
		return nil, err
	}
	return places, nil
}
