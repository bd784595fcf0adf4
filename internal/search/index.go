package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	elasticsearch "github.com/elastic/go-elasticsearch/v9"
	"go.uber.org/zap"

	"github.com/frontdoorrr/hotly-app-sub001/internal/analyzer"
	"github.com/frontdoorrr/hotly-app-sub001/internal/logger"
	"github.com/frontdoorrr/hotly-app-sub001/internal/models"
)

// IndexClient issues structured queries against the Elasticsearch place index.
type IndexClient struct {
	es       *elasticsearch.Client
	index    string
	timeout  time.Duration
	analyzer *analyzer.Analyzer
	log      *zap.SugaredLogger
}

// NewIndexClient connects to Elasticsearch. 연결 실패는 에러로 반환하고,
// 호출자(main)는 인덱스 없이 fallback 전용으로 기동할 수 있다.
func NewIndexClient(url, index string, timeout time.Duration, an *analyzer.Analyzer) (*IndexClient, error) {
	if url == "" {
		return nil, fmt.Errorf("elasticsearch URL not configured")
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{url},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	return &IndexClient{
		es:       es,
		index:    index,
		timeout:  timeout,
		analyzer: an,
		log:      logger.GetLogger("search.index"),
	}, nil
}

// esPlaceDoc is the indexed document shape.
type esPlaceDoc struct {
	ID          uint        `json:"id"`
	UserID      uint        `json:"user_id,omitempty"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Address     string      `json:"address,omitempty"`
	CategoryID  uint        `json:"category_id,omitempty"`
	Category    string      `json:"category,omitempty"`
	Tags        []string    `json:"tags,omitempty"`
	Keywords    []string    `json:"keywords,omitempty"`
	Location    *esGeoPoint `json:"location,omitempty"`
	Popularity  int         `json:"popularity"`
	VisitCount  int         `json:"visit_count"`
	Status      string      `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	Suggest     *esSuggest  `json:"suggest,omitempty"`
}

type esGeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type esSuggest struct {
	Input    []string            `json:"input"`
	Weight   int                 `json:"weight,omitempty"`
	Contexts map[string][]string `json:"contexts,omitempty"`
}

type esSearchResponse struct {
	Took int64 `json:"took"`
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID     string          `json:"_id"`
			Score  *float64        `json:"_score"`
			Source esPlaceDoc      `json:"_source"`
			Sort   []json.Number   `json:"sort"`
		} `json:"hits"`
	} `json:"hits"`
}

type esSuggestResponse struct {
	Suggest map[string][]struct {
		Options []struct {
			Text  string  `json:"text"`
			Score float64 `json:"_score"`
		} `json:"options"`
	} `json:"suggest"`
}

// buildSearchBody assembles the structured query: weighted multi-field match
// with typo tolerance, hard filters, optional geo filter, and a log-scaled
// popularity boost.
func (c *IndexClient) buildSearchBody(q *Query) map[string]interface{} {
	must := []map[string]interface{}{
		{
			"multi_match": map[string]interface{}{
				"query":     q.Text,
				"fields":    []string{"name^3", "address^2", "keywords"},
				"fuzziness": "AUTO",
			},
		},
	}

	filter := []map[string]interface{}{
		{"term": map[string]interface{}{"status": models.PlaceStatusActive}},
	}
	if q.UserID > 0 {
		filter = append(filter, map[string]interface{}{
			"term": map[string]interface{}{"user_id": q.UserID},
		})
	}
	if q.CategoryID > 0 {
		filter = append(filter, map[string]interface{}{
			"term": map[string]interface{}{"category_id": q.CategoryID},
		})
	}
	if len(q.Tags) > 0 {
		filter = append(filter, map[string]interface{}{
			"terms": map[string]interface{}{"tags": q.Tags},
		})
	}
	if q.Center != nil && q.RadiusKm > 0 {
		filter = append(filter, map[string]interface{}{
			"geo_distance": map[string]interface{}{
				"distance": fmt.Sprintf("%.2fkm", q.RadiusKm),
				"location": map[string]interface{}{
					"lat": q.Center.Lat,
					"lon": q.Center.Lng,
				},
			},
		})
	}

	// ln2p = log(2 + value): 인기 지표의 과도한 지배를 막는 로그 스케일 부스팅
	body := map[string]interface{}{
		"from": q.Offset,
		"size": q.Limit,
		"query": map[string]interface{}{
			"function_score": map[string]interface{}{
				"query": map[string]interface{}{
					"bool": map[string]interface{}{
						"must":   must,
						"filter": filter,
					},
				},
				"functions": []map[string]interface{}{
					{
						"field_value_factor": map[string]interface{}{
							"field":    "popularity",
							"modifier": "ln2p",
							"factor":   1.0,
							"missing":  0,
						},
					},
					{
						"field_value_factor": map[string]interface{}{
							"field":    "visit_count",
							"modifier": "ln2p",
							"factor":   0.5,
							"missing":  0,
						},
					},
				},
				"score_mode": "multiply",
				"boost_mode": "multiply",
			},
		},
	}

	switch q.Sort {
	case SortRecent:
		body["sort"] = []interface{}{
			map[string]interface{}{"created_at": "desc"},
			"_score",
		}
	case SortName:
		body["sort"] = []interface{}{
			map[string]interface{}{"name.keyword": "asc"},
		}
	case SortDistance:
		body["sort"] = []interface{}{
			map[string]interface{}{
				"_geo_distance": map[string]interface{}{
					"location": map[string]interface{}{
						"lat": q.Center.Lat,
						"lon": q.Center.Lng,
					},
					"order": "asc",
					"unit":  "km",
				},
			},
			"_score",
		}
	default:
		// relevance: _score 기본 정렬
	}

	return body
}

// Search executes the structured query and maps hits to ResultItems.
func (c *IndexClient) Search(ctx context.Context, q *Query) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(c.buildSearchBody(q)); err != nil {
		return nil, fmt.Errorf("failed to encode search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(&buf),
		c.es.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, fmt.Errorf("index search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("index search returned %s", res.Status())
	}

	var parsed esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	items := make([]ResultItem, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		doc := hit.Source
		item := ResultItem{
			PlaceID:     doc.ID,
			Name:        doc.Name,
			Description: doc.Description,
			Address:     doc.Address,
			CategoryID:  doc.CategoryID,
			CreatedAt:   doc.CreatedAt,
		}
		if hit.Score != nil {
			item.Score = *hit.Score
		}
		if doc.Location != nil {
			lat, lng := doc.Location.Lat, doc.Location.Lon
			item.Lat = &lat
			item.Lng = &lng
		}
		// distance 정렬이면 sort 값이 km 거리
		if q.Sort == SortDistance && len(hit.Sort) > 0 {
			if d, err := hit.Sort[0].Float64(); err == nil {
				item.DistanceKm = &d
			}
		} else if q.Center != nil && item.Lat != nil && item.Lng != nil {
			d := haversineKm(q.Center.Lat, q.Center.Lng, *item.Lat, *item.Lng)
			item.DistanceKm = &d
		}
		items = append(items, item)
	}

	return &Response{
		Items:  items,
		Total:  parsed.Hits.Total.Value,
		TookMs: parsed.Took,
		Source: SourcePrimaryIndex,
	}, nil
}

// Suggest issues a completion-suggester prefix query, optionally filtered by
// category contexts.
func (c *IndexClient) Suggest(ctx context.Context, prefix string, categories []string, size int) ([]Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	completion := map[string]interface{}{
		"field":           "suggest",
		"size":            size,
		"skip_duplicates": true,
	}
	if len(categories) > 0 {
		completion["contexts"] = map[string]interface{}{
			"category": categories,
		}
	}

	body := map[string]interface{}{
		"suggest": map[string]interface{}{
			"place-suggest": map[string]interface{}{
				"prefix":     prefix,
				"completion": completion,
			},
		},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("failed to encode suggest body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("index suggest failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("index suggest returned %s", res.Status())
	}

	var parsed esSuggestResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode suggest response: %w", err)
	}

	var completions []Completion
	for _, group := range parsed.Suggest["place-suggest"] {
		for _, opt := range group.Options {
			completions = append(completions, Completion{Text: opt.Text, Score: opt.Score})
		}
	}
	return completions, nil
}

// IndexPlace upserts one place document.
func (c *IndexClient) IndexPlace(ctx context.Context, place *models.Place) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	doc := c.buildDoc(place)

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(doc); err != nil {
		return fmt.Errorf("failed to encode place document: %w", err)
	}

	res, err := c.es.Index(
		c.index,
		&buf,
		c.es.Index.WithContext(ctx),
		c.es.Index.WithDocumentID(strconv.FormatUint(uint64(place.ID), 10)),
	)
	if err != nil {
		return fmt.Errorf("failed to index place %d: %w", place.ID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index place %d returned %s", place.ID, res.Status())
	}
	return nil
}

// DeletePlace removes one place document.
func (c *IndexClient) DeletePlace(ctx context.Context, placeID uint) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.es.Delete(
		c.index,
		strconv.FormatUint(uint64(placeID), 10),
		c.es.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to delete place %d: %w", placeID, err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("delete place %d returned %s", placeID, res.Status())
	}
	return nil
}

// buildDoc maps a Place row to its index document, including analyzer keywords
// and the completion-suggest field.
func (c *IndexClient) buildDoc(place *models.Place) esPlaceDoc {
	doc := esPlaceDoc{
		ID:         place.ID,
		Name:       place.Name,
		Popularity: place.Popularity,
		VisitCount: place.VisitCount,
		Status:     models.PlaceStatusActive,
		CreatedAt:  place.CreatedAt,
	}
	if place.UserID != nil {
		doc.UserID = *place.UserID
	}
	if place.Status != nil {
		doc.Status = *place.Status
	}
	if place.Description != nil {
		doc.Description = *place.Description
	}
	if place.Address != nil {
		doc.Address = *place.Address
	}
	if place.CategoryID != nil {
		doc.CategoryID = *place.CategoryID
	}
	if place.Category != nil {
		doc.Category = place.Category.Name
	}
	for _, tag := range place.Tags {
		doc.Tags = append(doc.Tags, tag.Name)
	}
	if place.Lat != nil && place.Lng != nil {
		doc.Location = &esGeoPoint{Lat: *place.Lat, Lon: *place.Lng}
	}

	// 검색용 키워드: 이름+설명+주소를 분석기로 전개
	text := place.Name
	if place.Description != nil {
		text += " " + *place.Description
	}
	if place.Address != nil {
		text += " " + *place.Address
	}
	doc.Keywords = c.analyzer.Analyze(text)

	suggest := &esSuggest{
		Input:  []string{place.Name},
		Weight: place.Popularity + place.VisitCount,
	}
	if doc.Category != "" {
		suggest.Contexts = map[string][]string{"category": {doc.Category}}
	}
	doc.Suggest = suggest

	return doc
}

// indexMapping is the place index schema: keyword 서브필드, geo_point,
// category context를 가진 completion 필드
const indexMapping = `{
  "mappings": {
    "properties": {
      "id":          {"type": "keyword"},
      "user_id":     {"type": "keyword"},
      "name":        {"type": "text", "fields": {"keyword": {"type": "keyword"}}},
      "description": {"type": "text"},
      "address":     {"type": "text"},
      "category_id": {"type": "keyword"},
      "category":    {"type": "keyword"},
      "tags":        {"type": "keyword"},
      "keywords":    {"type": "text"},
      "location":    {"type": "geo_point"},
      "popularity":  {"type": "integer"},
      "visit_count": {"type": "integer"},
      "status":      {"type": "keyword"},
      "created_at":  {"type": "date"},
      "suggest": {
        "type": "completion",
        "contexts": [{"name": "category", "type": "category"}]
      }
    }
  }
}`

// EnsureIndex creates the place index if it does not exist yet.
func (c *IndexClient) EnsureIndex(ctx context.Context) error {
	res, err := c.es.Indices.Exists(
		[]string{c.index},
		c.es.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to check index: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == 200 {
		return nil
	}

	createRes, err := c.es.Indices.Create(
		c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(bytes.NewReader([]byte(indexMapping))),
	)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer createRes.Body.Close()

	if createRes.IsError() {
		return fmt.Errorf("create index returned %s", createRes.Status())
	}
	c.log.Infow("created place index", "index", c.index)
	return nil
}
