package search

import (
	"testing"
	"time"

	"github.com/frontdoorrr/hotly-app-sub001/internal/analyzer"
	"github.com/frontdoorrr/hotly-app-sub001/internal/models"
)

func newTestIndexClient() *IndexClient {
	return &IndexClient{index: "places-test", analyzer: analyzer.New()}
}

func TestBuildSearchBodyMultiMatch(t *testing.T) {
	c := newTestIndexClient()
	q := &Query{Text: "홍대 카페", Limit: 20}

	body := c.buildSearchBody(q)

	fs := body["query"].(map[string]interface{})["function_score"].(map[string]interface{})
	boolQ := fs["query"].(map[string]interface{})["bool"].(map[string]interface{})
	must := boolQ["must"].([]map[string]interface{})
	if len(must) != 1 {
		t.Fatalf("expected single must clause, got %d", len(must))
	}

	mm := must[0]["multi_match"].(map[string]interface{})
	if mm["query"] != "홍대 카페" {
		t.Errorf("query = %v", mm["query"])
	}
	fields := mm["fields"].([]string)
	want := []string{"name^3", "address^2", "keywords"}
	for i, f := range want {
		if fields[i] != f {
			t.Errorf("fields[%d] = %s, want %s", i, fields[i], f)
		}
	}
	if mm["fuzziness"] != "AUTO" {
		t.Errorf("fuzziness = %v, want AUTO", mm["fuzziness"])
	}
}

func TestBuildSearchBodyFilters(t *testing.T) {
	c := newTestIndexClient()
	q := &Query{
		Text:       "카페",
		UserID:     7,
		CategoryID: 3,
		Tags:       []string{"데이트", "조용한"},
		Center:     &GeoPoint{Lat: 37.557, Lng: 126.924},
		RadiusKm:   5,
		Limit:      20,
	}

	body := c.buildSearchBody(q)
	fs := body["query"].(map[string]interface{})["function_score"].(map[string]interface{})
	boolQ := fs["query"].(map[string]interface{})["bool"].(map[string]interface{})
	filter := boolQ["filter"].([]map[string]interface{})

	// status + user + category + tags + geo
	if len(filter) != 5 {
		t.Fatalf("expected 5 filter clauses, got %d", len(filter))
	}

	var geo map[string]interface{}
	for _, f := range filter {
		if g, ok := f["geo_distance"]; ok {
			geo = g.(map[string]interface{})
		}
	}
	if geo == nil {
		t.Fatal("geo_distance filter missing")
	}
	if geo["distance"] != "5.00km" {
		t.Errorf("distance = %v, want 5.00km", geo["distance"])
	}
	loc := geo["location"].(map[string]interface{})
	if loc["lat"] != 37.557 || loc["lon"] != 126.924 {
		t.Errorf("location = %v", loc)
	}
}

func TestBuildSearchBodyPopularityBoost(t *testing.T) {
	c := newTestIndexClient()
	body := c.buildSearchBody(&Query{Text: "카페", Limit: 20})

	fs := body["query"].(map[string]interface{})["function_score"].(map[string]interface{})
	funcs := fs["functions"].([]map[string]interface{})
	if len(funcs) != 2 {
		t.Fatalf("expected popularity and visit_count boosts, got %d", len(funcs))
	}
	for _, fn := range funcs {
		fvf := fn["field_value_factor"].(map[string]interface{})
		// 0점 방지: log(2+x)는 인기 0인 문서의 점수를 지우지 않는다
		if fvf["modifier"] != "ln2p" {
			t.Errorf("modifier = %v, want ln2p", fvf["modifier"])
		}
		if fvf["missing"] != 0 {
			t.Errorf("missing = %v, want 0", fvf["missing"])
		}
	}
	if fs["boost_mode"] != "multiply" {
		t.Errorf("boost_mode = %v", fs["boost_mode"])
	}
}

func TestBuildSearchBodySortModes(t *testing.T) {
	c := newTestIndexClient()

	recent := c.buildSearchBody(&Query{Text: "카페", Limit: 20, Sort: SortRecent})
	if _, ok := recent["sort"]; !ok {
		t.Error("recent sort clause missing")
	}

	relevance := c.buildSearchBody(&Query{Text: "카페", Limit: 20, Sort: SortRelevance})
	if _, ok := relevance["sort"]; ok {
		t.Error("relevance must use the default _score ordering")
	}

	dist := c.buildSearchBody(&Query{
		Text:   "카페",
		Limit:  20,
		Sort:   SortDistance,
		Center: &GeoPoint{Lat: 37.5, Lng: 127.0},
	})
	clauses := dist["sort"].([]interface{})
	if _, ok := clauses[0].(map[string]interface{})["_geo_distance"]; !ok {
		t.Error("distance sort must lead with _geo_distance")
	}
}

func TestBuildSearchBodyPagination(t *testing.T) {
	c := newTestIndexClient()
	body := c.buildSearchBody(&Query{Text: "카페", Limit: 15, Offset: 30})

	if body["from"] != 30 || body["size"] != 15 {
		t.Errorf("pagination from=%v size=%v", body["from"], body["size"])
	}
}

func TestBuildDoc(t *testing.T) {
	c := newTestIndexClient()

	desc := "핸드드립 전문"
	addr := "서울 마포구 와우산로"
	lat, lng := 37.551, 126.923
	catID := uint(3)
	place := &models.Place{
		ID:          11,
		Name:        "카페 드림",
		Description: &desc,
		Address:     &addr,
		CategoryID:  &catID,
		Category:    &models.Category{ID: catID, Name: "카페"},
		Lat:         &lat,
		Lng:         &lng,
		Popularity:  40,
		VisitCount:  12,
		Tags:        []models.Tag{{Name: "조용한"}},
		CreatedAt:   time.Now(),
	}

	doc := c.buildDoc(place)

	if doc.ID != 11 || doc.Name != "카페 드림" {
		t.Errorf("identity fields wrong: %+v", doc)
	}
	if doc.Location == nil || doc.Location.Lat != lat || doc.Location.Lon != lng {
		t.Errorf("location not mapped: %+v", doc.Location)
	}
	if len(doc.Keywords) == 0 {
		t.Error("analyzer keywords missing")
	}
	if doc.Suggest == nil {
		t.Fatal("suggest field missing")
	}
	if doc.Suggest.Weight != 52 {
		t.Errorf("suggest weight = %d, want popularity+visit_count", doc.Suggest.Weight)
	}
	if got := doc.Suggest.Contexts["category"]; len(got) != 1 || got[0] != "카페" {
		t.Errorf("category context = %v", got)
	}
	if doc.Status != models.PlaceStatusActive {
		t.Errorf("status = %s", doc.Status)
	}
}

func TestBuildDocMinimalPlace(t *testing.T) {
	c := newTestIndexClient()
	place := &models.Place{ID: 1, Name: "이름뿐인 가게", CreatedAt: time.Now()}

	doc := c.buildDoc(place)

	if doc.Location != nil {
		t.Error("location must be omitted without coordinates")
	}
	if doc.Suggest == nil || len(doc.Suggest.Contexts) != 0 {
		t.Errorf("uncategorized place must have no suggest context: %+v", doc.Suggest)
	}
	if doc.Suggest.Input[0] != "이름뿐인 가게" {
		t.Errorf("suggest input = %v", doc.Suggest.Input)
	}
}
