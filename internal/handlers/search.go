package handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/frontdoorrr/hotly-app-sub001/internal/config"
	"github.com/frontdoorrr/hotly-app-sub001/internal/search"
)

type SearchHandler struct {
	orchestrator *search.Orchestrator
	aggregator   *search.Aggregator
	cfg          *config.Config
}

func NewSearchHandler(orchestrator *search.Orchestrator, aggregator *search.Aggregator, cfg *config.Config) *SearchHandler {
	return &SearchHandler{
		orchestrator: orchestrator,
		aggregator:   aggregator,
		cfg:          cfg,
	}
}

func SetupSearchRoutes(router fiber.Router, orchestrator *search.Orchestrator, aggregator *search.Aggregator, cfg *config.Config) {
	h := NewSearchHandler(orchestrator, aggregator, cfg)

	router.Post("/search", h.Search)
	router.Get("/suggest", h.Suggest)
}

// Search godoc
// @Summary Search places
// @Description 구조화 질의 검색. 인덱스 장애 시 관계형 fallback으로 자동 전환된다.
// @Tags search
// @Accept json
// @Produce json
// @Param request body search.Query true "Search query"
// @Success 200 {object} search.Response
// @Failure 400 {object} ErrorResponse
// @Router /search [post]
func (h *SearchHandler) Search(c *fiber.Ctx) error {
	var q search.Query
	if err := c.BodyParser(&q); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error: "Invalid request body",
		})
	}
	q.UserID = callerID(c)

	resp, err := h.orchestrator.Search(c.Context(), &q)
	if err != nil {
		var verr *search.ValidationError
		if errors.As(err, &verr) {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Error:   "Invalid search query",
				Details: verr.Reason,
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error: "Search failed",
		})
	}

	return c.JSON(resp)
}

// Suggest godoc
// @Summary Autocomplete suggestions
// @Description 개인 히스토리·트렌딩·인기 장소·인덱스 자동완성을 병합해 반환
// @Tags search
// @Accept json
// @Produce json
// @Param q query string true "Query prefix"
// @Param limit query int false "Max suggestions" default(10)
// @Param categories query string false "Comma-separated category names"
// @Success 200 {object} search.SuggestResponse
// @Failure 400 {object} ErrorResponse
// @Router /suggest [get]
func (h *SearchHandler) Suggest(c *fiber.Ctx) error {
	query := strings.TrimSpace(c.Query("q"))
	if len([]rune(query)) < h.cfg.Search.MinQueryLength {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "Invalid suggest query",
			Details: "query must be at least " + strconv.Itoa(h.cfg.Search.MinQueryLength) + " characters",
		})
	}

	limit := c.QueryInt("limit", 10)
	if limit < 1 || limit > h.cfg.Search.MaxLimit {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "Invalid suggest query",
			Details: "limit must be between 1 and " + strconv.Itoa(h.cfg.Search.MaxLimit),
		})
	}

	var categories []string
	if raw := c.Query("categories"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				categories = append(categories, name)
			}
		}
	}

	resp := h.aggregator.Suggest(c.Context(), callerID(c), query, categories, limit)
	return c.JSON(resp)
}

// callerID reads the optional user scope. 인증은 게이트웨이 몫이라
// 신뢰된 헤더만 읽는다.
func callerID(c *fiber.Ctx) uint {
	raw := c.Get("X-User-ID")
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0
	}
	return uint(id)
}
