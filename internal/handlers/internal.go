package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/frontdoorrr/hotly-app-sub001/internal/config"
	"github.com/frontdoorrr/hotly-app-sub001/internal/database"
	"github.com/frontdoorrr/hotly-app-sub001/internal/search"
	"github.com/frontdoorrr/hotly-app-sub001/internal/services"
)

type InternalHandler struct {
	cfg    *config.Config
	places *services.PlaceService
	index  *search.IndexClient // nil이면 reindex는 503
}

func NewInternalHandler(db *database.DB, cfg *config.Config, index *search.IndexClient) *InternalHandler {
	return &InternalHandler{
		cfg:    cfg,
		places: services.NewPlaceService(db),
		index:  index,
	}
}

func SetupInternalRoutes(router fiber.Router, db *database.DB, cfg *config.Config, index *search.IndexClient) {
	h := NewInternalHandler(db, cfg, index)

	// 내부 API (배치/수집기용) - API Key 인증 필요
	router.Post("/reindex-places", h.ReindexPlaces)
}

// ReindexPlacesRequest 재색인 요청
type ReindexPlacesRequest struct {
	PlaceIDs []uint `json:"place_ids"`
}

// ReindexPlacesResponse 재색인 응답
type ReindexPlacesResponse struct {
	IndexedCount int      `json:"indexed_count"`
	Errors       []string `json:"errors,omitempty"`
}

// ReindexPlaces godoc
// @Summary Reindex places into the search index
// @Description 새로 저장되거나 수정된 장소들을 검색 인덱스에 upsert
// @Tags internal
// @Accept json
// @Produce json
// @Param X-API-Key header string true "Internal API Key"
// @Param request body ReindexPlacesRequest true "Place IDs to reindex"
// @Success 200 {object} ReindexPlacesResponse
// @Router /internal/reindex-places [post]
func (h *InternalHandler) ReindexPlaces(c *fiber.Ctx) error {
	// API Key 검증
	apiKey := c.Get("X-API-Key")
	if apiKey == "" || apiKey != h.cfg.InternalAPIKey {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid or missing API key",
		})
	}

	if h.index == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Search index not configured",
		})
	}

	var req ReindexPlacesRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if len(req.PlaceIDs) == 0 {
		return c.JSON(ReindexPlacesResponse{IndexedCount: 0})
	}

	log.Printf("[Internal] Reindexing %d places", len(req.PlaceIDs))

	ctx := c.Context()
	places, err := h.places.FindByIDs(ctx, req.PlaceIDs)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load places",
		})
	}

	indexed := 0
	var errors []string
	for i := range places {
		if err := h.index.IndexPlace(ctx, &places[i]); err != nil {
			errors = append(errors, err.Error())
			continue
		}
		indexed++
	}

	log.Printf("[Internal] Reindexed %d/%d places", indexed, len(req.PlaceIDs))

	return c.JSON(ReindexPlacesResponse{
		IndexedCount: indexed,
		Errors:       errors,
	})
}
