package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/frontdoorrr/hotly-app-sub001/internal/cache"
	"github.com/frontdoorrr/hotly-app-sub001/internal/database"
)

// HealthCheck godoc
// @Summary Health check endpoint
// @Description Returns the health status of the API
// @Tags health
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string
// @Router /healthz [get]
func HealthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "healthy",
	})
}

// LivenessCheck godoc
// @Summary Liveness check endpoint
// @Tags health
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string
// @Router /liveness [get]
func LivenessCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "alive",
	})
}

// ReadinessCheck godoc
// @Summary Readiness check endpoint
// @Description DB 연결까지 확인. 캐시/인덱스는 degraded 운행이 가능하므로 상태만 보고한다.
// @Tags health
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /readyz [get]
func ReadinessCheck(db *database.DB, store *cache.Store, indexAvailable bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		status := fiber.Map{
			"status": "ready",
			"cache":  "unavailable",
			"index":  "unavailable",
		}
		if store != nil && store.Available() {
			status["cache"] = "ok"
		}
		if indexAvailable {
			status["index"] = "ok"
		}

		sqlDB, err := db.DB.DB()
		if err != nil {
			status["status"] = "not ready"
			return c.Status(fiber.StatusServiceUnavailable).JSON(status)
		}
		if err := sqlDB.PingContext(c.Context()); err != nil {
			status["status"] = "not ready"
			return c.Status(fiber.StatusServiceUnavailable).JSON(status)
		}

		return c.JSON(status)
	}
}
