package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// HealthHandler reports liveness for load balancers and monitoring.
type HealthHandler struct {
	DB         *sql.DB
	Redis      *redis.Client // nil when Redis is not configured
	LedgerMode string
}

// Health returns 200 while the database answers a ping and 503 otherwise.
// Redis is reported but never fails the check; features that need it
// degrade on their own.
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	body := echo.Map{"status": "ok", "db": "ok", "redis": "disabled", "ledger": h.LedgerMode}
	status := http.StatusOK
	if h.DB != nil {
		if err := h.DB.PingContext(ctx); err != nil {
			body["status"], body["db"] = "degraded", "down"
			status = http.StatusServiceUnavailable
		}
	}
	if h.Redis != nil {
		body["redis"] = "ok"
		if err := h.Redis.Ping(ctx).Err(); err != nil {
			body["redis"] = "down"
		}
	}
	return c.JSON(status, body)
}
