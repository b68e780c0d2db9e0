package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/flowvana/backend/internal/index"
	"github.com/flowvana/backend/internal/metrics"
	"github.com/flowvana/backend/pkg/logger"
)

// Rebuilder is the administrative index rebuild trigger.
type Rebuilder interface {
	BuildAll(ctx context.Context) (index.Summary, error)
}

type AdminHandler struct {
	builder Rebuilder
}

func NewAdminHandler(builder Rebuilder) *AdminHandler {
	return &AdminHandler{builder: builder}
}

// Reindex rebuilds every tenant's index synchronously. This is the only
// refresh mechanism besides process restart.
func (h *AdminHandler) Reindex(c *fiber.Ctx) error {
	summary, err := h.builder.BuildAll(c.Context())
	if err != nil {
		logger.Error("reindex failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to rebuild indexes",
		})
	}

	metrics.IndexedTenants.Set(float64(summary.Built))
	metrics.IndexedPhrases.Set(float64(summary.Rows))

	failed := summary.FailedTenants
	if failed == nil {
		failed = []string{}
	}
	return c.JSON(fiber.Map{
		"success":        true,
		"tenants_built":  summary.Built,
		"phrases":        summary.Rows,
		"failed_tenants": failed,
	})
}
