package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flowvana/backend/internal/storage/models"
	"github.com/flowvana/backend/pkg/logger"
)

// NavigationStore is the CRUD surface over navigation records. Edits are not
// observed by a published index until the next rebuild.
type NavigationStore interface {
	UpsertNavigation(nav *models.Navigation) error
	ListNavigations(tenantID string) ([]models.Navigation, error)
	DeleteNavigation(tenantID, navigationID string) (bool, error)
}

type NavigationHandler struct {
	store NavigationStore
}

func NewNavigationHandler(store NavigationStore) *NavigationHandler {
	return &NavigationHandler{store: store}
}

type upsertNavigationRequest struct {
	NavigationID string   `json:"navigation_id"`
	URL          string   `json:"url"`
	Title        string   `json:"title"`
	Phrases      []string `json:"phrases"`
}

func (h *NavigationHandler) Create(c *fiber.Ctx) error {
	tenantID := c.Query("project_id")
	if tenantID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Project ID is required",
		})
	}

	var req upsertNavigationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.URL == "" || req.Title == "" || len(req.Phrases) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "url, title and phrases are required",
		})
	}

	navigationID := req.NavigationID
	if navigationID == "" {
		navigationID = uuid.New().String()
	}

	nav := &models.Navigation{
		TenantID:     tenantID,
		NavigationID: navigationID,
		URL:          req.URL,
		Title:        req.Title,
		Phrases:      req.Phrases,
		UpdatedAt:    time.Now(),
	}

	if err := h.store.UpsertNavigation(nav); err != nil {
		logger.Error("navigation create failed",
			zap.String("tenant_id", tenantID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Internal server error",
		})
	}

	return c.JSON(fiber.Map{
		"success":       true,
		"message":       "Navigation created successfully",
		"navigation_id": navigationID,
	})
}

func (h *NavigationHandler) List(c *fiber.Ctx) error {
	tenantID := c.Query("project_id")
	if tenantID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Project ID is required",
		})
	}

	navs, err := h.store.ListNavigations(tenantID)
	if err != nil {
		logger.Error("navigation list failed",
			zap.String("tenant_id", tenantID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Internal server error",
		})
	}

	if navs == nil {
		navs = []models.Navigation{}
	}
	return c.JSON(fiber.Map{
		"success":     true,
		"message":     "Navigations retrieved successfully",
		"navigations": navs,
		"total_count": len(navs),
	})
}

func (h *NavigationHandler) Delete(c *fiber.Ctx) error {
	tenantID := c.Query("project_id")
	if tenantID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Project ID is required",
		})
	}
	navigationID := c.Params("navigation_id")

	deleted, err := h.store.DeleteNavigation(tenantID, navigationID)
	if err != nil {
		logger.Error("navigation delete failed",
			zap.String("tenant_id", tenantID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Internal server error",
		})
	}
	if !deleted {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Navigation not found",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Navigation deleted successfully",
	})
}
