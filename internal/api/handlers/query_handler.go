package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flowvana/backend/internal/analytics"
	"github.com/flowvana/backend/internal/dispatch"
	"github.com/flowvana/backend/internal/flow"
	"github.com/flowvana/backend/internal/metrics"
	"github.com/flowvana/backend/internal/search"
	"github.com/flowvana/backend/internal/storage/models"
	"github.com/flowvana/backend/pkg/logger"
)

// Searcher is the hybrid search surface the query endpoint needs.
type Searcher interface {
	Search(ctx context.Context, tenantID, query string, limit int, scoreThreshold float64) ([]search.Result, error)
}

// Dispatcher is the chat surface.
type Dispatcher interface {
	Handle(ctx context.Context, req dispatch.Request) *dispatch.Response
}

// FeedbackStore updates a logged request with user feedback.
type FeedbackStore interface {
	UpdateLogFeedback(requestID, feedback string) (bool, error)
}

type QueryHandler struct {
	searcher          Searcher
	dispatcher        Dispatcher
	feedback          FeedbackStore
	recorder          *analytics.Recorder
	defaultLimit      int
	semanticThreshold float64
}

func NewQueryHandler(searcher Searcher, dispatcher Dispatcher, feedback FeedbackStore, recorder *analytics.Recorder, defaultLimit int, semanticThreshold float64) *QueryHandler {
	if defaultLimit <= 0 {
		defaultLimit = 4
	}
	return &QueryHandler{
		searcher:          searcher,
		dispatcher:        dispatcher,
		feedback:          feedback,
		recorder:          recorder,
		defaultLimit:      defaultLimit,
		semanticThreshold: semanticThreshold,
	}
}

type queryRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

type queryResultItem struct {
	URL         string `json:"url"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type queryResponse struct {
	Status    string            `json:"status"`
	Message   string            `json:"message"`
	RequestID string            `json:"request_id"`
	Results   []queryResultItem `json:"results"`
}

// HandleQuery returns the top-k navigation targets for a query.
func (h *QueryHandler) HandleQuery(c *fiber.Ctx) error {
	tenantID := c.Query("project_id")
	if tenantID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Project ID is required",
		})
	}

	var req queryRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query is required",
		})
	}

	limit := req.K
	if limit <= 0 {
		limit = h.defaultLimit
	}

	requestID := uuid.New().String()
	start := time.Now()

	results, err := h.searcher.Search(c.Context(), tenantID, req.Query, limit, h.semanticThreshold)
	if err != nil {
		logger.Error("query search failed",
			zap.String("request_id", requestID),
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
		h.record(requestID, tenantID, req.Query, `{"error":"search failed"}`, time.Since(start), err.Error())
		metrics.QueryTotal.WithLabelValues("query", "error").Inc()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Internal server error",
		})
	}

	items := make([]queryResultItem, 0, len(results))
	for _, r := range results {
		items = append(items, queryResultItem{
			URL:         r.URL,
			Type:        "Navigate",
			Title:       r.Title,
			Description: r.BestPhrase,
		})
	}

	resp := queryResponse{
		Status:    "success",
		Message:   "Query processed successfully",
		RequestID: requestID,
		Results:   items,
	}

	elapsed := time.Since(start)
	metrics.QueryDuration.WithLabelValues("query").Observe(elapsed.Seconds())
	metrics.QueryTotal.WithLabelValues("query", "success").Inc()
	if len(results) > 0 {
		metrics.SearchResults.WithLabelValues(results[0].Source).Observe(float64(len(results)))
	}

	respJSON, _ := json.Marshal(resp)
	h.record(requestID, tenantID, req.Query, string(respJSON), elapsed, "")

	return c.JSON(resp)
}

type chatRequest struct {
	Query string      `json:"query"`
	Flows []flow.Flow `json:"flows"`
}

// HandleChat runs the dispatch coordinator for one chat message.
func (h *QueryHandler) HandleChat(c *fiber.Ctx) error {
	tenantID := c.Query("project_id")
	if tenantID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Project ID is required",
		})
	}

	var req chatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query is required",
		})
	}

	resp := h.dispatcher.Handle(c.Context(), dispatch.Request{
		TenantID: tenantID,
		Query:    req.Query,
		Flows:    req.Flows,
	})

	status := "success"
	if !resp.Success {
		status = "error"
	}
	metrics.QueryTotal.WithLabelValues("chat", status).Inc()

	return c.JSON(resp)
}

type feedbackRequest struct {
	Response string `json:"response"`
}

// HandleFeedback attaches user feedback to a logged request.
func (h *QueryHandler) HandleFeedback(c *fiber.Ctx) error {
	requestID := c.Query("request_id")
	if requestID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Request ID is required",
		})
	}

	var req feedbackRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Response != "positive" && req.Response != "negative" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Feedback response must be positive or negative",
		})
	}

	updated, err := h.feedback.UpdateLogFeedback(requestID, req.Response)
	if err != nil {
		logger.Error("feedback update failed",
			zap.String("request_id", requestID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Internal server error",
		})
	}
	if !updated {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "No log entry found for request",
		})
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"message":    "Feedback updated successfully",
		"request_id": requestID,
	})
}

func (h *QueryHandler) record(requestID, tenantID, query, response string, elapsed time.Duration, errText string) {
	if h.recorder == nil {
		return
	}
	h.recorder.Record(&models.RequestLog{
		RequestID: requestID,
		TenantID:  tenantID,
		Query:     query,
		Response:  response,
		Type:      "query",
		TimeTaken: elapsed.Seconds(),
		Error:     errText,
	})
}
