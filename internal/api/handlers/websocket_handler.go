package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/flowvana/backend/internal/dispatch"
	"github.com/flowvana/backend/internal/flow"
	"github.com/flowvana/backend/pkg/logger"
)

// WebSocketHandler serves the chat surface over a socket: one dispatch
// round-trip per inbound message, same semantics as POST /query/chat.
type WebSocketHandler struct {
	dispatcher Dispatcher
	timeout    time.Duration
}

func NewWebSocketHandler(dispatcher Dispatcher, timeout time.Duration) *WebSocketHandler {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &WebSocketHandler{dispatcher: dispatcher, timeout: timeout}
}

type wsChatMessage struct {
	Query string      `json:"query"`
	Flows []flow.Flow `json:"flows"`
}

type wsError struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	defer c.Close()

	tenantID := c.Query("project_id")
	if tenantID == "" {
		h.sendError(c, "Project ID is required")
		return
	}

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			return
		}

		var msg wsChatMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendError(c, "Invalid message format")
			continue
		}
		if msg.Query == "" {
			h.sendError(c, "Query is required")
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		resp := h.dispatcher.Handle(ctx, dispatch.Request{
			TenantID: tenantID,
			Query:    msg.Query,
			Flows:    msg.Flows,
		})
		cancel()

		if err := c.WriteJSON(resp); err != nil {
			logger.Warn("websocket write failed",
				zap.String("tenant_id", tenantID), zap.Error(err))
			return
		}
	}
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, msg string) {
	if err := c.WriteJSON(wsError{Type: "error", Error: msg}); err != nil {
		logger.Debug("websocket error write failed", zap.Error(err))
	}
}
