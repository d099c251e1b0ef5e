package handlers

import (
	"context"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/askql/backend/internal/resolver"
	"github.com/askql/backend/pkg/logger"
)

type WebSocketHandler struct {
	resolver *resolver.Resolver
}

func NewWebSocketHandler(r *resolver.Resolver) *WebSocketHandler {
	return &WebSocketHandler{resolver: r}
}

// HandleConnection serves a long-lived connection where each incoming
// "ask" message is resolved and answered with a status update followed by
// the full result.
func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type     string `json:"type"`
			Question string `json:"question"`
		}

		if err := c.ReadJSON(&msg); err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			break
		}

		if msg.Type != "ask" || msg.Question == "" {
			h.send(c, "error", map[string]string{"message": "expected an ask message with a question"})
			continue
		}

		h.send(c, "status", map[string]string{"message": "Resolving question..."})

		result := h.resolver.Resolve(context.Background(), msg.Question)
		h.send(c, "result", result)
	}
}

func (h *WebSocketHandler) send(c *websocket.Conn, msgType string, payload interface{}) {
	envelope := map[string]interface{}{
		"type": msgType,
		"data": payload,
	}
	if err := c.WriteJSON(envelope); err != nil {
		logger.Error("Failed to write WebSocket message", zap.Error(err))
	}
}
