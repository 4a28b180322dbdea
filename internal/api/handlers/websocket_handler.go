package handlers

import (
	"context"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/legalrag/backend/internal/domain"
	"github.com/legalrag/backend/internal/query"
	"github.com/legalrag/backend/internal/schema"
	"github.com/legalrag/backend/pkg/logger"
)

type WebSocketHandler struct {
	engine QueryService
}

func NewWebSocketHandler(engine QueryService) *WebSocketHandler {
	return &WebSocketHandler{
		engine: engine,
	}
}

type wsMessage struct {
	Type string `json:"type"`
	QueryRequest
}

// HandleConnection runs one query per "query" message, streaming a status
// event for each pipeline stage before the final answer.
func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg wsMessage
		if err := c.ReadJSON(&msg); err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			break
		}

		if msg.Type != "query" {
			continue
		}

		msg.Sanitize()
		if err := schema.Struct(&msg.QueryRequest); err != nil {
			h.sendError(c, err.Error())
			continue
		}

		if err := h.streamAnswer(c, msg.QueryRequest); err != nil {
			logger.Error("Failed to stream answer", zap.Error(err))
			break
		}
	}
}

func (h *WebSocketHandler) streamAnswer(c *websocket.Conn, req QueryRequest) error {
	var writeErr error
	onStage := func(stage query.Stage, count int) {
		if writeErr != nil {
			return
		}
		writeErr = c.WriteJSON(map[string]any{
			"type":  "status",
			"stage": stage,
			"count": count,
		})
	}

	mode := query.ModeSingle
	if req.Mode == string(query.ModeMulti) {
		mode = query.ModeMulti
	}

	res, sources, err := h.engine.Ask(context.Background(), query.Request{
		Mode:    mode,
		Prompt:  req.Prompt,
		History: req.History,
		K:       req.K,
		Scope:   req.Scope,
		OnStage: onStage,
	})
	if err != nil {
		logger.Error("Failed to process query", zap.String("query_id", res.ID), zap.Error(err))
	}
	if writeErr != nil {
		return writeErr
	}

	return h.sendComplete(c, res, sources)
}

func (h *WebSocketHandler) sendComplete(c *websocket.Conn, res query.Result, sources []domain.SourceReference) error {
	msg := map[string]any{
		"type":      "complete",
		"id":        res.ID,
		"answer":    res.Answer,
		"phrases":   res.Phrases,
		"citations": sources,
	}
	if res.Research != nil {
		msg["research"] = res.Research
	}

	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	msg := map[string]any{
		"type":  "error",
		"error": errorMsg,
	}

	c.WriteJSON(msg)
}
