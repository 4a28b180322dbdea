package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// Register mounts the research and document endpoints under api.
func Register(api fiber.Router, q *QueryHandler, d *DocumentHandler) {
	api.Post("/query", q.HandleQuery)
	api.Get("/query/history", q.GetQueryHistory)
	api.Post("/validate", q.HandleValidate)
	api.Post("/naming", q.HandleNaming)
	api.Post("/search", q.RawSearch)
	api.Get("/collections", q.ListCollections)

	api.Post("/documents", d.UploadDocuments)
	api.Get("/documents/:collection", d.ListDocuments)
	api.Get("/documents/:collection/:sourceID", d.GetDocument)
	api.Delete("/documents/:collection/:sourceID", d.DeleteDocument)
	api.Put("/documents/:collection/:sourceID/sections", d.ReindexDocument)
	api.Post("/documents/:collection/:sourceID/regenerate", d.RegenerateDocument)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})
}

// RegisterWebSocket mounts the streaming query endpoint at path.
func RegisterWebSocket(app fiber.Router, path string, ws *WebSocketHandler) {
	app.Use(path, func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get(path, websocket.New(ws.HandleConnection))
}
