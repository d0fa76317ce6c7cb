package handlers

import (
	"github.com/gofiber/fiber/v2"
	fiberSwagger "github.com/swaggo/fiber-swagger"

	"speakerscribe/middleware"
)

// SetupRoutes registers every route on app. Notification deliveries must
// carry webhookSecret when it is not empty.
func SetupRoutes(app *fiber.App, h *ApplicationHandler, webhookSecret string) {
	app.Get("/health", h.Health)
	app.Get("/swagger/*", fiberSwagger.WrapHandler)

	apiV1 := app.Group("/api/v1")

	apiV1.Post("/notifications", middleware.WebhookSecret(webhookSecret), h.ReceiveNotifications)
	apiV1.Get("/batches/:batchId", h.GetBatch)

	apiV1.Put("/documents/:id", h.RegisterDocument)
	apiV1.Get("/documents/:id", h.GetDocument)
}

// Health godoc
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *ApplicationHandler) Health(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":      "ok",
		"message":     "Transcription pipeline is healthy",
		"queued_jobs": h.Queue.QueueLen(),
	})
}
