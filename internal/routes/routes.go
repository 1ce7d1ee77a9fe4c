package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/atelier/internal/config"
	"github.com/example/atelier/internal/handlers"
	"github.com/example/atelier/internal/messaging"
	"github.com/example/atelier/internal/middleware"
	"github.com/example/atelier/internal/services"
	"github.com/example/atelier/internal/storage"
)

// Register wires up all HTTP routes.
func Register(app *fiber.App, store storage.OrderStore, publisher *messaging.Publisher, cfg *config.Config) {
	telegramService := services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat)
	orchestrator := services.NewPaymentOrchestrator(services.BuildAdapters(cfg))
	finalizer := services.NewOrderFinalizer(store, publisher, telegramService)

	paymentHandler := handlers.NewPaymentHandler(store, orchestrator, finalizer)
	webhookHandler := handlers.NewWebhookHandler(store, orchestrator, finalizer)
	orderHandler := handlers.NewOrderHandler(store)

	api := app.Group("/api")

	// Provider callbacks carry their own authentication (signatures), so they
	// sit outside the user middleware.
	api.Post("/webhooks/:gateway", webhookHandler.Receive)

	authed := api.Group("/", middleware.RequireUser())
	authed.Post("/payment-intents", paymentHandler.CreateIntent)
	authed.Get("/payment-intents/:transactionId/status", paymentHandler.Status)
	authed.Get("/orders", orderHandler.List)
	authed.Get("/orders/:id", orderHandler.Get)
}
