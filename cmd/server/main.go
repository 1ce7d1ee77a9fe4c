package main

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/example/atelier/internal/config"
	"github.com/example/atelier/internal/database"
	"github.com/example/atelier/internal/messaging"
	"github.com/example/atelier/internal/routes"
	"github.com/example/atelier/internal/storage"
)

const (
	staleSweepInterval = time.Hour
	staleOrderAge      = 24 * time.Hour
)

func main() {
	cfg := config.Load()
	db := database.Connect(cfg.DatabaseURL)
	store := storage.NewGormOrderStore(db)

	broker := messaging.NewClient(cfg.AMQPURL, cfg.NotificationExchange)
	if err := broker.Connect(); err != nil {
		// Orders still finalize without the broker; confirmations are logged
		// as failed publishes until it comes back.
		log.Printf("Notification broker unavailable: %v", err)
	}
	defer broker.Close()
	publisher := messaging.NewPublisher(broker)

	go sweepStaleOrders(store)

	app := fiber.New(fiber.Config{
		AppName: "Atelier Payments",
	})

	app.Use(recover.New())
	app.Use(logger.New())

	routes.Register(app, store, publisher, cfg)

	log.Printf("Starting server on :%s", cfg.AppPort)
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		log.Fatalf("fiber.Listen error: %v", err)
	}
}

// sweepStaleOrders cancels orders left PENDING past the cutoff, typically
// abandoned checkouts whose buyer never returned from the provider.
func sweepStaleOrders(store storage.OrderStore) {
	ticker := time.NewTicker(staleSweepInterval)
	defer ticker.Stop()

	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		cancelled, err := store.CancelStale(ctx, time.Now().Add(-staleOrderAge))
		cancel()
		if err != nil {
			log.Printf("[Sweep] cancel stale orders: %v", err)
			continue
		}
		if cancelled > 0 {
			log.Printf("[Sweep] cancelled %d stale pending orders", cancelled)
		}
	}
}
