package main

import (
	"context"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/vdjjd/faninteract/internal/api"
	"github.com/vdjjd/faninteract/internal/config"
	"github.com/vdjjd/faninteract/internal/database"
	"github.com/vdjjd/faninteract/internal/game"
	"github.com/vdjjd/faninteract/internal/migrations"
	"github.com/vdjjd/faninteract/internal/redis"
	"github.com/vdjjd/faninteract/internal/ws"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()

	// Initialize database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Run migrations on start if requested
	if os.Getenv("MIGRATE_ON_START") == "true" {
		log.Println("Running DB migrations on startup...")
		if err := migrations.RunMigrations(cfg.DatabaseURL); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
	}

	// Initialize Redis. The service degrades to hub-local broadcast and
	// client polling when Redis is unavailable.
	rdb, err := redis.Connect(cfg.RedisURL)
	if err != nil {
		log.Printf("[REDIS] Not available (%v) - running single-instance with polling fallback", err)
		rdb = nil
	} else {
		defer rdb.Close()
	}

	// Initialize the game manager and expiry sweeper
	game.InitializeManager(context.Background(), db, rdb, cfg)

	// Wire push delivery and the cross-instance event bridge
	game.Manager.SetBroadcaster(ws.SessionHub)
	ws.SetRedisClient(rdb)
	ws.StartSessionEventSubscriber(context.Background())

	// Set up Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	api.SetupRoutes(router, cfg)

	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	log.Printf("Starting FanInteract arena server on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
