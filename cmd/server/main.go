package main

// @title           Relay Service API
// @version         1.0
// @description     Real-time fan-out relay: channel subscriptions, broadcast
// @description     ingestion, presence and typing indicators.
// @host            localhost:8080
// @BasePath        /api/v1
// @schemes         http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"relay-service/internal/adapters/kafka"
	"relay-service/internal/api/routes"
	"relay-service/internal/config"
	"relay-service/internal/database"
	"relay-service/internal/services"
	"relay-service/internal/websocket"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	slog.Info("starting relay server")

	redisClient, err := database.NewRedisConnection(&cfg.Redis)
	if err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	db, err := database.NewPostgresConnection(cfg.Database.URI)
	if err != nil {
		slog.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}

	var storage *database.MinIOClient
	if cfg.Minio.Enabled {
		storage, err = database.NewMinIOClient(cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.Bucket)
		if err != nil {
			slog.Error("failed to connect to MinIO", "error", err)
			os.Exit(1)
		}
	}

	redisService := services.NewRedisService(redisClient)

	hub := websocket.NewHub(redisService, slog.Default())
	go hub.Run()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		consumer = kafka.NewConsumer(&cfg.Kafka, hub)
		go consumer.Run(ctx)
	}

	router := routes.NewRouter(hub, redisService, db, storage, cfg.JWT.Secret, cfg.JWT.ExpirationTime)
	router.SetupRoutes()

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.GetEngine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("server shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	hub.Stop()
	cancel()
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			slog.Warn("kafka consumer close failed", "error", err)
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("server stopped")
}
