package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"freelance-market/internal/api/handlers"
	"freelance-market/internal/config"
	"freelance-market/internal/infrastructure/redis"
	"freelance-market/internal/infrastructure/websocket"
	"freelance-market/internal/services"
	"freelance-market/pkg/logger"
	"freelance-market/pkg/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New().Fatal("Failed to load config", "error", err)
	}

	log := logger.NewWithLevel(cfg.Log.Level).With("service", "notification-service", "instance_id", cfg.Instance.ID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
	rdb, err := utils.InitializeRedis(pingCtx, cfg.Redis)
	cancelPing()
	if err != nil {
		log.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	connManager := websocket.NewConnectionManager(log)
	relay := services.NewNotificationRelay(websocket.NewWebSocketNotifier(connManager), log)
	subscriber := redis.NewRedisEventSubscriber(rdb, cfg.Notifications.Channel, log)

	go func() {
		if err := relay.Start(ctx, subscriber); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Notification relay stopped", "error", err)
			stop()
		}
	}()

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Realtime.Host, cfg.Realtime.Port),
		Handler:           handlers.NewWebSocketHandlers(connManager, log).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Starting notification service", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed to start", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down notification service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	if err := connManager.CloseAll(); err != nil {
		log.Error("Failed to close websocket connections", "error", err)
	}

	log.Info("Notification service stopped")
}
