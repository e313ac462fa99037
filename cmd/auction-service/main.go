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
	apimw "freelance-market/internal/api/middleware"
	"freelance-market/internal/config"
	"freelance-market/internal/domain"
	"freelance-market/internal/infrastructure/leader"
	"freelance-market/internal/infrastructure/memory"
	"freelance-market/internal/infrastructure/mysql"
	"freelance-market/internal/infrastructure/redis"
	"freelance-market/internal/services"
	"freelance-market/pkg/logger"
	"freelance-market/pkg/utils"

	redisClient "github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// storage is the persistence side of the service for the configured driver.
type storage struct {
	store       domain.Store
	ledger      domain.ReminderLedger
	reputations domain.ReputationProvider
	close       func()
}

func openStorage(ctx context.Context, cfg *config.Config, rdb redisClient.UniversalClient, log logger.Logger) (*storage, error) {
	switch cfg.Storage.Driver {
	case "memory":
		log.Warn("Using in-memory storage, state is lost on restart")
		return &storage{
			store:       memory.NewStore(),
			ledger:      memory.NewReminderLedger(),
			reputations: memory.NewReputations(nil),
			close:       func() {},
		}, nil

	case "mysql":
		db, err := utils.InitializeMysql(ctx, cfg.MySQL)
		if err != nil {
			return nil, err
		}
		log.Info("Connected to MySQL")

		if cfg.MySQL.MigrateOnStart {
			if err := mysql.Migrate(ctx, db); err != nil {
				_ = db.Close()
				return nil, err
			}
			log.Info("Database migrations applied")
		}

		return &storage{
			store:  mysql.NewStore(db),
			ledger: redis.NewReminderLedger(rdb),
			reputations: redis.NewReputationCache(rdb, mysql.NewMySQLReputationRepository(db),
				cfg.Ranking.ReputationTTL, log),
			close: func() {
				if err := db.Close(); err != nil {
					log.Error("Failed to close MySQL connection", "error", err)
				}
			},
		}, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

// campaignForLeadership keeps trying to take or keep the scheduler seat until
// ctx is done.
func campaignForLeadership(ctx context.Context, election domain.LeaderElection, instanceID string, log logger.Logger) {
	wasLeader := false
	for {
		became, err := election.BecomeLeader(ctx, instanceID)
		wait := 10 * time.Second
		switch {
		case err != nil:
			log.Error("Failed to attempt leadership", "error", err)
			wait = 5 * time.Second
		case became && !wasLeader:
			log.Info("Became auction scheduler leader", "instance_id", instanceID)
		case !became && wasLeader:
			log.Warn("Lost auction scheduler leadership", "instance_id", instanceID)
		}
		wasLeader = err == nil && became

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New().Fatal("Failed to load config", "error", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.New().Fatal("Invalid config", "error", err)
	}

	log := logger.NewWithLevel(cfg.Log.Level).With("service", "auction-service", "instance_id", cfg.Instance.ID)
	log.Info("Starting auction service", "config", cfg.GetConfigString())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	initCtx, cancelInit := context.WithTimeout(ctx, 30*time.Second)
	defer cancelInit()

	rdb, err := utils.InitializeRedis(initCtx, cfg.Redis)
	if err != nil {
		log.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()
	log.Info("Connected to Redis", "address", cfg.Redis.Address)

	st, err := openStorage(initCtx, cfg, rdb, log)
	if err != nil {
		log.Error("Failed to open storage", "driver", cfg.Storage.Driver, "error", err)
		os.Exit(1)
	}
	defer st.close()

	gateway := redis.NewNotificationPublisher(rdb, cfg.Notifications.Channel)
	notifier := services.NewLifecycleNotifier(st.store.Repositories().Subscriptions, gateway,
		services.NotifierOptionsFromConfig(cfg.Notifications), log)
	registry := services.NewSubscriptionRegistry(st.store, log)
	ranker := services.NewOfferRanker(services.ScoringWeightsFromConfig(cfg.Ranking))
	auctionService := services.NewAuctionService(st.store, registry, notifier, ranker, st.reputations, log)

	var election domain.LeaderElection
	if cfg.Leader.Enabled {
		redisElection := leader.NewRedisLeaderElection(rdb, cfg.Leader.Key, cfg.Leader.TTL, log)
		election = redisElection
		go campaignForLeadership(ctx, redisElection, cfg.Instance.ID, log)
	}

	scheduler := services.NewCronLifecycleScheduler(st.store, notifier, st.ledger, election,
		services.SchedulerOptionsFromConfig(cfg), log)
	if err := scheduler.Start(ctx); err != nil {
		log.Error("Failed to start scheduler", "error", err)
		os.Exit(1)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{
			http.MethodGet, http.MethodHead, http.MethodPut,
			http.MethodPost, http.MethodDelete, http.MethodOptions,
		},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
			apimw.HeaderUserID,
		},
		MaxAge: 86400,
	}))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			req := c.Request()
			log.Debug("Request handled",
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
				"method", req.Method,
				"path", c.Path(),
				"status", c.Response().Status,
				"latency", time.Since(start))
			return err
		}
	})

	handlers.NewAuctionHandler(auctionService, log).Register(e.Group("/api/v1"))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"service":   "auction-service",
			"storage":   cfg.Storage.Driver,
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		log.Info("Starting HTTP server", "address", serverAddr)
		if err := e.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed to start", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down auction service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	if err := scheduler.Stop(); err != nil {
		log.Error("Failed to stop scheduler", "error", err)
	}
	if election != nil {
		if err := election.ReleaseLeadership(shutdownCtx, cfg.Instance.ID); err != nil {
			log.Error("Failed to release leadership", "error", err)
		}
	}
	notifier.Wait()

	log.Info("Auction service stopped")
}
