package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/lalith-99/focusroom/internal/account"
	"github.com/lalith-99/focusroom/internal/api"
	"github.com/lalith-99/focusroom/internal/config"
	"github.com/lalith-99/focusroom/internal/db"
	"github.com/lalith-99/focusroom/internal/middleware"
	"github.com/lalith-99/focusroom/internal/observ"
	"github.com/lalith-99/focusroom/internal/roomstore"
	"github.com/lalith-99/focusroom/internal/roomstore/localstore"
	"github.com/lalith-99/focusroom/internal/roomstore/natsstore"
	"github.com/lalith-99/focusroom/internal/roomstore/redisstore"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ---------------------------------------------------------------
	// 1. Load config (.env first, then real env wins)
	// ---------------------------------------------------------------
	_ = godotenv.Load()
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// ---------------------------------------------------------------
	// 2. Create logger
	// ---------------------------------------------------------------
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	clock := clockwork.NewRealClock()

	// ---------------------------------------------------------------
	// 3. Select the room store
	//
	// The local file store always exists; it is both the "local"
	// backend and the fallback half of the replicated pairs. The
	// Fallback wrapper probes the primary once here at startup —
	// a dead primary means the whole process runs single-device,
	// loudly.
	// ---------------------------------------------------------------
	local, err := localstore.New(cfg.StateDir, clock, logger)
	if err != nil {
		return fmt.Errorf("create local store: %w", err)
	}

	var store roomstore.Store
	switch cfg.StoreBackend {
	case "redis":
		primary, err := redisstore.New(cfg.RedisURL, logger)
		if err != nil {
			return fmt.Errorf("create redis store: %w", err)
		}
		store = roomstore.NewFallback(context.Background(), primary, local, logger)
	case "nats":
		primary, err := natsstore.New(context.Background(), cfg.NATSURL, logger)
		if err != nil {
			logger.Warn("NATS unreachable, running on local store only", zap.Error(err))
			store = local
		} else {
			store = roomstore.NewFallback(context.Background(), primary, local, logger)
		}
	case "local":
		store = local
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	// ---------------------------------------------------------------
	// 4. Connect to Postgres (accounts only; rooms never touch it)
	// ---------------------------------------------------------------
	database, err := db.New(context.Background(), cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()

	accounts := account.NewStore(database.Pool())

	// ---------------------------------------------------------------
	// 5. Wire handlers and routes
	// ---------------------------------------------------------------
	sessions := api.NewSessionManager()
	roomHandler := api.NewRoomHandler(store, cfg.Durations(), clock, sessions, logger)
	authHandler := api.NewAuthHandler(accounts, cfg.JWTSecret, logger)

	srv := gin.New()
	srv.Use(gin.Logger(), gin.Recovery())

	logger.Info("starting FocusRoom",
		zap.String("port", cfg.Port),
		zap.String("env", cfg.Env),
		zap.String("store_backend", cfg.StoreBackend),
	)

	// Health is public so load balancers can reach it.
	srv.GET("/v1/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Auth endpoints are public — they mint the token everything else
	// requires.
	srv.POST("/v1/auth/signup", authHandler.Signup)
	srv.POST("/v1/auth/login", authHandler.Login)

	v1 := srv.Group("/v1")
	v1.Use(middleware.AuthMiddleware(cfg.JWTSecret))

	v1.POST("/rooms", roomHandler.Create)
	v1.GET("/rooms/:id", roomHandler.Get)
	v1.POST("/rooms/:id/join", roomHandler.Join)
	v1.POST("/rooms/:id/leave", roomHandler.Leave)
	v1.GET("/rooms/:id/messages", roomHandler.Messages)
	v1.GET("/rooms/:id/ws", roomHandler.Stream)

	return srv.Run(":" + cfg.Port)
}
