// Package main runs the quick elections HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/quick-elections/backend/config"
	"github.com/quick-elections/backend/internal/auth"
	"github.com/quick-elections/backend/internal/middleware"
	"github.com/quick-elections/backend/internal/polls"
	"github.com/quick-elections/backend/pkg/database"
	"github.com/quick-elections/backend/pkg/redis"
	"github.com/quick-elections/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()

	var store polls.Store
	switch cfg.Store.Driver {
	case config.StorePostgres:
		pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
		if err != nil {
			logger.Fatal("database", zap.Error(err))
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
		store = polls.NewPostgresStore(pool)
	case config.StoreRedis:
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		store = polls.NewRedisStore(rdb.Client)
	default:
		store = polls.NewMemoryStore()
	}
	logger.Info("poll store ready", zap.String("driver", cfg.Store.Driver))

	var provider auth.Provider
	if cfg.Admin.AuthMode == config.AuthToken {
		provider = auth.NewTokenProvider(cfg.Admin.Keyword, cfg.Admin.TokenSecret,
			time.Duration(cfg.Admin.TokenExpireHours)*time.Hour)
	} else {
		provider = auth.NewKeywordProvider(cfg.Admin.Keyword)
	}

	authHandler := auth.NewHandler(provider, logger)
	pollHandler := polls.NewHandler(store, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	router.POST("/login", authHandler.Login)
	router.POST("/polls/access", pollHandler.Access)
	router.POST("/polls/:id/vote", pollHandler.Vote)

	admin := router.Group("")
	admin.Use(middleware.RequireAdmin(provider))
	{
		admin.GET("/polls", pollHandler.List)
		admin.POST("/polls", pollHandler.Create)
		admin.POST("/polls/:id/close", pollHandler.Close)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
