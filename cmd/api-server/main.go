package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/prodflow/prodflow/pkg/apiserver"
	"github.com/prodflow/prodflow/pkg/auth"
	"github.com/prodflow/prodflow/pkg/config"
	"github.com/prodflow/prodflow/pkg/eventbus"
	"github.com/prodflow/prodflow/pkg/store/postgres"
	redisclient "github.com/prodflow/prodflow/pkg/store/redis"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file, using environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := cfg.Logging.NewLogger()
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	if cfg.Auth.JWTSecret == "" {
		logger.Fatal("auth.jwt_secret must be set")
	}

	db, err := postgres.NewStore(&cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.AutoMigrate(); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}

	var (
		redis *redisclient.Client
		bus   eventbus.Publisher = eventbus.Nop{}
	)
	redis, err = redisclient.NewClient(context.Background(), &cfg.Redis)
	switch {
	case errors.Is(err, redisclient.ErrDisabled):
		logger.Info("redis disabled, change notifications off")
	case err != nil:
		logger.Fatal("failed to connect to redis", zap.Error(err))
	default:
		defer redis.Close()
		bus = eventbus.NewBus(redis.Client())
	}

	tokens := auth.NewTokenManager([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL, cfg.Auth.Issuer)
	server := apiserver.NewServer(db, redis, bus, tokens, cfg, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.ReadTimeout * 2,
	}

	go func() {
		logger.Info("starting api server", zap.Int("port", cfg.Server.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
}
