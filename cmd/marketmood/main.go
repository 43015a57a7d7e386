package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rewired-gh/marketmood/internal/analyze"
	"github.com/rewired-gh/marketmood/internal/config"
	"github.com/rewired-gh/marketmood/internal/logger"
	"github.com/rewired-gh/marketmood/internal/news"
	"github.com/rewired-gh/marketmood/internal/prices"
	"github.com/rewired-gh/marketmood/internal/ratelimit"
	"github.com/rewired-gh/marketmood/internal/sentiment"
	"github.com/rewired-gh/marketmood/internal/server"
	"github.com/rewired-gh/marketmood/internal/storage"
	"github.com/rewired-gh/marketmood/internal/telegram"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	// Each upstream provider gets its own bucket and daily quota.
	newsGate := ratelimit.NewGate(cfg.Limiter.Burst, cfg.Limiter.Window, cfg.Limiter.DailyMax)
	priceGate := ratelimit.NewGate(cfg.Limiter.Burst, cfg.Limiter.Window, cfg.Limiter.DailyMax)

	newsFetcher := news.New(cfg.News, cfg.HTTP, cfg.Cache.Capacity, newsGate)
	priceClient := prices.New(cfg.Prices, cfg.HTTP, cfg.Cache.Capacity, priceGate)
	classifier := sentiment.New(cfg.Sentiment)

	analyzer := analyze.New(newsFetcher, priceClient, classifier, cfg.Analysis, cfg.News.MaxPages)

	var archive server.Archive
	if cfg.Storage.Enabled {
		store, err := storage.New(cfg.Storage.MaxReports, cfg.Storage.DBPath)
		if err != nil {
			logger.Fatal("Failed to initialize storage: %v", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("Failed to close storage: %v", err)
			}
		}()
		archive = store
		logger.Info("Report archive at %s (cap %d)", cfg.Storage.DBPath, cfg.Storage.MaxReports)
	} else {
		logger.Debug("Report archive disabled")
	}

	var notifier server.Notifier
	if cfg.Telegram.Enabled {
		telegramClient, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		notifier = telegramClient
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := server.New(analyzer, archive, notifier)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("Listening on %s", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutdown signal received, draining connections...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Shutdown did not complete cleanly: %v", err)
	}
	logger.Info("Service stopped")
}
