// Package main runs the mandistream edge daemon: it keeps a live price
// snapshot for a village kiosk or FPO gateway, survives flaky uplinks via
// the offline cache and sync queues, and serves the snapshot over a local
// HTTP API.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/krishishift/mandistream/internal/auth"
	"github.com/krishishift/mandistream/internal/config"
	"github.com/krishishift/mandistream/internal/httpapi"
	"github.com/krishishift/mandistream/internal/kv"
	"github.com/krishishift/mandistream/internal/model"
	"github.com/krishishift/mandistream/internal/offline"
	"github.com/krishishift/mandistream/internal/store"
	"github.com/krishishift/mandistream/internal/transport"
	"github.com/krishishift/mandistream/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/mandistream.yaml", "path to the YAML configuration")
	envFile := flag.String("env", ".env", "path to the optional .env file")
	flag.Parse()

	// A missing .env is normal outside development.
	_ = godotenv.Load(*envFile)

	cfg, err := config.LoadFromPath(*configPath)
	if err != nil {
		logger.NewDefault("main").Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	log := logger.New("mandistream", os.Stderr, cfg.Log.Level)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kvStore := openKV(cfg, log)
	defer kvStore.Close()

	priceStore := store.New()

	// Bare client for auth refresh and queue flushes; those calls must hit
	// the network directly.
	bareClient := &http.Client{Timeout: 30 * time.Second}

	tokens := auth.NewTokenStore(kvStore)
	seedTokens(ctx, tokens, log)
	refresher := auth.NewRefresher(cfg.API.BaseURL, bareClient, tokens, func(err error) {
		log.Warn("session terminated, re-login required", "error", err)
	}, log.Named("auth"))

	cache := offline.NewResponseCache(kvStore, cfg.Cache.Version)
	caching := offline.NewTransport(http.DefaultTransport, cache,
		offline.DefaultConfig(cfg.Cache.Version), log.Named("offline"))

	apiClient := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &auth.RoundTripper{
			Base:      caching,
			Tokens:    tokens,
			Refresher: refresher,
		},
	}

	queues := offline.NewSyncQueues(kvStore, cfg.API.BaseURL, bareClient, log.Named("sync"))

	rest := transport.NewRest(transport.RestConfig{
		BaseURL:    cfg.API.BaseURL,
		HTTPClient: apiClient,
		RateLimit:  cfg.API.RateLimit,
		Logger:     log.Named("rest"),
	}, priceStore)

	channel := transport.NewChannel(transport.ChannelConfig{
		URL:           cfg.Channel.URL,
		Subscriptions: subscriptions(cfg),
		Backoff: transport.BackoffConfig{
			Base:       cfg.Channel.BackoffBase,
			Max:        cfg.Channel.BackoffMax,
			Multiplier: 2.0,
			MaxRetries: cfg.Channel.MaxRetries,
		},
		Notifier: &queueNotifier{queues: queues, log: log.Named("alerts")},
		OnTrend: func(trend model.MarketTrend) {
			log.Info("market trend advisory",
				"crop", trend.Commodity, "direction", trend.Direction, "confidence", trend.Confidence)
		},
		Logger: log.Named("channel"),
	}, priceStore)

	client := transport.NewClient(rest, channel, priceStore, log.Named("client"))

	// Warm the offline cache. The daemon is useful without it, so a cold
	// start with the backend unreachable only logs.
	if err := caching.Activate(ctx, cfg.API.BaseURL); err != nil {
		log.WithError(err).Warn("offline cache activation failed")
	}

	if _, err := rest.FetchLatestPrices(ctx, nil); err != nil {
		log.WithError(err).Warn("initial price fetch failed")
	}
	client.Connect()

	sched := cron.New()
	mustSchedule(sched, cfg.Jobs.PriceRefresh, log, "price refresh", func() {
		jobCtx, jobCancel := context.WithTimeout(ctx, time.Minute)
		defer jobCancel()
		if _, err := rest.FetchLatestPrices(jobCtx, nil); err != nil {
			log.WithError(err).Warn("scheduled price refresh failed")
		}
	})
	mustSchedule(sched, cfg.Jobs.QueueFlush, log, "queue flush", func() {
		jobCtx, jobCancel := context.WithTimeout(ctx, time.Minute)
		defer jobCancel()
		queues.FlushAll(jobCtx)
	})
	sched.Start()

	handler := httpapi.NewHandler(priceStore, client, queues, log.Named("httpapi"))
	server := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      handler.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("local api listening", "addr", cfg.Server.ListenAddr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	<-sched.Stop().Done()
	client.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown error")
	}

	log.Info("stopped")
}

// openKV connects to Redis when configured and falls back to the in-memory
// store otherwise. Without Redis, cached responses and queued actions do
// not survive a restart.
func openKV(cfg *config.Config, log *logger.Logger) kv.Store {
	if cfg.Redis.Addr == "" {
		log.Info("redis not configured, using in-memory store")
		return kv.NewMemory()
	}
	redisStore, err := kv.NewRedis(kv.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   cfg.Redis.KeyPrefix,
	})
	if err != nil {
		log.WithError(err).Warn("redis unavailable, falling back to in-memory store")
		return kv.NewMemory()
	}
	log.Info("connected to redis", "addr", cfg.Redis.Addr)
	return redisStore
}

// seedTokens loads session tokens handed over by the login flow, if any.
func seedTokens(ctx context.Context, tokens *auth.TokenStore, log *logger.Logger) {
	if v := os.Getenv("MANDISTREAM_ACCESS_TOKEN"); v != "" {
		if err := tokens.SetAccessToken(ctx, v); err != nil {
			log.WithError(err).Warn("failed to store access token")
		}
	}
	if v := os.Getenv("MANDISTREAM_REFRESH_TOKEN"); v != "" {
		if err := tokens.SetRefreshToken(ctx, v); err != nil {
			log.WithError(err).Warn("failed to store refresh token")
		}
	}
}

// subscriptions builds the join messages replayed on every connect: the
// price feed plus the trend advisories. Empty commodity and state lists
// subscribe to everything.
func subscriptions(cfg *config.Config) []model.Subscription {
	return []model.Subscription{
		{
			Type:        "prices",
			Commodities: cfg.Channel.Commodities,
			States:      cfg.Channel.States,
		},
		{
			Type:        "trends",
			Commodities: cfg.Channel.Commodities,
		},
	}
}

func mustSchedule(sched *cron.Cron, spec string, log *logger.Logger, name string, job func()) {
	if _, err := sched.AddFunc(spec, job); err != nil {
		log.Error("invalid cron expression", "job", name, "spec", spec, "error", err)
		os.Exit(1)
	}
}

// queueNotifier records triggered alerts in the notification sync queue so
// the notification service delivers them even if it is unreachable right
// now.
type queueNotifier struct {
	queues *offline.SyncQueues
	log    *logger.Logger
}

func (n *queueNotifier) NotifyAlert(alert model.TriggeredAlert) {
	n.log.Info("price alert triggered", "crop", alert.Commodity, "price", alert.Price)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := n.queues.Enqueue(ctx, offline.QueueNotifications, alert); err != nil {
		n.log.WithError(err).Warn("failed to queue alert notification")
	}
}
