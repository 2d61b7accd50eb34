package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/walltrack/engine/internal/adminapi"
	"github.com/walltrack/engine/internal/breaker"
	"github.com/walltrack/engine/internal/config"
	"github.com/walltrack/engine/internal/db"
	"github.com/walltrack/engine/internal/eventlog"
	"github.com/walltrack/engine/internal/ingest"
	"github.com/walltrack/engine/internal/position"
	"github.com/walltrack/engine/internal/pricemonitor"
	"github.com/walltrack/engine/internal/swapqueue"
	"github.com/walltrack/engine/internal/tokencache"
	"github.com/walltrack/engine/internal/walletcache"
	"github.com/walltrack/engine/pkg/models"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
	log.Logger = logger

	// ─── Required Environment Variables ─────────────────────────────────
	// All credentials MUST come from environment variables. No fallback
	// defaults for security-sensitive values.
	// ────────────────────────────────────────────────────────────────────

	dbURL := requireEnv("DATABASE_URL")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbStore, err := db.Connect(ctx, dbURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer dbStore.Close()
	if err := dbStore.InitSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to init schema")
	}

	cfgStore := config.New(dbStore, logger)
	if err := cfgStore.Load(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to load config store")
	}
	if _, ok := cfgStore.Active(); !ok {
		seedDefaultConfig(ctx, cfgStore)
	}

	wallets := walletcache.New(dbStore, logger)
	if err := wallets.WarmLoad(ctx); err != nil {
		log.Warn().Err(err).Msg("wallet cache warm load failed, starting cold")
	}
	go wallets.RunRefreshLoop(ctx)

	tokenPrimary := tokencache.NewHTTPProvider("birdeye", requireEnv("TOKEN_PROVIDER_PRIMARY_URL"), http.DefaultClient, 2, 3*time.Second)
	var tokenFallback tokencache.Provider
	if url := os.Getenv("TOKEN_PROVIDER_FALLBACK_URL"); url != "" {
		tokenFallback = tokencache.NewHTTPProvider("dexscreener", url, http.DefaultClient, 2, 3*time.Second)
	}
	tokens := tokencache.New(tokenPrimary, tokenFallback, logger)

	eventLog := eventlog.New(dbStore, logger)

	simulationMode := os.Getenv("SIMULATION_MODE") == "true"
	var gateway swapqueue.Gateway = swapqueue.SimulationGateway{}
	if !simulationMode {
		slippageBps, _ := strconv.Atoi(getEnvOrDefault("SWAP_SLIPPAGE_BPS", "100"))
		httpGateway := swapqueue.NewHTTPGateway(requireEnv("SWAP_GATEWAY_URL"), slippageBps, 10*time.Second)
		gateway = swapqueue.NewBreakerGateway(httpGateway)
	} else {
		log.Warn().Msg("SIMULATION_MODE=true: swap gateway is a synthetic no-op fill, no real orders will be placed")
	}

	brk := breaker.New(cfgStore, func(event models.BreakerEvent) {
		if err := eventLog.RecordBreakerEvent(context.Background(), event); err != nil {
			log.Warn().Err(err).Msg("failed to persist breaker event")
		}
	}, logger)

	minSpacing := minSpacingDuration(cfgStore)

	var posManager *position.Manager
	queue := swapqueue.New(gateway, minSpacing, brk.IsActive, func(order models.Order) {
		posManager.HandleOrderUpdate(order)
		if err := eventLog.RecordOrder(context.Background(), order); err != nil {
			log.Warn().Err(err).Str("order", order.ID).Msg("failed to persist order")
		}
	}, logger)

	posManager = position.New(cfgStore, queue, brk.RecordClose, logger)

	var lastWebhookAt atomic.Int64
	pipeline := ingest.NewPipeline(wallets, tokens, posManager, cfgStore, eventLog, logger)

	pricePrimary := pricemonitor.NewHTTPPriceProvider("birdeye", requireEnv("PRICE_PROVIDER_PRIMARY_URL"), http.DefaultClient, 100, 3*time.Second)
	var priceFallback pricemonitor.PriceProvider
	if url := os.Getenv("PRICE_PROVIDER_FALLBACK_URL"); url != "" {
		priceFallback = pricemonitor.NewHTTPPriceProvider("dexscreener", url, http.DefaultClient, 30, 3*time.Second)
	}
	monitor := pricemonitor.New(posManager, cfgStore, pricePrimary, priceFallback, brk.IsActive, logger)

	go queue.Run(ctx)
	go pipeline.Run(ctx)
	go monitor.Run(ctx)

	webhookHandler := ingest.NewHandler(ingest.WebhookSecret(), pipeline, logger)
	adminHandler := adminapi.New(cfgStore, brk, wallets, tokens, monitor, queue, dbStore,
		func() time.Time {
			if v := lastWebhookAt.Load(); v != 0 {
				return time.Unix(v, 0)
			}
			return time.Time{}
		}, logger)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(logger))
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/webhooks/helius" {
			lastWebhookAt.Store(time.Now().Unix())
		}
		c.Next()
	})
	webhookHandler.Register(r)
	adminHandler.Register(r, requireEnv("ADMIN_TOKEN"))

	port := getEnvOrDefault("PORT", "8080")
	srv := &http.Server{Addr: ":" + port, Handler: r}

	go func() {
		log.Info().Str("port", port).Msg("walltrack engine listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received, draining in-flight work")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("server shutdown did not complete cleanly")
	}
}

// requestLogger replaces gin's default access logging with zerolog's
// structured output.
func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

func seedDefaultConfig(ctx context.Context, cfgStore *config.Store) {
	if _, err := cfgStore.SaveDraft(ctx, config.Default()); err != nil {
		log.Fatal().Err(err).Msg("failed to seed default config draft")
		return
	}
	if _, err := cfgStore.Activate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to activate seeded default config")
	}
	log.Info().Msg("no active config found, seeded and activated the built-in default")
}

func minSpacingDuration(cfgStore *config.Store) time.Duration {
	cfg, ok := cfgStore.Active()
	if !ok {
		return 2 * time.Second
	}
	seconds, _ := cfg.Queue.MinSpacingSeconds.Float64()
	if seconds <= 0 {
		return time.Second
	}
	return time.Duration(seconds * float64(time.Second))
}

// requireEnv reads a required environment variable and exits if it is not set.
func requireEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		log.Fatal().Str("var", key).Msg("required environment variable is not set")
	}
	return val
}

// getEnvOrDefault returns the env var value or a safe default for non-secret settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
