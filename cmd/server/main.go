package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/benbjohnson/clock"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/pairing-relay/internal/config"
	"github.com/openclaw/pairing-relay/internal/handler"
	"github.com/openclaw/pairing-relay/internal/hub"
	"github.com/openclaw/pairing-relay/internal/jobs"
	"github.com/openclaw/pairing-relay/internal/metrics"
	"github.com/openclaw/pairing-relay/internal/middleware"
	"github.com/openclaw/pairing-relay/internal/origin"
	"github.com/openclaw/pairing-relay/internal/redis"
	"github.com/openclaw/pairing-relay/internal/service"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	originPolicy, err := origin.NewPolicy(cfg.AllowedOrigins)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid ALLOWED_ORIGINS")
	}

	realIP, err := middleware.NewTrustedRealIP(cfg.TrustedProxies)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid TRUSTED_PROXIES")
	}

	clk := clock.New()
	m := metrics.New()

	policy := service.RateLimitPolicy{
		MaxAttempts: cfg.JoinMaxAttempts,
		Window:      cfg.JoinWindow(),
		Lockout:     cfg.Lockout(),
		Grace:       cfg.RateLimitGrace(),
	}

	var limiter service.JoinLimiter
	var backend handler.Checker
	if cfg.RedisURL != "" {
		redisClient, err := redis.NewClient(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		log.Info().Msg("redis connected, join limits are shared")

		limiter = service.NewRedisJoinLimiter(redisClient.Client, policy, clk)
		backend = redisClient
	} else {
		log.Info().Msg("REDIS_URL not set, join limits are kept in memory")
		limiter = service.NewMemoryJoinLimiter(policy, clk)
	}

	h := hub.New(config.HubQueueSize)
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go h.Run(hubCtx)

	registry := service.NewRegistry(service.NewCodeGenerator(), cfg.CodeTTL(), clk, m)

	sweeper := jobs.NewSweeper(clk,
		jobs.SessionSweep(h, registry, cfg.SessionSweepInterval()),
		jobs.RateLimitPrune(limiter, cfg.RateLimitSweepInterval()),
	)
	sweeper.Start()
	defer sweeper.Stop()

	wsHandler := handler.NewWSHandler(h, registry, limiter, m, originPolicy, handler.WSOptions{
		MaxMessageBytes:      cfg.MaxMessageBytes,
		MaxMessagesPerSecond: cfg.MaxMessagesPerSecond,
	})
	healthHandler := handler.NewHealthHandler(h, registry, backend)
	connectLimit := middleware.NewConnectRateLimitMiddleware(middleware.NewRateLimiter(clk), cfg.ConnectRatePerMin)
	securityHeaders := middleware.NewSecurityHeadersMiddleware(isProduction)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(realIP.Handler)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(securityHeaders.Handler)

	r.Get("/health", healthHandler.ServeHTTP)
	r.Get("/metrics", m.Handler().ServeHTTP)

	// No request timeout here: the socket outlives the handshake.
	r.With(connectLimit.Handler).Get("/ws", wsHandler.ServeHTTP)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	// Shutdown does not wait for hijacked connections, so live sessions are
	// torn down explicitly before the event loop stops.
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	var ended int
	if err := h.Call(shutdownCtx, func() { ended = registry.Shutdown() }); err != nil {
		log.Error().Err(err).Msg("failed to end live sessions")
	}
	log.Info().Int("sessions", ended).Msg("live sessions ended")

	sweeper.Stop()
	h.Stop()

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
