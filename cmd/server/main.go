package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/munimike/contact-api/internal/config"
	"github.com/munimike/contact-api/internal/handler"
	"github.com/munimike/contact-api/internal/logging"
	"github.com/munimike/contact-api/internal/metrics"
	"github.com/munimike/contact-api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Setup("INFO")
		logging.Fatal("invalid configuration", "error", err)
	}
	logging.Setup(cfg.LogLevel)

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The sink outlives ctx: its token source must keep working while
	// in-flight requests drain after a shutdown signal.
	s, closeSink := buildSink(context.Background(), cfg)
	defer closeSink()

	contactService := service.NewContactService(s, service.DeliveryPolicy{
		BestEffort:   cfg.Sink.FailurePolicy == config.PolicyBestEffort,
		Timeout:      cfg.Sink.Timeout,
		Retries:      cfg.Sink.Retries,
		RetryBackoff: cfg.Sink.RetryBackoff,
	})
	slog.Info("contact sink ready",
		"sink", s.Name(),
		"failure_policy", cfg.Sink.FailurePolicy,
		"retries", cfg.Sink.Retries,
		"timeout", cfg.Sink.Timeout)

	h := handler.New(contactService, handler.CORSOptions{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		FallbackOrigin:   cfg.CORS.FallbackOrigin,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           cfg.CORS.MaxAge,
	})
	contactHandler := handler.NewContactHandler(contactService, handler.ContactConfig{
		HoneypotField:      cfg.Form.HoneypotField,
		MaxBodyBytes:       cfg.Form.MaxBodyBytes,
		HealthCheckEnabled: cfg.Form.HealthCheckEnabled,
		SinkChecks:         cfg.SinkChecks(),
		TrustedProxyCount:  cfg.Server.TrustedProxyCount,
	})

	var contactRoute http.Handler = contactHandler
	if limiter, name, closeLimiter := buildLimiter(cfg); limiter != nil {
		defer closeLimiter()
		contactRoute = handler.NewRateLimiter(limiter, name, cfg.Server.TrustedProxyCount).Middleware(contactHandler)
		slog.Info("rate limiting enabled", "limiter", name,
			"per_minute", cfg.RateLimit.PerMinute, "burst", cfg.RateLimit.Burst)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/contact", contactRoute)
	mux.HandleFunc("GET /api/health", h.Health)
	mux.Handle("GET /metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler.SecurityHeaders(handler.RequestLogger(h.CORS(handler.Recover(mux)))),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		slog.Info("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal("server error", "error", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// buildLimiter returns nil when rate limiting is disabled. REDIS_URL selects
// the shared limiter; otherwise buckets live in process memory.
func buildLimiter(cfg *config.Config) (handler.Limiter, string, func()) {
	rl := cfg.RateLimit
	if rl.PerMinute <= 0 {
		return nil, "", func() {}
	}
	if rl.RedisURL != "" {
		client, err := handler.ParseRedisURL(rl.RedisURL)
		if err != nil {
			logging.Fatal("invalid redis configuration", "error", err)
		}
		return handler.NewRedisLimiter(client, rl.PerMinute, rl.Burst), "redis", func() { _ = client.Close() }
	}
	ml := handler.NewMemoryLimiter(rl.PerMinute, rl.Burst)
	return ml, "memory", ml.Close
}
