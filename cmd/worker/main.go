package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campusevents/internal/app"
	"campusevents/internal/config"
	"campusevents/internal/logging"
	"campusevents/internal/mailer"
	"campusevents/internal/metrics"
	"campusevents/internal/notify"
)

// Worker consumes notification messages and sends the resulting mail.
func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("dev", "info")
		boot.Fatal().Err(err).Msg("load config")
	}
	log := logging.New(cfg.Env, cfg.LogLevel).With().Str("component", "worker").Logger()

	if cfg.QueueBackend == "memory" {
		log.Fatal().Msg("QUEUE_BACKEND=memory is drained by the api process; use redis or rabbitmq for a separate worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	q, closeQueue, err := app.Queue(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("queue connect failed")
	}
	defer func() { _ = closeQueue() }()

	reg := prometheus.NewRegistry()
	h := &notify.Handler{
		Mail: mailer.New(mailer.Config{
			Host: cfg.SMTPHost, Port: cfg.SMTPPort, User: cfg.SMTPUser,
			Password: cfg.SMTPPassword, From: cfg.SMTPFrom,
		}, log),
		Metrics: metrics.New(reg),
		Log:     log,
	}

	// Metrics listener on the port after the API's.
	metricsSrv := &http.Server{
		Addr:              ":" + metricsPort(cfg.HTTPPort),
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn().Err(err).Msg("metrics listener stopped")
		}
	}()

	log.Info().Str("backend", cfg.QueueBackend).Str("queue", cfg.QueueName).Msg("worker started, waiting for messages")
	if err := h.Run(ctx, q); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("worker failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Info().Msg("worker stopped")
}
