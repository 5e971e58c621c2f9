package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"campusevents/internal/accounts"
	"campusevents/internal/app"
	"campusevents/internal/attendance"
	"campusevents/internal/config"
	"campusevents/internal/credential"
	"campusevents/internal/export"
	"campusevents/internal/httpapi"
	"campusevents/internal/logging"
	"campusevents/internal/mailer"
	"campusevents/internal/metrics"
	"campusevents/internal/notify"
	"campusevents/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("dev", "info")
		boot.Fatal().Err(err).Msg("load config")
	}
	log := logging.New(cfg.Env, cfg.LogLevel)

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("http server failed")
	}
}

func runHTTP(cfg config.App, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	if err := db.Migrate(ctx); err != nil {
		return err
	}

	acc := accounts.NewService(db.Client)
	if err := app.SeedAccounts(ctx, acc, cfg, log); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	q, closeQueue, err := app.Queue(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeQueue() }()

	// With the in-memory backend there is no separate worker to drain the queue.
	if cfg.QueueBackend == "memory" {
		h := &notify.Handler{
			Mail: mailer.New(mailer.Config{
				Host: cfg.SMTPHost, Port: cfg.SMTPPort, User: cfg.SMTPUser,
				Password: cfg.SMTPPassword, From: cfg.SMTPFrom,
			}, log),
			Metrics: m,
			Log:     log,
		}
		go func() {
			if err := h.Run(ctx, q); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("notification handler stopped")
			}
		}()
	}

	signer, err := credential.NewSigner(cfg.CredentialSecret)
	if err != nil {
		return err
	}
	images, err := app.Images(cfg)
	if err != nil {
		return err
	}
	if cfg.CredentialAcceptUnsigned {
		log.Warn().Msg("unsigned credentials are accepted at verification")
	}

	pub := notify.NewPublisher(q)
	pub.Timeout = cfg.QueuePublishTimeout
	att := attendance.NewService(attendance.NewRepository(db.Client), attendance.Options{
		Signer:         signer,
		Images:         images,
		Exporter:       export.Exporter{PDFEnabled: cfg.ExportPDFEnabled},
		Notifier:       pub,
		Metrics:        m,
		Logger:         log,
		AcceptUnsigned: cfg.CredentialAcceptUnsigned,
	})

	health := []httpapi.HealthCheck{{Name: "db", Healthy: db.Healthy}}
	if cfg.QueueBackend == "redis" {
		r, err := store.NewRedis(cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer func() { _ = r.Close() }()
		health = append(health, httpapi.HealthCheck{Name: "redis", Healthy: r.Healthy})
	}

	r := httpapi.NewRouter(httpapi.Deps{
		Attendance: att,
		Accounts:   acc,
		Tokens: httpapi.TokenConfig{
			SigningKey: cfg.SessionSecret,
			Issuer:     cfg.TokenIssuer,
			TTL:        cfg.AccessTTL,
		},
		Logger:          log,
		Metrics:         m,
		Gatherer:        reg,
		Health:          health,
		CORSOrigins:     cfg.CORSOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
	})
	if cfg.CredentialStore == "dir" {
		r.Static("/static/qrcodes", cfg.CredentialDir)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("db", string(db.Dialect)).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced shutdown")
	}
	log.Info().Msg("server exited")
	return nil
}
