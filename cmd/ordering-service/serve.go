package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"dinein/ordering-service/internal/catalogue"
	"dinein/ordering-service/internal/config"
	"dinein/ordering-service/internal/httpapi"
	"dinein/ordering-service/internal/session"
	"dinein/ordering-service/internal/store"
	"dinein/ordering-service/internal/store/memory"
	"dinein/ordering-service/internal/store/postgres"
	"dinein/ordering-service/internal/telemetry"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type backend interface {
	store.SessionStore
	store.CatalogueStore
}

func newServeCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply database migrations before serving")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, log *logrus.Logger, migrate bool) error {
	shutdownTracing := telemetry.Setup(ctx, telemetry.Options{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Endpoint:       cfg.OTLPEndpoint,
		Insecure:       cfg.OTLPInsecure,
		Logger:         log,
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.WithError(err).Warn("tracer shutdown error")
		}
	}()

	var st backend
	var ready func(context.Context) error
	switch cfg.StoreDriver {
	case config.DriverMemory:
		log.Warn("using in-memory store, data is lost on restart")
		st = memory.NewStore()
	default:
		pool, err := postgres.Connect(ctx, postgres.ConnectOptions{
			DSN:           cfg.DatabaseURL,
			MaxConns:      cfg.PGMaxConns,
			Attempts:      cfg.PGConnectRetries,
			RetryInterval: cfg.PGConnectRetryInterval,
			Logger:        log,
		})
		if err != nil {
			return err
		}
		defer pool.Close()
		if migrate {
			if err := postgres.Migrate(ctx, pool, log); err != nil {
				return err
			}
		}
		st = postgres.NewStore(pool)
		ready = postgres.Healthcheck(pool)
	}

	if cfg.PaymentConfirmationKey == "" {
		log.Warn("PAYMENT_CONF_KEY is not set, payment confirmation will be rejected")
	}

	engine := session.NewEngine(st, session.Options{
		Expiry:           cfg.SessionExpiry(),
		MaxBillIDRetries: cfg.MaxBillIDRetries,
		BillIDRetryDelay: cfg.BillIDRetryDelay(),
		PaymentKey:       cfg.PaymentConfirmationKey,
		Logger:           log.WithField("component", "session"),
	})
	menu := catalogue.NewService(st, catalogue.Options{
		CacheTTL: cfg.CatalogueCacheTTL,
		Logger:   log.WithField("component", "catalogue"),
	})
	handler := httpapi.NewHandler(engine, menu, httpapi.Options{
		AdminKey: cfg.AdminAPIKey,
		Ready:    ready,
		Logger:   log.WithField("component", "httpapi"),
	})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:         cfg.RateLimitPerMinute,
		IPBurst:             cfg.RateLimitBurst,
		RestaurantPerMinute: cfg.RestaurantRateLimitPerMinute,
		RestaurantBurst:     cfg.RestaurantRateLimitBurst,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(httpapi.RequestID(httpapi.LoggingMiddleware(log, limiter.Middleware(handler.Routes()))), serviceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Infof("%s listening", serviceName)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown error")
		return err
	}
	log.Info("server stopped")
	return nil
}
