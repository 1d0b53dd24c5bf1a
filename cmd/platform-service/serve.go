package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"upets/platform-service/internal/access"
	"upets/platform-service/internal/auth"
	"upets/platform-service/internal/events"
	"upets/platform-service/internal/httpapi"
	"upets/platform-service/internal/qrimage"
	"upets/platform-service/internal/telemetry"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

func serveCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply database migrations before serving")
	return cmd
}

func serve(parent context.Context, migrate bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	log := a.log

	if migrate && a.pool != nil {
		if err := runMigrations(ctx, a.pool, log); err != nil {
			return err
		}
	}

	shutdownTracing := telemetry.Setup(ctx, serviceName, a.cfg.OTLPEndpoint, log)
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	var verifier *auth.Verifier
	if a.cfg.AuthDisabled {
		if a.cfg.Production() {
			return errors.New("AUTH_DISABLED is not allowed in production")
		}
		log.Warn("authentication disabled, every request acts as " + auth.LocalSubject)
	} else {
		verifier, err = auth.NewVerifier(ctx, auth.Options{
			Secret:   a.cfg.AuthJWTSecret,
			JWKSURL:  a.cfg.AuthJWKSURL,
			Issuer:   a.cfg.AuthIssuer,
			Audience: a.cfg.AuthAudience,
		})
		if err != nil {
			log.Warn("auth verifier unavailable, authenticated routes answer 401", zap.Error(err))
		}
	}

	var resolver *access.Resolver
	if a.store != nil {
		resolver = access.NewResolver(a.store, access.Options{TTL: a.cfg.RoleCacheTTL, Logger: log, Metrics: a.metrics})
	}

	trustedProxies, err := httpapi.ParseTrustedProxies(a.cfg.TrustedProxies)
	if err != nil {
		return err
	}

	handler := httpapi.NewHandler(httpapi.Options{
		Store:        a.store,
		Plans:        a.plans,
		Resolver:     resolver,
		Verifier:     verifier,
		AuthDisabled: a.cfg.AuthDisabled,
		Images:       qrimage.New(a.cfg.PublicOrigin),
		Metrics:      a.metrics,
		Logger:       log,
		RateLimit:    httpapi.RateLimitConfig{PerMinute: a.cfg.RateLimitPerMinute, Burst: a.cfg.RateLimitBurst},
		PublicLimit:  httpapi.RateLimitConfig{PerMinute: a.cfg.PublicRateLimitPerMinute, Burst: a.cfg.PublicRateLimitBurst},

		TrustedProxies: trustedProxies,
	})

	workers, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()
	if a.store != nil {
		go runExpirer(workers, a.store, a.cfg.ExpireInterval, a.cfg.ExpireBatchSize, log, a.metrics)
	}
	if a.store != nil && a.cfg.NATSURL != "" {
		nc, err := nats.Connect(a.cfg.NATSURL, nats.Name(serviceName), nats.MaxReconnects(-1))
		if err != nil {
			log.Warn("nats unavailable, events stay in the outbox", zap.Error(err))
		} else {
			defer func() { _ = nc.Drain() }()
			relay := events.NewRelay(a.store, nc, events.Config{
				SubjectPrefix: a.cfg.NATSSubjectPrefix,
				Interval:      a.cfg.OutboxPollInterval,
			}, log, a.metrics)
			go relay.Run(workers)
		}
	}

	server := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           otelhttp.NewHandler(handler.Routes(), serviceName),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// no write timeout: /api/cart/stream holds the connection open
		IdleTimeout: 60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", server.Addr), zap.String("version", Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	cancelWorkers()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown error", zap.Error(err))
	}
	return nil
}
