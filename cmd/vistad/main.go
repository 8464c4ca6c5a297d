// Command vistad runs the Memory Vista API server: university and profile
// management plus the editor access request workflow, on either the Postgres
// or the Redis document-store backend.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/storiats/memoryvista/pkg/access"
	"github.com/storiats/memoryvista/pkg/api"
	"github.com/storiats/memoryvista/pkg/audit"
	"github.com/storiats/memoryvista/pkg/auth"
	"github.com/storiats/memoryvista/pkg/config"
	"github.com/storiats/memoryvista/pkg/httputil"
	"github.com/storiats/memoryvista/pkg/middleware"
	"github.com/storiats/memoryvista/pkg/observability"
	"github.com/storiats/memoryvista/pkg/profiles"
	"github.com/storiats/memoryvista/pkg/requests"
	"github.com/storiats/memoryvista/pkg/store"
	"github.com/storiats/memoryvista/pkg/store/postgres"
	"github.com/storiats/memoryvista/pkg/store/redisstore"
	"github.com/storiats/memoryvista/pkg/universities"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	if err := run(log); err != nil {
		log.WithError(err).Fatal("vistad exited with error")
	}
}

func run(log *logrus.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if level, err := logrus.ParseLevel(cfg.Observability.LogLevel); err == nil {
		log.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	// Backend selection. db and redisClient stay nil for the backend not
	// in use; the health checker and audit logger key off that.
	var (
		st          store.Store
		db          *sql.DB
		redisClient *redis.Client
	)
	switch cfg.Store.Backend {
	case "postgres":
		pgStore, err := postgres.Open(ctx, cfg.Store.PostgresURL, cfg.Store.PostgresMaxConns)
		if err != nil {
			return fmt.Errorf("failed to open postgres store: %w", err)
		}
		st = pgStore
		db = pgStore.DB()
		log.Info("using postgres document store")
	case "redis":
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis not reachable: %w", err)
		}
		st = redisstore.New(redisClient)
		log.Info("using redis document store")
	default:
		return fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	defer st.Close()

	auditLog, err := buildAuditLogger(cfg, db)
	if err != nil {
		return fmt.Errorf("failed to initialize audit logging: %w", err)
	}
	defer auditLog.Close()

	resolver := access.NewResolver(st, cfg.Store.RoleCacheTTL, log)
	universityService := universities.NewService(st, resolver, auditLog, log)
	profileService := profiles.NewService(st, resolver, auditLog, log)
	requestService := requests.NewService(st, resolver, auditLog, requests.Config{
		MaxPendingRequests: cfg.Workflow.MaxPendingRequests,
		CooldownPeriod:     cfg.Workflow.CooldownPeriod,
	}, log)

	janitor := requests.NewJanitor(st, auditLog, cfg.Workflow.StaleRequestAge, log)
	if err := janitor.Start(cfg.Workflow.JanitorSchedule); err != nil {
		return fmt.Errorf("failed to start request janitor: %w", err)
	}
	defer janitor.Stop()

	codec, err := auth.NewTokenCodec(cfg.Auth.TokenSecret)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	server := api.NewServer(universityService, profileService, requestService, log)
	handler := buildMiddleware(ctx, cfg, codec, redisClient, metrics, log)(server.Handler())

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", apiServer.Addr).Info("starting API server")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.WithField("addr", healthServer.Addr).Info("starting health server")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("api server shutdown failed")
		}
		if err := healthServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("health server shutdown failed")
		}
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.WithError(err).Error("tracing shutdown failed")
		}
		return nil
	})

	return g.Wait()
}

func buildAuditLogger(cfg *config.Config, db *sql.DB) (audit.Logger, error) {
	var loggers []audit.Logger
	if cfg.Audit.ToDatabase && db != nil {
		dbLogger, err := audit.NewDBLogger(db)
		if err != nil {
			return nil, err
		}
		loggers = append(loggers, dbLogger)
	}
	if cfg.Audit.Directory != "" {
		fileLogger, err := audit.NewFileLogger(audit.FileLoggerConfig{BasePath: cfg.Audit.Directory})
		if err != nil {
			return nil, err
		}
		loggers = append(loggers, fileLogger)
	}
	switch len(loggers) {
	case 0:
		return audit.NopLogger{}, nil
	case 1:
		return loggers[0], nil
	default:
		return audit.NewMultiLogger(loggers...), nil
	}
}

func buildMiddleware(ctx context.Context, cfg *config.Config, codec *auth.TokenCodec, redisClient *redis.Client, metrics *observability.Metrics, log *logrus.Logger) func(http.Handler) http.Handler {
	chain := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(log),
		httputil.RecoveryMiddleware(log),
		observability.HTTPMetricsMiddleware(metrics),
		httputil.ContentTypeMiddleware,
		httputil.MaxBytesMiddleware(1 << 20),
	}

	// Identity is optional here; handlers decide which routes require it.
	authn := middleware.NewAuthMiddleware(codec, true)
	chain = append(chain, authn.Handler)

	if cfg.RateLimit.Enabled {
		limitCfg := &middleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimit.RequestsPerWindow,
			WindowDuration:    cfg.RateLimit.WindowDuration,
			BurstSize:         cfg.RateLimit.RequestsPerWindow / 10,
		}
		if cfg.RateLimit.Distributed && redisClient != nil {
			chain = append(chain, middleware.NewDistributedRateLimitMiddleware(redisClient, limitCfg, log).Handler)
		} else {
			limiter := middleware.NewRateLimitMiddleware(limitCfg)
			limiter.StartCleanup(ctx)
			chain = append(chain, limiter.Handler)
		}
	}

	return httputil.Chain(chain...)
}
