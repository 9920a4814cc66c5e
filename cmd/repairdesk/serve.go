package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pitabwire/repairdesk/internal/capability"
	"github.com/pitabwire/repairdesk/internal/command"
	"github.com/pitabwire/repairdesk/internal/config"
	"github.com/pitabwire/repairdesk/internal/definition"
	"github.com/pitabwire/repairdesk/internal/metadata"
	"github.com/pitabwire/repairdesk/internal/observability"
	"github.com/pitabwire/repairdesk/internal/search"
	"github.com/pitabwire/repairdesk/internal/section"
	"github.com/pitabwire/repairdesk/internal/session"
	"github.com/pitabwire/repairdesk/internal/transport"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg *config.Config) error {
	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, observability.ServiceName, version)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.InitMetrics(reg)

	// Definitions and sections.
	defs, err := loadDefinitions(cfg.Definitions)
	if err != nil {
		return fmt.Errorf("definitions: %w", err)
	}
	catalog, locale, err := newCatalog(cfg.Table)
	if err != nil {
		return err
	}
	if verrs := validateDefinitions(defs, catalog); len(verrs) > 0 {
		for _, ve := range verrs {
			logger.Error("definition validation error", zap.String("error", ve.Error()))
		}
		return fmt.Errorf("definition validation failed with %d errors", len(verrs))
	}
	registry := definition.NewRegistry(defs)
	metrics.SetDefinitionsLoaded(len(defs))

	sections, err := section.Load(registry, catalog, section.Options{Locale: locale, PageSizes: cfg.Table.PageSizes})
	if err != nil {
		return fmt.Errorf("sections: %w", err)
	}
	for name, n := range sections.Stores().Sizes() {
		metrics.SetStoreRecords(name, n)
	}

	// Roles and sessions.
	policy, err := capability.NewStaticPolicyEvaluator(cfg.Capability.StaticPolicyFile)
	if err != nil {
		return fmt.Errorf("static policy: %w", err)
	}
	resolver := capability.NewResolver(policy, cfg.Capability.Cache.TTL)
	resolver.SetCacheObserver(metrics.RecordCapabilityCache)

	accounts, err := session.NewAccounts(accountsFrom(cfg.Session))
	if err != nil {
		return fmt.Errorf("accounts: %w", err)
	}
	signer, err := session.NewSigner(cfg.Session.Secret, cfg.Session.Issuer, cfg.Session.TokenTTL)
	if err != nil {
		return fmt.Errorf("session signer: %w", err)
	}
	sessions := session.NewManager(accounts, signer, cfg.Session.IdleTTL)

	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()
	go sessions.RunSweeper(bgCtx, cfg.Session.SweepInterval, logger)
	go reloadPolicyOnHangup(bgCtx, policy, resolver, logger)

	readiness := observability.ReadinessChecks{
		SectionsLoaded: func() int { return len(sections.All()) },
		Dependencies:   map[string]observability.HealthChecker{},
	}

	guard, closeStore, err := buildGuard(bgCtx, cfg.Idempotency, &readiness, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	searchProvider := search.NewSearchProvider(sections, cfg.Search.TimeoutPerProvider, cfg.Search.MaxResultsPerProvider)
	searchProvider.SetObserver(metrics.RecordSearchSection)

	router := transport.NewRouter(transport.Dependencies{
		Config:    cfg,
		Logger:    logger,
		Sessions:  sessions,
		Resolver:  resolver,
		Menu:      metadata.NewMenuProvider(sections),
		Pages:     metadata.NewPageProvider(sections, metadata.NewActionProvider()),
		Search:    searchProvider,
		Guard:     guard,
		Metrics:   metrics,
		Gatherer:  reg,
		Readiness: readiness,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.Int("definitions", len(defs)),
		zap.String("definitions_checksum", registry.Checksum()),
		zap.Int("accounts", len(accounts.List())),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}
	bgCancel()

	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}

// buildGuard creates the submission guard on the configured store. A Redis
// store is registered as a readiness dependency. The returned closer is
// never nil.
func buildGuard(ctx context.Context, cfg config.IdempotencyConfig, readiness *observability.ReadinessChecks, logger *zap.Logger) (*command.Guard, func(), error) {
	if !cfg.Enabled {
		logger.Info("idempotency keys disabled")
		return nil, func() {}, nil
	}

	switch cfg.Store.Driver {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.Store.Addr, DB: cfg.Store.DB})
		store := command.NewRedisIdempotencyStore(client)
		if err := store.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("idempotency store: ping %s: %w", cfg.Store.Addr, err)
		}
		readiness.Dependencies["idempotency_store"] = observability.CheckFunc(store.Ping)
		breaker := command.NewBreakerStore(store, cfg.Store.BreakerThreshold, cfg.Store.BreakerCooldown)
		breaker.OnStateChange(func(s command.BreakerState) {
			logger.Warn("idempotency store breaker", zap.Stringer("state", s))
		})
		logger.Info("using redis idempotency store", zap.String("addr", cfg.Store.Addr))
		closer := func() {
			if err := client.Close(); err != nil {
				logger.Warn("closing redis client", zap.Error(err))
			}
		}
		return command.NewGuard(breaker, cfg.Store.DefaultTTL, logger), closer, nil
	default:
		store := command.NewMemoryIdempotencyStore()
		go sweepIdempotency(ctx, store, time.Minute, logger)
		logger.Info("using in-memory idempotency store")
		return command.NewGuard(store, cfg.Store.DefaultTTL, logger), func() {}, nil
	}
}

// sweepIdempotency drops expired submissions every interval until ctx is done.
func sweepIdempotency(ctx context.Context, store *command.MemoryIdempotencyStore, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := store.Sweep(); n > 0 {
				logger.Debug("expired idempotency keys", zap.Int("count", n), zap.Int("remaining", store.Len()))
			}
		}
	}
}

// reloadPolicyOnHangup rereads the capability policy on SIGHUP and drops
// the cached role grants. A broken file leaves the running policy in place.
func reloadPolicyOnHangup(ctx context.Context, policy *capability.StaticPolicyEvaluator, resolver *capability.Resolver, logger *zap.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := policy.Reload(); err != nil {
				logger.Error("policy reload failed", zap.Error(err))
				continue
			}
			resolver.Invalidate("")
			logger.Info("policy reloaded", zap.Strings("roles", policy.Roles()))
		}
	}
}
