package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"openbadges/internal/badge"
	issuanceservice "openbadges/internal/issuance/service"
	issuancestore "openbadges/internal/issuance/store"
	jwttoken "openbadges/internal/jwt_token"
	"openbadges/internal/keys/envelope"
	keyservice "openbadges/internal/keys/service"
	keystore "openbadges/internal/keys/store"
	"openbadges/internal/platform/config"
	"openbadges/internal/platform/database"
	"openbadges/internal/platform/health"
	"openbadges/internal/platform/logger"
	"openbadges/internal/platform/metrics"
	"openbadges/internal/platform/redis"
	"openbadges/internal/platform/tracer"
	statuscache "openbadges/internal/statuslist/cache"
	statusservice "openbadges/internal/statuslist/service"
	statusstore "openbadges/internal/statuslist/store"
	httptransport "openbadges/internal/transport/http"
	"openbadges/internal/verification"
	"openbadges/migrations"
	"openbadges/pkg/platform/audit"
	auditmetrics "openbadges/pkg/platform/audit/metrics"
	"openbadges/pkg/platform/audit/publisher"
	auditmemory "openbadges/pkg/platform/audit/store/memory"
	auditpostgres "openbadges/pkg/platform/audit/store/postgres"
	"openbadges/pkg/platform/circuit"
)

const redisStatsInterval = 15 * time.Second

// stores groups the persistence backends so main can pick Postgres or
// memory in one place.
type stores struct {
	keys       keystore.Store
	statusList statusstore.Store
	assertions issuancestore.Store
	audit      audit.Store
}

// main wires dependencies and owns the server lifecycle. Business logic lives
// in the internal service packages.
func main() {
	cfg, err := config.Load()
	if err != nil {
		// The logger level comes from config, so this failure goes to stderr.
		fmt.Fprintf(os.Stderr, "openbadges: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	healthHandler := health.New("memory")

	st := stores{
		keys:       keystore.NewInMemoryStore(),
		statusList: statusstore.NewInMemoryStore(),
		assertions: issuancestore.NewInMemoryStore(),
		audit:      auditmemory.NewInMemoryStore(),
	}
	pool, err := database.New(ctx, database.DefaultConfig(cfg.DatabaseURL))
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close() //nolint:errcheck // process is exiting
		if err := pool.Migrate(ctx, migrations.FS); err != nil {
			return err
		}
		st = stores{
			keys:       keystore.NewPostgres(pool.DB()),
			statusList: statusstore.NewPostgres(pool.DB()),
			assertions: issuancestore.NewPostgres(pool.DB()),
			audit:      auditpostgres.New(pool.DB()),
		}
		healthHandler = health.New("postgres")
		healthHandler.RegisterCheck("postgres", pool.Health)
	} else {
		log.Warn("BADGE_DATABASE_URL not set; keys, status lists and assertions are kept in memory")
	}

	statusOpts := []statusservice.Option{
		statusservice.WithLogger(log),
		statusservice.WithMetrics(m),
	}
	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck // process is exiting
		go redisClient.RecordPoolStats(ctx, redisStatsInterval)
		breaker := circuit.New("status-cache",
			circuit.WithFailureThreshold(cfg.CacheBreaker.FailureThreshold),
			circuit.WithCooldown(cfg.CacheBreaker.Cooldown),
		)
		redisCache := statuscache.NewRedisCache(redisClient.Client, cfg.StatusCacheTTL)
		statusOpts = append(statusOpts, statusservice.WithCache(statuscache.NewGuarded(redisCache, breaker, log, m)))
		healthHandler.RegisterCheck("redis", redisClient.Health)
	}

	env, err := envelope.NewAESGCM(cfg.MasterKey)
	if err != nil {
		return err
	}
	keys := keyservice.NewManager(st.keys, env,
		keyservice.WithLogger(log),
		keyservice.WithMetrics(m),
		keyservice.WithKeyCache(keyservice.NewLRUKeyCache(cfg.KeyCacheSize, cfg.KeyCacheTTL)),
	)
	statusLists := statusservice.New(st.statusList, keys, statusservice.Config{
		BaseURL:       cfg.StatusListBaseURL,
		DefaultLength: cfg.StatusListLength,
		WriteRetries:  cfg.StatusWriteRetries,
	}, statusOpts...)
	auditPublisher := publisher.NewPublisher(st.audit,
		publisher.WithAsyncBuffer(cfg.AuditBufferSize),
		publisher.WithPublisherLogger(log),
		publisher.WithMetrics(auditmetrics.New()),
	)
	defer auditPublisher.Close()

	codec := badge.NewCodec(badge.WithLogger(log), badge.WithMetrics(m))
	issuance := issuanceservice.New(st.assertions, keys, statusLists, codec,
		issuanceservice.WithLogger(log),
		issuanceservice.WithMetrics(m),
		issuanceservice.WithContexts(cfg.CredentialContexts),
		issuanceservice.WithAuditor(audit.NewLogger(log, auditPublisher)),
	)
	verifier := verification.New(keys, statusLists,
		verification.WithLogger(log),
		verification.WithMetrics(m),
		verification.WithTracer(tracer.NewOTel()),
		verification.WithAssertionSource(issuance),
		verification.WithBadgeExtractor(codec),
	)

	adminSecret := cfg.AdminJWTSecret
	if adminSecret == "" {
		log.Warn("BADGE_ADMIN_JWT_SECRET not set; admin routes will reject every token")
		adminSecret, err = randomSecret()
		if err != nil {
			return err
		}
	}
	tokens := jwttoken.NewJWTService(adminSecret, cfg.AdminJWTIssuer, cfg.AdminJWTAudience, 0)

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Logger:         log,
		Metrics:        m,
		Health:         healthHandler,
		RequestTimeout: cfg.RequestTimeout,
		MaxBodyBytes:   cfg.MaxBodyBytes,
	},
		httptransport.NewVerifyHandler(verifier, codec, log),
		httptransport.NewAssertionHandler(issuance, tokens, log),
		httptransport.NewStatusListHandler(statusLists, log),
	)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.RequestTimeout,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down server gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
