package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-gateway/internal/audit"
	"storefront-gateway/internal/auth"
	"storefront-gateway/internal/config"
	"storefront-gateway/internal/csrf"
	"storefront-gateway/internal/customer"
	"storefront-gateway/internal/httpapi"
	"storefront-gateway/internal/kvstore"
	"storefront-gateway/internal/metrics"
	"storefront-gateway/internal/migrations"
	"storefront-gateway/internal/proxy"
	"storefront-gateway/internal/ratelimit"
	"storefront-gateway/internal/rbac"
	"storefront-gateway/internal/secheaders"
	"storefront-gateway/pkg/logger"
	"storefront-gateway/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if cfg.DB.AutoMigrate {
		if err := migrations.Run(rootCtx, db); err != nil {
			log.Error("migrations failed", "err", err)
			os.Exit(1)
		}
		log.Info("migrations applied")
	}

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	gw, err := newGateway(*cfg, log, db, rdb, reg)
	if err != nil {
		log.Error("gateway init failed", "err", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           newRouter(gw),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("gateway listening", "addr", srv.Addr, "env", cfg.App.Env, "upstream", cfg.Upstream.StorefrontURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}

// gateway holds every component the routes are built from. Nothing here is global.
type gateway struct {
	cfg config.Config
	log *slog.Logger
	db  *sql.DB
	rdb redis.UniversalClient

	registry prometheus.Gatherer
	metrics  *metrics.Security

	auth     *auth.Manager
	headers  *secheaders.Headers
	csrf     *csrf.Guard
	limiters map[string]*ratelimit.Limiter
	slowDown *ratelimit.SlowDown
	gate     *rbac.Gate
	recorder *audit.Recorder
	proxy    *proxy.Proxy
	handlers httpapi.Handlers
}

func newGateway(cfg config.Config, log *slog.Logger, db *sql.DB, rdb redis.UniversalClient, reg *prometheus.Registry) (*gateway, error) {
	m := metrics.New(reg)

	store := kvstore.NewBreakerStore(
		kvstore.NewRedisStore(rdb, cfg.Redis.OpTimeout),
		kvstore.DefaultBreakerConfig("redis"),
		log, m,
	)

	authManager, err := auth.NewManager(cfg.Auth, store)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}

	hasher, err := rbac.NewHasher(cfg.Agent.KeySalt)
	if err != nil {
		return nil, fmt.Errorf("rbac: %w", err)
	}
	keys := rbac.NewPostgresKeyRepository(db)

	customers, err := customer.NewService(customer.NewPostgresRepository(db), 0, log)
	if err != nil {
		return nil, fmt.Errorf("customer: %w", err)
	}

	production := cfg.IsProduction()
	guard := csrf.NewGuard(production, m)

	upstream, err := proxy.New(cfg.Upstream.StorefrontURL, log, proxy.Options{
		StripHeaders: []string{cfg.Agent.KeyHeader},
		StripCookies: []string{guard.CookieName()},
	})
	if err != nil {
		return nil, fmt.Errorf("proxy: %w", err)
	}

	auditSvc := audit.NewService(audit.NewLogRepo(log))

	limiters := make(map[string]*ratelimit.Limiter)
	for name, p := range ratelimit.Policies(cfg.RateLimit) {
		key := ratelimit.ByClientIP
		if name == ratelimit.PolicyAgent {
			key = ratelimit.ByAgentKey(cfg.Agent.KeyHeader)
		}
		limiters[name] = ratelimit.NewLimiter(p, store, key, m)
	}

	return &gateway{
		cfg:      cfg,
		log:      log,
		db:       db,
		rdb:      rdb,
		registry: reg,
		metrics:  m,
		auth:     authManager,
		headers:  secheaders.New(production),
		csrf:     guard,
		limiters: limiters,
		slowDown: ratelimit.NewSlowDown(cfg.SlowDown, store, ratelimit.ByClientIP, ratelimit.SleepContext, m),
		gate:     rbac.NewGate(keys, hasher, cfg.Agent, m),
		recorder: audit.NewRecorder(auditSvc),
		proxy:    upstream,
		handlers: httpapi.Handlers{
			Auth:      authManager,
			Cookies:   auth.NewCookiePolicy(cfg.Auth.CookiePath, authManager.RefreshTTL(), production),
			Customers: customers,
			Keys:      keys,
			Audit:     auditSvc,
		},
	}, nil
}
