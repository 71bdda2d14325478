// ============================================================================
// MAIN.GO - APPLICATION ENTRY POINT
// ============================================================================
// Startup flow:
//   config -> logger -> database -> redis (optional) -> caches and limiters
//   -> services -> background jobs -> HTTP server -> wait for signal
//   -> graceful shutdown in reverse order
// ============================================================================

package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"shortlink/internal/analytics"
	"shortlink/internal/auth"
	"shortlink/internal/cache"
	"shortlink/internal/config"
	"shortlink/internal/geo"
	httpHandler "shortlink/internal/handler/http"
	"shortlink/internal/jobs"
	"shortlink/internal/ratelimit"
	"shortlink/internal/repository/database"
	redisRepo "shortlink/internal/repository/redis"
	"shortlink/internal/service"
	"shortlink/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("shortlink: %v", err)
	}
}

func run() error {
	// ========================================================================
	// STEP 1: LOAD CONFIGURATION
	// ========================================================================
	// Everything comes from environment variables; see internal/config for
	// names and defaults.
	// ========================================================================
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// ========================================================================
	// STEP 2: INITIALIZE STRUCTURED LOGGER
	// ========================================================================
	appLogger := logger.NewWithOptions(logger.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	slog.SetDefault(appLogger.Logger)
	appLogger.Info("Starting shortlink",
		"environment", cfg.App.Environment,
		"port", cfg.Server.Port,
		"db_driver", cfg.Database.Driver,
		"recording_policy", cfg.App.RecordingPolicy,
	)

	// SIGINT/SIGTERM cancel ctx; everything below shuts down from it
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// STEP 3: DATABASE
	// ========================================================================
	// Postgres runs on a pgx pool handed to gorm; sqlite is for local runs.
	// ========================================================================
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(); err != nil {
			return err
		}
	}
	appLogger.Info("Database connection established", "dialect", db.Dialect())

	// ========================================================================
	// STEP 4: REDIS (OPTIONAL)
	// ========================================================================
	// Redis backs the shared link cache and the distributed rate limiters.
	// Without it the service runs on the in-process tiers alone.
	// ========================================================================
	var (
		redisClient *redis.Client
		redisCache  *redisRepo.Cache
		remote      cache.Remote
	)
	if cfg.Redis.Enabled {
		redisClient, err = redisRepo.InitRedis(cfg.Redis.RedisAddr(), cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer redisClient.Close()

		redisCache = redisRepo.NewCache(redisClient, cfg.Redis.CacheTTL)
		remote = redisCache
		appLogger.Info("Redis connection established", "addr", cfg.Redis.RedisAddr())
	}

	// ========================================================================
	// STEP 5: CACHES, LIMITERS, TOKENS, GEO
	// ========================================================================
	local, err := cache.NewLocal(cfg.App.LocalCacheMaxItems, cfg.App.LocalCacheTTL)
	if err != nil {
		return err
	}
	linkCache := cache.NewTiered(local, remote, appLogger.Logger)
	defer linkCache.Close()
	if err := linkCache.Listen(ctx); err != nil {
		appLogger.Warn("Cache invalidation subscription failed, local entries expire by TTL", "error", err)
	}

	localAPILimiter := ratelimit.NewLocalLimiter(cfg.App.RateLimitPerMinute, time.Minute)
	localAttempts := ratelimit.NewLocalLimiter(cfg.App.PasswordAttempts, cfg.App.PasswordWindow)
	var apiLimiter, attemptLimiter ratelimit.Limiter = localAPILimiter, localAttempts
	if redisClient != nil {
		apiLimiter = ratelimit.NewFallback(
			ratelimit.NewRedisLimiter(redisClient, "api", cfg.App.RateLimitPerMinute, time.Minute),
			localAPILimiter, appLogger.Logger)
		attemptLimiter = ratelimit.NewFallback(
			ratelimit.NewRedisLimiter(redisClient, "password", cfg.App.PasswordAttempts, cfg.App.PasswordWindow),
			localAttempts, appLogger.Logger)
	}
	if !cfg.App.RateLimitEnabled {
		apiLimiter = nil
	}
	go cleanupLimiters(ctx, localAPILimiter, localAttempts)

	tokens := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.GrantTTL)

	// without a MaxMind database only the edge country header is used
	locator, err := geo.Open(cfg.GeoIP.DatabasePath)
	if err != nil {
		return err
	}
	defer locator.Close()
	appLogger.Info("Geolocation ready", "maxmind", cfg.GeoIP.DatabasePath != "", "country_header", cfg.GeoIP.CountryHeader)

	// ========================================================================
	// STEP 6: DEPENDENCY INJECTION
	// ========================================================================
	// Repositories -> services -> handler, wired by hand.
	// ========================================================================
	links := database.NewLinkRepository(db)
	clicks := database.NewClickRepository(db)
	rollups := database.NewRollupRepository(db)

	linkService := service.NewLinkService(links, linkCache, service.LinkServiceConfig{
		SelfHost:    selfHost(cfg.App.BaseURL),
		CodeLength:  cfg.App.ShortCodeLength,
		MaxAttempts: cfg.App.MaxCodeAttempts,
	}, appLogger.Logger)

	recorder := service.NewClickRecorder(clicks, analytics.NewClassifier(nil), locator, appLogger.Logger)
	aggregator := service.NewAggregator(db, clicks, rollups, appLogger.Logger)

	redirectService := service.NewRedirectService(service.RedirectServiceDeps{
		Resolver:   linkService,
		Tx:         db,
		Links:      links,
		Recorder:   recorder,
		Aggregator: aggregator,
		Grants:     tokens,
		Attempts:   attemptLimiter,
		Policy:     cfg.App.RecordingPolicy,
		Logger:     appLogger.Logger,
	})
	statsService := service.NewStatsService(links, clicks, rollups)

	checks := map[string]httpHandler.HealthChecker{"database": db}
	if redisCache != nil {
		checks["redis"] = redisCache
	}
	handler := httpHandler.NewHandler(linkService, redirectService, statsService, appLogger.Logger, httpHandler.Options{
		BaseURL:       cfg.App.BaseURL,
		CountryHeader: cfg.GeoIP.CountryHeader,
		SecureCookies: cfg.App.Environment == "production",
		Checks:        checks,
	})

	// ========================================================================
	// STEP 7: BACKGROUND JOBS
	// ========================================================================
	// Reconcile finished days into rollups and sweep expired links.
	// ========================================================================
	stopJobs := func() {}
	if cfg.Jobs.Enabled {
		scheduler := jobs.NewScheduler(aggregator, linkService, rollups, cfg.Jobs, appLogger.Logger)
		stopJobs = scheduler.Start(ctx)
	}

	// ========================================================================
	// STEP 8: ROUTER AND HTTP SERVER
	// ========================================================================
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	routerCfg := httpHandler.RouterConfig{
		Logger:         appLogger.Logger,
		Identity:       tokens,
		APILimiter:     apiLimiter,
		TrustedProxies: cfg.Server.TrustedProxies,
	}
	if cfg.App.EnableMetrics {
		routerCfg.Metrics = promhttp.Handler()
	}
	router, err := httpHandler.NewRouter(handler, routerCfg)
	if err != nil {
		stopJobs()
		return err
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		appLogger.Info("Server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// ========================================================================
	// STEP 9: GRACEFUL SHUTDOWN
	// ========================================================================
	// Stop accepting requests, drain in-flight ones, stop the jobs, then the
	// deferred closes release cache, redis and database in reverse order.
	// ========================================================================
	select {
	case <-ctx.Done():
		appLogger.Info("Shutting down server...")
	case err := <-serverErr:
		stopJobs()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", "error", err)
	}
	stopJobs()

	appLogger.Info("Server exited gracefully")
	return nil
}

// selfHost extracts host[:port] from the public base URL
func selfHost(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// cleanupLimiters drops idle per-key buckets of the in-process limiters
func cleanupLimiters(ctx context.Context, limiters ...*ratelimit.LocalLimiter) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, l := range limiters {
				l.Cleanup(time.Hour)
			}
		}
	}
}
