package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"stockmaster/backend/internal/cache"
	"stockmaster/backend/internal/catalog"
	"stockmaster/backend/internal/config"
	"stockmaster/backend/internal/httpapi"
	"stockmaster/backend/internal/logger"
	"stockmaster/backend/internal/metrics"
	"stockmaster/backend/internal/service"
	"stockmaster/backend/internal/store"
	"stockmaster/backend/internal/store/memory"
	pgstore "stockmaster/backend/internal/store/postgres"
)

const janitorInterval = 5 * time.Minute

func main() {
	envErr := godotenv.Load()
	cfg := config.Load()
	log := logger.New(cfg.AppEnv)
	slog.SetDefault(log)
	if envErr != nil {
		log.Warn("no .env file loaded, using process environment", "error", envErr)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 2)

	repo, closeRepo, err := buildRepository(ctx, cfg, log)
	if err != nil {
		log.Error("repository unavailable", "error", err)
		os.Exit(1)
	}
	if closeRepo != nil {
		closers = append(closers, closeRepo)
	}

	searchCache, closeCache := buildSearchCache(ctx, cfg, log)
	if closeCache != nil {
		closers = append(closers, closeCache)
	}

	m := metrics.New()
	searcher := catalog.NewSearcher(repo, searchCache, time.Duration(cfg.SearchCacheTTLSeconds)*time.Second, m)
	svc := service.New(repo, searcher, service.Options{Logger: log, Metrics: m})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)

	opts := []httpapi.Option{httpapi.WithLogger(log)}
	if cfg.MetricsEnabled {
		opts = append(opts, httpapi.WithMetrics(m))
	}
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, opts...)

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	go svc.RunJanitor(janitorCtx, janitorInterval)

	server := newServer(cfg, api.Handler())

	go func() {
		log.Info("stockmaster backend listening", "addr", cfg.Address(), "env", cfg.AppEnv)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	stopJanitor()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error("close error", "error", err)
		}
	}

	log.Info("server stopped")
}

func newServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Address(),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// buildRepository opens postgres when DATABASE_URL is set and refuses to fall
// back to memory if it is unreachable. The returned closer may be nil.
func buildRepository(ctx context.Context, cfg config.Config, log *slog.Logger) (store.Repository, func() error, error) {
	if cfg.DatabaseURL == "" {
		log.Info("repository: in-memory")
		return memory.NewSeeded(), nil, nil
	}

	pg, err := pgstore.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if cfg.RunMigrations {
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, nil, err
		}
	}
	log.Info("repository: postgres", "migrations", cfg.RunMigrations)
	return pg, pg.Close, nil
}

// buildSearchCache uses redis when REDIS_ADDR is set and reachable, and the
// noop cache otherwise. The returned closer may be nil.
func buildSearchCache(ctx context.Context, cfg config.Config, log *slog.Logger) (cache.SearchCache, func() error) {
	if cfg.RedisAddr == "" {
		log.Info("cache: noop")
		return cache.NoopSearchCache{}, nil
	}

	redisCache := cache.NewRedisSearchCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := redisCache.Ping(ctx); err != nil {
		log.Warn("redis unavailable, using noop cache", "error", err)
		_ = redisCache.Close()
		return cache.NoopSearchCache{}, nil
	}
	log.Info("cache: redis", "addr", cfg.RedisAddr)
	return redisCache, redisCache.Close
}
