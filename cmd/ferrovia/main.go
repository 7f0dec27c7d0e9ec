package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"ferrovia/internal/cache"
	"ferrovia/internal/config"
	"ferrovia/internal/handler"
	"ferrovia/internal/hub"
	"ferrovia/internal/ingestor"
	"ferrovia/internal/middleware"
	"ferrovia/internal/refresh"
	"ferrovia/internal/saved"
	"ferrovia/internal/schedule"
	"ferrovia/internal/store"
	"ferrovia/pkg/dataset"
)

// legacyTomorrowCutoff is the next-day threshold older clients applied.
const legacyTomorrowCutoff = 23

// catalogStore is what the HTTP layer, the warmer and the stats need from a
// store beyond schedule.Store.
type catalogStore interface {
	schedule.Store
	cache.StationLister
	handler.DatasetStatsProvider
	handler.TrafficSource
}

func main() {
	config.LoadDotenv("")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("starting ferrovia server",
		"log_level", cfg.LogLevel.String(),
		"http_addr", cfg.HTTPAddr,
		"store_driver", cfg.StoreDriver,
		"timezone", cfg.Timezone,
		"snapshot_enabled", cfg.SnapshotEnabled,
		"redis_enabled", cfg.RedisEnabled,
	)

	opts := schedule.LookaheadOptions{
		TomorrowBeforeHour: cfg.TomorrowBeforeHour,
		TomorrowLimit:      cfg.TomorrowLimit,
	}
	if opts.TomorrowBeforeHour != legacyTomorrowCutoff {
		logger.Info("next-day cutoff differs from the legacy threshold",
			"tomorrow_before_hour", opts.TomorrowBeforeHour,
			"legacy_before_hour", legacyTomorrowCutoff,
			"tomorrow_limit", opts.TomorrowLimit,
		)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pingers := map[string]handler.Pinger{}

	var sqlStore *store.SQLStore
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		sqlStore, err = store.OpenSQLite(cfg.SQLitePath, logger)
	case config.DriverPostgres:
		sqlStore, err = store.OpenPostgres(ctx, cfg.DatabaseURL, logger)
	}
	if err != nil {
		logger.Error("failed to open database", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	if sqlStore != nil {
		defer sqlStore.Close()
		pingers["database"] = sqlStore

		if err := sqlStore.EnsureSchema(ctx); err != nil {
			logger.Error("failed to ensure schema", "error", err)
			os.Exit(1)
		}
		if cfg.DatasetImport {
			ds, _, err := dataset.NewLoader(cfg.DatasetPath, logger).Load(ctx)
			if err == nil {
				err = sqlStore.Import(ctx, ds)
			}
			if err != nil {
				logger.Error("failed to import dataset", "path", cfg.DatasetPath, "error", err)
				os.Exit(1)
			}
		}
	}

	var (
		src   catalogStore
		ing   *ingestor.SnapshotIngestor
		ready handler.Readiness = handler.ReadyFunc(func() bool { return true })
	)
	if cfg.StoreDriver == config.DriverMemory || cfg.SnapshotEnabled {
		mem := store.NewMemoryStore()

		var source ingestor.Source
		if sqlStore != nil {
			source = ingestor.DumpSource{DB: sqlStore}
		} else {
			source = dataset.NewLoader(cfg.DatasetPath, logger)
		}

		interval := cfg.SnapshotInterval
		if !cfg.SnapshotEnabled {
			interval = 0
		}
		ing = ingestor.NewSnapshotIngestor(source, mem, interval, logger)
		src = mem
		ready = ing
	} else {
		src = sqlStore
	}

	var (
		dayCache cache.Cache
		savedKV  saved.KV = saved.NewMemoryKV()
	)
	if cfg.RedisEnabled {
		redisCache, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
		if err != nil {
			logger.Warn("redis unavailable, using in-process cache", "error", err)
		} else {
			defer redisCache.Close()
			dayCache = redisCache
			savedKV = redisCache
			pingers["redis"] = redisCache
		}
	}
	if dayCache == nil && cfg.LocalCacheSize > 0 {
		dayCache = cache.NewLocalCache(cfg.LocalCacheSize, cfg.CacheTTL, logger)
	}

	resolver := schedule.NewResolver(src, cfg.Location, opts, logger)

	var warmer *cache.Warmer
	if dayCache != nil {
		if err := resolver.UseCache(dayCache, cfg.CacheTTL); err != nil {
			logger.Info("day cache disabled, resolving from live rows", "store_driver", cfg.StoreDriver, "error", err)
		} else {
			warmer = cache.NewWarmer(dayCache, resolver, src, cfg.CacheTTL, logger)
		}
	}

	wsHub := hub.NewHub(logger)
	refresher := refresh.New(resolver, wsHub, cfg.Location, logger)
	limiter := middleware.NewRateLimiter(cfg.RateLimitPerWindow, cfg.RateLimitWindow, cfg.RateLimitWhitelist, logger)
	stats := handler.NewStats()

	onDataChanged := func(ctx context.Context) {
		if warmer != nil {
			var err error
			if cfg.CacheWarmOnStart {
				err = warmer.Refresh(ctx)
			} else {
				err = warmer.Invalidate(ctx)
			}
			if err != nil {
				logger.Error("cache refresh after dataset update failed", "error", err)
			}
		}
		refresher.Tick(ctx, wsHub)
	}
	if ing != nil {
		ing.SetOnUpdate(onDataChanged)
	}

	scheduleHandler := handler.NewScheduleHandler(resolver, src, logger)
	trafficHandler := handler.NewTrafficHandler(src, logger)
	savedHandler := handler.NewSavedHandler(saved.NewManager(savedKV, logger), resolver, src, logger)
	wsHandler := handler.NewWSHandler(ctx, wsHub, resolver, refresher, cfg.Location, stats, logger)
	healthHandler := handler.NewHealthHandler(ready, pingers)
	statsHandler := handler.NewStatsHandler(stats, src, refresher, limiter, wsHub)

	api := http.NewServeMux()

	api.HandleFunc("GET /v1/stations", scheduleHandler.SearchStations)
	api.HandleFunc("GET /v1/stations/{id}", scheduleHandler.GetStation)
	api.HandleFunc("GET /v1/stations/{id}/departures", scheduleHandler.Departures)
	api.HandleFunc("GET /v1/stations/{id}/arrivals", scheduleHandler.Arrivals)
	api.HandleFunc("GET /v1/stations/{id}/board", scheduleHandler.Board)
	api.HandleFunc("GET /v1/trains/{number}", scheduleHandler.TrainDetails)

	api.HandleFunc("GET /v1/traffic", trafficHandler.List)
	api.HandleFunc("GET /v1/traffic/{id}", trafficHandler.Get)

	api.HandleFunc("GET /v1/saved/{owner}", savedHandler.List)
	api.HandleFunc("POST /v1/saved/{owner}", savedHandler.Create)
	api.HandleFunc("DELETE /v1/saved/{owner}", savedHandler.Clear)
	api.HandleFunc("DELETE /v1/saved/{owner}/{id}", savedHandler.Delete)

	api.HandleFunc("GET /v1/stats", statsHandler.GetStats)
	api.HandleFunc("GET /healthz", healthHandler.Healthz)
	api.HandleFunc("GET /readyz", healthHandler.Readyz)

	// The websocket route stays outside gzip, whose writer cannot be hijacked.
	mux := http.NewServeMux()
	mux.Handle("/v1/ws", limiter.Middleware(http.HandlerFunc(wsHandler.ServeWS)))
	mux.Handle("/", handler.Chain(api,
		stats.Middleware,
		handler.CORSMiddleware(cfg.CORSAllowedOrigins),
		limiter.Middleware,
		handler.GzipMiddleware,
	))

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go wsHub.Run(ctx)
	go limiter.Run(ctx)
	go refresher.Run(ctx, cfg.RefreshInterval, wsHub)

	if ing != nil {
		go ing.Start(ctx)
	} else if warmer != nil && cfg.CacheWarmOnStart {
		go func() {
			if err := warmer.WarmAll(ctx); err != nil {
				logger.Error("initial cache warm failed", "error", err)
			}
		}()
	}
	if warmer != nil {
		go warmer.ScheduleMidnightRefresh(ctx)
	}

	go func() {
		logger.Info("starting HTTP server", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case <-ctx.Done():
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	refresher.Close()

	logger.Info("shutdown complete")
}
