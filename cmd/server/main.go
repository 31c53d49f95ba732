package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/web3-frozen/ousd-analytics/internal/cache"
	"github.com/web3-frozen/ousd-analytics/internal/chain"
	"github.com/web3-frozen/ousd-analytics/internal/config"
	"github.com/web3-frozen/ousd-analytics/internal/dune"
	"github.com/web3-frozen/ousd-analytics/internal/handler"
	"github.com/web3-frozen/ousd-analytics/internal/indexer"
	"github.com/web3-frozen/ousd-analytics/internal/middleware"
	"github.com/web3-frozen/ousd-analytics/internal/refresh"
	"github.com/web3-frozen/ousd-analytics/internal/refresh/sources"
	"github.com/web3-frozen/ousd-analytics/internal/store"
	"github.com/web3-frozen/ousd-analytics/internal/telegram"
)

const (
	snapshotRetention = 30 * 24 * time.Hour
	pruneInterval     = 6 * time.Hour
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	if err := serve(logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func serve(logger *slog.Logger) error {
	cfg := config.Load()

	queries, err := config.LoadQueries(cfg.QueriesFile)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		pingers     []handler.Pinger
		snapshots   refresh.SnapshotStore
		pollOptions = []dune.Option{dune.WithInterval(cfg.DunePollInterval), dune.WithMaxWait(cfg.DuneMaxWait)}
		db          *store.Store
	)

	// Database is optional: without it snapshots live in memory only.
	if cfg.DatabaseURL != "" {
		db, err = store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		logger.Info("database connected and migrated")
		pingers = append(pingers, db)
		snapshots = db
		pollOptions = append(pollOptions, dune.WithRecorder(db))
	} else {
		logger.Warn("DATABASE_URL not set, snapshots will not survive restarts")
	}

	// Redis backs the staking cache and alert dedup when configured.
	var kv interface {
		cache.Store
		cache.Deduper
	} = cache.NewMemory()
	if cfg.RedisURL != "" {
		rdb, err := connectRedis(cfg, logger)
		if err != nil {
			return err
		}
		defer rdb.Close()
		pingers = append(pingers, rdb)
		kv = rdb
		logger.Info("redis connected")
	}

	var (
		engine     *refresh.Engine
		bot        *telegram.Bot
		engineOpts = []refresh.Option{refresh.WithInterval(cfg.PollInterval)}
	)
	if cfg.TelegramToken != "" && cfg.TelegramAlertChatID != 0 {
		bot = telegram.NewBot(cfg.TelegramToken, func() string { return engine.Status() }, logger)
		engineOpts = append(engineOpts, refresh.WithAlerts(bot.SendMessage, cfg.TelegramAlertChatID, kv))
	} else {
		logger.Warn("telegram alerts disabled")
	}

	engine = buildEngine(cfg, queries, snapshots, kv, pollOptions, engineOpts, logger)
	return runAll(ctx, cfg, engine, bot, db, pingers, logger)
}

func connectRedis(cfg config.Config, logger *slog.Logger) (*cache.Redis, error) {
	var (
		rdb *cache.Redis
		err error
	)
	// Retry up to 30s for the secret sync to land.
	for i := range 6 {
		rdb, err = cache.NewRedis(cfg.RedisURL, cfg.RedisPassword)
		if err == nil {
			return rdb, nil
		}
		logger.Warn("redis not ready, retrying...", "attempt", i+1, "error", err)
		time.Sleep(5 * time.Second)
	}
	return nil, fmt.Errorf("connect redis: %w", err)
}

func buildEngine(
	cfg config.Config,
	queries config.Queries,
	snapshots refresh.SnapshotStore,
	kv cache.Store,
	pollOptions []dune.Option,
	opts []refresh.Option,
	logger *slog.Logger,
) *refresh.Engine {
	engine := refresh.NewEngine(snapshots, logger, opts...)

	if cfg.DuneAPIKey != "" {
		duneClient := dune.NewClient(cfg.DuneAPIURL, cfg.DuneAPIKey, nil, logger)
		poller := dune.NewPoller(duneClient, logger, pollOptions...)
		if q, ok := queries.Lookup("revenue"); ok {
			engine.Register(sources.NewRevenue(poller, q.QueryID, q.Parameters, q.Schedule))
		}
	} else {
		logger.Warn("DUNE_API_KEY not set, revenue source disabled")
	}

	if cfg.RPCURL != "" {
		rpc := chain.NewClient(cfg.RPCURL, nil, logger)
		engine.Register(sources.NewStaking(rpc, kv, sources.DefaultStakingConfig(cfg.VeOGVContract), logger))
	} else {
		logger.Warn("RPC_URL not set, staking source disabled")
	}

	engine.Register(sources.NewAPY(cfg.AnalyticsURL, logger))
	engine.Register(sources.NewAllocation(cfg.AnalyticsURL, logger))
	engine.Register(sources.NewPrices(cfg.PriceAPIURL, logger))
	engine.Register(sources.NewSupply(indexer.NewClient(cfg.IndexerURL, nil, logger)))

	return engine
}

func newRouter(cfg config.Config, engine *refresh.Engine, db *store.Store, pingers []handler.Pinger, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(cfg.FrontendOrigin))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", handler.Health())
	// Not ready until every source has a snapshot to serve.
	r.Get("/readyz", handler.Ready(append(pingers, engine)...))

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
		r.Get("/stats", handler.Stats(engine))
		r.Get("/stats/meta", handler.StatsMetadata(engine, handler.Meta{PollInterval: cfg.PollInterval, CMSURL: cfg.CMSURL}))
		r.Get("/charts/{source}/{series}", handler.Chart(engine))
		r.Get("/staking/veogv", handler.VeOGV(time.Now))
		if db != nil {
			r.Get("/executions", handler.ListExecutions(db))
		}
	})
	return r
}

func runAll(
	ctx context.Context,
	cfg config.Config,
	engine *refresh.Engine,
	bot *telegram.Bot,
	db *store.Store,
	pingers []handler.Pinger,
	logger *slog.Logger,
) error {
	engine.Restore(ctx)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newRouter(cfg, engine, db, pingers, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var g run.Group
	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	g.Add(func() error {
		logger.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}, func(error) {
		logger.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})

	engineCtx, engineCancel := context.WithCancel(ctx)
	g.Add(func() error {
		return engine.Run(engineCtx)
	}, func(error) {
		engineCancel()
	})

	if bot != nil {
		botCtx, botCancel := context.WithCancel(ctx)
		g.Add(func() error {
			return bot.Run(botCtx)
		}, func(error) {
			botCancel()
		})
	}

	if db != nil {
		pruneCtx, pruneCancel := context.WithCancel(ctx)
		g.Add(func() error {
			ticker := time.NewTicker(pruneInterval)
			defer ticker.Stop()
			for {
				select {
				case <-pruneCtx.Done():
					return nil
				case <-ticker.C:
					n, err := db.PruneSnapshots(pruneCtx, snapshotRetention)
					if err != nil {
						logger.Warn("snapshot prune failed", "error", err)
						continue
					}
					logger.Info("pruned snapshots", "deleted", n)
				}
			}
		}, func(error) {
			pruneCancel()
		})
	}

	err := g.Run()
	var sigErr run.SignalError
	if errors.As(err, &sigErr) {
		logger.Info("received signal", "signal", sigErr.Signal.String())
		return nil
	}
	return err
}
