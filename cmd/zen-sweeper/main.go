// Command zen-sweeper periodically removes expired sessions, verification
// codes and OAuth states from a zen store and exposes the engine counters on
// /metrics.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/joho/godotenv"
	zen "github.com/natedunn/convex-zen-sub000"
	promexport "github.com/natedunn/convex-zen-sub000/metrics/export/prometheus"
	"github.com/natedunn/convex-zen-sub000/store"
	"github.com/natedunn/convex-zen-sub000/store/pgstore"
	"github.com/natedunn/convex-zen-sub000/store/redisstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a yaml/json/toml config file")
		envFile    = flag.String("env", "", "dotenv file to load before reading ZEN_* variables")
		once       = flag.Bool("once", false, "run a single sweep and exit")
		memory     = flag.Bool("memory", false, "use an in-process miniredis instead of store.redis.addr")
	)
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			fmt.Fprintf(os.Stderr, "load %s: %v\n", *envFile, err)
			os.Exit(2)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	log := newLogger(cfg.Log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log, *once, *memory); err != nil {
		log.Error().Err(err).Msg("sweeper stopped")
		os.Exit(1)
	}
}

func newLogger(cfg logSettings) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var log zerolog.Logger
	if cfg.Pretty {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(level).With().Timestamp().Str("service", "zen-sweeper").Logger()
}

func run(ctx context.Context, cfg *sweeperConfig, log zerolog.Logger, once, memory bool) error {
	st, closeStore, err := openStore(ctx, cfg.Store, log, memory)
	if err != nil {
		return err
	}
	defer closeStore()

	engineCfg := zen.DefaultConfig()
	engineCfg.Cleanup.BatchSize = cfg.Sweep.BatchSize
	engineCfg.Metrics.Enabled = true

	engine, err := zen.New().
		WithConfig(engineCfg).
		WithStore(st).
		WithLogger(log).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	sw := &sweeper{
		engine:    engine,
		batchSize: cfg.Sweep.BatchSize,
		maxPasses: cfg.Sweep.MaxPasses,
		log:       log,
	}

	if once {
		_, err := sw.sweep(ctx)
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			promexport.NewPrometheusExporter(engine),
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			log.Info().Str("addr", cfg.Metrics.Addr).Msg("serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		return sw.loop(gctx, cfg.Sweep.Interval)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func openStore(ctx context.Context, cfg storeSettings, log zerolog.Logger, memory bool) (store.Store, func(), error) {
	switch cfg.Driver {
	case "postgres":
		db, err := pgstore.Open(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.Postgres.Migrate {
			if err := pgstore.Migrate(ctx, db); err != nil {
				_ = db.Close()
				return nil, nil, fmt.Errorf("migrate: %w", err)
			}
			log.Info().Msg("postgres migrations applied")
		}
		return pgstore.New(db), func() { closeDB(db, log) }, nil

	default:
		addr := cfg.Redis.Addr
		var mr *miniredis.Miniredis
		if memory {
			var err error
			if mr, err = miniredis.Run(); err != nil {
				return nil, nil, fmt.Errorf("start miniredis: %w", err)
			}
			addr = mr.Addr()
			log.Warn().Str("addr", addr).Msg("using in-process miniredis")
		}

		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{addr},
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			if mr != nil {
				mr.Close()
			}
			return nil, nil, fmt.Errorf("ping redis %s: %w", addr, err)
		}

		closeFn := func() {
			_ = client.Close()
			if mr != nil {
				mr.Close()
			}
		}
		return redisstore.New(client, redisstore.WithPrefix(cfg.Redis.Prefix)), closeFn, nil
	}
}

func closeDB(db *sql.DB, log zerolog.Logger) {
	if err := db.Close(); err != nil {
		log.Warn().Err(err).Msg("close postgres")
	}
}
