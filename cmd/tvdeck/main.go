package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/voyagen/tvdeck/internal/cache"
	"github.com/voyagen/tvdeck/internal/config"
	"github.com/voyagen/tvdeck/internal/health"
	"github.com/voyagen/tvdeck/internal/logging"
	"github.com/voyagen/tvdeck/internal/metrics"
	"github.com/voyagen/tvdeck/internal/server"
	"github.com/voyagen/tvdeck/internal/service"
	"github.com/voyagen/tvdeck/internal/store"
)

func main() {
	configPath := flag.String("config", "", "Optional config file path (YAML); else use env DATABASE_URL")
	memory := flag.Bool("memory", false, "Use the in-memory store (no Postgres; data is lost on exit)")
	importURL := flag.String("import", "", "Import the playlist at this URL, then exit")
	checkOnce := flag.Bool("check", false, "Run one check-all, print the report as JSON, then exit")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFromFile(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg = config.Load()
	}
	if *memory {
		cfg.Memory = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logging.NewLogger("tvdeck", cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appStore, rds, cleanup, err := openStore(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("store")
	}
	defer cleanup()

	m := metrics.New()
	checker := health.New(health.Options{
		Timeout:   cfg.HealthTimeout,
		BatchSize: cfg.HealthBatchSize,
		Recorder:  m,
		Logger:    log.WithField("component", "health"),
	})
	runner := service.NewCheckRunner(appStore, checker, rds, m, log)

	switch {
	case *importURL != "":
		res, err := service.ImportFromURL(ctx, appStore, *importURL, cfg.UserAgent, cfg.Timeout, service.ImportOptions{})
		if err != nil {
			log.WithError(err).Fatal("import")
		}
		log.WithFields(logrus.Fields{
			"parsed":          res.Parsed,
			"streams_created": res.StreamsCreated,
			"streams_updated": res.StreamsUpdated,
			"servers_added":   res.ServersAdded,
		}).Info("import complete")
		return
	case *checkOnce:
		report, err := runner.Run(ctx, nil, service.TriggerAPI)
		if err != nil {
			log.WithError(err).Fatal("check-all")
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
		return
	}

	if rds != nil {
		go runner.Work(ctx)
	} else {
		log.Info("redis disabled (REDIS_URL not set): async checks run in-process")
	}
	if cfg.HealthInterval > 0 {
		log.WithField("interval", cfg.HealthInterval.String()).Info("scheduled health checks enabled")
		go runner.Schedule(ctx, cfg.HealthInterval)
	}

	srv := server.New(appStore, cfg, runner, m, log)
	if err := srv.ListenAndServe(ctx); err != nil {
		log.WithError(err).Fatal("server")
	}
	runner.Wait()
}

// openStore returns the configured store, wrapped with Redis caching when
// REDIS_URL is set. The returned Redis client is nil without REDIS_URL.
func openStore(ctx context.Context, cfg *config.Config, log *logrus.Entry) (store.Store, *cache.Redis, func(), error) {
	var (
		appStore store.Store
		closers  []func()
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Memory {
		appStore = store.NewMemory()
		log.Warn("using in-memory store; data will not survive a restart")
	} else {
		migrationsPath := "file://" + migrationsDir()
		if err := store.RunMigrations(cfg.DatabaseURL, migrationsPath); err != nil {
			return nil, nil, cleanup, fmt.Errorf("migrate: %w", err)
		}
		if v, dirty, err := store.MigrationVersion(cfg.DatabaseURL, migrationsPath); err == nil {
			log.WithFields(logrus.Fields{"version": v, "dirty": dirty}).Info("schema migrated")
		}
		pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, cleanup, fmt.Errorf("db: %w", err)
		}
		closers = append(closers, pg.Close)
		appStore = pg
	}

	if cfg.RedisURL == "" {
		return appStore, nil, cleanup, nil
	}
	rds, err := cache.New(cfg.RedisURL)
	if err != nil {
		cleanup()
		return nil, nil, func() {}, fmt.Errorf("redis: %w", err)
	}
	closers = append(closers, func() { _ = rds.Close() })
	if err := rds.Ping(ctx); err != nil {
		cleanup()
		return nil, nil, func() {}, fmt.Errorf("redis ping: %w", err)
	}
	log.Info("redis connected (caching enabled)")
	return store.NewCachedStore(appStore, rds, log), rds, cleanup, nil
}

// migrationsDir finds migrations/ in the working directory, falling back
// to the directory of the executable.
func migrationsDir() string {
	dir, err := filepath.Abs("migrations")
	if err != nil {
		dir = "migrations"
	}
	if _, err := os.Stat(dir); err != nil {
		if exe, e := os.Executable(); e == nil {
			dir = filepath.Join(filepath.Dir(exe), "migrations")
		}
	}
	return dir
}
