package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/ehr/loinc-coder/internal/config"
	"github.com/ehr/loinc-coder/internal/domain/coding"
	"github.com/ehr/loinc-coder/internal/domain/laboratory"
	"github.com/ehr/loinc-coder/internal/domain/radiology"
	"github.com/ehr/loinc-coder/internal/domain/terminology"
	"github.com/ehr/loinc-coder/internal/platform/db"
	"github.com/ehr/loinc-coder/internal/platform/metrics"
	"github.com/ehr/loinc-coder/internal/platform/ner"
	"github.com/ehr/loinc-coder/internal/platform/redisstore"
	"github.com/ehr/loinc-coder/migrations"
)

type closableStore interface {
	terminology.ReferenceStore
	Close() error
}

// backend is the reference store plus what the migrate and health paths need
// from the same connection.
type backend struct {
	store    closableStore
	pinger   db.Pinger
	migrator *db.Migrator
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	switch cfg.DBDriver {
	case config.DriverSQLite:
		sqlDB, err := db.OpenSQLite(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return &backend{
			store:    terminology.NewSQLiteStore(sqlDB),
			pinger:   db.SQLPinger{DB: sqlDB},
			migrator: db.NewSQLiteMigrator(sqlDB, migrations.FS),
		}, nil
	case config.DriverPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		return &backend{
			store:    terminology.NewPGStore(pool),
			pinger:   db.PGPinger{Pool: pool},
			migrator: db.NewMigrator(pool, migrations.FS),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
}

// app holds the long-lived services shared by the server and the CLI.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	metrics *metrics.Metrics
	backend *backend
	rc      *coding.ResolutionContext
	coding  *coding.Service
	lookup  *terminology.Service
	ner     coding.Annotator
}

// newLogger writes to w. The server logs to stdout; CLI commands that print
// results log to stderr so stdout stays machine-readable.
func newLogger(cfg *config.Config, w io.Writer) zerolog.Logger {
	logger := zerolog.New(w).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && cfg.LogLevel != "" {
		logger = logger.Level(lvl)
	}
	return logger
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	b, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return assembleApp(ctx, cfg, logger, b)
}

// assembleApp wires everything above the store. On error the store is closed.
func assembleApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger, b *backend) (*app, error) {
	fail := func(err error) (*app, error) {
		_ = b.store.Close()
		return nil, err
	}

	rules, err := laboratory.LoadComponentRules(cfg.ComponentRulesFile)
	if err != nil {
		return fail(err)
	}

	var methodCUIs map[int]struct{}
	if cfg.RadiologyMethodCUIs != "" {
		methodCUIs, err = radiology.ParseCUISet(cfg.RadiologyMethodCUIs)
		if err != nil {
			return fail(fmt.Errorf("RADIOLOGY_METHOD_CUIS: %w", err))
		}
	}

	m := metrics.New()
	opts := coding.ContextOptions{
		CacheLimit: cfg.LabCacheMaxEntries,
		Rules:      rules,
		MethodCUIs: methodCUIs,
		Logger:     logger,
		Metrics:    m,
	}

	if cfg.RedisURL != "" {
		client, err := redisstore.Open(ctx, cfg.RedisURL)
		if err != nil {
			return fail(err)
		}
		store := redisstore.NewJSONStore(client, redisstore.WithPrefix("loinc:lab:"), redisstore.WithTTL(cfg.RedisCacheTTL))
		opts.SharedTier = laboratory.NewRedisTier(store)
		opts.OnClose = append(opts.OnClose, client.Close)
		logger.Info().Msg("shared laboratory cache enabled")
	}

	var annotator coding.Annotator
	if cfg.NEREndpointURL != "" {
		mapping, err := ner.LoadTypeMapping(cfg.NERTypeMappingFile)
		if err != nil {
			return fail(err)
		}
		annotator = ner.NewClient(cfg.NEREndpointURL,
			ner.WithTimeout(cfg.NERTimeout),
			ner.WithFacility(cfg.NERFacility),
			ner.WithTypeMapping(mapping),
			ner.WithLogger(logger),
		)
	}

	rc := coding.OpenResolutionContext(ctx, b.store, opts)

	return &app{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		backend: b,
		rc:      rc,
		coding:  coding.NewService(rc, logger, m),
		lookup:  terminology.NewService(b.store),
		ner:     annotator,
	}, nil
}

// Close releases the store and any Redis client.
func (a *app) Close() error {
	return a.rc.Close()
}
