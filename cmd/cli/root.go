package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"noindex-seo/internal/cache"
	"noindex-seo/internal/config"
	"noindex-seo/internal/settings"
	"noindex-seo/internal/store"
	"noindex-seo/pkg/logger"
)

type globalOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "noindex-seo",
		Short: "Robots directive settings and audits",
		Long: `noindex-seo manages the stored robots settings used by the proxy server
and audits live pages for the directives they actually emit.

Examples:
  noindex-seo audit --input urls.csv --output report.csv
  noindex-seo settings export > settings.yaml
  noindex-seo resolve --path /category/news/ --status 200
  noindex-seo token --subject editor --cap edit_posts`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default: $NOINDEX_SEO_CONFIG or ./config.yaml)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newAuditCmd(opts),
		newMigrateCmd(opts),
		newUninstallCmd(opts),
		newSettingsCmd(opts),
		newTokenCmd(opts),
		newResolveCmd(opts),
	)
	return cmd
}

// env is what the settings commands share: config, logger and a service over
// the configured store and cache.
type env struct {
	cfg      *config.Config
	log      *logger.Logger
	settings *settings.Service
	closers  []func() error
}

func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		_ = e.closers[i]()
	}
}

func loadConfig(opts *globalOptions) (*config.Config, *logger.Logger, error) {
	cfg, _, err := config.Load(opts.configPath)
	if err != nil {
		return nil, nil, err
	}
	level := cfg.Log.Level
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	return cfg, logger.NewWithConfig(logger.Config{Level: level, Format: cfg.Log.Format}), nil
}

// openEnv connects to the configured store. With activate set, missing
// defaults are seeded and pending migrations run first.
func openEnv(ctx context.Context, opts *globalOptions, activate bool) (*env, error) {
	cfg, l, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, log: l}

	db, err := store.Open(store.OpenOptions{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		LogLevel:        cfg.Database.LogLevel,
	})
	if err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		e.closers = append(e.closers, sqlDB.Close)
	}
	st := store.NewGorm(db)

	// The server may be running; share its cache so saves invalidate it.
	var c cache.Cache = cache.NewMemory()
	if cfg.Cache.Driver == "redis" {
		rc, err := cache.NewRedis(cache.RedisOptions{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
			Prefix:   "noindex-seo:",
		})
		if err != nil {
			e.Close()
			return nil, err
		}
		e.closers = append(e.closers, rc.Close)
		c = rc
	}

	e.settings = settings.NewService(st, st, c, settings.WithTTL(cfg.Cache.TTL), settings.WithLogger(l))
	if !activate {
		return e, nil
	}
	if err := e.settings.Activate(ctx); err != nil {
		e.Close()
		return nil, fmt.Errorf("activate settings: %w", err)
	}
	return e, nil
}
