// Package cli implements the pkgref command-line interface.
package cli

import (
	"context"
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/quantlab/pkgref/pkg/artifact"
	"github.com/quantlab/pkgref/pkg/buildinfo"
	"github.com/quantlab/pkgref/pkg/cache"
	"github.com/quantlab/pkgref/pkg/config"
	"github.com/quantlab/pkgref/pkg/install"
	"github.com/quantlab/pkgref/pkg/refset"
	"github.com/quantlab/pkgref/pkg/repo"
	"github.com/quantlab/pkgref/pkg/resolve"
)

// appName is the application name used for directories and display.
const appName = "pkgref"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	// ConfigPath overrides the default config file location.
	ConfigPath string
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: log.NewWithOptions(w, log.Options{
			ReportTimestamp: true,
			TimeFormat:      "15:04:05.00",
			Level:           level,
		}),
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "Pkgref resolves, installs, and loads package dependencies",
		Long:         `Pkgref manages binary package references: it discovers a package's full dependency closure across feeds and local folders, computes a consistent install set, materializes it in the local cache, and loads the resulting artifacts.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.ConfigPath, "config", "", "config file (default ~/.config/pkgref/config.toml)")

	root.AddCommand(c.addCommand())
	root.AddCommand(c.listCommand())
	root.AddCommand(c.showCommand())
	root.AddCommand(c.graphCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// services bundles everything a command needs, built from the effective
// configuration.
type services struct {
	cfg       *config.Config
	pkgCache  *install.Cache
	metaCache cache.Cache
	enum      *repo.Enumerator
	set       *refset.Service
}

// newServices wires the full pipeline for CLI use.
func (c *CLI) newServices(ctx context.Context, noCache bool) (*services, error) {
	cfg, err := config.Load(c.ConfigPath)
	if err != nil {
		return nil, err
	}

	dir, err := cfg.PackageCacheDir()
	if err != nil {
		return nil, err
	}
	pkgCache, err := install.NewCache(dir)
	if err != nil {
		return nil, err
	}

	metaCache := c.newMetadataCache(ctx, cfg, noCache)
	enum := repo.NewEnumerator(pkgCache, cfg, metaCache, c.Logger)

	set := refset.New(refset.Options{
		Provider:  enum,
		Resolver:  resolve.NewResolver(c.Logger),
		Installer: install.NewInstaller(pkgCache, c.Logger),
		Extractor: artifact.NewExtractor(pkgCache, "", cfg.SystemPrefixes, c.Logger),
		Cache:     pkgCache,
		Config:    cfg,
		Logger:    c.Logger,
	})

	return &services{
		cfg:       cfg,
		pkgCache:  pkgCache,
		metaCache: metaCache,
		enum:      enum,
		set:       set,
	}, nil
}

// newMetadataCache picks the feed metadata cache backend: Redis when
// configured and reachable, otherwise a file cache, otherwise none.
func (c *CLI) newMetadataCache(ctx context.Context, cfg *config.Config, noCache bool) cache.Cache {
	if noCache {
		return cache.NewNullCache()
	}
	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   appName + ":",
		})
		if err == nil {
			return rc
		}
		c.Logger.Warn("redis metadata cache unavailable, using file cache", "addr", cfg.Redis.Addr, "err", err)
	}
	dir, err := cfg.MetadataCacheDir()
	if err != nil {
		return cache.NewNullCache()
	}
	fc, err := cache.NewFileCache(dir)
	if err != nil {
		return cache.NewNullCache()
	}
	return fc
}

func (s *services) Close() {
	_ = s.metaCache.Close()
}
