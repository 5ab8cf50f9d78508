// Package config loads pkgref configuration from a TOML file.
//
// The configuration names the remote feeds and local fallback folders that
// the repository enumerator queries, the on-disk package cache location,
// default version pins for specific package ids, and the optional shared
// Redis metadata cache. An extra feed can be injected per-process through
// the PKGREF_EXTRA_FEED environment variable without touching the file.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/quantlab/pkgref/pkg/errors"
)

const (
	appName = "pkgref"

	// EnvExtraFeed names one additional repository location, searched
	// after the local cache but before configured sources. Useful for
	// private or test feeds.
	EnvExtraFeed = "PKGREF_EXTRA_FEED"

	// DefaultMetadataTTL is how long cached feed metadata stays fresh.
	DefaultMetadataTTL = 24 * time.Hour
)

// Config holds all pkgref settings.
type Config struct {
	// CacheDir is the local global package cache. Packages are extracted
	// into <CacheDir>/<id>/<version>/. Empty means ~/.cache/pkgref/packages.
	CacheDir string `toml:"cache_dir"`

	// Feeds lists remote feed base URLs, queried in order.
	Feeds []string `toml:"feeds"`

	// FallbackFolders lists local directories holding .pkg archives,
	// searched before remote feeds.
	FallbackFolders []string `toml:"fallback_folders"`

	// SystemPrefixes identifies package ids that ship with the host
	// runtime itself; their artifacts are never loaded.
	SystemPrefixes []string `toml:"system_prefixes"`

	// Pins maps package ids to default versions, applied when a caller
	// requests an id without a version string.
	Pins map[string]string `toml:"pins"`

	// MetadataTTL controls feed metadata cache freshness. Zero means
	// DefaultMetadataTTL.
	MetadataTTL duration `toml:"metadata_ttl"`

	// Redis optionally enables a shared metadata cache.
	Redis RedisConfig `toml:"redis"`
}

// RedisConfig configures the optional shared metadata cache.
type RedisConfig struct {
	Addr     string `toml:"addr"` // empty disables Redis
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// duration wraps time.Duration for TOML decoding of strings like "24h".
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}

// Default returns the built-in configuration used when no file exists.
func Default() *Config {
	return &Config{
		SystemPrefixes: []string{"System.", "Microsoft.NETCore.", "NETStandard.Library"},
		Pins:           map[string]string{},
	}
}

// Load reads the configuration from path. An empty path means the default
// location (~/.config/pkgref/config.toml). A missing file yields the
// default configuration, not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		if path, err = defaultPath(); err != nil {
			return Default(), nil
		}
	}

	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "failed to load config from %s", path)
	}
	return cfg, nil
}

// ExtraFeed returns the feed named by the environment override, if any.
func (c *Config) ExtraFeed() string {
	return os.Getenv(EnvExtraFeed)
}

// PackageCacheDir resolves the effective package cache directory.
func (c *Config) PackageCacheDir() (string, error) {
	if c.CacheDir != "" {
		return c.CacheDir, nil
	}
	dir, err := cacheHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "packages"), nil
}

// MetadataCacheDir resolves the feed metadata cache directory.
func (c *Config) MetadataCacheDir() (string, error) {
	dir, err := cacheHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "metadata"), nil
}

// TTL returns the effective metadata cache TTL.
func (c *Config) TTL() time.Duration {
	if c.MetadataTTL <= 0 {
		return DefaultMetadataTTL
	}
	return time.Duration(c.MetadataTTL)
}

// Pin returns the default version pinned for id, if one is configured.
// Lookup is case-insensitive like all id comparisons.
func (c *Config) Pin(id string) (string, bool) {
	if v, ok := c.Pins[id]; ok {
		return v, true
	}
	for k, v := range c.Pins {
		if strings.EqualFold(k, id) {
			return v, true
		}
	}
	return "", false
}

// cacheHome returns the base cache directory using the XDG convention.
func cacheHome() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}

func defaultPath() (string, error) {
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, appName, "config.toml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appName, "config.toml"), nil
}
