package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/pvnkmrksk/magga/internal/api"
	"github.com/pvnkmrksk/magga/pkg/basegraph"
	"github.com/pvnkmrksk/magga/pkg/cache"
)

// Config is the TOML configuration file shared by all commands. Every
// field is optional; flags override file values.
type Config struct {
	Grid      GridConfig           `toml:"grid"`
	Penalties basegraph.Penalties  `toml:"penalties"`
	Serve     ServeConfig          `toml:"serve"`
	Cache     CacheConfig          `toml:"cache"`
}

// GridConfig carries the grid parameters.
type GridConfig struct {
	CellSize  float64 `toml:"cell_size"`
	BorderRad float64 `toml:"border_rad"`
	MaxGrDist float64 `toml:"max_gr_dist"`
	Octi      bool    `toml:"octi"`
	Deg2Heur  *bool   `toml:"deg2_heur"`
}

// ServeConfig configures the HTTP layout service.
type ServeConfig struct {
	Addr  string            `toml:"addr"`
	Redis cache.RedisConfig `toml:"redis"`
	Mongo api.MongoConfig   `toml:"mongo"`
}

// CacheConfig configures the local layout cache.
type CacheConfig struct {
	Dir string `toml:"dir"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Grid: GridConfig{
			CellSize:  api.DefaultCellSize,
			BorderRad: api.DefaultBorderRad,
			MaxGrDist: api.DefaultMaxGrDist,
		},
		Penalties: basegraph.DefaultPenalties(),
		Serve:     ServeConfig{Addr: ":8080"},
	}
}

// LoadConfig reads a TOML configuration file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return cfg, nil
}

// cacheDir returns the layout cache directory: the configured one, or the
// user cache directory.
func cacheDir(cfg Config) (string, error) {
	if cfg.Cache.Dir != "" {
		return cfg.Cache.Dir, nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "magga"), nil
}
