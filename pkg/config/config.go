// Package config loads the voxpath service configuration.
//
// Loading starts from DefaultConfig and overlays a YAML file parsed strictly:
// unknown keys are errors. Environment variables in the file are expanded
// before parsing, so "${VOXPATH_ADDR}" style values work.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sanonone/voxpath/pkg/grid"
	"github.com/sanonone/voxpath/pkg/hpa"
	"github.com/sanonone/voxpath/pkg/search"
	"github.com/sanonone/voxpath/pkg/traverse"
	"github.com/sanonone/voxpath/pkg/world"
)

// Duration is a time.Duration written as "30s" or "5m" in YAML.
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", value.Line, s, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML writes the duration string.
func (d Duration) MarshalYAML() (any, error) { return time.Duration(d).String(), nil }

// Std returns the standard library value.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the top-level configuration of the voxpath service.
type Config struct {
	Server ServerConfig `yaml:"server"`
	World  WorldConfig  `yaml:"world"`
	Search SearchConfig `yaml:"search"`
	Cache  CacheConfig  `yaml:"cache"`
	Pool   PoolConfig   `yaml:"pool"`
	HPA    hpa.Config   `yaml:"hpa"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr         string   `yaml:"addr"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
	// TaskTTL is how long finished async tasks stay queryable.
	TaskTTL Duration `yaml:"task_ttl"`
	// AuthToken, when set, is required as a bearer token on /v1 routes.
	AuthToken string `yaml:"auth_token"`
}

// WorldConfig selects the world the service navigates.
type WorldConfig struct {
	// Scene is a YAML scene file. Empty means a flat world of FlatSize blocks.
	Scene    string           `yaml:"scene"`
	ID       string           `yaml:"id"`
	MinY     int              `yaml:"min_y"`
	MaxY     int              `yaml:"max_y"`
	FlatSize int              `yaml:"flat_size"`
	FloorY   int              `yaml:"floor_y"`
	Source   world.SourceMode `yaml:"source"`
	// Journal, when set, is a file that records block edits. It is replayed
	// over the built world at startup.
	Journal     string   `yaml:"journal"`
	JournalSync Duration `yaml:"journal_sync"`
}

// SearchConfig holds the default grid search parameters.
type SearchConfig struct {
	Chain           string  `yaml:"chain"`
	Connectivity    int     `yaml:"connectivity"`
	Margin          float64 `yaml:"margin"`
	SpeedModifier   float64 `yaml:"speed_modifier"`
	Tolerance       float64 `yaml:"tolerance"`
	TieBreak        float64 `yaml:"tie_break"`
	ReopenThreshold float64 `yaml:"reopen_threshold"`
	MaxExpansions   int     `yaml:"max_expansions"`
	PrefetchRadius  int     `yaml:"prefetch_radius"`
}

// CacheConfig tunes the chunk cache.
type CacheConfig struct {
	TTL           Duration `yaml:"ttl"`
	SweepInterval Duration `yaml:"sweep_interval"`
}

// PoolConfig sizes the search worker pool. Zero means one worker per logical core.
type PoolConfig struct {
	Size int `yaml:"size"`
}

// LogConfig configures slog.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns a working configuration over a flat in-memory world.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:         ":9191",
			ReadTimeout:  Duration(30 * time.Second),
			WriteTimeout: Duration(60 * time.Second),
			TaskTTL:      Duration(10 * time.Minute),
		},
		World: WorldConfig{
			ID:          "overworld",
			MinY:        0,
			MaxY:        128,
			FlatSize:    256,
			FloorY:      63,
			Source:      world.ModeAuto,
			JournalSync: Duration(time.Second),
		},
		Search: SearchConfig{
			Chain:           "default",
			Connectivity:    int(grid.TwentySix),
			SpeedModifier:   1,
			Tolerance:       0.1,
			TieBreak:        search.DefaultTieBreak,
			ReopenThreshold: search.DefaultReopenThreshold,
			PrefetchRadius:  16,
		},
		Cache: CacheConfig{
			TTL:           Duration(30 * time.Second),
			SweepInterval: Duration(10 * time.Second),
		},
		HPA: hpa.DefaultConfig(),
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads the YAML file at path over the defaults. An empty path
// returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()
	return Parse(file)
}

// Parse decodes YAML from r over the defaults and validates the result.
func Parse(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	data, err := io.ReadAll(r)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader([]byte(os.ExpandEnv(string(data)))))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("YAML syntax error in config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside a search.
func (c Config) Validate() error {
	var errs []error
	if c.World.MaxY <= c.World.MinY {
		errs = append(errs, fmt.Errorf("world: max_y %d must be above min_y %d", c.World.MaxY, c.World.MinY))
	}
	if c.World.Scene == "" && (c.World.FloorY < c.World.MinY || c.World.FloorY > c.World.MaxY-3) {
		errs = append(errs, fmt.Errorf("world: floor_y %d leaves no headroom in [%d,%d)", c.World.FloorY, c.World.MinY, c.World.MaxY))
	}
	if c.World.JournalSync < 0 {
		errs = append(errs, fmt.Errorf("world: journal_sync must not be negative"))
	}
	switch c.World.Source {
	case world.ModeAuto, world.ModeSync, world.ModeAsync, "":
	default:
		errs = append(errs, fmt.Errorf("world: unknown source mode %q", c.World.Source))
	}
	if _, err := traverse.ChainByName(c.Search.Chain); err != nil {
		errs = append(errs, fmt.Errorf("search: %w", err))
	}
	if c.Search.Connectivity != int(grid.TwentySix) && c.Search.Connectivity != int(grid.Six) {
		errs = append(errs, fmt.Errorf("search: connectivity must be 6 or 26, got %d", c.Search.Connectivity))
	}
	if c.Search.Margin < 0 {
		errs = append(errs, fmt.Errorf("search: margin must not be negative"))
	}
	if c.Search.PrefetchRadius < 0 {
		errs = append(errs, fmt.Errorf("search: prefetch_radius must not be negative"))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, fmt.Errorf("cache: ttl must be positive"))
	}
	if err := c.HPA.Validate(); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log: unknown level %q", c.Log.Level))
	}
	return errors.Join(errs...)
}

// Params builds grid search parameters from the search section.
func (s SearchConfig) Params() (grid.Params, error) {
	chain, err := traverse.ChainByName(s.Chain)
	if err != nil {
		return grid.Params{}, err
	}
	opts := []search.Option{
		search.WithTieBreak(s.TieBreak),
		search.WithReopenThreshold(s.ReopenThreshold),
	}
	if s.MaxExpansions > 0 {
		opts = append(opts, search.WithMaxExpansions(s.MaxExpansions))
	}
	return grid.Params{
		Chain:         chain,
		Connectivity:  grid.Connectivity(s.Connectivity),
		Margin:        s.Margin,
		SpeedModifier: s.SpeedModifier,
		Tolerance:     s.Tolerance,
		Search:        opts,
	}, nil
}
