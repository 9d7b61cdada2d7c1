package hpa

import "fmt"

// Config defines the cluster geometry of a Graph.
type Config struct {
	// BaseClusterSize is the X/Z edge of a level-0 cluster. Each level doubles it.
	BaseClusterSize int `yaml:"base_cluster_size" msgpack:"base_cluster_size"`
	// ClusterHeight is the Y extent of a level-0 cluster. Each level doubles it.
	ClusterHeight int `yaml:"cluster_height" msgpack:"cluster_height"`
	// MaxDepth is the number of levels.
	MaxDepth int `yaml:"max_depth" msgpack:"max_depth"`
	// LongRunThreshold is the longest open run on a cluster face that is
	// represented by a single midpoint entrance. Longer runs get one at each end.
	LongRunThreshold int `yaml:"long_run_threshold" msgpack:"long_run_threshold"`
	// Planar confines local searches to a thin Y band around their endpoints
	// unless the movement chain needs free vertical movement.
	Planar bool `yaml:"planar" msgpack:"planar"`
}

// DefaultConfig returns the recommended geometry: 8x8x8 base clusters and three
// levels, so a region is 32 blocks wide.
func DefaultConfig() Config {
	return Config{
		BaseClusterSize:  8,
		ClusterHeight:    8,
		MaxDepth:         3,
		LongRunThreshold: 6,
		Planar:           true,
	}
}

// Validate checks the geometry.
func (c Config) Validate() error {
	if c.BaseClusterSize < 2 {
		return fmt.Errorf("hpa: base cluster size must be at least 2, got %d", c.BaseClusterSize)
	}
	if c.ClusterHeight < 2 {
		return fmt.Errorf("hpa: cluster height must be at least 2, got %d", c.ClusterHeight)
	}
	if c.MaxDepth < 1 || c.MaxDepth > 8 {
		return fmt.Errorf("hpa: max depth must be in [1, 8], got %d", c.MaxDepth)
	}
	if c.LongRunThreshold < 1 {
		return fmt.Errorf("hpa: long run threshold must be positive, got %d", c.LongRunThreshold)
	}
	return nil
}

// RegionSize is the X/Z edge of a loadable region: the top-level cluster size.
func (c Config) RegionSize() int { return c.size(c.MaxDepth - 1) }

// TopLevel is the highest level index.
func (c Config) TopLevel() int { return c.MaxDepth - 1 }

func (c Config) size(level int) int   { return c.BaseClusterSize << level }
func (c Config) height(level int) int { return c.ClusterHeight << level }

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
