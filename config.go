package atlas

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// AtlasConfig parameterizes the allocator and backing-lifecycle
// constants. DefaultAtlasConfig returns the baseline design values;
// tests may shrink InitialExtent to exercise growth cheaply.
type AtlasConfig struct {
	// AllocSmall and AllocLarge are the allocator's size-class
	// thresholds.
	AllocSmall int
	AllocLarge int

	// Pad is the padding in texels added around every allocation on
	// every side.
	Pad int

	// InitialExtent is the starting width/height of a freshly created
	// atlas image.
	InitialExtent int

	// BackingCount is the number of physical GPU backings kept per
	// logical atlas image.
	BackingCount int

	// DecodeCacheSize bounds the number of decoded-image entries kept
	// by LoadImageFromPath/LoadImageFromURL.
	DecodeCacheSize int
}

// DefaultAtlasConfig returns the baseline design values:
// small=16, large=1024, pad=2, initial extent 512x512, 4 backings.
func DefaultAtlasConfig() AtlasConfig {
	return AtlasConfig{
		AllocSmall:      16,
		AllocLarge:      1024,
		Pad:             2,
		InitialExtent:   512,
		BackingCount:    4,
		DecodeCacheSize: 256,
	}
}

// tomlAtlasConfig mirrors AtlasConfig for file-based overrides; fields
// absent from the file are left at their DefaultAtlasConfig value rather
// than zeroing the struct out, so a file only needs to mention the
// fields it overrides. A field present in the file is applied even when
// its value is zero.
type tomlAtlasConfig struct {
	AllocSmall      *int `toml:"alloc_small"`
	AllocLarge      *int `toml:"alloc_large"`
	Pad             *int `toml:"pad"`
	InitialExtent   *int `toml:"initial_extent"`
	BackingCount    *int `toml:"backing_count"`
	DecodeCacheSize *int `toml:"decode_cache_size"`
}

// LoadAtlasConfigTOML reads overrides from a TOML file on top of
// DefaultAtlasConfig. This is ambient tooling for embedding
// applications; the core allocator and worker never call it
// themselves.
func LoadAtlasConfigTOML(path string) (AtlasConfig, error) {
	cfg := DefaultAtlasConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("atlas: read config %s: %w", path, err)
	}

	var overrides tomlAtlasConfig
	if err := toml.Unmarshal(data, &overrides); err != nil {
		return cfg, fmt.Errorf("atlas: parse config %s: %w", path, err)
	}

	if overrides.AllocSmall != nil {
		cfg.AllocSmall = *overrides.AllocSmall
	}
	if overrides.AllocLarge != nil {
		cfg.AllocLarge = *overrides.AllocLarge
	}
	if overrides.Pad != nil {
		cfg.Pad = *overrides.Pad
	}
	if overrides.InitialExtent != nil {
		cfg.InitialExtent = *overrides.InitialExtent
	}
	if overrides.BackingCount != nil {
		cfg.BackingCount = *overrides.BackingCount
	}
	if overrides.DecodeCacheSize != nil {
		cfg.DecodeCacheSize = *overrides.DecodeCacheSize
	}

	return cfg, nil
}
