package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/lod"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/hardware"
)

type AssetsConfig struct {
	/** @brief Directory indexed by the asset manager. Empty disables it. */
	BasePath string `toml:"base_path"`
	/** @brief Reload meshes when their file changes on disk. */
	Watch bool `toml:"watch"`
}

type BuffersConfig struct {
	VertexUsage  string `toml:"vertex_usage"`
	IndexUsage   string `toml:"index_usage"`
	VertexShadow bool   `toml:"vertex_shadow"`
	IndexShadow  bool   `toml:"index_shadow"`
}

type MeshConfig struct {
	AutoBuildEdgeLists      bool   `toml:"auto_build_edge_lists"`
	PrepareForShadowVolumes bool   `toml:"prepare_for_shadow_volumes"`
	LodStrategy             string `toml:"lod_strategy"`
	MaxMeshCount            uint32 `toml:"max_mesh_count"`
}

/** @brief The engine configuration, as read from a TOML file. */
type Config struct {
	LogLevel string        `toml:"log_level"`
	Assets   AssetsConfig  `toml:"assets"`
	Buffers  BuffersConfig `toml:"buffers"`
	Mesh     MeshConfig    `toml:"mesh"`
}

func Default() *Config {
	return &Config{
		LogLevel: "info",
		Buffers: BuffersConfig{
			VertexUsage:  "static_write_only",
			IndexUsage:   "static_write_only",
			VertexShadow: true,
			IndexShadow:  true,
		},
		Mesh: MeshConfig{
			AutoBuildEdgeLists: true,
			LodStrategy:        "distance",
			MaxMeshCount:       1024,
		},
	}
}

/**
 * @brief Reads the TOML file at path on top of the defaults and validates the result.
 * Keys missing from the file keep their default value.
 *
 * @param path The path of the configuration file.
 * @return The configuration or an error if the file can't be read, decoded or is invalid.
 */
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config '%s': %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a TOML document on top of the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, fmt.Errorf("config line %d column %d: %v: %w", row, col, derr, core.ErrInvalidParams)
		}
		return nil, fmt.Errorf("decoding config: %v: %w", err, core.ErrInvalidParams)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if _, err := core.ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level %q: %v: %w", c.LogLevel, err, core.ErrInvalidParams))
	}
	if _, err := c.VertexUsage(); err != nil {
		errs = append(errs, fmt.Errorf("buffers.vertex_usage: %w", err))
	}
	if _, err := c.IndexUsage(); err != nil {
		errs = append(errs, fmt.Errorf("buffers.index_usage: %w", err))
	}
	if _, err := lod.StrategyByName(c.Mesh.LodStrategy); err != nil {
		errs = append(errs, fmt.Errorf("mesh.lod_strategy: %w", err))
	}
	if c.Mesh.MaxMeshCount == 0 {
		errs = append(errs, fmt.Errorf("mesh.max_mesh_count must be > 0: %w", core.ErrInvalidParams))
	}
	if c.Assets.Watch && c.Assets.BasePath == "" {
		errs = append(errs, fmt.Errorf("assets.watch needs assets.base_path: %w", core.ErrInvalidParams))
	}
	return errors.Join(errs...)
}

func (c *Config) Level() core.LogLevel {
	l, err := core.ParseLogLevel(c.LogLevel)
	if err != nil {
		return core.InfoLevel
	}
	return l
}

func (c *Config) VertexUsage() (hardware.Usage, error) {
	return hardware.ParseUsage(c.Buffers.VertexUsage)
}

func (c *Config) IndexUsage() (hardware.Usage, error) {
	return hardware.ParseUsage(c.Buffers.IndexUsage)
}

func (c *Config) LodStrategy() (lod.Strategy, error) {
	return lod.StrategyByName(c.Mesh.LodStrategy)
}

// Encode writes the configuration back out as TOML.
func (c *Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}
