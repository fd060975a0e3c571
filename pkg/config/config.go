package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/runningwild/diskmark/pkg/engine"
)

// DataDirName is the directory created under Location for test files.
const DataDirName = "diskmark-data"

// Config represents the settings of a benchmark session.
type Config struct {
	Location string `yaml:"location" toml:"location"` // Directory on the device under test

	Write bool `yaml:"write" toml:"write"`
	Read  bool `yaml:"read" toml:"read"`

	Marks         int    `yaml:"marks" toml:"marks"`
	BlocksPerMark int    `yaml:"blocks" toml:"blocks"`
	BlockSizeKB   int    `yaml:"block_size_kb" toml:"block_size_kb"`
	Order         string `yaml:"order" toml:"order"` // "sequential" or "random"
	MultiFile     bool   `yaml:"multi_file" toml:"multi_file"`
	StartMark     int    `yaml:"start_mark" toml:"start_mark"`

	WriteSync bool   `yaml:"write_sync" toml:"write_sync"` // Durable writes (O_DSYNC)
	Direct    bool   `yaml:"direct" toml:"direct"`         // O_DIRECT; wins over write_sync
	Engine    string `yaml:"engine" toml:"engine"`         // "sync", "uring" or "libaio"

	AutoRemove bool   `yaml:"auto_remove" toml:"auto_remove"` // Delete the data directory afterwards
	DropCaches bool   `yaml:"drop_caches" toml:"drop_caches"` // Drop the page cache between WRITE and READ
	History    string `yaml:"history,omitempty" toml:"history,omitempty"`

	// Block sizes (KB) used by the sweep command.
	SweepBlockSizesKB []int `yaml:"sweep_block_sizes_kb,omitempty" toml:"sweep_block_sizes_kb,omitempty"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		Location:          os.TempDir(),
		Write:             true,
		Read:              true,
		Marks:             25,
		BlocksPerMark:     32,
		BlockSizeKB:       512,
		Order:             string(engine.Sequential),
		MultiFile:         true,
		Engine:            engine.BackendSync,
		SweepBlockSizesKB: []int{4, 16, 64, 256, 1024, 4096},
	}
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// Load reads a YAML or TOML (by .toml extension) file. Keys missing from
// the file keep their Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if isTOML(path) {
		err = toml.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Write saves cfg in the format implied by path's extension.
func Write(path string, cfg *Config) error {
	var data []byte
	var err error
	if isTOML(path) {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}
	return os.WriteFile(path, data, 0644)
}

// DataDir is where the test files live.
func (c *Config) DataDir() string {
	return filepath.Join(c.Location, DataDirName)
}

// Mode maps the sync/direct switches onto an access mode.
func (c *Config) Mode() engine.AccessMode {
	switch {
	case c.Direct:
		return engine.Direct
	case c.WriteSync:
		return engine.Durable
	}
	return engine.Buffered
}

// Phase builds the engine configuration for one direction.
func (c *Config) Phase(dir engine.Direction, startMark int) engine.PhaseConfig {
	return engine.PhaseConfig{
		Direction:     dir,
		BlockSize:     c.BlockSizeKB * engine.KiB,
		BlocksPerMark: c.BlocksPerMark,
		NumMarks:      c.Marks,
		StartMark:     startMark,
		Order:         engine.BlockOrder(c.Order),
		MultiFile:     c.MultiFile,
		Dir:           c.DataDir(),
		Mode:          c.Mode(),
		Backend:       c.Engine,
	}
}

// Validate checks the settings that map onto a phase, plus the session
// level switches.
func (c *Config) Validate() error {
	if c.Location == "" {
		return errors.Wrap(engine.ErrInvalidConfiguration, "location is empty")
	}
	if !c.Write && !c.Read {
		return errors.Wrap(engine.ErrInvalidConfiguration, "neither write nor read is enabled")
	}
	for _, kb := range c.SweepBlockSizesKB {
		if kb <= 0 {
			return errors.Wrapf(engine.ErrInvalidConfiguration, "sweep block size %d KB", kb)
		}
	}
	return engine.Validate(c.Phase(engine.Write, c.StartMark))
}
