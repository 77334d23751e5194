// Package config holds the feature-extraction settings shared by the CLI
// commands. Every field is optional: nil pointers fall back to the defaults
// returned by the Get* accessors, so partial files are safe.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. LIDARFEAT_CHUNK_SIZE.
const EnvPrefix = "LIDARFEAT"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Defaults.
const (
	DefaultChunkSize      = 100000
	DefaultMemoryFraction = 0.5
	DefaultSampleSeed     = 1
	DefaultLayerThickness = 0.5
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "console"
)

// FeatureConfig is the root configuration.
type FeatureConfig struct {
	// Orchestrator
	ChunkSize *int `json:"chunk_size,omitempty" mapstructure:"chunk_size"`

	// Neighborhood engine
	MemoryFraction *float64 `json:"memory_fraction,omitempty" mapstructure:"memory_fraction"`
	MemoryBytes    *uint64  `json:"memory_bytes,omitempty" mapstructure:"memory_bytes"` // 0 detects physical memory
	SampleSize     *int     `json:"sample_size,omitempty" mapstructure:"sample_size"`   // 0 disables sampling
	SampleSeed     *uint64  `json:"sample_seed,omitempty" mapstructure:"sample_seed"`
	Workers        *int     `json:"workers,omitempty" mapstructure:"workers"`

	// Extractors
	LayerThickness *float64 `json:"layer_thickness,omitempty" mapstructure:"layer_thickness"`

	// Logging
	LogLevel  *string `json:"log_level,omitempty" mapstructure:"log_level"`
	LogFormat *string `json:"log_format,omitempty" mapstructure:"log_format"`

	// Outputs
	HistoryDB   *string `json:"history_db,omitempty" mapstructure:"history_db"`
	MetricsFile *string `json:"metrics_file,omitempty" mapstructure:"metrics_file"`
}

var keys = []string{
	"chunk_size", "memory_fraction", "memory_bytes", "sample_size", "sample_seed",
	"workers", "layer_thickness", "log_level", "log_format", "history_db", "metrics_file",
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrUint64(v uint64) *uint64    { return &v }
func ptrString(v string) *string    { return &v }

// DefaultFeatureConfig returns a config with every field set to its default.
func DefaultFeatureConfig() *FeatureConfig {
	return &FeatureConfig{
		ChunkSize:      ptrInt(DefaultChunkSize),
		MemoryFraction: ptrFloat64(DefaultMemoryFraction),
		MemoryBytes:    ptrUint64(0),
		SampleSize:     ptrInt(0),
		SampleSeed:     ptrUint64(DefaultSampleSeed),
		Workers:        ptrInt(runtime.NumCPU()),
		LayerThickness: ptrFloat64(DefaultLayerThickness),
		LogLevel:       ptrString(DefaultLogLevel),
		LogFormat:      ptrString(DefaultLogFormat),
		HistoryDB:      ptrString(""),
		MetricsFile:    ptrString(""),
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
	return v
}

// Load reads a .json, .yaml or .yml file and applies LIDARFEAT_*
// environment overrides on top.
func Load(path string) (*FeatureConfig, error) {
	cleanPath := filepath.Clean(path)
	switch ext := filepath.Ext(cleanPath); ext {
	case ".json", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}
	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	v := newViper()
	v.SetConfigFile(cleanPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", cleanPath, err)
	}
	return unmarshal(v)
}

// LoadFromEnv builds a config from LIDARFEAT_* variables only.
func LoadFromEnv() (*FeatureConfig, error) {
	return unmarshal(newViper())
}

func unmarshal(v *viper.Viper) (*FeatureConfig, error) {
	cfg := &FeatureConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the fields that are set.
func (c *FeatureConfig) Validate() error {
	if c.ChunkSize != nil && *c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", *c.ChunkSize)
	}
	if c.MemoryFraction != nil && (*c.MemoryFraction <= 0 || *c.MemoryFraction > 1) {
		return fmt.Errorf("memory_fraction must be in (0, 1], got %g", *c.MemoryFraction)
	}
	if c.SampleSize != nil && *c.SampleSize < 0 {
		return fmt.Errorf("sample_size must be non-negative, got %d", *c.SampleSize)
	}
	if c.Workers != nil && *c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", *c.Workers)
	}
	if c.LayerThickness != nil && !(*c.LayerThickness > 0) {
		return fmt.Errorf("layer_thickness must be positive, got %g", *c.LayerThickness)
	}
	if c.LogLevel != nil {
		switch strings.ToLower(*c.LogLevel) {
		case "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("log_level must be debug, info, warn or error, got %q", *c.LogLevel)
		}
	}
	if c.LogFormat != nil && *c.LogFormat != "console" && *c.LogFormat != "json" {
		return fmt.Errorf("log_format must be console or json, got %q", *c.LogFormat)
	}
	return nil
}

// GetChunkSize returns chunk_size or the default.
func (c *FeatureConfig) GetChunkSize() int {
	if c.ChunkSize == nil {
		return DefaultChunkSize
	}
	return *c.ChunkSize
}

// GetMemoryFraction returns memory_fraction or the default.
func (c *FeatureConfig) GetMemoryFraction() float64 {
	if c.MemoryFraction == nil {
		return DefaultMemoryFraction
	}
	return *c.MemoryFraction
}

// GetMemoryBytes returns memory_bytes; 0 means detect.
func (c *FeatureConfig) GetMemoryBytes() uint64 {
	if c.MemoryBytes == nil {
		return 0
	}
	return *c.MemoryBytes
}

// GetSampleSize returns sample_size; 0 means no sampling.
func (c *FeatureConfig) GetSampleSize() int {
	if c.SampleSize == nil {
		return 0
	}
	return *c.SampleSize
}

// GetSampleSeed returns sample_seed or the default.
func (c *FeatureConfig) GetSampleSeed() uint64 {
	if c.SampleSeed == nil {
		return DefaultSampleSeed
	}
	return *c.SampleSeed
}

// GetWorkers returns workers or the number of CPUs.
func (c *FeatureConfig) GetWorkers() int {
	if c.Workers == nil {
		return runtime.NumCPU()
	}
	return *c.Workers
}

// GetLayerThickness returns layer_thickness or the default.
func (c *FeatureConfig) GetLayerThickness() float64 {
	if c.LayerThickness == nil {
		return DefaultLayerThickness
	}
	return *c.LayerThickness
}

// GetLogLevel returns log_level or the default.
func (c *FeatureConfig) GetLogLevel() string {
	if c.LogLevel == nil {
		return DefaultLogLevel
	}
	return *c.LogLevel
}

// GetLogFormat returns log_format or the default.
func (c *FeatureConfig) GetLogFormat() string {
	if c.LogFormat == nil {
		return DefaultLogFormat
	}
	return *c.LogFormat
}

// GetHistoryDB returns the run-history database path; empty disables it.
func (c *FeatureConfig) GetHistoryDB() string {
	if c.HistoryDB == nil {
		return ""
	}
	return *c.HistoryDB
}

// GetMetricsFile returns the metrics textfile path; empty disables it.
func (c *FeatureConfig) GetMetricsFile() string {
	if c.MetricsFile == nil {
		return ""
	}
	return *c.MetricsFile
}
