package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultFeatureConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultFeatureConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 100000, *cfg.ChunkSize)
	assert.Equal(t, runtime.NumCPU(), *cfg.Workers)
	assert.Equal(t, 0.5, *cfg.LayerThickness)
	assert.Equal(t, "console", *cfg.LogFormat)
}

func TestGetters_Defaults(t *testing.T) {
	t.Parallel()
	cfg := &FeatureConfig{}
	assert.Equal(t, DefaultChunkSize, cfg.GetChunkSize())
	assert.Equal(t, DefaultMemoryFraction, cfg.GetMemoryFraction())
	assert.Zero(t, cfg.GetMemoryBytes())
	assert.Zero(t, cfg.GetSampleSize())
	assert.Equal(t, uint64(DefaultSampleSeed), cfg.GetSampleSeed())
	assert.Equal(t, runtime.NumCPU(), cfg.GetWorkers())
	assert.Equal(t, DefaultLayerThickness, cfg.GetLayerThickness())
	assert.Equal(t, "info", cfg.GetLogLevel())
	assert.Equal(t, "console", cfg.GetLogFormat())
	assert.Empty(t, cfg.GetHistoryDB())
	assert.Empty(t, cfg.GetMetricsFile())
}

func TestLoad_JSON(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "cfg.json", `{
  "chunk_size": 5000,
  "memory_fraction": 0.25,
  "sample_size": 64,
  "history_db": "runs.db"
}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.GetChunkSize())
	assert.Equal(t, 0.25, cfg.GetMemoryFraction())
	assert.Equal(t, 64, cfg.GetSampleSize())
	assert.Equal(t, "runs.db", cfg.GetHistoryDB())
	assert.Nil(t, cfg.Workers)
}

func TestLoad_YAML(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "cfg.yaml", "layer_thickness: 0.25\nlog_format: json\nworkers: 2\nmemory_bytes: 1048576\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.25, cfg.GetLayerThickness())
	assert.Equal(t, "json", cfg.GetLogFormat())
	assert.Equal(t, 2, cfg.GetWorkers())
	assert.Equal(t, uint64(1<<20), cfg.GetMemoryBytes())
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name, file, body, msg string
	}{
		{"extension", "cfg.toml", "chunk_size = 1", "extension"},
		{"invalid chunk", "cfg.json", `{"chunk_size": 0}`, "chunk_size"},
		{"invalid fraction", "cfg.json", `{"memory_fraction": 1.5}`, "memory_fraction"},
		{"invalid level", "cfg.yml", "log_level: loud\n", "log_level"},
		{"invalid format", "cfg.yml", "log_format: xml\n", "log_format"},
		{"invalid thickness", "cfg.json", `{"layer_thickness": -1}`, "layer_thickness"},
		{"malformed", "cfg.json", `{"chunk_size": `, "read config"},
		{"too large", "cfg.json", `{"history_db": "` + strings.Repeat("x", maxFileSize) + `"}`, "too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Load(writeConfig(t, tt.file, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "stat")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("LIDARFEAT_CHUNK_SIZE", "42")
	path := writeConfig(t, "cfg.json", `{"chunk_size": 5000, "sample_seed": 9}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.GetChunkSize())
	assert.Equal(t, uint64(9), cfg.GetSampleSeed())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LIDARFEAT_MEMORY_FRACTION", "0.125")
	t.Setenv("LIDARFEAT_METRICS_FILE", "/tmp/lidarfeat.prom")
	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 0.125, cfg.GetMemoryFraction())
	assert.Equal(t, "/tmp/lidarfeat.prom", cfg.GetMetricsFile())
	assert.Nil(t, cfg.ChunkSize)

	t.Setenv("LIDARFEAT_WORKERS", "-3")
	_, err = LoadFromEnv()
	assert.ErrorContains(t, err, "workers")
}
