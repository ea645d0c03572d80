package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
	"valuation_data/pkg/core/extract"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 0.01, cfg.Validation.Tolerance)
	assert.Equal(t, 2, cfg.Validation.Outlier.Quorum)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 5, cfg.Pipeline.BatchConcurrency)
	assert.Equal(t, []string{BackendFMP, BackendSEC, BackendFeed}, cfg.Chain(extract.KindAPI))
	assert.Equal(t, []string{BackendExcel}, cfg.Chain(extract.KindExcel))
}

func TestLoad_FileOverlaysDefaults(t *testing.T) {
	t.Setenv("FMP_API_KEY", "")
	path := writeConfig(t, `
cache:
  backend: memory
  ttl: 1h
validation:
  tolerance: 0.02
  outlier:
    quorum: 3
pipeline:
  chains:
    api: [feed, fmp]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, CacheMemory, cfg.Cache.Backend)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 0.02, cfg.Validation.Tolerance)
	assert.Equal(t, 3, cfg.Validation.Outlier.Quorum)
	assert.Equal(t, 4, cfg.Validation.Outlier.MinLength, "unset keys keep their default")
	assert.Equal(t, 1.0, cfg.Validation.MarginMax)
	assert.Equal(t, []string{BackendFeed, BackendFMP}, cfg.Chain(extract.KindAPI))
	assert.Equal(t, []string{BackendExcel}, cfg.Chain(extract.KindExcel), "other chains survive the overlay")
}

func TestLoad_EnvironmentWins(t *testing.T) {
	path := writeConfig(t, "validation:\n  tolerance: 0.02\n")
	t.Setenv("VALDATA_VALIDATION_TOLERANCE", "0.05")
	t.Setenv("VALDATA_VALIDATION_OUTLIER_SEED", "7")
	t.Setenv("VALDATA_CACHE_TTL", "90m")
	t.Setenv("VALDATA_BACKENDS_FMP_API_KEY", "abcdef123")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.05, cfg.Validation.Tolerance)
	assert.Equal(t, uint64(7), cfg.Validation.Outlier.Seed)
	assert.Equal(t, 90*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "abcdef123", cfg.Backends.FMP.APIKey)
}

func TestLoad_FMPKeyFallback(t *testing.T) {
	t.Setenv("FMP_API_KEY", "from-dotenv")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Backends.FMP.APIKey)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("bad yaml", func(t *testing.T) {
		_, err := Load(writeConfig(t, "cache: [unclosed\n"))
		assert.Error(t, err)
	})

	t.Run("bad env value", func(t *testing.T) {
		t.Setenv("VALDATA_PIPELINE_YEARS", "many")
		_, err := Load("")
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"unknown cache backend", func(c *Config) { c.Cache.Backend = "redis" }, "Backend"},
		{"postgres needs a url", func(c *Config) { c.Cache.Backend = CachePostgres }, "DatabaseURL"},
		{"tolerance out of range", func(c *Config) { c.Validation.Tolerance = 0 }, "Tolerance"},
		{"inverted margin band", func(c *Config) { c.Validation.MarginMin = 2 }, "MarginMin"},
		{"quorum below one", func(c *Config) { c.Validation.Outlier.Quorum = 0 }, "Quorum"},
		{"unknown kind", func(c *Config) { c.Pipeline.Chains["pdf"] = []string{"excel"} }, `unknown source kind "pdf"`},
		{"wrong backend for kind", func(c *Config) { c.Pipeline.Chains["api"] = []string{"fmp", "excel"} }, `backend "excel" cannot serve`},
		{"duplicate backend", func(c *Config) { c.Pipeline.Chains["api"] = []string{"sec", "sec"} }, "listed twice"},
		{"empty chain", func(c *Config) { c.Pipeline.Chains["html"] = nil }, "empty chain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSummaryMasksKey(t *testing.T) {
	cfg := Defaults()
	cfg.Backends.FMP.APIKey = "supersecret"
	s := cfg.Summary()
	assert.NotContains(t, s, "supersecret")
	assert.Contains(t, s, "su*******et")
	assert.Contains(t, s, "chain api: fmp -> sec -> feed")
}
