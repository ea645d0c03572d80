// Package config assembles pipeline settings from defaults, an optional YAML
// file and VALDATA_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	"valuation_data/pkg/core/cache"
	"valuation_data/pkg/core/extract"
	"valuation_data/pkg/core/logging"
	"valuation_data/pkg/core/marketdata"
	"valuation_data/pkg/core/normalize"
	"valuation_data/pkg/core/validate"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "VALDATA"

// Backend names usable in a fallback chain.
const (
	BackendExcel    = "excel"
	BackendHTML     = "html"
	BackendMarkdown = "markdown"
	BackendFMP      = "fmp"
	BackendSEC      = "sec"
	BackendFeed     = "feed"
)

// Cache backends.
const (
	CacheMemory   = "memory"
	CacheFile     = "file"
	CachePostgres = "postgres"
	CacheNone     = "none"
)

// Config is the complete pipeline configuration.
type Config struct {
	Logging    logging.Config  `yaml:"logging" envconfig:"LOGGING"`
	Extract    ExtractConfig   `yaml:"extract" envconfig:"EXTRACT"`
	Normalize  NormalizeConfig `yaml:"normalize" envconfig:"NORMALIZE"`
	Validation validate.Config `yaml:"validation" envconfig:"VALIDATION"`
	Cache      CacheConfig     `yaml:"cache" envconfig:"CACHE"`
	Backends   BackendsConfig  `yaml:"backends" envconfig:"BACKENDS"`
	Pipeline   PipelineConfig  `yaml:"pipeline" envconfig:"PIPELINE"`
}

// ExtractConfig tunes the tabular engine shared by the file extractors.
type ExtractConfig struct {
	SimilarityFloor float64 `yaml:"similarity_floor" envconfig:"SIMILARITY_FLOOR" validate:"gt=0,lte=1"`
	AmbiguityMargin float64 `yaml:"ambiguity_margin" envconfig:"AMBIGUITY_MARGIN" validate:"gte=0,lt=1"`
	ScanRows        int     `yaml:"scan_rows" envconfig:"SCAN_ROWS" validate:"min=1"`
	ScanCols        int     `yaml:"scan_cols" envconfig:"SCAN_COLS" validate:"min=1"`
}

// Tabular converts to the engine's options.
func (c ExtractConfig) Tabular() extract.TabularOptions {
	return extract.TabularOptions{
		SimilarityFloor: c.SimilarityFloor,
		AmbiguityMargin: c.AmbiguityMargin,
		ScanRows:        c.ScanRows,
		ScanCols:        c.ScanCols,
	}
}

// NormalizeConfig tunes scale detection.
type NormalizeConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold" envconfig:"CONFIDENCE_THRESHOLD" validate:"gt=0,lte=1"`
}

// Options converts to the normalizer's options.
func (c NormalizeConfig) Options() normalize.Options {
	return normalize.Options{ConfidenceThreshold: c.ConfidenceThreshold}
}

// CacheConfig selects where results are kept and for how long.
type CacheConfig struct {
	Backend     string        `yaml:"backend" envconfig:"BACKEND" validate:"oneof=memory file postgres none"`
	TTL         time.Duration `yaml:"ttl" envconfig:"TTL" validate:"gt=0"`
	Dir         string        `yaml:"dir" envconfig:"DIR" validate:"required_if=Backend file"`
	DatabaseURL string        `yaml:"database_url" envconfig:"DATABASE_URL" validate:"required_if=Backend postgres"`
}

// BackendsConfig holds credentials and pacing for the API backends.
type BackendsConfig struct {
	Timeout time.Duration `yaml:"timeout" envconfig:"TIMEOUT" validate:"gt=0"`
	FMP     FMPConfig     `yaml:"fmp" envconfig:"FMP"`
	SEC     SECConfig     `yaml:"sec" envconfig:"SEC"`
	Feed    FeedConfig    `yaml:"feed" envconfig:"FEED"`
}

type FMPConfig struct {
	APIKey   string        `yaml:"api_key" envconfig:"API_KEY"`
	BaseURL  string        `yaml:"base_url" envconfig:"BASE_URL" validate:"omitempty,url"`
	Interval time.Duration `yaml:"interval" envconfig:"INTERVAL" validate:"gte=0"`
}

type SECConfig struct {
	UserAgent string        `yaml:"user_agent" envconfig:"USER_AGENT" validate:"required"`
	Interval  time.Duration `yaml:"interval" envconfig:"INTERVAL" validate:"gte=0"`
}

type FeedConfig struct {
	Dir string `yaml:"dir" envconfig:"DIR"`
}

// PipelineConfig covers orchestration.
type PipelineConfig struct {
	Years            int `yaml:"years" envconfig:"YEARS" validate:"min=1,max=30"`
	BatchConcurrency int `yaml:"batch_concurrency" envconfig:"BATCH_CONCURRENCY" validate:"min=1,max=64"`

	// Chains maps a source kind to the backends tried for it, in order.
	Chains map[string][]string `yaml:"chains" ignored:"true"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	tab := extract.DefaultTabularOptions()
	return Config{
		Logging: logging.Config{Level: "info", Format: "console"},
		Extract: ExtractConfig{
			SimilarityFloor: tab.SimilarityFloor,
			AmbiguityMargin: tab.AmbiguityMargin,
			ScanRows:        tab.ScanRows,
			ScanCols:        tab.ScanCols,
		},
		Normalize:  NormalizeConfig{ConfidenceThreshold: normalize.DefaultConfidenceThreshold},
		Validation: validate.DefaultConfig(),
		Cache: CacheConfig{
			Backend: CacheFile,
			TTL:     cache.DefaultTTL,
			Dir:     cache.DefaultDir,
		},
		Backends: BackendsConfig{
			Timeout: 30 * time.Second,
			FMP:     FMPConfig{Interval: 300 * time.Millisecond},
			SEC:     SECConfig{UserAgent: marketdata.DefaultUserAgent, Interval: 150 * time.Millisecond},
			Feed:    FeedConfig{Dir: "data/feed"},
		},
		Pipeline: PipelineConfig{
			Years:            5,
			BatchConcurrency: 5,
			Chains: map[string][]string{
				string(extract.KindExcel):    {BackendExcel},
				string(extract.KindHTML):     {BackendHTML},
				string(extract.KindMarkdown): {BackendMarkdown},
				string(extract.KindAPI):      {BackendFMP, BackendSEC, BackendFeed},
			},
		},
	}
}

// Load builds the configuration. path may be empty; a missing file at an
// explicit path is an error.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}
	if cfg.Backends.FMP.APIKey == "" {
		cfg.Backends.FMP.APIKey = os.Getenv("FMP_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// loadFromFile overlays the YAML document onto cfg. Keys absent from the file
// keep their current value; chain entries replace the default per kind.
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

var structValidator = validator.New()

// Validate checks field constraints and the fallback chains.
func (c *Config) Validate() error {
	if err := structValidator.Struct(c); err != nil {
		return err
	}

	var errs []error
	for kind, chain := range c.Pipeline.Chains {
		allowed, ok := chainBackends[extract.Kind(kind)]
		if !ok {
			errs = append(errs, fmt.Errorf("pipeline.chains: unknown source kind %q", kind))
			continue
		}
		if len(chain) == 0 {
			errs = append(errs, fmt.Errorf("pipeline.chains.%s: empty chain", kind))
		}
		seen := make(map[string]bool)
		for _, name := range chain {
			if !allowed[name] {
				errs = append(errs, fmt.Errorf("pipeline.chains.%s: backend %q cannot serve this kind", kind, name))
			}
			if seen[name] {
				errs = append(errs, fmt.Errorf("pipeline.chains.%s: backend %q listed twice", kind, name))
			}
			seen[name] = true
		}
	}
	return errors.Join(errs...)
}

// chainBackends lists which backends may appear in each kind's chain.
var chainBackends = map[extract.Kind]map[string]bool{
	extract.KindExcel:    {BackendExcel: true},
	extract.KindHTML:     {BackendHTML: true, BackendMarkdown: true},
	extract.KindMarkdown: {BackendMarkdown: true, BackendHTML: true},
	extract.KindAPI:      {BackendFMP: true, BackendSEC: true, BackendFeed: true},
}

// Chain returns the ordered backends for a kind.
func (c *Config) Chain(kind extract.Kind) []string {
	return c.Pipeline.Chains[string(kind)]
}

// Summary renders the effective settings without secrets.
func (c *Config) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "cache: %s (ttl %s)\n", c.Cache.Backend, c.Cache.TTL)
	fmt.Fprintf(&b, "tolerance: %.4f, similarity floor: %.2f, scale threshold: %.2f\n",
		c.Validation.Tolerance, c.Extract.SimilarityFloor, c.Normalize.ConfidenceThreshold)
	fmt.Fprintf(&b, "outliers: quorum %d, min length %d, contamination %.2f, trees %d, seed %d\n",
		c.Validation.Outlier.Quorum, c.Validation.Outlier.MinLength, c.Validation.Outlier.Contamination,
		c.Validation.Outlier.Trees, c.Validation.Outlier.Seed)
	fmt.Fprintf(&b, "fmp key: %s\n", mask(c.Backends.FMP.APIKey))
	for _, kind := range []extract.Kind{extract.KindExcel, extract.KindHTML, extract.KindMarkdown, extract.KindAPI} {
		fmt.Fprintf(&b, "chain %s: %s\n", kind, strings.Join(c.Chain(kind), " -> "))
	}
	return b.String()
}

func mask(secret string) string {
	if secret == "" {
		return "(unset)"
	}
	if len(secret) <= 4 {
		return "****"
	}
	return secret[:2] + strings.Repeat("*", len(secret)-4) + secret[len(secret)-2:]
}
