package pipeline

import (
	"context"
	"fmt"
	"valuation_data/pkg/core/cache"
	"valuation_data/pkg/core/config"
	"valuation_data/pkg/core/extract"
	"valuation_data/pkg/core/marketdata"
	"valuation_data/pkg/core/normalize"
	"valuation_data/pkg/core/validate"

	"github.com/phuslu/log"
	"github.com/prometheus/client_golang/prometheus"
)

// Extractors builds every named extractor from cfg. API backends share one
// rate limiter per backend name across the process.
func Extractors(cfg *config.Config, logger *log.Logger) map[string]extract.Extractor {
	tab := cfg.Extract.Tabular()
	b := cfg.Backends
	return map[string]extract.Extractor{
		config.BackendExcel:    extract.NewExcelExtractor(tab, logger),
		config.BackendHTML:     extract.NewHTMLExtractor(tab, logger),
		config.BackendMarkdown: extract.NewMarkdownExtractor(tab, logger),
		config.BackendFMP: extract.NewAPIExtractor(
			marketdata.NewFMP(b.FMP.APIKey, b.FMP.BaseURL),
			extract.SharedLimiter(config.BackendFMP, b.FMP.Interval), b.Timeout, logger,
		).WithCredentials("backends.fmp.api_key"),
		config.BackendSEC: extract.NewAPIExtractor(
			marketdata.NewSEC(b.SEC.UserAgent),
			extract.SharedLimiter(config.BackendSEC, b.SEC.Interval), b.Timeout, logger,
		).WithCredentials("backends.sec.user_agent"),
		config.BackendFeed: extract.NewAPIExtractor(marketdata.NewFeed(b.Feed.Dir, logger), nil, b.Timeout, logger),
	}
}

// Chains resolves the configured chain names into extractors.
func Chains(cfg *config.Config, available map[string]extract.Extractor) (map[extract.Kind][]extract.Extractor, error) {
	chains := make(map[extract.Kind][]extract.Extractor, len(cfg.Pipeline.Chains))
	for kind, names := range cfg.Pipeline.Chains {
		for _, name := range names {
			x, ok := available[name]
			if !ok {
				return nil, fmt.Errorf("chain %s: unknown extractor %q", kind, name)
			}
			chains[extract.Kind(kind)] = append(chains[extract.Kind(kind)], x)
		}
	}
	return chains, nil
}

// OpenCache builds the configured cache. The returned func releases any
// database pool; it is never nil. A "none" backend yields a nil cache.
func OpenCache(ctx context.Context, cfg config.CacheConfig, logger *log.Logger) (*cache.Cache, func(), error) {
	noop := func() {}

	var store cache.Store
	closeFn := noop
	switch cfg.Backend {
	case config.CacheNone:
		return nil, noop, nil
	case config.CacheMemory:
		store = cache.NewMemoryStore()
	case config.CacheFile:
		fs, err := cache.NewFileStore(cfg.Dir)
		if err != nil {
			return nil, noop, err
		}
		store = fs
	case config.CachePostgres:
		pool, err := cache.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, noop, err
		}
		ps, err := cache.NewPostgresStore(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, noop, err
		}
		store, closeFn = ps, pool.Close
	default:
		return nil, noop, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
	return cache.New(store, cfg.TTL, logger), closeFn, nil
}

// Build wires a PipelineOrchestrator from configuration. reg may be nil.
func Build(ctx context.Context, cfg *config.Config, logger *log.Logger, reg prometheus.Registerer) (*PipelineOrchestrator, func(), error) {
	chains, err := Chains(cfg, Extractors(cfg, logger))
	if err != nil {
		return nil, nil, err
	}
	c, closeFn, err := OpenCache(ctx, cfg.Cache, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open cache: %w", err)
	}

	p := NewPipelineOrchestrator(Dependencies{
		Chains:      chains,
		Normalizer:  normalize.New(cfg.Normalize.Options(), logger),
		Validator:   validate.New(cfg.Validation, logger),
		Cache:       c,
		Metrics:     NewMetrics(reg),
		Logger:      logger,
		Years:       cfg.Pipeline.Years,
		Concurrency: cfg.Pipeline.BatchConcurrency,
	})
	return p, closeFn, nil
}
