// Package pipeline runs Extraction -> Normalization -> Validation for one
// source or a batch of them, with fallback chains, caching and an audit trail.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"valuation_data/pkg/core/cache"
	"valuation_data/pkg/core/extract"
	"valuation_data/pkg/core/logging"
	"valuation_data/pkg/core/normalize"
	"valuation_data/pkg/core/validate"
	"valuation_data/pkg/models"

	"github.com/google/uuid"
	"github.com/phuslu/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ErrNoExtractor means no chain is configured for a sniffed kind.
var ErrNoExtractor = errors.New("no extractor configured")

const (
	DefaultYears       = 5
	DefaultConcurrency = 5
)

// RunOptions are per-run inputs.
type RunOptions struct {
	Years       int               // most recent N fiscal years; 0 uses the orchestrator default
	Analyses    []models.Analysis // drive completeness and required-field checks
	ContextHint string            // extra unit text, e.g. "USD in thousands"
	Company     models.Company    // fills in what the source does not name
}

// Attempt is one extractor invocation inside a fallback chain.
type Attempt struct {
	Extractor string        `json:"extractor"`
	Outcome   string        `json:"outcome"` // "ok", a failure reason, or "aborted"
	Duration  time.Duration `json:"duration_ns"`
	Error     string        `json:"error,omitempty"`
}

// Audit records how a result was produced.
type Audit struct {
	RunID     string       `json:"run_id"`
	Source    string       `json:"source"`
	Kind      extract.Kind `json:"kind"`
	CacheKey  string       `json:"cache_key"`
	CacheHit  bool         `json:"cache_hit"`
	Shared    bool         `json:"shared"` // result came from a concurrent run for the same key
	Attempts  []Attempt    `json:"attempts,omitempty"`
	StartedAt time.Time    `json:"started_at"`

	Extraction    time.Duration `json:"extraction_ns"`
	Normalization time.Duration `json:"normalization_ns"`
	Validation    time.Duration `json:"validation_ns"`
	Total         time.Duration `json:"total_ns"`
}

// Result is the pipeline output for one source.
type Result struct {
	Data       *models.FinancialData    `json:"data"`
	Validation *models.ValidationResult `json:"validation"`
	Audit      Audit                    `json:"audit"`
}

// ChainError is returned when every extractor in a chain failed. It names
// each source and its reason; errors.Is sees through to the individual
// failures.
type ChainError struct {
	Source   string
	Kind     extract.Kind
	Attempts []Attempt
	Errs     []error
}

func (e *ChainError) Error() string {
	parts := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		parts[i] = err.Error()
	}
	return fmt.Sprintf("all %d %s sources failed for %s: %s", len(e.Errs), e.Kind, e.Source, strings.Join(parts, "; "))
}

func (e *ChainError) Unwrap() []error { return e.Errs }

// Dependencies are the collaborators of a PipelineOrchestrator. Chains and
// Normalizer/Validator are required; everything else is optional.
type Dependencies struct {
	Chains      map[extract.Kind][]extract.Extractor
	Normalizer  *normalize.Normalizer
	Validator   *validate.Validator
	Cache       *cache.Cache // nil disables caching
	Metrics     *Metrics
	Logger      *log.Logger
	Years       int
	Concurrency int
}

// PipelineOrchestrator owns the dispatch table and the shared stages.
type PipelineOrchestrator struct {
	chains      map[extract.Kind][]extract.Extractor
	normalizer  *normalize.Normalizer
	validator   *validate.Validator
	cache       *cache.Cache
	metrics     *Metrics
	logger      *log.Logger
	years       int
	concurrency int
	group       singleflight.Group
}

// NewPipelineOrchestrator fills defaults for anything left unset.
func NewPipelineOrchestrator(deps Dependencies) *PipelineOrchestrator {
	logger := logging.OrNop(deps.Logger)
	p := &PipelineOrchestrator{
		chains:      deps.Chains,
		normalizer:  deps.Normalizer,
		validator:   deps.Validator,
		cache:       deps.Cache,
		metrics:     deps.Metrics,
		logger:      logger,
		years:       deps.Years,
		concurrency: deps.Concurrency,
	}
	if p.chains == nil {
		p.chains = make(map[extract.Kind][]extract.Extractor)
	}
	if p.normalizer == nil {
		p.normalizer = normalize.New(normalize.Options{}, logger)
	}
	if p.validator == nil {
		p.validator = validate.New(validate.DefaultConfig(), logger)
	}
	if p.metrics == nil {
		p.metrics = NewMetrics(nil)
	}
	if p.years <= 0 {
		p.years = DefaultYears
	}
	if p.concurrency <= 0 {
		p.concurrency = DefaultConcurrency
	}
	return p
}

// Chain returns the extractors tried for kind, in order.
func (p *PipelineOrchestrator) Chain(kind extract.Kind) []extract.Extractor {
	return p.chains[kind]
}

// ClearCache drops every cached extraction.
func (p *PipelineOrchestrator) ClearCache(ctx context.Context) error {
	if p.cache == nil {
		return nil
	}
	return p.cache.Clear(ctx)
}

// Run processes one source. Validation findings are data in the result, not
// errors; an error means no FinancialData could be produced.
func (p *PipelineOrchestrator) Run(ctx context.Context, source string, opts RunOptions) (*Result, error) {
	start := time.Now()
	audit := Audit{RunID: uuid.NewString(), Source: source, StartedAt: start}

	kind, err := Sniff(source)
	if err != nil {
		p.metrics.Runs.WithLabelValues("unknown", "error").Inc()
		return nil, err
	}
	audit.Kind = kind

	years := opts.Years
	if years <= 0 {
		years = p.years
	}
	src := extract.Source{
		Kind:     kind,
		Locator:  strings.TrimSpace(source),
		Years:    years,
		Company:  opts.Company,
		Analyses: opts.Analyses,
	}
	key := cache.Key(string(kind), identity(kind, src.Locator), strconv.Itoa(years))
	audit.CacheKey = key

	logger := p.logger
	logger.Debug().Str("run_id", audit.RunID).Str("source", source).Str("kind", string(kind)).Msg("pipeline run started")

	v, err, shared := p.group.Do(key, func() (any, error) {
		return p.extract(ctx, key, src)
	})
	audit.Shared = shared
	if err != nil {
		p.fail(kind, start)
		logger.Warn().Str("run_id", audit.RunID).Str("source", source).Err(err).Msg("extraction failed")
		return nil, err
	}
	ext := v.(*extraction)
	audit.CacheHit = ext.cacheHit
	audit.Attempts = ext.attempts
	audit.Extraction = ext.elapsed

	t := time.Now()
	data, err := p.normalizer.Normalize(ext.record, opts.ContextHint)
	if err != nil {
		p.fail(kind, start)
		return nil, fmt.Errorf("normalize %s: %w", source, err)
	}
	audit.Normalization = time.Since(t)

	t = time.Now()
	result := p.validator.Validate(data, opts.Analyses)
	data.Quality.CompletenessScore = result.CompletenessScore
	audit.Validation = time.Since(t)
	audit.Total = time.Since(start)

	status := "valid"
	if !result.IsValid {
		status = "invalid"
	}
	p.metrics.Runs.WithLabelValues(string(kind), status).Inc()
	p.metrics.RunDuration.WithLabelValues(string(kind)).Observe(audit.Total.Seconds())

	logger.Info().Str("run_id", audit.RunID).Str("source", source).Str("extractor", data.Quality.Source).
		Bool("cache_hit", audit.CacheHit).Bool("valid", result.IsValid).Int("issues", len(result.Issues)).
		Float64("completeness", result.CompletenessScore).Dur("elapsed", audit.Total).Msg("pipeline run complete")

	return &Result{Data: data, Validation: result, Audit: audit}, nil
}

func (p *PipelineOrchestrator) fail(kind extract.Kind, start time.Time) {
	p.metrics.Runs.WithLabelValues(string(kind), "error").Inc()
	p.metrics.RunDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
}

// extraction is the shared outcome of the extract stage.
type extraction struct {
	record   *models.RawRecord
	attempts []Attempt
	cacheHit bool
	elapsed  time.Duration
}

// extract serves the record from cache or walks the fallback chain. Any
// DataFetchError advances to the next extractor; anything else (a cancelled
// context, a bug) stops the chain.
func (p *PipelineOrchestrator) extract(ctx context.Context, key string, src extract.Source) (*extraction, error) {
	start := time.Now()

	if p.cache != nil {
		var rec models.RawRecord
		hit, err := p.cache.Get(ctx, key, &rec)
		switch {
		case err != nil:
			p.metrics.CacheLookups.WithLabelValues("error").Inc()
			p.logger.Warn().Str("source", src.Locator).Err(err).Msg("cache lookup failed, extracting")
		case hit:
			p.metrics.CacheLookups.WithLabelValues("hit").Inc()
			return &extraction{record: &rec, cacheHit: true, elapsed: time.Since(start)}, nil
		default:
			p.metrics.CacheLookups.WithLabelValues("miss").Inc()
		}
	}

	chain := p.chains[src.Kind]
	if len(chain) == 0 {
		return nil, fmt.Errorf("%w for %s sources", ErrNoExtractor, src.Kind)
	}

	out := &extraction{}
	var failures []error
	for _, x := range chain {
		t := time.Now()
		rec, err := x.Extract(ctx, src)
		att := Attempt{Extractor: x.Name(), Outcome: "ok", Duration: time.Since(t)}
		if err == nil {
			out.attempts = append(out.attempts, att)
			p.metrics.Attempts.WithLabelValues(att.Extractor, att.Outcome).Inc()
			out.record = rec
			break
		}

		att.Error = err.Error()
		fe, ok := extract.AsFetchError(err)
		if !ok {
			att.Outcome = "aborted"
			out.attempts = append(out.attempts, att)
			p.metrics.Attempts.WithLabelValues(att.Extractor, att.Outcome).Inc()
			return nil, fmt.Errorf("%s: %w", x.Name(), err)
		}
		att.Outcome = string(fe.Reason)
		out.attempts = append(out.attempts, att)
		p.metrics.Attempts.WithLabelValues(att.Extractor, att.Outcome).Inc()
		failures = append(failures, err)

		ev := p.logger.Info().Str("extractor", x.Name()).Str("source", src.Locator).Str("reason", string(fe.Reason))
		if fe.RetryAfter > 0 {
			ev = ev.Dur("retry_after", fe.RetryAfter)
		}
		ev.Msg("extractor failed, trying next in chain")
	}

	if out.record == nil {
		return nil, &ChainError{Source: src.Locator, Kind: src.Kind, Attempts: out.attempts, Errs: failures}
	}

	if p.cache != nil {
		if err := p.cache.Put(ctx, key, out.record); err != nil {
			p.logger.Warn().Str("source", src.Locator).Err(err).Msg("cache write failed")
		}
	}
	out.elapsed = time.Since(start)
	return out, nil
}

// BatchItem is the outcome for one source of a batch.
type BatchItem struct {
	Source string  `json:"source"`
	Result *Result `json:"result,omitempty"`
	Err    error   `json:"-"`
	Error  string  `json:"error,omitempty"`
}

// RunBatch runs every source with bounded concurrency. One failing source
// never cancels the others; items keep the input order.
func (p *PipelineOrchestrator) RunBatch(ctx context.Context, sources []string, opts RunOptions) ([]BatchItem, error) {
	items := make([]BatchItem, len(sources))

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, source := range sources {
		g.Go(func() error {
			res, err := p.Run(ctx, source, opts)
			items[i] = BatchItem{Source: source, Result: res, Err: err}
			if err != nil {
				items[i].Error = err.Error()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return items, err
	}

	failed := 0
	for _, it := range items {
		if it.Err != nil {
			failed++
		}
	}
	p.logger.Info().Int("sources", len(sources)).Int("failed", failed).Msg("batch complete")
	return items, ctx.Err()
}
