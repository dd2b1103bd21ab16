package magicrows

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Enricher runs enrichment tasks against a set of registered provider
// profiles. Construct it once; it is safe for concurrent runs.
type Enricher struct {
	profiles map[string]Profile
	log      *slog.Logger
}

// New builds an Enricher over the given profiles. At least one profile is
// required; a duplicate name overwrites the earlier registration.
func New(profiles ...Profile) (*Enricher, error) {
	return NewWithLogger(slog.Default(), profiles...)
}

// NewWithLogger is New with an explicit logger.
func NewWithLogger(log *slog.Logger, profiles ...Profile) (*Enricher, error) {
	if log == nil {
		log = slog.Default()
	}
	if len(profiles) == 0 {
		return nil, ErrNoProviders
	}
	e := &Enricher{profiles: make(map[string]Profile, len(profiles)), log: log}
	for _, p := range profiles {
		if _, ok := e.profiles[p.Name]; ok {
			log.Warn("duplicate profile name, overwriting earlier registration", "profile", p.Name)
		}
		e.profiles[p.Name] = p
	}
	return e, nil
}

// Options tune one enrichment run.
type Options struct {
	BatchSize     int
	Retry         RetryPolicy
	RateLimit     *rate.Limiter
	Reasoning     bool
	LogPayloads   bool
	Progress      ProgressFunc
	SummaryWriter io.Writer
	CostRates     map[string]CostRate
	Handler       ProviderHandler
	NewRunner     RunnerFactory
}

func defaultOptions() *Options {
	return &Options{
		BatchSize: 10,
		Retry:     RetryPolicy{MaxRetries: 2, Backoff: 500 * time.Millisecond, MaxBackoff: 8 * time.Second},
		Reasoning: true,
		CostRates: DefaultCostRates(),
	}
}

// WithBatchSize sets how many rows run concurrently per batch.
func WithBatchSize(n int) func(*Options) {
	return func(o *Options) {
		if n > 0 {
			o.BatchSize = n
		}
	}
}

// WithRetry replaces the retry policy for transient provider failures.
func WithRetry(p RetryPolicy) func(*Options) {
	return func(o *Options) { o.Retry = p }
}

// WithRateLimit caps provider calls at rps requests per second across all
// workers.
func WithRateLimit(rps float64) func(*Options) {
	return func(o *Options) {
		if rps > 0 {
			o.RateLimit = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithReasoning toggles the run-level reasoning override. Defaults to
// enabled; disabling it suppresses reasoning even for outputs that request
// it.
func WithReasoning(enabled bool) func(*Options) {
	return func(o *Options) { o.Reasoning = enabled }
}

// WithPayloadLogging logs every rendered prompt and raw completion at
// debug level. Payloads may contain sensitive data.
func WithPayloadLogging() func(*Options) {
	return func(o *Options) { o.LogPayloads = true }
}

// WithProgress registers a callback invoked after each completed batch.
func WithProgress(fn ProgressFunc) func(*Options) {
	return func(o *Options) { o.Progress = fn }
}

// WithSummary writes the post-run report to w when the run finishes.
func WithSummary(w io.Writer) func(*Options) {
	return func(o *Options) { o.SummaryWriter = w }
}

// WithCostRates replaces the pricing table used for cost estimation.
func WithCostRates(rates map[string]CostRate) func(*Options) {
	return func(o *Options) { o.CostRates = rates }
}

// WithHandler substitutes the provider handler, bypassing profile
// resolution. Intended for tests and custom transports.
func WithHandler(h ProviderHandler) func(*Options) {
	return func(o *Options) { o.Handler = h }
}

// WithRunner substitutes the per-batch task runner.
func WithRunner(f RunnerFactory) func(*Options) {
	return func(o *Options) { o.NewRunner = f }
}

// Enrich runs one task over the table and returns the assembled result
// table plus run statistics. Configuration and setup failures surface
// before any provider call; per-row failures are recorded in the result
// as error markers and counted in the statistics.
func (e *Enricher) Enrich(ctx context.Context, t *Table, cfg *TaskConfig, opts ...func(*Options)) (*Table, *RunStats, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	handler := options.Handler
	if handler == nil {
		profile, ok := e.profiles[cfg.Provider]
		if !ok {
			return nil, nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
		}
		var err error
		handler, err = newHandler(ctx, profile, e.log)
		if err != nil {
			return nil, nil, err
		}
	}

	builders, contracts, err := e.prepare(cfg, options.Reasoning)
	if err != nil {
		return nil, nil, err
	}

	proc := &rowProcessor{
		cfg:        cfg,
		handler:    handler,
		builders:   builders,
		contracts:  contracts,
		retry:      options.Retry,
		limiter:    options.RateLimit,
		reasoning:  options.Reasoning,
		logPayload: options.LogPayloads,
		log:        e.log,
	}
	newRunner := options.NewRunner
	if newRunner == nil {
		size := options.BatchSize
		newRunner = func(ctx context.Context) Runner { return newGroupRunner(ctx, size) }
	}
	sched := &batchScheduler{
		proc:      proc,
		batchSize: options.BatchSize,
		newRunner: newRunner,
		progress:  options.Progress,
		log:       e.log,
	}

	limit := cfg.rowLimit(t.Len())
	runID := uuid.NewString()
	e.log.Info("starting enrichment run",
		"run", runID, "provider", cfg.Provider, "model", cfg.Model,
		"mode", cfg.Mode, "rows", limit, "outputs", len(cfg.Outputs))

	results, stats, runErr := sched.run(ctx, t, limit)
	stats.RunID = runID
	stats.EstimatedCost = stats.Usage.Cost(options.CostRates[cfg.Model])
	if runErr != nil {
		return nil, stats, runErr
	}

	var out *Table
	switch cfg.OutputFormat {
	case FormatRows:
		out = assembleExpand(t, cfg, results, options.Reasoning)
	default:
		out = assembleWiden(t, cfg, results, options.Reasoning)
	}

	if cfg.Budget > 0 && stats.EstimatedCost > cfg.Budget {
		e.log.Warn("estimated cost exceeded the configured budget",
			"run", runID, "cost", stats.EstimatedCost, "budget", cfg.Budget)
	}
	if options.SummaryWriter != nil {
		fmt.Fprint(options.SummaryWriter, stats.Summary())
	}
	e.log.Info("enrichment run finished",
		"run", runID, "calls", stats.Usage.Calls, "failures", stats.Failures,
		"tokens", stats.Usage.TotalTokens, "wall", stats.WallTime)
	return out, stats, nil
}

// DryRun estimates the token and cost footprint of a task without calling
// any provider. Prompts are rendered for real; completion sizes are
// heuristic.
func (e *Enricher) DryRun(t *Table, cfg *TaskConfig, opts ...func(*Options)) (*RunStats, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	builders, _, err := e.prepare(cfg, options.Reasoning)
	if err != nil {
		return nil, err
	}

	limit := cfg.rowLimit(t.Len())
	stats := &RunStats{RunID: uuid.NewString(), RowsTotal: t.Len(), RowsProcessed: limit}

	for i := 0; i < limit; i++ {
		row := t.Row(i)
		for j := range cfg.Outputs {
			spec := &cfg.Outputs[j]
			prompt, err := builders[spec.Name].Build(row)
			if err != nil {
				return nil, err
			}
			in := estimateTokens(cfg.Model, systemInstruction+prompt)
			out := estimateOutputTokens(*spec, options.Reasoning)
			stats.Usage.add(Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out, Calls: 1})
		}
	}
	stats.EstimatedCost = stats.Usage.Cost(options.CostRates[cfg.Model])
	if cfg.Budget > 0 && stats.EstimatedCost > cfg.Budget {
		e.log.Warn("estimated cost exceeds the configured budget",
			"run", stats.RunID, "cost", stats.EstimatedCost, "budget", cfg.Budget)
	}
	return stats, nil
}

// prepare eagerly builds the prompt builder and contract for every output
// so configuration problems surface before the first provider call.
func (e *Enricher) prepare(cfg *TaskConfig, reasoning bool) (map[string]*PromptBuilder, map[string]*Contract, error) {
	builders := make(map[string]*PromptBuilder, len(cfg.Outputs))
	contracts := make(map[string]*Contract, len(cfg.Outputs))
	for i := range cfg.Outputs {
		spec := cfg.Outputs[i]
		contract, err := GenerateContract(spec, reasoning)
		if err != nil {
			return nil, nil, err
		}
		contracts[spec.Name] = contract
		builders[spec.Name] = NewPromptBuilder(spec, spec.contextColumns(cfg.ContextColumns), e.log)
	}
	return builders, contracts, nil
}
