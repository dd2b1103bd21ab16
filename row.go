package magicrows

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"golang.org/x/time/rate"
)

// ErrorValue is stored in a result cell when an output could not be
// produced for a row. It renders with a marker prefix so failures stay
// visible in downstream tables.
type ErrorValue struct {
	Output string
	Err    error
}

func (e ErrorValue) String() string { return "!error: " + e.Err.Error() }

// rowResult is the outcome of processing one row: one record per output
// name, holding a typed value, an ErrorValue, or a value/reasoning pair.
type rowResult struct {
	index   int
	record  map[string]any
	usage   Usage
	elapsed time.Duration
}

// RetryPolicy bounds the retry loop around transient provider failures.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// rowProcessor runs every configured output against one row. It is built
// once per run and shared across worker goroutines; all fields are
// read-only after construction.
type rowProcessor struct {
	cfg        *TaskConfig
	handler    ProviderHandler
	builders   map[string]*PromptBuilder
	contracts  map[string]*Contract
	retry      RetryPolicy
	limiter    *rate.Limiter
	reasoning  bool
	logPayload bool
	log        *slog.Logger
}

// process runs each output in declared order. A failed output records an
// ErrorValue and processing continues with the next output; only context
// cancellation aborts the row.
func (rp *rowProcessor) process(ctx context.Context, index int, row Row) (*rowResult, error) {
	res := &rowResult{index: index, record: make(map[string]any, len(rp.cfg.Outputs))}

	for i := range rp.cfg.Outputs {
		spec := &rp.cfg.Outputs[i]
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		value, reasoning, u, elapsed, err := rp.processOutput(ctx, index, row, spec)
		res.usage.add(u)
		res.elapsed += elapsed
		if err != nil {
			rp.log.Warn("output failed for row",
				"row", index, "output", spec.Name, "error", err)
			res.record[spec.Name] = ErrorValue{Output: spec.Name, Err: err}
			if rp.wantsReasoning(spec) {
				res.record[reasoningColumn(spec.Name)] = Absent
			}
			continue
		}
		res.record[spec.Name] = value
		if rp.wantsReasoning(spec) {
			res.record[reasoningColumn(spec.Name)] = reasoning
		}
	}
	return res, nil
}

// processOutput renders the prompt, calls the provider with retries, and
// decodes the response for one output.
func (rp *rowProcessor) processOutput(ctx context.Context, index int, row Row, spec *OutputSpec) (value, reasoning any, u Usage, elapsed time.Duration, err error) {
	reasoning = Absent

	builder := rp.builders[spec.Name]
	prompt, err := builder.Build(row)
	if err != nil {
		return nil, reasoning, u, 0, err
	}
	if rp.logPayload {
		rp.log.Debug("rendered prompt", "row", index, "output", spec.Name, "prompt", prompt)
	}

	req := CompletionRequest{
		Model:       rp.cfg.Model,
		Prompt:      prompt,
		Temperature: rp.cfg.Temperature,
		Contract:    rp.contracts[spec.Name],
	}

	raw, elapsed, err := rp.complete(ctx, index, spec.Name, req)
	if err != nil {
		return nil, reasoning, u, elapsed, err
	}
	if got, ok := rp.handler.Usage(raw); ok {
		got.Calls = 1
		u = got
	} else {
		u = Usage{Calls: 1}
	}
	if rp.logPayload {
		rp.log.Debug("raw completion", "row", index, "output", spec.Name, "text", raw.Text)
	}

	parsed, err := rp.handler.Parse(raw, *spec)
	if err != nil {
		return nil, reasoning, u, elapsed, err
	}

	value, reasoning = rp.splitReasoning(parsed, spec, index)
	value = rp.normalizeCardinality(value, spec, index)
	return value, reasoning, u, elapsed, nil
}

// complete issues the provider call inside the retry loop. Only transient
// failures are retried; request and response errors surface immediately.
func (rp *rowProcessor) complete(ctx context.Context, index int, output string, req CompletionRequest) (*RawResponse, time.Duration, error) {
	attempts := rp.retry.MaxRetries + 1
	var elapsed time.Duration
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			rp.log.Info("retrying provider call",
				"row", index, "output", output, "attempt", attempt+1, "error", lastErr)
			if err := backoffSleep(ctx, rp.retry, attempt); err != nil {
				return nil, elapsed, err
			}
		}
		if rp.limiter != nil {
			if err := rp.limiter.Wait(ctx); err != nil {
				return nil, elapsed, err
			}
		}

		start := time.Now()
		raw, err := rp.handler.Complete(ctx, req)
		elapsed += time.Since(start)
		if err == nil {
			return raw, elapsed, nil
		}
		lastErr = err
		if !isTransient(err) || ctx.Err() != nil {
			return nil, elapsed, err
		}
	}
	return nil, elapsed, fmt.Errorf("gave up after %d attempts: %w", attempts, lastErr)
}

// backoffSleep waits the exponential delay for the given attempt, with up
// to 25% jitter, honoring cancellation.
func backoffSleep(ctx context.Context, p RetryPolicy, attempt int) error {
	d := p.Backoff << (attempt - 1)
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	d += time.Duration(rand.Int63n(int64(d)/4 + 1))

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// splitReasoning separates a value/reasoning wrapper into its parts. When
// reasoning was requested but the wrapper is missing, both sides degrade
// to the absence marker.
func (rp *rowProcessor) splitReasoning(parsed any, spec *OutputSpec, index int) (any, any) {
	wants := rp.wantsReasoning(spec)
	if m, ok := parsed.(map[string]any); ok {
		inner, hasValue := m["value"]
		reason, hasReason := m["reasoning"]
		if hasValue && hasReason {
			if !wants {
				return inner, Absent
			}
			return inner, reason
		}
	}
	if wants {
		rp.log.Warn("reasoning requested but response lacks the value/reasoning shape",
			"row", index, "output", spec.Name)
		return Absent, Absent
	}
	return parsed, Absent
}

// normalizeCardinality degrades a scalar answer for a multiple output into
// a single-element collection, and leaves everything else untouched.
func (rp *rowProcessor) normalizeCardinality(value any, spec *OutputSpec, index int) any {
	if spec.Cardinality != CardinalityMultiple {
		return value
	}
	if _, ok := value.([]any); ok {
		return value
	}
	if _, ok := value.(Absence); ok {
		return value
	}
	rp.log.Warn("multiple output answered with a single value, wrapping",
		"row", index, "output", spec.Name)
	return []any{value}
}

func (rp *rowProcessor) wantsReasoning(spec *OutputSpec) bool {
	return rp.reasoning && spec.IncludeReasoning
}

// reasoningColumn names the companion column holding an output's
// reasoning text.
func reasoningColumn(output string) string { return output + "_reasoning" }
