package magicrows

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// ProviderType identifies the wire family of a profile.
type ProviderType string

const (
	ProviderOpenAI ProviderType = "openai"
	ProviderGemini ProviderType = "gemini"
)

// Profile names one credentialed provider integration. Profiles are
// resolved once at Enricher construction and are read-only afterwards, so
// they may be shared across concurrent row tasks without synchronization.
type Profile struct {
	Name   string
	Type   ProviderType
	APIKey string

	// BaseURL overrides the provider's API endpoint. Useful for proxies
	// and tests.
	BaseURL string
}

// CompletionRequest carries everything one provider call needs. When
// Contract is set the provider is asked for structured output bound to it;
// otherwise the call requests free text.
type CompletionRequest struct {
	Model       string
	Prompt      string
	Temperature float64
	Contract    *Contract
}

// RawResponse is the provider-neutral view of one completion: its textual
// payload plus best-effort usage counters.
type RawResponse struct {
	Text         string
	FinishReason string
	Usage        Usage
	HasUsage     bool
}

// ProviderHandler is the capability every provider implements: issue one
// completion, decode its payload against an output's declared type, and
// report token usage. Implementations are stateless per call; new
// providers plug in by implementing this interface, never by branching on
// type names elsewhere.
type ProviderHandler interface {
	Complete(ctx context.Context, req CompletionRequest) (*RawResponse, error)
	Parse(raw *RawResponse, spec OutputSpec) (any, error)
	Usage(raw *RawResponse) (Usage, bool)
}

// newHandler instantiates the handler for a profile.
func newHandler(ctx context.Context, p Profile, log *slog.Logger) (ProviderHandler, error) {
	switch p.Type {
	case ProviderGemini:
		return newGeminiHandler(ctx, p, log)
	case ProviderOpenAI:
		return newOpenAIHandler(p, log), nil
	default:
		return nil, fmt.Errorf("profile %q: %w: unsupported provider type %q", p.Name, ErrUnknownProvider, p.Type)
	}
}

// responseParser holds the decode logic shared by all handlers. Payloads
// that arrived through a structured contract decode as JSON; everything
// else goes through the free-text heuristics in text.go.
type responseParser struct {
	log *slog.Logger
}

var numberPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

func (p responseParser) Parse(raw *RawResponse, spec OutputSpec) (any, error) {
	if raw == nil || strings.TrimSpace(raw.Text) == "" {
		return nil, &ResponseError{Err: ErrEmptyResponse}
	}
	cleaned := stripMarkup(raw.Text)

	// Structured path: a JSON object carrying the contract's single field.
	var obj map[string]any
	if err := json.Unmarshal([]byte(cleaned), &obj); err == nil {
		if v, ok := obj[spec.Name]; ok {
			return p.decodeField(v, spec, cleaned)
		}
	}

	if spec.Type == OutputJSON {
		if !json.Valid([]byte(cleaned)) {
			return nil, &ResponseError{
				Err: fmt.Errorf("output %q declared json but content does not parse", spec.Name),
				Raw: raw.Text,
			}
		}
		return cleaned, nil
	}

	return p.parseFreeText(cleaned, spec, raw.Text)
}

func (p responseParser) Usage(raw *RawResponse) (Usage, bool) {
	if raw == nil || !raw.HasUsage {
		return Usage{}, false
	}
	return raw.Usage, true
}

// decodeField types a JSON value extracted from the contract field. A
// value/reasoning wrapper is preserved with its inner value typed; the row
// processor does the actual split.
func (p responseParser) decodeField(v any, spec OutputSpec, raw string) (any, error) {
	if m, ok := v.(map[string]any); ok {
		inner, hasValue := m["value"]
		reasoning, hasReasoning := m["reasoning"]
		if hasValue && hasReasoning {
			typed, err := p.decodeValue(inner, spec, raw)
			if err != nil {
				return nil, err
			}
			return map[string]any{"value": typed, "reasoning": reasoning}, nil
		}
	}
	return p.decodeValue(v, spec, raw)
}

func (p responseParser) decodeValue(v any, spec OutputSpec, raw string) (any, error) {
	if spec.Cardinality == CardinalityMultiple {
		if items, ok := v.([]any); ok {
			out := make([]any, 0, len(items))
			for _, item := range items {
				typed, err := p.decodeScalar(item, spec, raw)
				if err != nil {
					return nil, err
				}
				out = append(out, typed)
			}
			return out, nil
		}
		// Non-list value for a multiple output: the caller degrades it to
		// a single-element collection with a warning.
	}
	return p.decodeScalar(v, spec, raw)
}

func (p responseParser) decodeScalar(v any, spec OutputSpec, raw string) (any, error) {
	switch spec.Type {
	case OutputNumber:
		switch n := v.(type) {
		case float64:
			return n, nil
		case string:
			if m := numberPattern.FindString(n); m != "" {
				var f float64
				if _, err := fmt.Sscanf(m, "%g", &f); err == nil {
					return f, nil
				}
			}
		}
		return nil, &ResponseError{
			Err: fmt.Errorf("output %q declared number but got %T", spec.Name, v),
			Raw: raw,
		}
	case OutputCategory:
		s, ok := v.(string)
		if !ok {
			return nil, &ResponseError{
				Err: fmt.Errorf("output %q declared category but got %T", spec.Name, v),
				Raw: raw,
			}
		}
		for _, cat := range spec.Categories {
			if s == cat.Name {
				return s, nil
			}
		}
		// The model answered outside the enum; fall back to containment.
		if match, ok := matchCategories(s, spec.Categories, false); ok {
			p.log.Warn("category answer normalized by containment match",
				"output", spec.Name, "answer", s, "match", match)
			return match, nil
		}
		return nil, &ResponseError{
			Err: fmt.Errorf("output %q: %q is not an allowed category", spec.Name, s),
			Raw: raw,
		}
	case OutputJSON:
		s, ok := v.(string)
		if !ok || !json.Valid([]byte(s)) {
			return nil, &ResponseError{
				Err: fmt.Errorf("output %q declared json but field content does not parse", spec.Name),
				Raw: raw,
			}
		}
		return s, nil
	default: // OutputText
		if s, ok := v.(string); ok {
			return s, nil
		}
		return fmt.Sprint(v), nil
	}
}

// parseFreeText handles completions that came back without usable JSON.
func (p responseParser) parseFreeText(cleaned string, spec OutputSpec, raw string) (any, error) {
	multiple := spec.Cardinality == CardinalityMultiple

	switch spec.Type {
	case OutputCategory:
		value, ok := matchCategories(cleaned, spec.Categories, multiple)
		if !ok {
			p.log.Warn("response contains no allowed category name",
				"output", spec.Name, "response", cleaned)
			return nil, &ResponseError{
				Err: fmt.Errorf("output %q: no allowed category found in response", spec.Name),
				Raw: raw,
			}
		}
		return value, nil
	case OutputNumber:
		if m := numberPattern.FindString(cleaned); m != "" {
			var f float64
			if _, err := fmt.Sscanf(m, "%g", &f); err == nil {
				return f, nil
			}
		}
		return nil, &ResponseError{
			Err: fmt.Errorf("output %q: no numeric value found in response", spec.Name),
			Raw: raw,
		}
	default:
		return extractFreeText(cleaned, multiple), nil
	}
}
