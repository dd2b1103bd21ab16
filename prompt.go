package magicrows

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/tyler-sommer/stick"
)

// AbsentText is substituted into a prompt for context columns missing from
// a row, so a malformed row can still be attempted.
const AbsentText = "N/A"

// PromptBuilder renders the prompt for one output specification. It is
// constructed once per output with its bound context-column list and holds
// a pre-checked template: a template that fails to compile is captured at
// construction and every later Build call fails with a TemplateError, so
// building many outputs eagerly never short-circuits the whole run.
type PromptBuilder struct {
	spec        OutputSpec
	contextCols []string
	env         *stick.Env
	compileErr  error
	log         *slog.Logger
}

// NewPromptBuilder binds an output specification to its effective context
// columns.
func NewPromptBuilder(spec OutputSpec, contextCols []string, log *slog.Logger) *PromptBuilder {
	if log == nil {
		log = slog.Default()
	}
	b := &PromptBuilder{
		spec:        spec,
		contextCols: contextCols,
		env:         stick.New(nil),
		log:         log,
	}

	// Probe render with placeholder values. Stick parses on execution, so
	// this is where syntax errors show up; they are stored and deferred.
	probe := make(map[string]stick.Value, len(contextCols)+3)
	for _, col := range contextCols {
		probe[col] = AbsentText
	}
	b.injectMeta(probe)
	if err := b.env.Execute(spec.Prompt, io.Discard, probe); err != nil {
		b.compileErr = err
		log.Warn("prompt template failed to compile, renders will fail",
			"output", spec.Name, "error", err)
	}
	return b
}

// Build renders the prompt for one row. Context columns absent from the
// row are replaced with AbsentText and logged; template failures surface
// as a TemplateError carrying the output name.
func (b *PromptBuilder) Build(row Row) (string, error) {
	if b.compileErr != nil {
		return "", &TemplateError{Output: b.spec.Name, Err: b.compileErr}
	}

	ctx := make(map[string]stick.Value, len(b.contextCols)+3)
	for _, col := range b.contextCols {
		if v, ok := row[col]; ok && v != nil {
			ctx[col] = v
			continue
		}
		b.log.Warn("context column missing from row, substituting absence marker",
			"output", b.spec.Name, "column", col)
		ctx[col] = AbsentText
	}
	b.injectMeta(ctx)

	var out strings.Builder
	if err := b.env.Execute(b.spec.Prompt, &out, ctx); err != nil {
		return "", &TemplateError{Output: b.spec.Name, Err: fmt.Errorf("execute template: %w", err)}
	}
	return out.String(), nil
}

// injectMeta adds the task metadata every template may reference.
func (b *PromptBuilder) injectMeta(ctx map[string]stick.Value) {
	ctx["target_name"] = b.spec.Name
	ctx["output_type"] = string(b.spec.Type)
	ctx["include_reasoning"] = b.spec.IncludeReasoning
}
