package magicrows

import "fmt"

// OutputType declares the kind of value an output produces.
type OutputType string

const (
	OutputText     OutputType = "text"
	OutputCategory OutputType = "category"
	OutputNumber   OutputType = "number"
	OutputJSON     OutputType = "json"
)

// Cardinality declares whether an output yields one value or a collection.
type Cardinality string

const (
	CardinalitySingle   Cardinality = "single"
	CardinalityMultiple Cardinality = "multiple"
)

// OutputFormat selects how enrichment results rejoin the table.
type OutputFormat string

const (
	// FormatColumns widens the table: one new column per enrichment field,
	// aligned to the original rows.
	FormatColumns OutputFormat = "newColumns"
	// FormatRows expands the table: one new row per combination of
	// multi-valued outputs, carrying the configured context columns.
	FormatRows OutputFormat = "newRows"
)

// RunMode bounds how many rows a run processes.
type RunMode string

const (
	ModePreview RunMode = "preview"
	ModeFull    RunMode = "full"
)

// DefaultPreviewRows is used when preview mode sets no explicit row count.
const DefaultPreviewRows = 5

// Category is one allowed value for a category-typed output. The
// description is surfaced to the model, not validated against.
type Category struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

// OutputSpec declares a single enrichment output: its name (which becomes
// the result field), its prompt template, and the shape of the value the
// provider is asked to return.
type OutputSpec struct {
	Name             string      `json:"name" yaml:"name"`
	Prompt           string      `json:"prompt" yaml:"prompt"`
	Type             OutputType  `json:"outputType" yaml:"outputType"`
	Cardinality      Cardinality `json:"outputCardinality" yaml:"outputCardinality"`
	Categories       []Category  `json:"outputCategories,omitempty" yaml:"outputCategories"`
	ContextColumns   []string    `json:"contextColumns,omitempty" yaml:"contextColumns"`
	IncludeReasoning bool        `json:"includeReasoning" yaml:"includeReasoning"`
}

// contextColumns resolves the effective context columns for this output,
// falling back to the task-level default.
func (o *OutputSpec) contextColumns(defaults []string) []string {
	if len(o.ContextColumns) > 0 {
		return o.ContextColumns
	}
	return defaults
}

// TaskConfig is one validated enrichment task. It is immutable for the
// duration of a run.
type TaskConfig struct {
	Provider       string       `json:"integrationName" yaml:"integrationName"`
	Model          string       `json:"model" yaml:"model"`
	Temperature    float64      `json:"temperature" yaml:"temperature"`
	Mode           RunMode      `json:"mode" yaml:"mode"`
	PreviewRows    int          `json:"previewRowCount,omitempty" yaml:"previewRowCount"`
	OutputFormat   OutputFormat `json:"outputFormat" yaml:"outputFormat"`
	ContextColumns []string     `json:"contextColumns" yaml:"contextColumns"`
	Outputs        []OutputSpec `json:"outputs" yaml:"outputs"`
	Budget         float64      `json:"budget,omitempty" yaml:"budget"`
}

// Validate checks the structural invariants of the configuration. All
// violations are configuration errors: fatal, surfaced before any provider
// call.
func (c *TaskConfig) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("validate config: integrationName is required")
	}
	if c.Model == "" {
		return fmt.Errorf("validate config: model is required")
	}
	if c.Temperature < 0 || c.Temperature > 1 {
		return fmt.Errorf("validate config: temperature %v must be between 0.0 and 1.0", c.Temperature)
	}
	switch c.Mode {
	case ModePreview, ModeFull:
	case "":
		return fmt.Errorf("validate config: mode is required")
	default:
		return fmt.Errorf("validate config: unsupported mode %q", c.Mode)
	}
	switch c.OutputFormat {
	case FormatColumns, FormatRows:
	default:
		return fmt.Errorf("validate config: unsupported output format %q", c.OutputFormat)
	}
	if len(c.Outputs) == 0 {
		return fmt.Errorf("validate config: %w", ErrNoOutputs)
	}
	seen := make(map[string]bool, len(c.Outputs))
	for i := range c.Outputs {
		o := &c.Outputs[i]
		if o.Name == "" {
			return fmt.Errorf("validate config: output %d has no name", i)
		}
		if seen[o.Name] {
			return fmt.Errorf("validate config: duplicate output name %q", o.Name)
		}
		seen[o.Name] = true
		if o.Prompt == "" {
			return fmt.Errorf("validate config: output %q has no prompt", o.Name)
		}
		switch o.Type {
		case OutputText, OutputCategory, OutputNumber, OutputJSON:
		default:
			return fmt.Errorf("validate config: output %q: %w: %q", o.Name, ErrUnsupportedOutputType, o.Type)
		}
		switch o.Cardinality {
		case CardinalitySingle, CardinalityMultiple:
		default:
			return fmt.Errorf("validate config: output %q has unsupported cardinality %q", o.Name, o.Cardinality)
		}
		if o.Type == OutputCategory && len(o.Categories) == 0 {
			return fmt.Errorf("validate config: output %q: %w", o.Name, ErrNoCategories)
		}
	}
	return nil
}

// rowLimit returns how many of total rows this run should process.
func (c *TaskConfig) rowLimit(total int) int {
	if c.Mode != ModePreview {
		return total
	}
	n := c.PreviewRows
	if n <= 0 {
		n = DefaultPreviewRows
	}
	if n > total {
		return total
	}
	return n
}
