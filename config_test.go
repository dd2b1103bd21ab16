package magicrows

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *TaskConfig {
	return &TaskConfig{
		Provider:     "openai",
		Model:        "gpt-4o-mini",
		Temperature:  0.2,
		Mode:         ModeFull,
		OutputFormat: FormatColumns,
		Outputs: []OutputSpec{{
			Name:        "summary",
			Prompt:      "Summarize {{ text }}.",
			Type:        OutputText,
			Cardinality: CardinalitySingle,
		}},
	}
}

func TestValidateOK(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*TaskConfig)
		errIs  error
		substr string
	}{
		{"missing provider", func(c *TaskConfig) { c.Provider = "" }, nil, "integrationName"},
		{"missing model", func(c *TaskConfig) { c.Model = "" }, nil, "model"},
		{"temperature too high", func(c *TaskConfig) { c.Temperature = 1.5 }, nil, "temperature"},
		{"temperature negative", func(c *TaskConfig) { c.Temperature = -0.1 }, nil, "temperature"},
		{"missing mode", func(c *TaskConfig) { c.Mode = "" }, nil, "mode"},
		{"bad mode", func(c *TaskConfig) { c.Mode = "sample" }, nil, "mode"},
		{"bad format", func(c *TaskConfig) { c.OutputFormat = "pivot" }, nil, "output format"},
		{"no outputs", func(c *TaskConfig) { c.Outputs = nil }, ErrNoOutputs, ""},
		{"unnamed output", func(c *TaskConfig) { c.Outputs[0].Name = "" }, nil, "no name"},
		{"no prompt", func(c *TaskConfig) { c.Outputs[0].Prompt = "" }, nil, "no prompt"},
		{"bad type", func(c *TaskConfig) { c.Outputs[0].Type = "image" }, ErrUnsupportedOutputType, ""},
		{"bad cardinality", func(c *TaskConfig) { c.Outputs[0].Cardinality = "triple" }, nil, "cardinality"},
		{
			"category without categories",
			func(c *TaskConfig) { c.Outputs[0].Type = OutputCategory },
			ErrNoCategories, "",
		},
		{
			"duplicate output names",
			func(c *TaskConfig) { c.Outputs = append(c.Outputs, c.Outputs[0]) },
			nil, "duplicate",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			if tc.errIs != nil {
				assert.ErrorIs(t, err, tc.errIs)
			}
			if tc.substr != "" {
				assert.Contains(t, err.Error(), tc.substr)
			}
		})
	}
}

func TestRowLimit(t *testing.T) {
	cfg := validConfig()

	assert.Equal(t, 100, cfg.rowLimit(100), "full mode processes everything")

	cfg.Mode = ModePreview
	assert.Equal(t, DefaultPreviewRows, cfg.rowLimit(100), "preview defaults to five rows")

	cfg.PreviewRows = 8
	assert.Equal(t, 8, cfg.rowLimit(100))
	assert.Equal(t, 3, cfg.rowLimit(3), "limit never exceeds the table")
}

func TestOutputContextColumns(t *testing.T) {
	o := OutputSpec{Name: "x"}
	assert.Equal(t, []string{"a", "b"}, o.contextColumns([]string{"a", "b"}))

	o.ContextColumns = []string{"c"}
	assert.Equal(t, []string{"c"}, o.contextColumns([]string{"a", "b"}))
}
