package magicrows

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptBuilderRendersContext(t *testing.T) {
	spec := OutputSpec{
		Name:   "sentiment",
		Prompt: "Classify the sentiment of {{ review }} by {{ author }}.",
		Type:   OutputCategory,
	}
	b := NewPromptBuilder(spec, []string{"review", "author"}, nil)

	out, err := b.Build(Row{"review": "great product", "author": "sam"})
	require.NoError(t, err)
	assert.Equal(t, "Classify the sentiment of great product by sam.", out)
}

func TestPromptBuilderMissingColumnSubstitutesAbsent(t *testing.T) {
	spec := OutputSpec{Name: "s", Prompt: "value: {{ price }}", Type: OutputText}
	b := NewPromptBuilder(spec, []string{"price"}, nil)

	out, err := b.Build(Row{"other": "x"})
	require.NoError(t, err)
	assert.Equal(t, "value: "+AbsentText, out)
}

func TestPromptBuilderNilColumnSubstitutesAbsent(t *testing.T) {
	spec := OutputSpec{Name: "s", Prompt: "value: {{ price }}", Type: OutputText}
	b := NewPromptBuilder(spec, []string{"price"}, nil)

	out, err := b.Build(Row{"price": nil})
	require.NoError(t, err)
	assert.Equal(t, "value: "+AbsentText, out)
}

func TestPromptBuilderMetaVariables(t *testing.T) {
	spec := OutputSpec{
		Name:             "score",
		Prompt:           "target={{ target_name }} type={{ output_type }}",
		Type:             OutputNumber,
		IncludeReasoning: true,
	}
	b := NewPromptBuilder(spec, nil, nil)

	out, err := b.Build(Row{})
	require.NoError(t, err)
	assert.Equal(t, "target=score type=number", out)
}

func TestPromptBuilderBadTemplateDeferredToBuild(t *testing.T) {
	spec := OutputSpec{Name: "s", Prompt: "broken {% if %}", Type: OutputText}
	b := NewPromptBuilder(spec, nil, nil)

	_, err := b.Build(Row{})
	var te *TemplateError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "s", te.Output)
}
