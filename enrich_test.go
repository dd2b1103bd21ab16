package magicrows

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProfiles() []Profile {
	return []Profile{{Name: "test", Type: ProviderOpenAI, APIKey: "k"}}
}

func TestNewRequiresProfiles(t *testing.T) {
	_, err := New()
	require.ErrorIs(t, err, ErrNoProviders)
}

func TestNewDuplicateProfileOverwrites(t *testing.T) {
	e, err := New(
		Profile{Name: "p", Type: ProviderOpenAI, APIKey: "old"},
		Profile{Name: "p", Type: ProviderGemini, APIKey: "new"},
	)
	require.NoError(t, err)
	assert.Equal(t, ProviderGemini, e.profiles["p"].Type)
}

func TestEnrichUnknownProvider(t *testing.T) {
	e, err := New(testProfiles()...)
	require.NoError(t, err)
	cfg := sentimentConfig()
	cfg.Provider = "nope"

	_, _, err = e.Enrich(context.Background(), NewTable([]string{"review"}), cfg)
	require.ErrorIs(t, err, ErrUnknownProvider)
}

func TestEnrichInvalidConfigBeforeAnyCall(t *testing.T) {
	e, err := New(testProfiles()...)
	require.NoError(t, err)
	stub := NewStubHandler()
	cfg := sentimentConfig()
	cfg.Outputs = nil

	_, _, err = e.Enrich(context.Background(), NewTable([]string{"review"}), cfg, WithHandler(stub))
	require.ErrorIs(t, err, ErrNoOutputs)
	assert.Empty(t, stub.Calls())
}

func TestEnrichWidenEndToEnd(t *testing.T) {
	table := NewTable([]string{"review"},
		Row{"review": "great"},
		Row{"review": "awful"},
	)
	stub := NewStubHandler().Reply("sentiment",
		StubReply{Text: `{"sentiment": "positive"}`, Usage: Usage{PromptTokens: 10, CompletionTokens: 2, TotalTokens: 12}},
		StubReply{Text: `{"sentiment": "negative"}`, Usage: Usage{PromptTokens: 11, CompletionTokens: 2, TotalTokens: 13}},
	)
	e, err := New(testProfiles()...)
	require.NoError(t, err)

	out, stats, err := e.Enrich(context.Background(), table, sentimentConfig(),
		WithHandler(stub), WithBatchSize(1))
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())
	assert.Equal(t, []string{"review", "sentiment"}, out.Columns())
	assert.Equal(t, 2, stats.Usage.Calls)
	assert.Equal(t, 25, stats.Usage.TotalTokens)
	assert.Equal(t, 2, stats.Batches)
	assert.Equal(t, 0, stats.Failures)
	assert.NotEmpty(t, stats.RunID)
}

func TestEnrichPreviewLimitsRows(t *testing.T) {
	table := NewTable([]string{"review"},
		Row{"review": "a"}, Row{"review": "b"}, Row{"review": "c"},
	)
	stub := NewStubHandler().Reply("sentiment",
		StubReply{Text: `{"sentiment": "positive"}`},
	)
	cfg := sentimentConfig()
	cfg.Mode = ModePreview
	cfg.PreviewRows = 1
	e, err := New(testProfiles()...)
	require.NoError(t, err)

	out, stats, err := e.Enrich(context.Background(), table, cfg, WithHandler(stub))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RowsProcessed)
	assert.Equal(t, 3, stats.RowsTotal)
	require.Equal(t, 3, out.Len(), "widen keeps unprocessed rows")
	assert.Equal(t, "positive", out.Row(0)["sentiment"])
	assert.Equal(t, Absent, out.Row(1)["sentiment"])
	assert.Len(t, stub.Calls(), 1)
}

func TestEnrichFreeTextCategoryWiden(t *testing.T) {
	table := NewTable([]string{"review"},
		Row{"review": "one"},
		Row{"review": "two"},
	)
	cfg := sentimentConfig()
	cfg.Outputs[0].Categories = []Category{{Name: "Positive"}, {Name: "Negative"}}
	stub := NewStubHandler().Reply("sentiment",
		StubReply{Text: "The sentiment here is Positive."},
		StubReply{Text: "The sentiment here is Positive."},
	)
	e, err := New(testProfiles()...)
	require.NoError(t, err)

	out, _, err := e.Enrich(context.Background(), table, cfg,
		WithHandler(stub), WithBatchSize(1))
	require.NoError(t, err)
	assert.Equal(t, []string{"review", "sentiment"}, out.Columns(),
		"no reasoning column when explanation is not requested")
	assert.Equal(t, "Positive", out.Row(0)["sentiment"])
	assert.Equal(t, "Positive", out.Row(1)["sentiment"])
}

func TestEnrichFailuresCountedNotFatal(t *testing.T) {
	table := NewTable([]string{"review"}, Row{"review": "x"})
	stub := NewStubHandler().Reply("sentiment",
		StubReply{Err: &RequestError{Err: assert.AnError}},
	)
	e, err := New(testProfiles()...)
	require.NoError(t, err)

	out, stats, err := e.Enrich(context.Background(), table, sentimentConfig(), WithHandler(stub))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failures)
	_, failed := out.Row(0)["sentiment"].(ErrorValue)
	assert.True(t, failed)
}

func TestEnrichProgressAndSummary(t *testing.T) {
	table := NewTable([]string{"review"},
		Row{"review": "a"}, Row{"review": "b"},
	)
	stub := NewStubHandler().Reply("sentiment",
		StubReply{Text: `{"sentiment": "positive"}`},
		StubReply{Text: `{"sentiment": "negative"}`},
	)
	e, err := New(testProfiles()...)
	require.NoError(t, err)

	var progressed []Progress
	var summary strings.Builder
	_, stats, err := e.Enrich(context.Background(), table, sentimentConfig(),
		WithHandler(stub),
		WithBatchSize(1),
		WithProgress(func(p Progress) { progressed = append(progressed, p) }),
		WithSummary(&summary),
	)
	require.NoError(t, err)
	require.Len(t, progressed, 2)
	assert.Equal(t, 1, progressed[0].RowsDone)
	assert.Equal(t, 2, progressed[1].RowsDone)
	assert.Contains(t, summary.String(), stats.RunID)
	assert.Contains(t, summary.String(), "provider calls")
}

func TestEnrichCostEstimation(t *testing.T) {
	table := NewTable([]string{"review"}, Row{"review": "a"})
	stub := NewStubHandler().Reply("sentiment", StubReply{
		Text:  `{"sentiment": "positive"}`,
		Usage: Usage{PromptTokens: 1_000_000, CompletionTokens: 1_000_000, TotalTokens: 2_000_000},
	})
	e, err := New(testProfiles()...)
	require.NoError(t, err)

	_, stats, err := e.Enrich(context.Background(), table, sentimentConfig(),
		WithHandler(stub),
		WithCostRates(map[string]CostRate{"gpt-4o-mini": {InputPerMTok: 1, OutputPerMTok: 2}}),
	)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, stats.EstimatedCost, 1e-9)
}

func TestDryRunEstimates(t *testing.T) {
	table := NewTable([]string{"review"},
		Row{"review": "first review"},
		Row{"review": "second review"},
	)
	e, err := New(testProfiles()...)
	require.NoError(t, err)

	stats, err := e.DryRun(table, sentimentConfig())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Usage.Calls)
	assert.Greater(t, stats.Usage.PromptTokens, 0)
	assert.Greater(t, stats.Usage.CompletionTokens, 0)
	assert.Greater(t, stats.EstimatedCost, 0.0)
}
