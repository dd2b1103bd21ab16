package magicrows

import (
	"fmt"
	"strings"
	"time"
)

// Usage carries additive token counters. The batch scheduler owns the
// run-level accumulator; it is updated after each successful provider call
// and used only for reporting, never for control flow.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Calls            int
}

func (u *Usage) add(o Usage) {
	u.PromptTokens += o.PromptTokens
	u.CompletionTokens += o.CompletionTokens
	u.TotalTokens += o.TotalTokens
	u.Calls += o.Calls
}

// CostRate prices a model in USD per million tokens.
type CostRate struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// Cost estimates the spend for these counters at the given rate.
func (u Usage) Cost(r CostRate) float64 {
	return float64(u.PromptTokens)*r.InputPerMTok/1e6 +
		float64(u.CompletionTokens)*r.OutputPerMTok/1e6
}

// DefaultCostRates returns input/output costs in USD per million tokens
// for commonly used models.
func DefaultCostRates() map[string]CostRate {
	return map[string]CostRate{
		// OpenAI
		"gpt-4o":        {InputPerMTok: 5.00, OutputPerMTok: 20.00},
		"gpt-4o-mini":   {InputPerMTok: 0.60, OutputPerMTok: 2.40},
		"gpt-4.1":       {InputPerMTok: 2.00, OutputPerMTok: 8.00},
		"gpt-4.1-mini":  {InputPerMTok: 0.40, OutputPerMTok: 1.60},
		"gpt-4.1-nano":  {InputPerMTok: 0.10, OutputPerMTok: 0.40},
		"gpt-3.5-turbo": {InputPerMTok: 0.50, OutputPerMTok: 1.50},

		// Google Gemini
		"gemini-2.5-pro":   {InputPerMTok: 1.25, OutputPerMTok: 10.00},
		"gemini-2.5-flash": {InputPerMTok: 0.30, OutputPerMTok: 2.50},
		"gemini-2.0-flash": {InputPerMTok: 0.15, OutputPerMTok: 0.60},
		"gemini-1.5-pro":   {InputPerMTok: 1.25, OutputPerMTok: 5.00},
		"gemini-1.5-flash": {InputPerMTok: 0.075, OutputPerMTok: 0.30},
	}
}

// RunStats summarizes one enrichment run.
type RunStats struct {
	RunID         string
	RowsProcessed int
	RowsTotal     int
	Batches       int
	Failures      int
	Usage         Usage
	WallTime      time.Duration
	ProviderTime  time.Duration
	EstimatedCost float64
}

// Summary renders a human-readable post-run report.
func (s *RunStats) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "enrichment run %s\n", s.RunID)
	fmt.Fprintf(&sb, "  rows processed:    %d of %d (%d batches)\n", s.RowsProcessed, s.RowsTotal, s.Batches)
	fmt.Fprintf(&sb, "  provider calls:    %d successful, %d failed\n", s.Usage.Calls, s.Failures)
	fmt.Fprintf(&sb, "  elapsed:           %s wall, %s in provider\n",
		s.WallTime.Round(time.Millisecond), s.ProviderTime.Round(time.Millisecond))
	fmt.Fprintf(&sb, "  tokens:            %d prompt, %d completion, %d total\n",
		s.Usage.PromptTokens, s.Usage.CompletionTokens, s.Usage.TotalTokens)
	fmt.Fprintf(&sb, "  estimated cost:    $%.6f\n", s.EstimatedCost)
	return sb.String()
}
