// Package magicrows enriches tabular data by deriving new column or row
// values from a generative AI provider, guided by a declarative task
// configuration.
//
// The flow: an Enricher owns a set of named provider profiles. A call to
// Enrich takes a Table and a TaskConfig describing one or more outputs
// (name, prompt template, value type, cardinality). For every row and every
// output the library renders a prompt from the row's context columns, turns
// the output declaration into a structured-output contract, calls the
// provider, and reassembles the per-row results either as new columns
// (widen) or as new rows built from the Cartesian product of multi-valued
// outputs (expand).
//
// Basic use:
//
//	enricher, err := magicrows.New(magicrows.Profile{
//		Name:   "myOpenAI",
//		Type:   magicrows.ProviderOpenAI,
//		APIKey: os.Getenv("OPENAI_API_KEY"),
//	})
//	if err != nil { ... }
//
//	cfg, err := magicrows.LoadPreset("sentiment.yaml")
//	if err != nil { ... }
//
//	out, stats, err := enricher.Enrich(ctx, table, cfg,
//		magicrows.WithBatchSize(8),
//		magicrows.WithSummary(os.Stderr),
//	)
//
// Rows inside a batch run concurrently; batches run sequentially. A failed
// output never aborts its row, and a failed row never aborts the run;
// failures surface as error markers in the enriched table. Only
// configuration errors (unknown provider, category output without
// categories) abort a run, and they do so before the first provider call.
//
// New providers are added by implementing ProviderHandler and passing it
// via WithHandler; nothing in the pipeline branches on provider names.
package magicrows
