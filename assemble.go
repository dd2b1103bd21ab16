package magicrows

// Result assembly. Widen keeps every original row and appends enrichment
// columns; expand builds a fresh table whose rows are the Cartesian
// product of each source row's multi-valued outputs.

// enrichmentColumns lists the result columns in declared output order,
// each value column directly followed by its reasoning column when one is
// produced.
func enrichmentColumns(cfg *TaskConfig, reasoning bool) []string {
	var cols []string
	for i := range cfg.Outputs {
		o := &cfg.Outputs[i]
		cols = append(cols, o.Name)
		if reasoning && o.IncludeReasoning {
			cols = append(cols, reasoningColumn(o.Name))
		}
	}
	return cols
}

// assembleWiden appends enrichment columns to the original table. Rows
// beyond the processed range keep their original cells and read Absent in
// every enrichment column.
func assembleWiden(t *Table, cfg *TaskConfig, results []*rowResult, reasoning bool) *Table {
	extra := enrichmentColumns(cfg, reasoning)
	cols := append(t.Columns(), extra...)

	rows := make([]Row, t.Len())
	for i := 0; i < t.Len(); i++ {
		src := t.Row(i)
		row := make(Row, len(cols))
		for _, col := range t.Columns() {
			row[col] = src[col]
		}
		var record map[string]any
		if i < len(results) && results[i] != nil {
			record = results[i].record
		}
		for _, col := range extra {
			if record != nil {
				if v, ok := record[col]; ok {
					row[col] = v
					continue
				}
			}
			row[col] = Absent
		}
		rows[i] = row
	}
	return NewTable(cols, rows...)
}

// assembleExpand builds a new table from processed rows only. Its columns
// are the task-level context columns followed by the enrichment columns;
// each source row contributes one output row per combination of its
// multi-valued results.
func assembleExpand(t *Table, cfg *TaskConfig, results []*rowResult, reasoning bool) *Table {
	extra := enrichmentColumns(cfg, reasoning)
	cols := append(append([]string(nil), cfg.ContextColumns...), extra...)

	var rows []Row
	for i, res := range results {
		if res == nil {
			continue
		}
		src := t.Row(i)
		for _, combo := range combinations(cfg, res.record, reasoning) {
			row := make(Row, len(cols))
			for _, col := range cfg.ContextColumns {
				row[col] = src[col]
			}
			for k, v := range combo {
				row[k] = v
			}
			rows = append(rows, row)
		}
	}
	return NewTable(cols, rows...)
}

// combinations enumerates the Cartesian product of one record's output
// values. Single values, errors, and absence markers contribute one
// element; an empty collection degrades to a single Absent so the source
// row still appears. Reasoning repeats across every combination of its
// output.
func combinations(cfg *TaskConfig, record map[string]any, reasoning bool) []map[string]any {
	combos := []map[string]any{{}}

	for i := range cfg.Outputs {
		o := &cfg.Outputs[i]
		values := expandCell(record[o.Name])

		var next []map[string]any
		for _, combo := range combos {
			for _, v := range values {
				row := make(map[string]any, len(combo)+2)
				for k, cv := range combo {
					row[k] = cv
				}
				row[o.Name] = v
				if reasoning && o.IncludeReasoning {
					row[reasoningColumn(o.Name)] = record[reasoningColumn(o.Name)]
				}
				next = append(next, row)
			}
		}
		combos = next
	}
	return combos
}

// expandCell lists the values one cell contributes to the product.
func expandCell(v any) []any {
	switch x := v.(type) {
	case nil:
		return []any{Absent}
	case []any:
		if len(x) == 0 {
			return []any{Absent}
		}
		return x
	default:
		return []any{v}
	}
}
