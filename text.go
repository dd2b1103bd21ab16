package magicrows

import (
	"regexp"
	"strings"
)

// Best-effort structural extraction from free-text completions. These
// heuristics are the fallback path for responses that did not come back
// through a structured contract; they are kept separate from the contract
// path and from any provider so they can be tested on plain strings.

var listItemPattern = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*•])\s+(.*\S)\s*$`)

// stripMarkup removes code fences and light markdown emphasis that models
// wrap answers in, and trims surrounding whitespace.
func stripMarkup(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "**", "")
	return strings.TrimSpace(s)
}

// extractListItems scans text for numbered or bulleted list markers and
// returns the item bodies in order. ok is false when no marker was
// recognized on any line.
func extractListItems(text string) (items []string, ok bool) {
	for _, line := range strings.Split(text, "\n") {
		if m := listItemPattern.FindStringSubmatch(line); m != nil {
			items = append(items, stripMarkup(m[1]))
		}
	}
	return items, len(items) > 0
}

// splitNonEmptyLines is the last-resort list extraction: one item per
// non-blank line.
func splitNonEmptyLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if s := stripMarkup(line); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// extractFreeText recognizes list structure in unconstrained text. With
// multiple cardinality it prefers explicit list markers, then falls back
// to line splitting; otherwise it returns the cleaned text.
func extractFreeText(text string, multiple bool) any {
	cleaned := stripMarkup(text)
	if items, ok := extractListItems(cleaned); ok {
		if !multiple && len(items) > 0 {
			return items[0]
		}
		return toAnySlice(items)
	}
	if multiple {
		return toAnySlice(splitNonEmptyLines(cleaned))
	}
	return cleaned
}

func toAnySlice(items []string) []any {
	out := make([]any, len(items))
	for i, s := range items {
		out[i] = s
	}
	return out
}

// matchCategories tests literal containment of each allowed category name
// in the response text, in declared order. Single cardinality returns the
// first match; multiple returns every match. When nothing matches, the
// cleaned text comes back unmodified with ok=false and the caller must
// treat it as an extraction failure, not a valid category.
func matchCategories(text string, cats []Category, multiple bool) (value any, ok bool) {
	cleaned := stripMarkup(text)
	var matched []string
	for _, cat := range cats {
		if strings.Contains(cleaned, cat.Name) {
			if !multiple {
				return cat.Name, true
			}
			matched = append(matched, cat.Name)
		}
	}
	if len(matched) > 0 {
		return toAnySlice(matched), true
	}
	return cleaned, false
}
