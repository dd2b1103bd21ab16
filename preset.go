package magicrows

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Preset loading. Task configurations travel as YAML or JSON files, or as
// TypeScript modules exporting a single configuration object literal.

// LoadPreset reads and validates a task configuration from path, picking
// the decoder from the file extension.
func LoadPreset(path string) (*TaskConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load preset %s: %w", path, err)
	}

	var cfg TaskConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("load preset %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("load preset %s: %w", path, err)
		}
	case ".ts":
		obj, err := extractTSObject(string(data))
		if err != nil {
			return nil, fmt.Errorf("load preset %s: %w", path, err)
		}
		if err := json.Unmarshal([]byte(tsToJSON(obj)), &cfg); err != nil {
			return nil, fmt.Errorf("load preset %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("load preset %s: unsupported extension %q", path, filepath.Ext(path))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("load preset %s: %w", path, err)
	}
	return &cfg, nil
}

// extractTSObject pulls the first top-level object literal out of a
// TypeScript module by balancing braces, skipping string contents.
func extractTSObject(src string) (string, error) {
	start := strings.Index(src, "{")
	if start < 0 {
		return "", fmt.Errorf("no object literal found")
	}

	depth := 0
	var quote byte
	for i := start; i < len(src); i++ {
		c := src[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'', '`':
			quote = c
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return src[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced object literal")
}

var (
	tsCommentPattern = regexp.MustCompile(`(?m)//[^\n]*$|/\*[\s\S]*?\*/`)
	tsBareKeyPattern = regexp.MustCompile(`(?m)([{,]\s*)([A-Za-z_$][A-Za-z0-9_$]*)\s*:`)
	tsTrailingComma  = regexp.MustCompile(`,(\s*[}\]])`)
	tsSingleQuoted   = regexp.MustCompile(`'((?:[^'\\]|\\.)*)'`)
)

// tsToJSON rewrites a TypeScript object literal as JSON: comments removed,
// bare keys quoted, single-quoted strings requoted, trailing commas
// dropped.
func tsToJSON(obj string) string {
	out := tsCommentPattern.ReplaceAllString(obj, "")
	out = tsSingleQuoted.ReplaceAllStringFunc(out, func(m string) string {
		inner := m[1 : len(m)-1]
		inner = strings.ReplaceAll(inner, `\'`, `'`)
		b, _ := json.Marshal(inner)
		return string(b)
	})
	out = tsBareKeyPattern.ReplaceAllString(out, `$1"$2":`)
	out = tsTrailingComma.ReplaceAllString(out, `$1`)
	return out
}
