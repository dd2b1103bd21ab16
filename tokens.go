package magicrows

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Token estimation for dry runs. Tiktoken gives accurate counts for the
// OpenAI model family; everything else falls back to a character
// heuristic, which is close enough for planning.

var encodingByModelPrefix = []struct {
	prefix   string
	encoding string
}{
	{"gpt-4o", "o200k_base"},
	{"gpt-4.1", "o200k_base"},
	{"gpt-4", "cl100k_base"},
	{"gpt-3.5", "cl100k_base"},
}

var (
	encoderMu    sync.Mutex
	encoderCache = map[string]*tiktoken.Tiktoken{}
)

func encoderFor(model string) *tiktoken.Tiktoken {
	name := ""
	for _, e := range encodingByModelPrefix {
		if strings.HasPrefix(model, e.prefix) {
			name = e.encoding
			break
		}
	}
	if name == "" {
		return nil
	}

	encoderMu.Lock()
	defer encoderMu.Unlock()
	if enc, ok := encoderCache[name]; ok {
		return enc
	}
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		// Encoding data may be unavailable offline; cache the miss.
		encoderCache[name] = nil
		return nil
	}
	encoderCache[name] = enc
	return enc
}

// estimateTokens counts tokens for a model, or approximates at ~4
// characters per token when no encoder applies.
func estimateTokens(model, text string) int {
	if enc := encoderFor(model); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return (len(text) + 3) / 4
}

// estimateOutputTokens guesses completion size for one output: JSON
// envelope overhead plus typical content, doubled for collections and
// padded when reasoning is requested.
func estimateOutputTokens(spec OutputSpec, reasoning bool) int {
	base := 12
	switch spec.Type {
	case OutputNumber:
		base += 5
	case OutputCategory:
		base += 10
	default:
		base += 30
	}
	if spec.Cardinality == CardinalityMultiple {
		base *= 2
	}
	if reasoning && spec.IncludeReasoning {
		base += 60
	}
	return base
}
