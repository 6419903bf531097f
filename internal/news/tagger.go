package news

import (
	"strings"
)

// DefaultFallback labels articles that matched no configured keyword.
const DefaultFallback = "Others"

// TagOptions controls how Tag resolves a keyword.
type TagOptions struct {
	Fallback string
	// FreeMode assigns CatchAll to every article without scanning definitions.
	FreeMode bool
	CatchAll string
	// Strict requires the literal keyword; variations are ignored.
	Strict bool
	// Mode limits matching to definitions serving this stream. Empty means any.
	Mode Kind
}

// Tag returns the keyword of the first active definition, in configuration
// order, whose keyword or variation occurs case-insensitively in text.
func Tag(text string, defs []KeywordDefinition, opts TagOptions) (string, bool) {
	if opts.FreeMode && opts.CatchAll != "" {
		return opts.CatchAll, true
	}

	lower := strings.ToLower(text)
	for _, d := range defs {
		if !d.Active || !d.Kind.Serves(opts.Mode) {
			continue
		}
		for _, term := range d.Terms(opts.Strict) {
			if strings.Contains(lower, strings.ToLower(term)) {
				return d.Keyword, true
			}
		}
	}

	if opts.Fallback == "" {
		return DefaultFallback, false
	}
	return opts.Fallback, false
}

// Selected returns the active definitions serving mode, preserving order.
func Selected(defs []KeywordDefinition, mode Kind) []KeywordDefinition {
	out := make([]KeywordDefinition, 0, len(defs))
	for _, d := range defs {
		if d.Active && d.Kind.Serves(mode) && strings.TrimSpace(d.Keyword) != "" {
			out = append(out, d)
		}
	}
	return out
}
