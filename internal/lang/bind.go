package lang

import (
	"strings"

	"github.com/roach88/vizgraph/internal/path"
)

// BindExpr is the parsed binding path of a template element. A trailing
// "!" opts the binding into a placeholder instance when the filter step
// discards every candidate value.
type BindExpr struct {
	Path                path.Path
	KeepWhenFilteredOut bool
}

// ParseBind parses text as a bind expression, resolving relative paths
// against parent.
func ParseBind(text string, parent *path.Path) (*BindExpr, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, syntaxErrorf(text, "empty bind expression")
	}

	keep := false
	for strings.HasSuffix(trimmed, "!") {
		keep = true
		trimmed = strings.TrimSuffix(trimmed, "!")
	}
	if trimmed == "" {
		return nil, syntaxErrorf(text, "bind expression has no path")
	}

	p, err := parseRelativePath(trimmed, parent)
	if err != nil {
		return nil, err
	}
	return &BindExpr{Path: p, KeepWhenFilteredOut: keep}, nil
}
