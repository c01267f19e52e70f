// Package lang implements the binding expression mini-grammars: bind
// paths, attribute value expressions with transformation pipelines and
// defaults, and filter expressions.
//
// All three grammars share one path primitive: dotted names, where a
// leading dot makes the path relative to a supplied parent path.
// Parsing is a single left-to-right scan; malformed text is reported as
// *SyntaxError. Callers probing ambiguous template text (is this
// attribute a binding or a literal?) treat SyntaxError as "not a
// binding", never as a hard failure - except at positions where only an
// expression is legal, which makes the SyntaxError fatal at load time.
package lang

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/vizgraph/internal/path"
)

// SyntaxError reports unparseable expression text together with the
// offending input.
type SyntaxError struct {
	Text   string
	Reason string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error in %q: %s", e.Text, e.Reason)
}

// IsSyntaxError reports whether err is a SyntaxError, unwrapping as
// needed.
func IsSyntaxError(err error) bool {
	var se *SyntaxError
	return errors.As(err, &se)
}

func syntaxErrorf(text, format string, args ...any) *SyntaxError {
	return &SyntaxError{Text: text, Reason: fmt.Sprintf(format, args...)}
}

// parseRelativePath parses text into a path, resolving a leading-dot
// relative form against parent by joining after their common
// descendant. A relative path with no parent context is a SyntaxError.
func parseRelativePath(text string, parent *path.Path) (path.Path, error) {
	if !strings.HasPrefix(text, ".") {
		p, err := path.Parse(text)
		if err != nil {
			return path.Path{}, syntaxErrorf(text, "%v", err)
		}
		return p, nil
	}

	if parent == nil {
		return path.Path{}, syntaxErrorf(text, "cannot use a relative path without a parent path")
	}

	rel, err := path.Parse(text)
	if err != nil {
		return path.Path{}, syntaxErrorf(text, "%v", err)
	}
	return parent.JoinAfterCommonDescendant(rel), nil
}
