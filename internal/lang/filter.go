package lang

import (
	"regexp"
	"strings"

	"github.com/roach88/vizgraph/internal/path"
)

// FilterExpr is a parsed filter: a data path, an operator, and a
// selector. Operators are = and ~ with a ! before the operator (or at
// the start of the path) negating the match. The selector is either a
// single value or a brace set of values; ~ treats every member as an
// unanchored regular expression. The special member null matches the
// absence of any value at the path.
type FilterExpr struct {
	Path        path.Path
	Selector    []string
	MatchesNull bool
	Negative    bool
	Regex       bool

	patterns []*regexp.Regexp
}

// LooksLikeFilter reports whether text contains a filter operator.
// Template loading uses this before ParseFilter so that a string with
// no operator at all is rejected as "not a filter" rather than as a
// malformed one.
func LooksLikeFilter(text string) bool {
	return strings.ContainsAny(text, "=~")
}

// ParseFilter parses text as a filter expression, resolving a relative
// or empty path against parent. An empty path selects parent itself.
func ParseFilter(text string, parent *path.Path) (*FilterExpr, error) {
	if !LooksLikeFilter(text) {
		return nil, syntaxErrorf(text, "expected an = or ~ operator")
	}

	var pathSpec, rawSelector string
	regex := false
	if i := strings.IndexByte(text, '='); i >= 0 {
		pathSpec, rawSelector = text[:i], text[i+1:]
	} else {
		i := strings.IndexByte(text, '~')
		pathSpec, rawSelector = text[:i], text[i+1:]
		regex = true
	}

	negative := false
	for strings.HasSuffix(pathSpec, "!") {
		negative = true
		pathSpec = strings.TrimSuffix(pathSpec, "!")
	}
	for strings.HasPrefix(pathSpec, "!") {
		negative = true
		pathSpec = strings.TrimPrefix(pathSpec, "!")
	}

	var p path.Path
	if pathSpec == "" {
		if parent == nil {
			return nil, syntaxErrorf(text, "cannot filter on the parent path without a parent path")
		}
		p = *parent
	} else {
		var err error
		p, err = parseRelativePath(pathSpec, parent)
		if err != nil {
			return nil, err
		}
	}

	f := &FilterExpr{Path: p, Negative: negative, Regex: regex}
	if err := f.parseSelector(text, rawSelector); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *FilterExpr) parseSelector(text, raw string) error {
	members := []string{raw}
	if strings.HasPrefix(raw, "{") && strings.HasSuffix(raw, "}") {
		members = strings.Split(raw[1:len(raw)-1], ",")
	}

	seen := map[string]bool{}
	for _, member := range members {
		member = unquote(strings.TrimSpace(member))
		switch {
		case member == "":
			continue
		case strings.EqualFold(member, "null"):
			f.MatchesNull = true
		case !seen[member]:
			seen[member] = true
			f.Selector = append(f.Selector, member)
			if f.Regex {
				pattern, err := regexp.Compile(member)
				if err != nil {
					return syntaxErrorf(text, "bad pattern %q: %v", member, err)
				}
				f.patterns = append(f.patterns, pattern)
			}
		}
	}

	if len(f.Selector) == 0 && !f.MatchesNull {
		return syntaxErrorf(text, "empty selector")
	}
	return nil
}

// ShouldKeep reports whether a present value passes the filter.
func (f *FilterExpr) ShouldKeep(value string) bool {
	matched := false
	if f.Regex {
		for _, pattern := range f.patterns {
			if pattern.MatchString(value) {
				matched = true
				break
			}
		}
	} else {
		for _, member := range f.Selector {
			if member == value {
				matched = true
				break
			}
		}
	}
	return matched != f.Negative
}

// ShouldKeepNull reports whether the absence of any value passes the
// filter, so =null keeps absent values and !=null drops them.
func (f *FilterExpr) ShouldKeepNull() bool {
	return f.MatchesNull != f.Negative
}

func unquote(s string) string {
	if len(s) >= 2 {
		if s[0] == '\'' && s[len(s)-1] == '\'' || s[0] == '"' && s[len(s)-1] == '"' {
			return s[1 : len(s)-1]
		}
	}
	return s
}
