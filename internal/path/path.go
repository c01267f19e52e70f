// Package path implements the dotted path type shared by the data graph,
// the binding expression language, and the output tree.
//
// A path is an ordered sequence of parts, written "a.b.c". A leading dot
// ("." or ".b.c") marks the textual relative form; the Path value itself
// carries no relative/absolute flag - relative resolution happens in the
// expression language via JoinAfterCommonDescendant.
package path

import (
	"fmt"
	"regexp"
	"strings"
)

// validPartPattern restricts parts to the characters the expression
// language can scan unambiguously.
const validPartPattern = `^[a-zA-Z0-9:_-]+$`

var validPartRegexp = regexp.MustCompile(validPartPattern)

// IsValidPart reports whether s can appear as a single path part.
func IsValidPart(s string) bool {
	return validPartRegexp.MatchString(s)
}

// IsValidPartByte reports whether c can appear inside a path part.
func IsValidPartByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
		c == ':' || c == '_' || c == '-'
}

// Path is an immutable sequence of named parts. The zero value is the
// empty path.
type Path struct {
	parts []string
}

// New builds a path from the given parts. Parts are not validated;
// use Parse for untrusted input.
func New(parts ...string) Path {
	return Path{parts: append([]string(nil), parts...)}
}

// Parse parses a dotted path string. A leading dot is permitted and
// ignored ("." and "" both parse to the empty path). Empty parts
// ("a..b") and parts with invalid characters are errors.
func Parse(s string) (Path, error) {
	if s == "" || s == "." {
		return Path{}, nil
	}

	s = strings.TrimPrefix(s, ".")
	rawParts := strings.Split(s, ".")
	parts := make([]string, 0, len(rawParts))
	for _, part := range rawParts {
		if part == "" {
			return Path{}, fmt.Errorf("path %q has an empty part ('..')", s)
		}
		if !IsValidPart(part) {
			return Path{}, fmt.Errorf("path part %q is not valid: must match %s", part, validPartPattern)
		}
		parts = append(parts, part)
	}
	return Path{parts: parts}, nil
}

// MustParse is Parse for known-good literals; it panics on error.
func MustParse(s string) Path {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Parts returns a copy of the path's parts.
func (p Path) Parts() []string {
	return append([]string(nil), p.parts...)
}

// Len returns the number of parts.
func (p Path) Len() int { return len(p.parts) }

// Empty reports whether the path has no parts.
func (p Path) Empty() bool { return len(p.parts) == 0 }

// IsLeaf reports whether the path has at most one part.
func (p Path) IsLeaf() bool { return len(p.parts) <= 1 }

// First returns the first part, or "" for the empty path.
func (p Path) First() string {
	if p.Empty() {
		return ""
	}
	return p.parts[0]
}

// Last returns the last part, or "" for the empty path.
func (p Path) Last() string {
	if p.Empty() {
		return ""
	}
	return p.parts[len(p.parts)-1]
}

// WithoutFirst returns the path with its first part removed.
func (p Path) WithoutFirst() Path {
	if p.Empty() {
		return Path{}
	}
	return New(p.parts[1:]...)
}

// WithoutLast returns the path with its last part removed.
func (p Path) WithoutLast() Path {
	if p.Empty() {
		return Path{}
	}
	return New(p.parts[:len(p.parts)-1]...)
}

// Append returns a new path with the given part appended.
func (p Path) Append(part string) Path {
	parts := make([]string, 0, len(p.parts)+1)
	parts = append(parts, p.parts...)
	parts = append(parts, part)
	return Path{parts: parts}
}

// Join returns a new path with all of other's parts appended.
func (p Path) Join(other Path) Path {
	parts := make([]string, 0, len(p.parts)+len(other.parts))
	parts = append(parts, p.parts...)
	parts = append(parts, other.parts...)
	return Path{parts: parts}
}

// IsDescendantOf reports whether p lies strictly below other. With
// orSame, equal paths also qualify.
func (p Path) IsDescendantOf(other Path, orSame bool) bool {
	if other.Len() > p.Len() {
		return false
	}
	if !orSame && other.Len() == p.Len() {
		return false
	}
	for i, part := range other.parts {
		if p.parts[i] != part {
			return false
		}
	}
	return true
}

// IsChildOf reports whether p is an immediate child of other.
func (p Path) IsChildOf(other Path) bool {
	return p.Len() == other.Len()+1 && p.IsDescendantOf(other, false)
}

// AncestorPaths returns the chain of ancestors from the nearest up to
// (but not including) the empty root. With includingSelf the path itself
// leads the slice.
//
// ".a.b.c" -> [".a.b.c", ".a.b", ".a"] (includingSelf).
func (p Path) AncestorPaths(includingSelf bool) []Path {
	var paths []Path
	curr := p
	if includingSelf {
		paths = append(paths, curr)
	}
	curr = curr.WithoutLast()
	for !curr.Empty() {
		paths = append(paths, curr)
		curr = curr.WithoutLast()
	}
	return paths
}

// afterCommonAncestor returns the index of the first part where p and
// other diverge.
func (p Path) afterCommonAncestor(other Path) int {
	i := 0
	for i < len(p.parts) && i < len(other.parts) && p.parts[i] == other.parts[i] {
		i++
	}
	return i
}

// CommonAncestorWith returns the longest shared prefix of p and other.
func (p Path) CommonAncestorWith(other Path) Path {
	return New(p.parts[:p.afterCommonAncestor(other)]...)
}

// WithoutCommonAncestor strips the shared prefix with other from p.
func (p Path) WithoutCommonAncestor(other Path) Path {
	return New(p.parts[p.afterCommonAncestor(other):]...)
}

// JoinAfterCommonDescendant splices other onto p at the first occurrence
// of other's first part within p. If other's first part does not occur in
// p, other is appended wholesale. This is the resolution rule for
// relative expression paths: ".host.usage" against parent ".dc.host"
// yields ".dc.host.usage".
func (p Path) JoinAfterCommonDescendant(other Path) Path {
	cut := len(p.parts)
	if !other.Empty() {
		for i, part := range p.parts {
			if part == other.First() {
				cut = i
				break
			}
		}
	}
	return New(p.parts[:cut]...).Join(other)
}

// Compare orders paths by length first, then lexicographically per part.
// The shortest-path tie-break in graph resolution depends on this exact
// ordering; do not change it.
func (p Path) Compare(other Path) int {
	if len(p.parts) != len(other.parts) {
		if len(p.parts) < len(other.parts) {
			return -1
		}
		return 1
	}
	for i := range p.parts {
		if c := strings.Compare(p.parts[i], other.parts[i]); c != 0 {
			return c
		}
	}
	return 0
}

// Equal reports part-wise equality.
func (p Path) Equal(other Path) bool {
	return p.Compare(other) == 0
}

// String renders the path in leading-dot form; the empty path renders
// as ".".
func (p Path) String() string {
	if p.Empty() {
		return "."
	}
	return "." + strings.Join(p.parts, ".")
}
