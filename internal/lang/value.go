package lang

import (
	"strings"

	"github.com/roach88/vizgraph/internal/path"
)

// ValueExpr is one parsed attribute value expression: an optional
// literal prefix, a data path, an optional transformation pipeline, an
// optional default, and a literal suffix. A single attribute string can
// hold several expressions; literal text between two expressions is the
// suffix of the first and the prefix of the second.
type ValueExpr struct {
	Path     path.Path
	Pipeline []string
	Prefix   string
	Suffix   string

	// Default, when non-nil, is the raw default value substituted when
	// the path yields nothing.
	Default *string
}

// Format wraps a resolved value in the expression's literal prefix and
// suffix.
func (v *ValueExpr) Format(value string) string {
	return v.Prefix + value + v.Suffix
}

// DefaultValue returns the formatted default, if one was declared.
func (v *ValueExpr) DefaultValue() (string, bool) {
	if v.Default == nil {
		return "", false
	}
	return v.Format(*v.Default), true
}

// ParseValues scans text left to right for value expressions. A dot
// starts a path unless it is escaped with a backslash or immediately
// preceded by a digit, so "1.5 GiB" stays literal while ".usage" does
// not. Text with no path at all is a SyntaxError, which is how callers
// probing template attributes distinguish bindings from plain literals.
func ParseValues(text string, parent *path.Path) ([]*ValueExpr, error) {
	var (
		exprs  []*ValueExpr
		prefix strings.Builder
		prev   byte
	)

	s := scanner{text: text}
	for {
		ch, ok := s.next()
		if !ok {
			break
		}

		switch {
		case ch == '\\':
			nxt, ok := s.peek()
			switch {
			case ok && nxt == 'n':
				s.skip()
				prefix.WriteByte('\n')
				prev = '\n'
			case ok && nxt == '.':
				s.skip()
				prefix.WriteByte('.')
				prev = '.'
			default:
				prefix.WriteByte('\\')
				prev = '\\'
			}

		case ch == '.' && !isDigit(prev):
			expr, err := s.parseExpr(text, parent, prefix.String())
			if err != nil {
				return nil, err
			}
			exprs = append(exprs, expr)
			prefix.Reset()
			prev = 0

		default:
			prefix.WriteByte(ch)
			prev = ch
		}
	}

	if len(exprs) == 0 {
		return nil, syntaxErrorf(text, "no path within text")
	}
	exprs[len(exprs)-1].Suffix = prefix.String()
	return exprs, nil
}

// parseExpr picks up right after the dot that opened the expression.
func (s *scanner) parseExpr(text string, parent *path.Path, prefix string) (*ValueExpr, error) {
	pathText := s.scanWhile(isPathOrDot)
	if pathText == "" {
		return nil, syntaxErrorf(text, "expected a path after %q", prefix+".")
	}

	p, err := parseRelativePath("."+pathText, parent)
	if err != nil {
		return nil, err
	}

	var pipeline []string
	for s.peekIs('|') {
		s.skip()
		name := s.scanWhile(isIdent)
		if name == "" {
			return nil, syntaxErrorf(text, "expected a transformation name after %q", "."+pathText)
		}
		pipeline = append(pipeline, name)
	}

	var def *string
	if s.peekIs('?') {
		s.skip()
		raw, err := s.scanDefault(text)
		if err != nil {
			return nil, err
		}
		def = &raw
	}

	return &ValueExpr{Path: p, Pipeline: pipeline, Prefix: prefix, Default: def}, nil
}

// scanDefault reads a quoted or bare default value. Bare defaults may
// contain identifier characters and dots, which keeps numeric defaults
// like 0.5 intact.
func (s *scanner) scanDefault(text string) (string, error) {
	quote, ok := s.peek()
	if ok && (quote == '\'' || quote == '"') {
		s.skip()
		content := s.scanWhile(func(c byte) bool { return c != quote })
		if _, ok := s.peek(); !ok {
			return "", syntaxErrorf(text, "unterminated default value")
		}
		s.skip()
		return content, nil
	}
	return s.scanWhile(func(c byte) bool { return isIdent(c) || c == '.' }), nil
}

type scanner struct {
	text string
	i    int
}

func (s *scanner) next() (byte, bool) {
	if s.i >= len(s.text) {
		return 0, false
	}
	ch := s.text[s.i]
	s.i++
	return ch, true
}

func (s *scanner) peek() (byte, bool) {
	if s.i >= len(s.text) {
		return 0, false
	}
	return s.text[s.i], true
}

func (s *scanner) peekIs(ch byte) bool {
	got, ok := s.peek()
	return ok && got == ch
}

func (s *scanner) skip() { s.i++ }

func (s *scanner) scanWhile(pred func(byte) bool) string {
	start := s.i
	for s.i < len(s.text) && pred(s.text[s.i]) {
		s.i++
	}
	return s.text[start:s.i]
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdent(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || isDigit(c) || c == '_'
}

func isPathOrDot(c byte) bool {
	return path.IsValidPartByte(c) || c == '.'
}
