// Package template loads the declarative output template: a CUE file
// describing a hierarchy of visual elements, each optionally bound to a
// data path with attribute expressions, a filter, and an instance
// limit. Loading produces the element tree plus the binding tree the
// explosion engine walks.
package template

import (
	"fmt"
	"strings"

	"github.com/roach88/vizgraph/internal/binding"
	"github.com/roach88/vizgraph/internal/path"
)

// Element is one template node: a visual element kind, its name within
// the template hierarchy, and the attributes that did not parse as data
// expressions. Bound attributes live in the binding tree instead.
type Element struct {
	Kind     string
	Name     string
	Path     path.Path
	Literals map[string]string
	Children []*Element
}

// FindDescendant returns the element at p below e, or nil if the
// template declares no such element.
func (e *Element) FindDescendant(p path.Path) *Element {
	if p.Empty() {
		return e
	}
	for _, child := range e.Children {
		if child.Name == p.First() {
			return child.FindDescendant(p.WithoutFirst())
		}
	}
	return nil
}

// Child returns the immediate child with the given name, or nil.
func (e *Element) Child(name string) *Element {
	for _, child := range e.Children {
		if child.Name == name {
			return child
		}
	}
	return nil
}

func (e *Element) String() string {
	return fmt.Sprintf("<%s %s>", e.Kind, e.Name)
}

// elementKinds is the set of visual element constructors the renderer
// understands. "include" is handled structurally before lookup.
var elementKinds = map[string]struct{}{
	"element":   {},
	"box":       {},
	"plane":     {},
	"grid":      {},
	"juxtapose": {},
	"text":      {},
}

// normalizeKind resolves a declared element kind, case-insensitively,
// against the known constructors.
func normalizeKind(kind string) (string, error) {
	normalized := strings.ToLower(kind)
	if _, ok := elementKinds[normalized]; !ok {
		return "", &binding.Error{
			Binding: kind,
			Reason:  "no element constructor for this kind",
		}
	}
	return normalized, nil
}
