// Package graph implements the directed acyclic data-dimension graph:
// node identities, refinement edges, cross-backend join adaptors, and
// the lazy result-resolution protocol layered on top of it.
//
// Nodes represent data dimensions or measures exposed by a backend. A
// directed edge ("refines") states a one-to-many relationship: walking
// an edge narrows the successor's values by a value of the predecessor.
// A path through the graph is therefore a progressive refinement, and
// resolving a dotted path against the graph picks the concrete walk the
// backends must execute.
//
// The graph must stay acyclic after every structural mutation. Violating
// mutations are rolled back atomically and reported as *CycleError.
package graph

import "fmt"

// ValueKind is the declared value type of a node's data.
type ValueKind string

const (
	KindString ValueKind = "string"
	KindInt    ValueKind = "int"
	KindFloat  ValueKind = "float"
)

// Coerce converts v to the kind's Go representation. Unconvertible
// values pass through unchanged; adaptors use this as best-effort type
// alignment between backends.
func (k ValueKind) Coerce(v any) any {
	switch k {
	case KindString:
		if _, ok := v.(string); ok {
			return v
		}
		return fmt.Sprintf("%v", v)
	case KindFloat:
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		case int64:
			return float64(n)
		}
	case KindInt:
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return v
}

// MangleName builds the canonical "datasource:name" identity string.
// Datasource names must not contain ':'; node names may (label values
// such as "eth0:1" pass through intact on the name side).
func MangleName(datasource, name string) string {
	if name == "" {
		panic("graph: node name must not be empty")
	}
	return datasource + ":" + name
}

// Node is the capability interface a backend dimension must satisfy.
//
// Identity is the mangled "datasource:name" string: two Node values with
// the same Mangled() name are the same dimension, and the Graph arena
// keeps exactly one canonical instance per identity.
type Node interface {
	// Datasource returns the owning datasource's configured name.
	Datasource() string

	// Name returns the node's backend-local name.
	Name() string

	// Mangled returns the canonical "datasource:name" identity.
	Mangled() string

	// Kind returns the declared value type.
	Kind() ValueKind

	// SameValue reports whether two public values are the same value
	// for this dimension. Most backends use plain equality; derived
	// dimensions may compare loosely.
	SameValue(a, b any) bool

	// Result returns a fresh root Result for this node.
	Result() Result
}

// Info is the common identity implementation backends embed. It covers
// everything in Node except Result.
type Info struct {
	datasource string
	name       string
	mangled    string
	kind       ValueKind
}

// NewInfo builds the embedded identity for a backend node.
func NewInfo(datasource, name string, kind ValueKind) Info {
	return Info{
		datasource: datasource,
		name:       name,
		mangled:    MangleName(datasource, name),
		kind:       kind,
	}
}

func (i Info) Datasource() string { return i.datasource }
func (i Info) Name() string       { return i.name }
func (i Info) Mangled() string    { return i.mangled }
func (i Info) Kind() ValueKind    { return i.kind }

func (i Info) SameValue(a, b any) bool { return a == b }

func (i Info) String() string {
	return fmt.Sprintf("Node(%s, kind: %s)", i.mangled, i.kind)
}
