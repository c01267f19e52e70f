package graph

import "sort"

// Constraints maps already-resolved ancestor dimensions to their values,
// scoping a descendant result's query to the branch being expanded.
// Keys are mangled node names so that canonical and adaptor-produced
// entries collide correctly.
type Constraints map[string]Constraint

// Constraint pairs a node identity with its resolved value.
type Constraint struct {
	Node  Node
	Value any
}

// Set records a constraint for node.
func (c Constraints) Set(node Node, value any) {
	c[node.Mangled()] = Constraint{Node: node, Value: value}
}

// Get returns the constraint value for node, if present.
func (c Constraints) Get(node Node) (any, bool) {
	entry, ok := c[node.Mangled()]
	if !ok {
		return nil, false
	}
	return entry.Value, true
}

// Clone returns a shallow copy. Walk recursion clones before extending
// so sibling branches never observe each other's constraints.
func (c Constraints) Clone() Constraints {
	out := make(Constraints, len(c)+2)
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Sorted returns entries ordered by mangled name, for deterministic
// iteration in logs and query construction.
func (c Constraints) Sorted() []Constraint {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Constraint, 0, len(keys))
	for _, k := range keys {
		out = append(out, c[k])
	}
	return out
}
