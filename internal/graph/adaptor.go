package graph

import "fmt"

// Adaptor translates one node's identity and constraint values into
// another node's, bridging subgraphs that were built independently by
// different backends. Cross-backend interaction goes exclusively
// through adaptors; backends never inspect each other's node types.
//
// Adapting through an adaptor of an adaptor (multi-hop chaining) is
// not supported.
type Adaptor interface {
	// AppliesTo reports whether the adaptor can translate this node.
	AppliesTo(node Node) bool

	// AdaptNode returns the translated node identity.
	AdaptNode(node Node) (Node, error)

	// AdaptValue returns the translated constraint value.
	AdaptValue(value any) any
}

// IdentityAdaptor translates from one node to another without changing
// the value beyond coercion to the target node's declared kind. It is
// directional: only the from node is adapted.
type IdentityAdaptor struct {
	from Node
	to   Node
}

// NewIdentityAdaptor builds a directed identity adaptor.
func NewIdentityAdaptor(from, to Node) *IdentityAdaptor {
	return &IdentityAdaptor{from: from, to: to}
}

func (a *IdentityAdaptor) AppliesTo(node Node) bool {
	return node.Mangled() == a.from.Mangled()
}

func (a *IdentityAdaptor) AdaptNode(node Node) (Node, error) {
	if !a.AppliesTo(node) {
		return nil, fmt.Errorf("node %s does not apply to adaptor %s -> %s",
			node.Mangled(), a.from.Mangled(), a.to.Mangled())
	}
	return a.to, nil
}

func (a *IdentityAdaptor) AdaptValue(value any) any {
	return a.to.Kind().Coerce(value)
}

func (a *IdentityAdaptor) String() string {
	return fmt.Sprintf("IdentityAdaptor(%s -> %s)", a.from.Mangled(), a.to.Mangled())
}

// RelabelAdaptor translates between two nodes through an explicit value
// substitution table. It is bidirectional: both endpoints apply, and
// values are looked up in the forward table first, then the reverse.
// Values absent from both tables pass through unchanged.
type RelabelAdaptor struct {
	first   Node
	second  Node
	forward map[string]string
	reverse map[string]string
}

// NewRelabelAdaptor builds a bidirectional relabeling adaptor. The
// relabel map is keyed by first-node values.
func NewRelabelAdaptor(first, second Node, relabel map[string]string) *RelabelAdaptor {
	reverse := make(map[string]string, len(relabel))
	for lhs, rhs := range relabel {
		reverse[rhs] = lhs
	}
	return &RelabelAdaptor{
		first:   first,
		second:  second,
		forward: relabel,
		reverse: reverse,
	}
}

func (a *RelabelAdaptor) AppliesTo(node Node) bool {
	return node.Mangled() == a.first.Mangled() || node.Mangled() == a.second.Mangled()
}

func (a *RelabelAdaptor) AdaptNode(node Node) (Node, error) {
	switch node.Mangled() {
	case a.first.Mangled():
		return a.second, nil
	case a.second.Mangled():
		return a.first, nil
	}
	return nil, fmt.Errorf("node %s does not apply to adaptor %s <-> %s",
		node.Mangled(), a.first.Mangled(), a.second.Mangled())
}

func (a *RelabelAdaptor) AdaptValue(value any) any {
	s := fmt.Sprintf("%v", value)
	if mapped, ok := a.forward[s]; ok {
		return mapped
	}
	if mapped, ok := a.reverse[s]; ok {
		return mapped
	}
	return value
}

func (a *RelabelAdaptor) String() string {
	return fmt.Sprintf("RelabelAdaptor(%s <-> %s)", a.first.Mangled(), a.second.Mangled())
}
