package binding

import "github.com/roach88/vizgraph/internal/path"

// Tree arranges bindings in the hierarchy of their template elements.
// The root carries no binding of its own; children appear in the order
// they were added, which is the order the template declares them.
type Tree struct {
	binding  *Binding
	parent   *Tree
	children []*Tree
}

// NewTree returns an empty root.
func NewTree() *Tree {
	return &Tree{}
}

// Add creates a child node under t carrying b and returns it.
func (t *Tree) Add(b *Binding) *Tree {
	child := &Tree{binding: b, parent: t}
	t.children = append(t.children, child)
	return child
}

// IsRoot reports whether t is the binding-less root.
func (t *Tree) IsRoot() bool {
	return t.parent == nil
}

// Binding returns the node's binding, nil at the root.
func (t *Tree) Binding() *Binding {
	return t.binding
}

// Parent returns the parent node, nil at the root.
func (t *Tree) Parent() *Tree {
	return t.parent
}

// Children returns the child nodes in declaration order.
func (t *Tree) Children() []*Tree {
	return t.children
}

// WalkDataPaths returns every data path the tree references, in
// declaration order: each node contributes its bind path, then its
// attribute expression paths, then its filter path, before its
// children are visited.
func (t *Tree) WalkDataPaths() []path.Path {
	var paths []path.Path
	t.walkDataPaths(&paths)
	return paths
}

func (t *Tree) walkDataPaths(paths *[]path.Path) {
	if !t.IsRoot() {
		b := t.binding
		*paths = append(*paths, b.DataPath())
		for _, attr := range b.Attributes {
			*paths = append(*paths, attr.DataPaths()...)
		}
		if b.Filter != nil {
			*paths = append(*paths, b.Filter.Path)
		}
	}
	for _, child := range t.children {
		child.walkDataPaths(paths)
	}
}
