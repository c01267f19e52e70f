// Package tree materializes exploded instances as an output tree. The
// tree starts as a mirror of the template; each update pass
// instantiates template nodes for the emitted instances, updates their
// attributes, and removes instances that were not re-emitted.
package tree

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/vizgraph/internal/explode"
	"github.com/roach88/vizgraph/internal/path"
	"github.com/roach88/vizgraph/internal/template"
)

// Node is one output tree node. Template nodes persist across passes;
// instance nodes live only as long as an update pass re-emits them.
type Node struct {
	name     string
	kind     string
	parent   *Node
	children []*Node
	attrs    map[string]string
	template bool
}

// FromTemplate mirrors the element tree into a fresh output tree.
func FromTemplate(root *template.Element) *Node {
	node := &Node{kind: root.Kind, template: true, attrs: map[string]string{}}
	for _, child := range root.Children {
		node.addTemplateChild(child)
	}
	return node
}

func (n *Node) addTemplateChild(e *template.Element) {
	child := &Node{
		name:     e.Name,
		kind:     e.Kind,
		parent:   n,
		template: true,
		attrs:    cloneAttrs(e.Literals),
	}
	n.children = append(n.children, child)
	for _, sub := range e.Children {
		child.addTemplateChild(sub)
	}
}

// Name returns the node's name, "" at the root.
func (n *Node) Name() string { return n.name }

// Kind returns the visual element kind the node renders as.
func (n *Node) Kind() string { return n.kind }

// IsRoot reports whether n is the root.
func (n *Node) IsRoot() bool { return n.parent == nil }

// IsTemplate reports whether n came from the template rather than from
// an update pass.
func (n *Node) IsTemplate() bool { return n.template }

// Path returns the node's path from the root.
func (n *Node) Path() path.Path {
	if n.IsRoot() {
		return path.Path{}
	}
	return n.parent.Path().Append(n.name)
}

// Children returns the child nodes in creation order.
func (n *Node) Children() []*Node {
	return append([]*Node(nil), n.children...)
}

// ChildrenNames returns the child names in creation order.
func (n *Node) ChildrenNames() []string {
	names := make([]string, len(n.children))
	for i, child := range n.children {
		names[i] = child.name
	}
	return names
}

// Child returns the immediate child with the given name, or nil.
func (n *Node) Child(name string) *Node {
	for _, child := range n.children {
		if child.name == name {
			return child
		}
	}
	return nil
}

// Attributes returns a copy of the node's attribute map.
func (n *Node) Attributes() map[string]string {
	return cloneAttrs(n.attrs)
}

// FindDescendant returns the descendant at p, or an error if the tree
// has no such node. The empty path selects n itself.
func (n *Node) FindDescendant(p path.Path) (*Node, error) {
	if p.Empty() {
		return n, nil
	}
	for _, child := range n.children {
		if child.name != p.First() {
			continue
		}
		if p.IsLeaf() {
			return child, nil
		}
		return child.FindDescendant(p.WithoutFirst())
	}
	return nil, fmt.Errorf("no descendant at %s below %s", p, n.Path())
}

// Reconcile applies one explosion pass: instances are created from
// their binding's template if missing, their attributes updated, and
// previously instantiated nodes that were not re-emitted removed.
func (n *Node) Reconcile(instances []explode.Instance) error {
	emitted := map[string]bool{}
	for _, inst := range instances {
		parent, err := n.FindDescendant(inst.Path.WithoutLast())
		if err != nil {
			return err
		}

		child := parent.Child(inst.Path.Last())
		if child == nil {
			child, err = parent.instantiate(inst.Binding.TemplatePath.Last(), inst.Path.Last())
			if err != nil {
				return err
			}
		}
		for attr, value := range inst.Attrs {
			child.attrs[attr] = value
		}
		emitted[inst.Path.String()] = true
	}

	n.removeStale(emitted)
	return nil
}

// instantiate clones the named template child under n as an instance.
// The clone's descendants keep their template flags, so templates
// nested inside an instance can themselves be instantiated by deeper
// emissions.
func (n *Node) instantiate(templateName, instanceName string) (*Node, error) {
	tmpl := n.Child(templateName)
	if tmpl == nil || !tmpl.template {
		return nil, fmt.Errorf("no template %q below %s to instantiate %q from", templateName, n.Path(), instanceName)
	}

	clone := tmpl.clone(n)
	clone.name = instanceName
	clone.template = false
	n.children = append(n.children, clone)
	return clone, nil
}

func (n *Node) clone(parent *Node) *Node {
	copied := &Node{
		name:     n.name,
		kind:     n.kind,
		parent:   parent,
		template: n.template,
		attrs:    cloneAttrs(n.attrs),
	}
	for _, child := range n.children {
		copied.children = append(copied.children, child.clone(copied))
	}
	return copied
}

func (n *Node) removeStale(emitted map[string]bool) {
	kept := n.children[:0]
	for _, child := range n.children {
		if !child.template && !emitted[child.Path().String()] {
			continue
		}
		child.removeStale(emitted)
		kept = append(kept, child)
	}
	n.children = kept
}

// Render writes the tree as indented text, one node per line with its
// attributes sorted by name. Template nodes are marked so renderings
// distinguish them from instances.
func (n *Node) Render() string {
	var b strings.Builder
	n.render(&b, 0)
	return b.String()
}

func (n *Node) render(b *strings.Builder, depth int) {
	if !n.IsRoot() {
		b.WriteString(strings.Repeat("  ", depth-1))
		b.WriteString("<")
		b.WriteString(n.kind)
		b.WriteString(" ")
		b.WriteString(n.name)
		if n.template {
			b.WriteString(" template")
		}
		attrs := make([]string, 0, len(n.attrs))
		for attr := range n.attrs {
			attrs = append(attrs, attr)
		}
		sort.Strings(attrs)
		for _, attr := range attrs {
			fmt.Fprintf(b, " %s=%q", attr, n.attrs[attr])
		}
		b.WriteString(">\n")
	}
	for _, child := range n.children {
		child.render(b, depth+1)
	}
}

func cloneAttrs(attrs map[string]string) map[string]string {
	cloned := make(map[string]string, len(attrs))
	for attr, value := range attrs {
		cloned[attr] = value
	}
	return cloned
}
