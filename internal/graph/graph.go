package graph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/roach88/vizgraph/internal/path"
)

// adaptorKey identifies a registered adaptor by its directed endpoints.
type adaptorKey struct {
	from string
	to   string
}

// Graph is an arena of canonical node identities plus directed
// refinement edges and an adaptor registry. All mutation goes through
// methods that re-check the acyclicity invariant; a mutation that would
// create a cycle is rolled back and reported as *CycleError.
//
// Graph is not safe for concurrent mutation. One update cycle owns the
// graph exclusively.
type Graph struct {
	nodes    map[string]Node
	succ     map[string][]string // insertion-ordered adjacency
	pred     map[string][]string
	adaptors map[adaptorKey]Adaptor
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		nodes:    make(map[string]Node),
		succ:     make(map[string][]string),
		pred:     make(map[string][]string),
		adaptors: make(map[adaptorKey]Adaptor),
	}
}

// snapshot captures the structural state for atomic rollback.
func (g *Graph) snapshot() (map[string]Node, map[string][]string, map[string][]string) {
	nodes := make(map[string]Node, len(g.nodes))
	for k, v := range g.nodes {
		nodes[k] = v
	}
	succ := make(map[string][]string, len(g.succ))
	for k, v := range g.succ {
		succ[k] = append([]string(nil), v...)
	}
	pred := make(map[string][]string, len(g.pred))
	for k, v := range g.pred {
		pred[k] = append([]string(nil), v...)
	}
	return nodes, succ, pred
}

// checkAcyclicOrRollback verifies the invariant after a mutation that
// touched node; on violation restores the snapshot and returns the
// CycleError.
func (g *Graph) checkAcyclicOrRollback(node Node, nodes map[string]Node, succ, pred map[string][]string) error {
	cycle := findCycle(g.succ)
	if cycle == nil {
		return nil
	}
	g.nodes, g.succ, g.pred = nodes, succ, pred
	return &CycleError{Node: node.Mangled(), Cycle: cycle}
}

// ensureNode interns the node into the arena, keeping the first
// registered instance canonical.
func (g *Graph) ensureNode(node Node) {
	name := node.Mangled()
	if _, ok := g.nodes[name]; !ok {
		g.nodes[name] = node
		g.succ[name] = nil
		g.pred[name] = nil
	}
}

func (g *Graph) hasEdge(from, to string) bool {
	for _, s := range g.succ[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (g *Graph) addEdge(from, to string) {
	if g.hasEdge(from, to) {
		return
	}
	g.succ[from] = append(g.succ[from], to)
	g.pred[to] = append(g.pred[to], from)
}

func (g *Graph) removeEdge(from, to string) {
	g.succ[from] = removeName(g.succ[from], to)
	g.pred[to] = removeName(g.pred[to], from)
}

func removeName(names []string, name string) []string {
	out := names[:0]
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}

// AddNode adds node to the graph, optionally as a successor of from.
func (g *Graph) AddNode(node Node, from Node) error {
	nodes, succ, pred := g.snapshot()
	g.ensureNode(node)
	if from != nil {
		g.ensureNode(from)
		g.addEdge(from.Mangled(), node.Mangled())
	}
	return g.checkAcyclicOrRollback(node, nodes, succ, pred)
}

// AddEdge adds a refinement edge from -> to, interning both nodes.
func (g *Graph) AddEdge(from, to Node) error {
	nodes, succ, pred := g.snapshot()
	g.ensureNode(from)
	g.ensureNode(to)
	g.addEdge(from.Mangled(), to.Mangled())
	return g.checkAcyclicOrRollback(from, nodes, succ, pred)
}

// InsertIntermediate splices node between to's existing predecessors
// and to itself: every edge p -> to becomes p -> node, and node -> to
// is added. Used to introduce category dimensions above an existing
// refinement.
func (g *Graph) InsertIntermediate(node Node, to Node) error {
	toName := to.Mangled()
	if _, ok := g.nodes[toName]; !ok {
		return &NotFoundError{Datasource: to.Datasource(), Name: to.Name()}
	}

	nodes, succ, pred := g.snapshot()
	g.ensureNode(node)
	for _, p := range append([]string(nil), g.pred[toName]...) {
		if p == node.Mangled() {
			continue
		}
		g.removeEdge(p, toName)
		g.addEdge(p, node.Mangled())
	}
	g.addEdge(node.Mangled(), toName)
	return g.checkAcyclicOrRollback(node, nodes, succ, pred)
}

// InsertAdjacent copies existing's in- and out-edges onto node, making
// node an alias dimension reachable exactly where existing is.
func (g *Graph) InsertAdjacent(node Node, existing Node) error {
	exName := existing.Mangled()
	if _, ok := g.nodes[exName]; !ok {
		return &NotFoundError{Datasource: existing.Datasource(), Name: existing.Name()}
	}

	nodes, succ, pred := g.snapshot()
	g.ensureNode(node)
	for _, p := range append([]string(nil), g.pred[exName]...) {
		g.addEdge(p, node.Mangled())
	}
	for _, s := range append([]string(nil), g.succ[exName]...) {
		g.addEdge(node.Mangled(), s)
	}
	return g.checkAcyclicOrRollback(node, nodes, succ, pred)
}

// RegisterAdaptor records an adaptor for the directed from -> to pair.
// Re-registering the same pair is a construction error.
func (g *Graph) RegisterAdaptor(from, to Node, adaptor Adaptor) error {
	key := adaptorKey{from: from.Mangled(), to: to.Mangled()}
	if _, ok := g.adaptors[key]; ok {
		return fmt.Errorf("adaptor already registered for %s -> %s", key.from, key.to)
	}
	g.adaptors[key] = adaptor
	return nil
}

// HasAdaptor reports whether an adaptor is registered for from -> to.
func (g *Graph) HasAdaptor(from, to Node) bool {
	_, ok := g.adaptors[adaptorKey{from: from.Mangled(), to: to.Mangled()}]
	return ok
}

// Adaptor returns the adaptor registered for from -> to.
func (g *Graph) Adaptor(from, to Node) (Adaptor, bool) {
	a, ok := g.adaptors[adaptorKey{from: from.Mangled(), to: to.Mangled()}]
	return a, ok
}

// AdaptorsFrom returns every adaptor whose source endpoint is from, in
// deterministic (target-name) order.
func (g *Graph) AdaptorsFrom(from Node) []Adaptor {
	var keys []adaptorKey
	for key := range g.adaptors {
		if key.from == from.Mangled() {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].to < keys[j].to })

	out := make([]Adaptor, 0, len(keys))
	for _, key := range keys {
		out = append(out, g.adaptors[key])
	}
	return out
}

// Combine merges independently built subgraphs by disjoint union. A
// node name appearing in more than one subgraph, or a colliding adaptor
// key, is a construction error.
func Combine(graphs ...*Graph) (*Graph, error) {
	combined := New()
	for _, g := range graphs {
		for name, node := range g.nodes {
			if _, ok := combined.nodes[name]; ok {
				return nil, fmt.Errorf("node %s appears in more than one combined subgraph", name)
			}
			combined.nodes[name] = node
		}
		for from, succs := range g.succ {
			combined.succ[from] = append(combined.succ[from], succs...)
		}
		for to, preds := range g.pred {
			combined.pred[to] = append(combined.pred[to], preds...)
		}
		for key, adaptor := range g.adaptors {
			if _, ok := combined.adaptors[key]; ok {
				return nil, fmt.Errorf("adaptor %s -> %s appears in more than one combined subgraph", key.from, key.to)
			}
			combined.adaptors[key] = adaptor
		}
	}
	return combined, nil
}

// Find returns the node with the given datasource and local name.
func (g *Graph) Find(datasource, name string) (Node, error) {
	node, ok := g.nodes[MangleName(datasource, name)]
	if !ok {
		return nil, &NotFoundError{Datasource: datasource, Name: name}
	}
	return node, nil
}

// FindMangled returns the node with the given "datasource:name" identity.
func (g *Graph) FindMangled(mangled string) (Node, error) {
	node, ok := g.nodes[mangled]
	if !ok {
		return nil, &NotFoundError{Name: mangled}
	}
	return node, nil
}

// FindSegment resolves a path segment to a node. A segment is either a
// full "datasource:name" identity or a bare local name; bare names must
// be unique across datasources, and a collision is an AmbiguousNode
// PathError listing the candidates.
func (g *Graph) FindSegment(segment string) (Node, error) {
	if node, ok := g.nodes[segment]; ok {
		return node, nil
	}

	var candidates []string
	for _, node := range g.Nodes() {
		if node.Name() == segment {
			candidates = append(candidates, node.Mangled())
		}
	}
	switch len(candidates) {
	case 0:
		return nil, &PathError{Kind: AmbiguousNode, To: segment}
	case 1:
		return g.nodes[candidates[0]], nil
	default:
		return nil, &PathError{Kind: AmbiguousNode, To: segment, Candidates: candidates}
	}
}

// Nodes returns every node, ordered by mangled name.
func (g *Graph) Nodes() []Node {
	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Node, 0, len(names))
	for _, name := range names {
		out = append(out, g.nodes[name])
	}
	return out
}

// Successors returns node's direct successors in edge insertion order.
func (g *Graph) Successors(node Node) []Node {
	succs := g.succ[node.Mangled()]
	out := make([]Node, 0, len(succs))
	for _, name := range succs {
		out = append(out, g.nodes[name])
	}
	return out
}

// Leaves returns every node without successors, ordered by mangled name.
func (g *Graph) Leaves() []Node {
	var out []Node
	for _, node := range g.Nodes() {
		if len(g.succ[node.Mangled()]) == 0 {
			out = append(out, node)
		}
	}
	return out
}

// Edges returns every directed edge as [from, to] mangled-name pairs,
// ordered by source then target.
func (g *Graph) Edges() [][2]string {
	var out [][2]string
	for _, node := range g.Nodes() {
		for _, to := range g.succ[node.Mangled()] {
			out = append(out, [2]string{node.Mangled(), to})
		}
	}
	return out
}

// PathsBetween enumerates every directed walk from ancestor to node as
// mangled-name paths, ordered by path.Compare (shortest first, then
// lexicographic). Returns PathNotFound if no walk exists.
func (g *Graph) PathsBetween(node, ancestor Node) ([]path.Path, error) {
	target := node.Mangled()

	var walks []path.Path
	type frame struct {
		at   string
		walk path.Path
	}
	stack := []frame{{at: ancestor.Mangled(), walk: path.Path{}}}
	for len(stack) > 0 {
		fr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		walk := fr.walk.Append(fr.at)
		if fr.at == target {
			walks = append(walks, walk)
			continue
		}
		for _, next := range g.succ[fr.at] {
			if containsPart(walk, next) {
				continue
			}
			stack = append(stack, frame{at: next, walk: walk})
		}
	}

	if len(walks) == 0 {
		return nil, &PathError{
			Kind: PathNotFound,
			From: ancestor.Mangled(),
			To:   target,
		}
	}

	sort.Slice(walks, func(i, j int) bool { return walks[i].Compare(walks[j]) < 0 })
	return walks, nil
}

func containsPart(p path.Path, part string) bool {
	for _, existing := range p.Parts() {
		if existing == part {
			return true
		}
	}
	return false
}

// ResolveShortestPath expands a partial path of mangled names into a
// fully-qualified walk through the graph. For each consecutive pair of
// named segments it enumerates every connecting walk and keeps the one
// that sorts smallest under path.Compare - an arbitrary but fixed
// tie-break that templates may depend on. Resolution is idempotent on
// an already-fully-qualified path.
func (g *Graph) ResolveShortestPath(partial path.Path) (path.Path, error) {
	if partial.Empty() {
		return partial, nil
	}

	first := partial.First()
	prev, err := g.FindSegment(first)
	if err != nil {
		return path.Path{}, segmentError(err, first, partial)
	}

	resolved := path.New(prev.Mangled())
	for _, segment := range partial.WithoutFirst().Parts() {
		node, err := g.FindSegment(segment)
		if err != nil {
			return path.Path{}, segmentError(err, segment, partial)
		}

		walks, err := g.PathsBetween(node, prev)
		if err != nil {
			var pe *PathError
			if errors.As(err, &pe) {
				pe.Within = partial.String()
				return path.Path{}, pe
			}
			return path.Path{}, err
		}

		resolved = resolved.Join(walks[0].WithoutFirst())
		prev = node
	}
	return resolved, nil
}

// segmentError stamps the partial path onto a segment lookup failure.
func segmentError(err error, segment string, partial path.Path) error {
	var pe *PathError
	if errors.As(err, &pe) {
		pe.Within = partial.String()
		return pe
	}
	return &PathError{Kind: AmbiguousNode, To: segment, Within: partial.String()}
}
