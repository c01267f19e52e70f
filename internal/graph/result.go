package graph

import (
	"fmt"

	"github.com/roach88/vizgraph/internal/path"
)

// Result resolves one node's values lazily under ancestor constraints.
// Results are short-lived value objects created fresh per resolution
// path and persisted only inside a ResultGraph.
type Result interface {
	// Node returns the node this result is bound to.
	Node() Node

	// Join extends the accumulated chain so that it is now rooted at
	// other. Backends that can accumulate (a relational backend extends
	// its JOIN chain) do so; others delegate to other.Result().
	Join(other Node) (Result, error)

	// Values returns a finite, order-preserving, first-seen-deduplicated
	// sequence of values for this result's node, filtered to those
	// consistent with every applicable ancestor constraint. Applicable
	// means same backend scope, or bridged in via an adaptor.
	Values(ancestors Constraints) ([]any, error)
}

// DedupFirstSeen removes repeated values while preserving first-seen
// order. Backend rows routinely repeat public values (one row per
// refinement combination); callers rely on both the dedup and the
// order being stable.
func DedupFirstSeen(values []any) []any {
	seen := make(map[string]bool, len(values))
	out := make([]any, 0, len(values))
	for _, v := range values {
		key := fmt.Sprintf("%T:%v", v, v)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}

// AdaptedResult wraps another node's result behind a registered
// adaptor. Before delegating Values, it rewrites every ancestor
// constraint the adaptor applies to into an additional entry keyed by
// the adaptor's target node with the translated value, so the wrapped
// backend sees constraints in its own vocabulary.
type AdaptedResult struct {
	result  Result
	adaptor Adaptor
}

// NewAdaptedResult wraps result behind adaptor.
func NewAdaptedResult(result Result, adaptor Adaptor) *AdaptedResult {
	return &AdaptedResult{result: result, adaptor: adaptor}
}

func (r *AdaptedResult) Node() Node { return r.result.Node() }

func (r *AdaptedResult) Join(other Node) (Result, error) {
	return r.result.Join(other)
}

func (r *AdaptedResult) Values(ancestors Constraints) ([]any, error) {
	adapted := ancestors.Clone()
	for _, entry := range ancestors.Sorted() {
		if entry.Node == nil || !r.adaptor.AppliesTo(entry.Node) {
			continue
		}
		target, err := r.adaptor.AdaptNode(entry.Node)
		if err != nil {
			return nil, fmt.Errorf("adapt constraint %s: %w", entry.Node.Mangled(), err)
		}
		adapted.Set(target, r.adaptor.AdaptValue(entry.Value))
	}
	return r.result.Values(adapted)
}

func (r *AdaptedResult) String() string {
	return fmt.Sprintf("AdaptedResult(%v, %v)", r.adaptor, r.result)
}

// ResultGraph memoizes one Result per fully resolved data path. It is
// built incrementally as a binding tree's paths are walked; repeated
// construction of the same path is O(1) after the first.
type ResultGraph struct {
	graph   *Graph
	results map[string]Result // resolved path string -> result
}

// NewResultGraph returns an empty result graph over g.
func NewResultGraph(g *Graph) *ResultGraph {
	return &ResultGraph{
		graph:   g,
		results: make(map[string]Result),
	}
}

// FromPaths constructs results for every path up front.
func FromPaths(g *Graph, paths []path.Path) (*ResultGraph, error) {
	rg := NewResultGraph(g)
	for _, p := range paths {
		if err := rg.ConstructPath(p); err != nil {
			return nil, err
		}
	}
	return rg, nil
}

// ConstructPath resolves the (possibly partial) data path against the
// graph and builds a Result for every sub-path along the resolved walk
// that does not already have one. The first segment gets a fresh root
// Result from its node; later segments get an AdaptedResult when the
// graph holds an adaptor from the previous node, and otherwise extend
// the previous Result via Join.
func (rg *ResultGraph) ConstructPath(p path.Path) error {
	resolved, err := rg.graph.ResolveShortestPath(p)
	if err != nil {
		return err
	}

	var (
		prevResult Result
		prevNode   Node
	)

	ancestors := resolved.AncestorPaths(true)
	// ancestors runs leaf -> root; walk root -> leaf.
	for i := len(ancestors) - 1; i >= 0; i-- {
		subPath := ancestors[i]
		key := subPath.String()

		if memoized, ok := rg.results[key]; ok {
			prevResult = memoized
			prevNode = memoized.Node()
			continue
		}

		node, err := rg.graph.FindMangled(subPath.Last())
		if err != nil {
			return err
		}

		var result Result
		switch {
		case prevNode == nil:
			result = node.Result()
		default:
			if adaptor, ok := rg.graph.Adaptor(prevNode, node); ok {
				result = NewAdaptedResult(node.Result(), adaptor)
			} else {
				result, err = prevResult.Join(node)
				if err != nil {
					return fmt.Errorf("join %s onto %s: %w", node.Mangled(), prevNode.Mangled(), err)
				}
			}
		}

		rg.results[key] = result
		prevResult = result
		prevNode = node
	}
	return nil
}

// Result returns the memoized result for the given data path, resolving
// it first. Returns NotFoundError if no result was ever constructed for
// the resolved path.
func (rg *ResultGraph) Result(p path.Path) (Result, error) {
	resolved, err := rg.graph.ResolveShortestPath(p)
	if err != nil {
		return nil, err
	}
	result, ok := rg.results[resolved.String()]
	if !ok {
		return nil, &NotFoundError{Path: p.String()}
	}
	return result, nil
}
