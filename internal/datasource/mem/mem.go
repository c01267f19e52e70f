// Package mem implements an in-config datasource: a flat row table and
// an explicit adjacency list, declared directly in YAML. It is the
// simplest backend and the reference for writing new ones.
package mem

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/roach88/vizgraph/internal/cache"
	"github.com/roach88/vizgraph/internal/graph"
)

type config struct {
	Graph []map[string][]string `yaml:"graph"`
	Table []map[string]any      `yaml:"table"`
}

// NodeNameFromIdentifier maps join identifiers onto node names; for
// this backend they are the column names themselves.
func NodeNameFromIdentifier(identifier string) string {
	return identifier
}

// FromConfig builds the subgraph for one mem datasource block.
//
//	datasource: mem
//	graph:
//	  - cluster: [hostname]
//	table:
//	  - {cluster: c1, hostname: h1}
//	  - {cluster: c1, hostname: h2}
func FromConfig(name string, cfgNode *yaml.Node, _ cache.Cache) (*graph.Graph, error) {
	var cfg config
	if err := cfgNode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse mem config: %w", err)
	}

	shared := &table{rows: cfg.Table}
	g := graph.New()

	find := func(column string) *Node {
		if node, err := g.Find(name, column); err == nil {
			return node.(*Node)
		}
		return nil
	}
	construct := func(column string, from *Node) (*Node, error) {
		if node := find(column); node != nil {
			if from != nil {
				if err := g.AddEdge(from, node); err != nil {
					return nil, err
				}
			}
			return node, nil
		}
		node := newNode(name, column, shared)
		var parent graph.Node
		if from != nil {
			parent = from
		}
		if err := g.AddNode(node, parent); err != nil {
			return nil, err
		}
		return node, nil
	}

	for _, adjacency := range cfg.Graph {
		for fromColumn, toColumns := range adjacency {
			if len(toColumns) == 0 {
				return nil, fmt.Errorf("adjacency %q has no successors", fromColumn)
			}
			fromNode, err := construct(fromColumn, nil)
			if err != nil {
				return nil, err
			}
			for _, toColumn := range toColumns {
				if _, err := construct(toColumn, fromNode); err != nil {
					return nil, err
				}
			}
		}
	}
	return g, nil
}

type table struct {
	rows []map[string]any
}

// Node is one column of the row table.
type Node struct {
	graph.Info
	table *table
}

func newNode(datasource, column string, table *table) *Node {
	return &Node{Info: graph.NewInfo(datasource, column, graph.KindString), table: table}
}

func (n *Node) Result() graph.Result {
	return &result{node: n}
}

type result struct {
	node *Node
}

func (r *result) Node() graph.Node { return r.node }

// Join within the same table needs no accumulated state: every column
// filters over the same rows, so the other column's root result already
// sees the full constraint set.
func (r *result) Join(other graph.Node) (graph.Result, error) {
	if sibling, ok := other.(*Node); ok && sibling.Datasource() == r.node.Datasource() {
		return sibling.Result(), nil
	}
	return nil, fmt.Errorf("cannot join %s onto mem node %s", other.Mangled(), r.node.Mangled())
}

func (r *result) Values(ancestors graph.Constraints) ([]any, error) {
	var out []any
	for _, row := range r.node.table.rows {
		if !r.matches(row, ancestors) {
			continue
		}
		if value, ok := row[r.node.Name()]; ok && value != nil {
			out = append(out, value)
		}
	}
	return graph.DedupFirstSeen(out), nil
}

func (r *result) matches(row map[string]any, ancestors graph.Constraints) bool {
	for _, constraint := range ancestors.Sorted() {
		ancestor, ok := constraint.Node.(*Node)
		if !ok || ancestor.Datasource() != r.node.Datasource() {
			continue
		}
		cell, ok := row[ancestor.Name()]
		if !ok {
			continue
		}
		if !ancestor.SameValue(cell, constraint.Value) {
			return false
		}
	}
	return true
}
