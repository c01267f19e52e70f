// Package sqlite exposes a SQLite database as a datasource. Each table
// declares a primary-key chain (its refinement order), value columns
// hanging off the last primary key, and optional category columns
// spliced above keys they group. Foreign keys stitch tables together
// into one subgraph, and result chains compile into a single
// SELECT DISTINCT with the JOINs the chain implies.
package sqlite

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/vizgraph/internal/cache"
	"github.com/roach88/vizgraph/internal/graph"
)

func mangleTableAndColumn(table, column string) string {
	return table + "_" + column
}

// NodeNameFromIdentifier maps a "table.column" join identifier onto the
// node name used inside this backend's subgraph.
func NodeNameFromIdentifier(identifier string) string {
	table, column, ok := strings.Cut(identifier, ".")
	if !ok {
		return identifier
	}
	return mangleTableAndColumn(table, column)
}

// Key is one column of a table. A non-foreign key references its own
// table; a foreign key references the table and column it points at.
type Key struct {
	Name         string
	ForeignTable string
	ForeignName  string
}

// ForeignIdentifier returns the referenced "table.column".
func (k Key) ForeignIdentifier() string {
	return k.ForeignTable + "." + k.ForeignName
}

// CategoryKey groups a set of existing keys under a coarser column.
type CategoryKey struct {
	Key     Key
	Subsets []string
}

// Table is one table's declared schema slice.
type Table struct {
	Name         string
	PrimaryKeys  []Key
	ValueKeys    []Key
	CategoryKeys []CategoryKey
}

// ForeignKeys returns the primary keys that reference another table.
func (t *Table) ForeignKeys() []Key {
	var out []Key
	for _, key := range t.PrimaryKeys {
		if key.ForeignTable != t.Name {
			out = append(out, key)
		}
	}
	return out
}

// Querier executes literal statements against one database file.
type Querier struct {
	db *sql.DB
}

// OpenQuerier opens the database read-only.
func OpenQuerier(filepath string) (*Querier, error) {
	db, err := sql.Open("sqlite3", "file:"+filepath+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath, err)
	}
	return &Querier{db: db}, nil
}

// Query runs the statement and returns one map per row, keyed by the
// given column identifiers in selection order.
func (q *Querier) Query(statement string, columns []string) ([]map[string]any, error) {
	rows, err := q.db.Query(statement)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", statement, err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		cells := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %q: %w", statement, err)
		}

		row := make(map[string]any, len(columns))
		for i, column := range columns {
			row[column] = cells[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Node is one table column.
type Node struct {
	graph.Info
	querier *Querier
	table   *Table
	column  string
}

func newNode(querier *Querier, datasource, column string, table *Table) *Node {
	return &Node{
		Info:    graph.NewInfo(datasource, mangleTableAndColumn(table.Name, column), graph.KindString),
		querier: querier,
		table:   table,
		column:  column,
	}
}

// Identifier returns the column's "table.column" identity.
func (n *Node) Identifier() string {
	return n.table.Name + "." + n.column
}

func (n *Node) Result() graph.Result {
	return &result{node: n, memo: cache.NewMemory()}
}

// result is one link of a join chain, leaf first.
type result struct {
	node *Node
	prev *result
	memo *cache.Memory
}

func (r *result) Node() graph.Node { return r.node }

func (r *result) Join(other graph.Node) (graph.Result, error) {
	if sibling, ok := other.(*Node); ok && sibling.Datasource() == r.node.Datasource() {
		return &result{node: sibling, prev: r, memo: cache.NewMemory()}, nil
	}
	return other.Result(), nil
}

// foreignKeysInChain returns the leaf table's foreign keys claimed by
// some link of the chain: a link claims the keys whose referenced
// column it represents. Each key is claimed at most once, by the link
// closest to the leaf.
func (r *result) foreignKeysInChain() []Key {
	remaining := r.node.table.ForeignKeys()

	var claimed []Key
	for link := r; link != nil && len(remaining) > 0; link = link.prev {
		identifier := link.node.Identifier()
		kept := remaining[:0]
		for _, key := range remaining {
			if key.ForeignIdentifier() == identifier {
				claimed = append(claimed, key)
			} else {
				kept = append(kept, key)
			}
		}
		remaining = kept
	}
	return claimed
}

// foreignTableAccesses groups the chain's claimed foreign keys by the
// table they reference, preserving claim order.
func (r *result) foreignTableAccesses() (map[string][]Key, []string) {
	byTable := make(map[string][]Key)
	var order []string
	for _, key := range r.foreignKeysInChain() {
		if _, ok := byTable[key.ForeignTable]; !ok {
			order = append(order, key.ForeignTable)
		}
		byTable[key.ForeignTable] = append(byTable[key.ForeignTable], key)
	}
	return byTable, order
}

// columnConstraints projects the applicable ancestor constraints into
// "table.column" -> value form. Applicable means same datasource and a
// table reachable from this chain's query.
func (r *result) columnConstraints(ancestors graph.Constraints) map[string]any {
	byTable, _ := r.foreignTableAccesses()

	constraints := make(map[string]any)
	for _, entry := range ancestors.Sorted() {
		ancestor, ok := entry.Node.(*Node)
		if !ok || ancestor.Datasource() != r.node.Datasource() {
			continue
		}
		tableName := ancestor.table.Name
		if tableName != r.node.table.Name {
			if _, reachable := byTable[tableName]; !reachable {
				continue
			}
		}
		constraints[ancestor.Identifier()] = entry.Value
	}
	return constraints
}

func (r *result) statement(columns []string) string {
	byTable, order := r.foreignTableAccesses()

	var join strings.Builder
	for _, foreignTable := range order {
		var onClauses []string
		for _, key := range byTable[foreignTable] {
			onClauses = append(onClauses, fmt.Sprintf("%s.%s = %s.%s",
				r.node.table.Name, key.Name, key.ForeignTable, key.ForeignName))
		}
		fmt.Fprintf(&join, " JOIN %s ON %s", foreignTable, strings.Join(onClauses, " AND "))
	}

	selector := strings.Join(columns, ", ")
	return fmt.Sprintf("SELECT DISTINCT %s FROM %s%s ORDER BY %s",
		selector, r.node.table.Name, join.String(), selector)
}

// Values compiles the chain into one DISTINCT query selecting this
// column plus every constrained column, then filters rows in memory.
// The raw rows are memoized per selected-column set, so re-expanding a
// branch under different constraint values reuses the first query.
func (r *result) Values(ancestors graph.Constraints) ([]any, error) {
	constraints := r.columnConstraints(ancestors)

	columnID := r.node.Identifier()
	columns := make([]string, 0, len(constraints)+1)
	for id := range constraints {
		if id != columnID {
			columns = append(columns, id)
		}
	}
	sort.Strings(columns)
	columns = append(columns, columnID)

	cached, err := cache.RetrieveOrUpdate(r.memo, strings.Join(columns, "_"), "rows", func() (any, error) {
		return r.node.querier.Query(r.statement(columns), columns)
	})
	if err != nil {
		return nil, err
	}
	rows := cached.([]map[string]any)

	var out []any
	for _, row := range rows {
		matched := true
		for id, expected := range constraints {
			if row[id] != expected {
				matched = false
				break
			}
		}
		if matched && row[columnID] != nil {
			out = append(out, row[columnID])
		}
	}
	return graph.DedupFirstSeen(out), nil
}

type builder struct {
	querier    *Querier
	datasource string
	graph      *graph.Graph
}

func (b *builder) find(table, column string) (*Node, error) {
	node, err := b.graph.Find(b.datasource, mangleTableAndColumn(table, column))
	if err != nil {
		return nil, err
	}
	return node.(*Node), nil
}

// construct adds the column node for key, hanging it off from when
// given. A foreign key resolves to the already-built referenced node
// instead of creating a duplicate dimension.
func (b *builder) construct(key Key, table *Table, from *Node) (*Node, error) {
	if key.ForeignTable != table.Name {
		node, err := b.find(key.ForeignTable, key.ForeignName)
		if err != nil {
			return nil, err
		}
		if from != nil {
			if err := b.graph.AddEdge(from, node); err != nil {
				return nil, err
			}
		}
		return node, nil
	}

	node := newNode(b.querier, b.datasource, key.Name, table)
	var parent graph.Node
	if from != nil {
		parent = from
	}
	if err := b.graph.AddNode(node, parent); err != nil {
		return nil, err
	}
	return node, nil
}

// BuildGraph constructs the subgraph for the given tables: primary-key
// chains first, then value columns off each chain's last key, then
// category columns spliced above the keys they group. The passes are
// ordered so foreign and categorized columns always already exist.
func BuildGraph(querier *Querier, datasource string, tables []*Table) (*graph.Graph, error) {
	b := &builder{querier: querier, datasource: datasource, graph: graph.New()}

	lastColumn := make(map[string]*Node, len(tables))
	for _, table := range tables {
		var prev *Node
		for _, primaryKey := range table.PrimaryKeys {
			node, err := b.construct(primaryKey, table, prev)
			if err != nil {
				return nil, err
			}
			prev = node
		}
		lastColumn[table.Name] = prev
	}

	for _, table := range tables {
		for _, valueKey := range table.ValueKeys {
			if valueKey.ForeignTable != table.Name {
				return nil, fmt.Errorf("value key %s of table %s must not be foreign", valueKey.Name, table.Name)
			}
			if _, err := b.construct(valueKey, table, lastColumn[table.Name]); err != nil {
				return nil, err
			}
		}
	}

	for _, table := range tables {
		for _, categoryKey := range table.CategoryKeys {
			categoryNode, err := b.construct(categoryKey.Key, table, nil)
			if err != nil {
				return nil, err
			}
			for _, subset := range categoryKey.Subsets {
				subsetNode, err := b.find(table.Name, subset)
				if err != nil {
					return nil, err
				}
				if err := b.graph.InsertIntermediate(categoryNode, subsetNode); err != nil {
					return nil, err
				}
			}
		}
	}

	return b.graph, nil
}
