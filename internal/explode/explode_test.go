package explode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vizgraph/internal/binding"
	"github.com/roach88/vizgraph/internal/graph"
	"github.com/roach88/vizgraph/internal/lang"
	"github.com/roach88/vizgraph/internal/path"
	"github.com/roach88/vizgraph/internal/transform"
)

// fakeData is a flat row table shared by every fake node, so ancestor
// constraints on one column narrow the values of every other column.
type fakeData struct {
	rows []map[string]any
}

type fakeNode struct {
	graph.Info
	data *fakeData
}

func newFakeNode(data *fakeData, name string, kind graph.ValueKind) *fakeNode {
	return &fakeNode{Info: graph.NewInfo("test", name, kind), data: data}
}

func (n *fakeNode) Result() graph.Result {
	return &fakeResult{node: n}
}

type fakeResult struct {
	node *fakeNode
}

func (r *fakeResult) Node() graph.Node { return r.node }

func (r *fakeResult) Join(other graph.Node) (graph.Result, error) {
	return other.Result(), nil
}

func (r *fakeResult) Values(ancestors graph.Constraints) ([]any, error) {
	var out []any
	for _, row := range r.node.data.rows {
		if !rowMatches(row, ancestors) {
			continue
		}
		if v, ok := row[r.node.Name()]; ok && v != nil {
			out = append(out, v)
		}
	}
	return graph.DedupFirstSeen(out), nil
}

func rowMatches(row map[string]any, ancestors graph.Constraints) bool {
	for _, c := range ancestors.Sorted() {
		if c.Node == nil || c.Node.Datasource() != "test" {
			continue
		}
		cell, ok := row[c.Node.Name()]
		if !ok {
			continue
		}
		if cell != c.Value {
			return false
		}
	}
	return true
}

type fixture struct {
	graph *graph.Graph
	nodes map[string]*fakeNode
}

func newFixture(t *testing.T, rows []map[string]any) *fixture {
	t.Helper()
	data := &fakeData{rows: rows}
	g := graph.New()

	f := &fixture{graph: g, nodes: map[string]*fakeNode{}}
	add := func(name string, kind graph.ValueKind, from string) {
		node := newFakeNode(data, name, kind)
		f.nodes[name] = node
		var parent graph.Node
		if from != "" {
			parent = f.nodes[from]
		}
		require.NoError(t, g.AddNode(node, parent))
	}

	add("dc", graph.KindString, "")
	add("host", graph.KindString, "dc")
	add("iface", graph.KindString, "host")
	add("usage", graph.KindFloat, "host")
	add("gpu", graph.KindString, "host")
	return f
}

func testRows() []map[string]any {
	return []map[string]any{
		{"dc": "ddc", "host": "h11", "iface": "eth0", "usage": 0.25},
		{"dc": "ddc", "host": "h11", "iface": "lo", "usage": 0.25},
		{"dc": "ddc", "host": "h12", "iface": "eth0", "usage": 0.5},
		{"dc": "inscc", "host": "h21", "iface": "en0", "usage": 0.75},
	}
}

func bindTo(t *testing.T, text string, parent string) *lang.BindExpr {
	t.Helper()
	pp := path.Path{}
	if parent != "" {
		pp = path.MustParse(parent)
	}
	bind, err := lang.ParseBind(text, &pp)
	require.NoError(t, err)
	return bind
}

func attrOf(t *testing.T, attribute, text, parent string) *binding.AttributeBinding {
	t.Helper()
	p := path.MustParse(parent)
	exprs, err := lang.ParseValues(text, &p)
	require.NoError(t, err)
	return &binding.AttributeBinding{Attribute: attribute, Exprs: exprs}
}

func filterOf(t *testing.T, text, parent string) *lang.FilterExpr {
	t.Helper()
	p := path.MustParse(parent)
	f, err := lang.ParseFilter(text, &p)
	require.NoError(t, err)
	return f
}

func explodeTree(t *testing.T, f *fixture, tree *binding.Tree) []Instance {
	t.Helper()
	results, err := graph.FromPaths(f.graph, tree.WalkDataPaths())
	require.NoError(t, err)

	engine := New(transform.NewRegistry(), nil)
	instances, err := engine.Explode(tree, results, f.graph, nil)
	require.NoError(t, err)
	return instances
}

func instancePaths(instances []Instance) []string {
	out := make([]string, len(instances))
	for i, instance := range instances {
		out[i] = instance.Path.String()
	}
	return out
}

func TestExplodeNestsParentsBeforeChildren(t *testing.T) {
	f := newFixture(t, testRows())

	tree := binding.NewTree()
	dc := tree.Add(&binding.Binding{
		TemplatePath: path.MustParse(".row.dc"),
		Bind:         bindTo(t, ".dc", ""),
		Attributes:   []*binding.AttributeBinding{attrOf(t, "label", ".dc", ".dc")},
	})
	dc.Add(&binding.Binding{
		TemplatePath: path.MustParse(".row.dc.box"),
		Bind:         bindTo(t, ".dc.host", ".dc"),
		Attributes:   []*binding.AttributeBinding{attrOf(t, "text", "Host: .host", ".dc.host")},
	})

	instances := explodeTree(t, f, tree)
	assert.Equal(t, []string{
		".row.dc_ddc_1",
		".row.dc_ddc_1.box_h11_1",
		".row.dc_ddc_1.box_h12_1",
		".row.dc_inscc_1",
		".row.dc_inscc_1.box_h21_1",
	}, instancePaths(instances))

	assert.Equal(t, map[string]string{"label": "ddc"}, instances[0].Attrs)
	assert.Equal(t, map[string]string{"text": "Host: h11"}, instances[1].Attrs)
	assert.Equal(t, map[string]string{"text": "Host: h21"}, instances[4].Attrs)
}

func TestExplodeFilters(t *testing.T) {
	f := newFixture(t, testRows())

	tree := binding.NewTree()
	host := tree.Add(&binding.Binding{
		TemplatePath: path.MustParse(".node"),
		Bind:         bindTo(t, ".dc.host", ""),
	})
	host.Add(&binding.Binding{
		TemplatePath: path.MustParse(".node.port"),
		Bind:         bindTo(t, ".host.iface", ".dc.host"),
		Filter:       filterOf(t, "~{'^eth','^en'}", ".dc.host.iface"),
	})

	instances := explodeTree(t, f, tree)
	assert.Equal(t, []string{
		".node_h11_1",
		".node_h11_1.port_eth0_1",
		".node_h12_1",
		".node_h12_1.port_eth0_1",
		".node_h21_1",
		".node_h21_1.port_en0_1",
	}, instancePaths(instances))
}

func TestExplodeLimit(t *testing.T) {
	f := newFixture(t, testRows())

	tree := binding.NewTree()
	tree.Add(&binding.Binding{
		TemplatePath: path.MustParse(".node"),
		Bind:         bindTo(t, ".dc.host", ""),
		Limit:        2,
	})

	instances := explodeTree(t, f, tree)
	assert.Equal(t, []string{".node_h11_1", ".node_h12_1"}, instancePaths(instances))
}

func TestExplodeAttributePipeline(t *testing.T) {
	f := newFixture(t, testRows())

	tree := binding.NewTree()
	host := tree.Add(&binding.Binding{
		TemplatePath: path.MustParse(".node"),
		Bind:         bindTo(t, ".dc.host", ""),
	})
	host.Add(&binding.Binding{
		TemplatePath: path.MustParse(".node.meter"),
		Bind:         bindTo(t, ".host.usage", ".dc.host"),
		Attributes: []*binding.AttributeBinding{
			attrOf(t, "text", "Usage: .usage|pct|round%", ".dc.host.usage"),
		},
	})

	instances := explodeTree(t, f, tree)
	require.Len(t, instances, 6)
	assert.Equal(t, "Usage: 25%", instances[1].Attrs["text"])
	assert.Equal(t, "Usage: 75%", instances[5].Attrs["text"])
}

func TestExplodeKeepWhenFilteredOut(t *testing.T) {
	f := newFixture(t, testRows())

	tree := binding.NewTree()
	tree.Add(&binding.Binding{
		TemplatePath: path.MustParse(".node"),
		Bind:         bindTo(t, ".dc.host!", ""),
		Filter:       filterOf(t, "=no-such-host", ".dc.host"),
		Attributes: []*binding.AttributeBinding{
			attrOf(t, "text", "Host: .host?'none'", ".dc.host"),
		},
	})

	instances := explodeTree(t, f, tree)
	require.Len(t, instances, 1)
	assert.Equal(t, ".node_null_1", instances[0].Path.String())
	assert.Equal(t, "Host: none", instances[0].Attrs["text"])
}

func TestExplodeKeepWithoutDefaultDropsPlaceholder(t *testing.T) {
	f := newFixture(t, testRows())

	tree := binding.NewTree()
	tree.Add(&binding.Binding{
		TemplatePath: path.MustParse(".node"),
		Bind:         bindTo(t, ".dc.host!", ""),
		Filter:       filterOf(t, "=no-such-host", ".dc.host"),
		Attributes: []*binding.AttributeBinding{
			attrOf(t, "text", "Host: .host", ".dc.host"),
		},
	})

	instances := explodeTree(t, f, tree)
	assert.Empty(t, instances)
}

func TestExplodeMatchesNullProducesPlaceholder(t *testing.T) {
	f := newFixture(t, testRows())

	tree := binding.NewTree()
	host := tree.Add(&binding.Binding{
		TemplatePath: path.MustParse(".node"),
		Bind:         bindTo(t, ".dc.host", ""),
		Limit:        1,
	})
	host.Add(&binding.Binding{
		TemplatePath: path.MustParse(".node.warn"),
		Bind:         bindTo(t, ".host.gpu", ".dc.host"),
		Filter:       filterOf(t, "=null", ".dc.host.gpu"),
		Attributes: []*binding.AttributeBinding{
			attrOf(t, "text", ".gpu?'no gpu'", ".dc.host.gpu"),
		},
	})

	instances := explodeTree(t, f, tree)
	assert.Equal(t, []string{".node_h11_1", ".node_h11_1.warn_null_1"}, instancePaths(instances))
	assert.Equal(t, "no gpu", instances[1].Attrs["text"])
}

func TestExplodeMissingAttributeValueDropsCandidate(t *testing.T) {
	f := newFixture(t, testRows())

	tree := binding.NewTree()
	host := tree.Add(&binding.Binding{
		TemplatePath: path.MustParse(".node"),
		Bind:         bindTo(t, ".dc.host", ""),
	})
	host.Add(&binding.Binding{
		TemplatePath: path.MustParse(".node.gpu"),
		Bind:         bindTo(t, ".host.iface", ".dc.host"),
		Attributes: []*binding.AttributeBinding{
			attrOf(t, "text", ".gpu", ".host.gpu"),
		},
	})

	instances := explodeTree(t, f, tree)
	assert.Equal(t, []string{".node_h11_1", ".node_h12_1", ".node_h21_1"}, instancePaths(instances))
}

func TestExplodeCallerConstraints(t *testing.T) {
	f := newFixture(t, testRows())

	tree := binding.NewTree()
	tree.Add(&binding.Binding{
		TemplatePath: path.MustParse(".node"),
		Bind:         bindTo(t, ".dc.host", ""),
	})

	results, err := graph.FromPaths(f.graph, tree.WalkDataPaths())
	require.NoError(t, err)

	constraints := graph.Constraints{}
	constraints.Set(f.nodes["dc"], "inscc")

	engine := New(transform.NewRegistry(), nil)
	instances, err := engine.Explode(tree, results, f.graph, constraints)
	require.NoError(t, err)
	assert.Equal(t, []string{".node_h21_1"}, instancePaths(instances))
}

func TestSanitizeValue(t *testing.T) {
	assert.Equal(t, "null", SanitizeValue(nil))
	assert.Equal(t, "a_b", SanitizeValue("a.b"))
	assert.Equal(t, "a__b", SanitizeValue("a b"))
	assert.Equal(t, "eth0_port_1", SanitizeValue("eth0:1"))
	assert.Equal(t, "0_5", SanitizeValue(0.5))
}

func TestSanitizeCollisionsGetCounters(t *testing.T) {
	rows := []map[string]any{
		{"dc": "ddc", "host": "a.b"},
		{"dc": "ddc", "host": "a_b"},
	}
	f := newFixture(t, rows)

	tree := binding.NewTree()
	tree.Add(&binding.Binding{
		TemplatePath: path.MustParse(".node"),
		Bind:         bindTo(t, ".dc.host", ""),
	})

	instances := explodeTree(t, f, tree)
	assert.Equal(t, []string{".node_a_b_1", ".node_a_b_2"}, instancePaths(instances))
}
