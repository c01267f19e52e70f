package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vizgraph/internal/binding"
	"github.com/roach88/vizgraph/internal/explode"
	"github.com/roach88/vizgraph/internal/path"
	"github.com/roach88/vizgraph/internal/template"
)

const rackTemplate = `
visualization: children: [
	{
		kind: "juxtapose"
		name: "racks"
		children: [
			{
				kind:  "grid"
				name:  "rack"
				bind:  "racks.rack"
				color: "gray"
				children: [
					{kind: "box", name: "host", bind: ".rack.host"},
				]
			},
		]
	},
]
`

func newFixture(t *testing.T) (*Node, *binding.Binding, *binding.Binding) {
	t.Helper()
	root, bindings, err := template.Parse([]byte(rackTemplate), t.TempDir())
	require.NoError(t, err)

	require.Len(t, bindings.Children(), 1)
	rack := bindings.Children()[0]
	require.Len(t, rack.Children(), 1)
	return FromTemplate(root), rack.Binding(), rack.Children()[0].Binding()
}

func instance(b *binding.Binding, p string, attrs map[string]string) explode.Instance {
	return explode.Instance{Binding: b, Path: path.MustParse(p), Attrs: attrs}
}

func TestFromTemplateMirrorsElements(t *testing.T) {
	root, _, _ := newFixture(t)

	racks, err := root.FindDescendant(path.MustParse("racks"))
	require.NoError(t, err)
	assert.True(t, racks.IsTemplate())
	assert.Equal(t, []string{"rack"}, racks.ChildrenNames())

	rack, err := root.FindDescendant(path.MustParse("racks.rack"))
	require.NoError(t, err)
	assert.Equal(t, "grid", rack.Kind())
	assert.Equal(t, map[string]string{"color": "gray"}, rack.Attributes())
}

func TestReconcileInstantiates(t *testing.T) {
	root, rackBinding, hostBinding := newFixture(t)

	err := root.Reconcile([]explode.Instance{
		instance(rackBinding, "racks.rack_r1_1", map[string]string{"label": "Rack r1"}),
		instance(hostBinding, "racks.rack_r1_1.host_h1_1", map[string]string{"text": "h1"}),
		instance(rackBinding, "racks.rack_r2_1", map[string]string{"label": "Rack r2"}),
	})
	require.NoError(t, err)

	racks, err := root.FindDescendant(path.MustParse("racks"))
	require.NoError(t, err)
	assert.Equal(t, []string{"rack", "rack_r1_1", "rack_r2_1"}, racks.ChildrenNames())

	r1, err := root.FindDescendant(path.MustParse("racks.rack_r1_1"))
	require.NoError(t, err)
	assert.False(t, r1.IsTemplate())
	assert.Equal(t, "grid", r1.Kind())
	// Template literals carry over, pass attributes layer on top.
	assert.Equal(t, map[string]string{"color": "gray", "label": "Rack r1"}, r1.Attributes())

	// The clone keeps the host template so deeper emissions can
	// instantiate below it.
	assert.Equal(t, []string{"host", "host_h1_1"}, r1.ChildrenNames())
	h1, err := root.FindDescendant(path.MustParse("racks.rack_r1_1.host_h1_1"))
	require.NoError(t, err)
	assert.False(t, h1.IsTemplate())
	assert.Equal(t, "h1", h1.Attributes()["text"])
}

func TestReconcileUpdatesAndRemoves(t *testing.T) {
	root, rackBinding, hostBinding := newFixture(t)

	require.NoError(t, root.Reconcile([]explode.Instance{
		instance(rackBinding, "racks.rack_r1_1", map[string]string{"label": "Rack r1"}),
		instance(hostBinding, "racks.rack_r1_1.host_h1_1", map[string]string{"text": "h1"}),
		instance(rackBinding, "racks.rack_r2_1", map[string]string{"label": "Rack r2"}),
	}))

	// Second pass: r2 and h1 disappear, r1's label changes.
	require.NoError(t, root.Reconcile([]explode.Instance{
		instance(rackBinding, "racks.rack_r1_1", map[string]string{"label": "Rack one"}),
	}))

	racks, err := root.FindDescendant(path.MustParse("racks"))
	require.NoError(t, err)
	assert.Equal(t, []string{"rack", "rack_r1_1"}, racks.ChildrenNames())

	r1, err := root.FindDescendant(path.MustParse("racks.rack_r1_1"))
	require.NoError(t, err)
	assert.Equal(t, "Rack one", r1.Attributes()["label"])
	assert.Equal(t, []string{"host"}, r1.ChildrenNames())
}

func TestReconcileUnknownTemplate(t *testing.T) {
	root, _, _ := newFixture(t)

	orphan := &binding.Binding{TemplatePath: path.MustParse("racks.shelf")}
	err := root.Reconcile([]explode.Instance{
		instance(orphan, "racks.shelf_s1_1", nil),
	})
	require.ErrorContains(t, err, `no template "shelf"`)
}

func TestFindDescendantMissing(t *testing.T) {
	root, _, _ := newFixture(t)

	_, err := root.FindDescendant(path.MustParse("racks.nope"))
	require.ErrorContains(t, err, "no descendant")
}

func TestRender(t *testing.T) {
	root, rackBinding, _ := newFixture(t)
	require.NoError(t, root.Reconcile([]explode.Instance{
		instance(rackBinding, "racks.rack_r1_1", map[string]string{"label": "Rack r1"}),
	}))

	want := `<juxtapose racks template>
  <grid rack template color="gray">
    <box host template>
  <grid rack_r1_1 color="gray" label="Rack r1">
    <box host template>
`
	assert.Equal(t, want, root.Render())
}
