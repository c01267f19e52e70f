package sqlite

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/roach88/vizgraph/internal/graph"
)

const fixtureSchema = `
CREATE TABLE location (
	datacenter TEXT NOT NULL,
	row TEXT NOT NULL,
	rack TEXT NOT NULL,
	pod TEXT NOT NULL
);
CREATE TABLE pdu (
	datacenter TEXT NOT NULL,
	row TEXT NOT NULL,
	rack TEXT NOT NULL,
	hostname TEXT NOT NULL
);
INSERT INTO location VALUES
	('ddc', 'r1', 'rk1', 'pod-a'),
	('ddc', 'r1', 'rk2', 'pod-a'),
	('ddc', 'r2', 'rk3', 'pod-b'),
	('inscc', 'r1', 'rk1', 'pod-a');
INSERT INTO pdu VALUES
	('ddc', 'r1', 'rk1', 'pdu-1'),
	('ddc', 'r1', 'rk2', 'pdu-2'),
	('ddc', 'r2', 'rk3', 'pdu-3'),
	('inscc', 'r1', 'rk1', 'pdu-4');
`

const fixtureConfig = `
datasource: sqlite3
filepath: %q
tables:
  location:
    primary_keys: [datacenter, row, rack]
    category_keys:
      pod: [row]
  pdu:
    primary_keys: [datacenter, row, rack]
    foreign_keys:
      datacenter: location.datacenter
      row: location.row
      rack: location.rack
    values: [hostname]
`

func createFixtureDB(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "infra.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(fixtureSchema)
	require.NoError(t, err)
	return path
}

func buildFixture(t *testing.T) *graph.Graph {
	t.Helper()

	source := yamlf(t, fixtureConfig, createFixtureDB(t))
	g, err := FromConfig("infra", source, nil)
	require.NoError(t, err)
	return g
}

func yamlf(t *testing.T, format string, args ...any) *yaml.Node {
	t.Helper()

	var doc yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(fmt.Sprintf(format, args...)), &doc))
	require.NotEmpty(t, doc.Content)
	return doc.Content[0]
}

func findNode(t *testing.T, g *graph.Graph, name string) graph.Node {
	t.Helper()
	node, err := g.Find("infra", name)
	require.NoError(t, err)
	return node
}

func TestGraphShape(t *testing.T) {
	g := buildFixture(t)

	datacenter := findNode(t, g, "location_datacenter")
	pod := findNode(t, g, "location_pod")
	row := findNode(t, g, "location_row")
	rack := findNode(t, g, "location_rack")

	// pod is spliced between datacenter and row.
	assert.Equal(t, []graph.Node{pod}, g.Successors(datacenter))
	assert.Equal(t, []graph.Node{row}, g.Successors(pod))
	assert.Equal(t, []graph.Node{rack}, g.Successors(row))

	// pdu's primary keys are foreign, so hostname hangs off the shared
	// location chain instead of a parallel one.
	hostname := findNode(t, g, "pdu_hostname")
	assert.Equal(t, []graph.Node{hostname}, g.Successors(rack))

	_, err := g.Find("infra", "pdu_datacenter")
	assert.Error(t, err)
}

func TestValues(t *testing.T) {
	g := buildFixture(t)

	datacenter := findNode(t, g, "location_datacenter")
	values, err := datacenter.Result().Values(graph.Constraints{})
	require.NoError(t, err)
	assert.Equal(t, []any{"ddc", "inscc"}, values)
}

func TestValuesConstrainedAcrossChain(t *testing.T) {
	g := buildFixture(t)

	datacenter := findNode(t, g, "location_datacenter")
	row := findNode(t, g, "location_row")
	rack := findNode(t, g, "location_rack")

	chain, err := datacenter.Result().Join(row)
	require.NoError(t, err)
	chain, err = chain.Join(rack)
	require.NoError(t, err)

	constraints := graph.Constraints{}
	constraints.Set(datacenter, "ddc")
	constraints.Set(row, "r1")

	values, err := chain.Values(constraints)
	require.NoError(t, err)
	assert.Equal(t, []any{"rk1", "rk2"}, values)
}

func TestValuesJoinForeignTable(t *testing.T) {
	g := buildFixture(t)

	datacenter := findNode(t, g, "location_datacenter")
	row := findNode(t, g, "location_row")
	rack := findNode(t, g, "location_rack")
	hostname := findNode(t, g, "pdu_hostname")

	chain, err := datacenter.Result().Join(row)
	require.NoError(t, err)
	chain, err = chain.Join(rack)
	require.NoError(t, err)
	chain, err = chain.Join(hostname)
	require.NoError(t, err)

	constraints := graph.Constraints{}
	constraints.Set(datacenter, "ddc")
	constraints.Set(row, "r2")
	constraints.Set(rack, "rk3")

	values, err := chain.Values(constraints)
	require.NoError(t, err)
	assert.Equal(t, []any{"pdu-3"}, values)
}

func TestValuesCategoryKey(t *testing.T) {
	g := buildFixture(t)

	datacenter := findNode(t, g, "location_datacenter")
	pod := findNode(t, g, "location_pod")
	row := findNode(t, g, "location_row")

	chain, err := datacenter.Result().Join(pod)
	require.NoError(t, err)
	chain, err = chain.Join(row)
	require.NoError(t, err)

	constraints := graph.Constraints{}
	constraints.Set(datacenter, "ddc")
	constraints.Set(pod, "pod-b")

	values, err := chain.Values(constraints)
	require.NoError(t, err)
	assert.Equal(t, []any{"r2"}, values)
}

func TestJoinStatement(t *testing.T) {
	g := buildFixture(t)

	datacenter := findNode(t, g, "location_datacenter").(*Node)
	rack := findNode(t, g, "location_rack").(*Node)
	hostname := findNode(t, g, "pdu_hostname").(*Node)

	chain := &result{node: rack, prev: &result{node: datacenter}}
	leaf := &result{node: hostname, prev: chain}

	statement := leaf.statement([]string{"location.rack", "pdu.hostname"})
	assert.Equal(t,
		"SELECT DISTINCT location.rack, pdu.hostname FROM pdu"+
			" JOIN location ON pdu.rack = location.rack AND pdu.datacenter = location.datacenter"+
			" ORDER BY location.rack, pdu.hostname",
		statement)
}

func TestNodeNameFromIdentifier(t *testing.T) {
	assert.Equal(t, "pdu_hostname", NodeNameFromIdentifier("pdu.hostname"))
	assert.Equal(t, "bare", NodeNameFromIdentifier("bare"))
}

func TestConfigErrors(t *testing.T) {
	t.Run("missing filepath", func(t *testing.T) {
		_, err := FromConfig("infra", yamlf(t, "datasource: sqlite3\ntables: {}\n"), nil)
		assert.ErrorContains(t, err, "filepath is required")
	})

	t.Run("foreign key must be primary", func(t *testing.T) {
		source := yamlf(t, `
datasource: sqlite3
filepath: %q
tables:
  pdu:
    primary_keys: [rack]
    foreign_keys:
      slot: location.slot
`, filepath.Join(t.TempDir(), "x.db"))
		_, err := FromConfig("infra", source, nil)
		assert.ErrorContains(t, err, "not a primary key")
	})

	t.Run("category of unknown key", func(t *testing.T) {
		source := yamlf(t, `
datasource: sqlite3
filepath: %q
tables:
  location:
    primary_keys: [rack]
    category_keys:
      pod: [slot]
`, filepath.Join(t.TempDir(), "x.db"))
		_, err := FromConfig("infra", source, nil)
		assert.ErrorContains(t, err, "unknown key")
	})
}
