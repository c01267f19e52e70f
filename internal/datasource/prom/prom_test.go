package prom

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/roach88/vizgraph/internal/graph"
)

func writeSuccess(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"status": "success", "data": data})
}

type series struct {
	Metric map[string]string `json:"metric"`
	Value  [2]any            `json:"value"`
}

func newFixtureServer(t *testing.T, labelValues map[string][]string, samples []series) string {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/label/", func(w http.ResponseWriter, r *http.Request) {
		label := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/v1/label/"), "/values")
		values, ok := labelValues[label]
		if !ok {
			http.NotFound(w, r)
			return
		}
		writeSuccess(w, values)
	})
	mux.HandleFunc("/api/v1/query", func(w http.ResponseWriter, r *http.Request) {
		writeSuccess(w, map[string]any{"resultType": "vector", "result": samples})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return strings.TrimPrefix(server.URL, "http://")
}

const interfaceConfig = `
datasource: prometheus
target: %s
label_categories:
  group: [instance]
groups:
  interface:
    metrics: [ifHCOutOctets]
    primary_labels: [instance, ifIndex]
    alias_labels:
      - [ifIndex, ifName]
    value_labels: [ifAlias]
`

func interfaceSamples() []series {
	return []series{
		{Metric: map[string]string{"__name__": "ifHCOutOctets", "instance": "frisco1", "ifIndex": "1", "ifName": "eth0", "ifAlias": "uplink"}, Value: [2]any{1000, "42"}},
		{Metric: map[string]string{"__name__": "ifHCOutOctets", "instance": "frisco1", "ifIndex": "2", "ifName": "eth1", "ifAlias": "downlink"}, Value: [2]any{1000, "7"}},
		{Metric: map[string]string{"__name__": "ifHCOutOctets", "instance": "frisco2", "ifIndex": "1", "ifName": "eth0", "ifAlias": "uplink"}, Value: [2]any{1000, "99"}},
	}
}

func buildInterfaceFixture(t *testing.T) *graph.Graph {
	t.Helper()

	target := newFixtureServer(t,
		map[string][]string{"instance": {"frisco1", "frisco2"}},
		interfaceSamples())
	return buildFromYAML(t, strings.Replace(interfaceConfig, "%s", target, 1))
}

func buildFromYAML(t *testing.T, source string) *graph.Graph {
	t.Helper()

	var doc yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(source), &doc))
	require.NotEmpty(t, doc.Content)

	g, err := FromConfig("snmp", doc.Content[0], nil)
	require.NoError(t, err)
	return g
}

func findNode(t *testing.T, g *graph.Graph, name string) graph.Node {
	t.Helper()
	node, err := g.Find("snmp", name)
	require.NoError(t, err)
	return node
}

func successorNames(g *graph.Graph, node graph.Node) []string {
	var names []string
	for _, succ := range g.Successors(node) {
		names = append(names, succ.Name())
	}
	return names
}

func TestFromConfigShape(t *testing.T) {
	g := buildInterfaceFixture(t)

	instance := findNode(t, g, "instance")
	ifIndex := findNode(t, g, "ifIndex")
	ifName := findNode(t, g, "ifName")
	group := findNode(t, g, "group")

	assert.Equal(t, []string{"ifIndex", "ifName"}, successorNames(g, instance))
	assert.Equal(t, []string{"ifAlias", "ifHCOutOctets"}, successorNames(g, ifIndex))

	// the alias is reachable exactly where ifIndex is
	assert.Equal(t, []string{"ifAlias", "ifHCOutOctets"}, successorNames(g, ifName))

	assert.Equal(t, []string{"instance"}, successorNames(g, group))
}

func TestLabelValuesViaDedicatedAPI(t *testing.T) {
	g := buildInterfaceFixture(t)

	instance := findNode(t, g, "instance")
	values, err := instance.Result().Values(graph.Constraints{})
	require.NoError(t, err)
	assert.Equal(t, []any{"frisco1", "frisco2"}, values)
}

func TestChainedLabelValues(t *testing.T) {
	g := buildInterfaceFixture(t)

	instance := findNode(t, g, "instance")
	ifIndex := findNode(t, g, "ifIndex")

	chain, err := instance.Result().Join(ifIndex)
	require.NoError(t, err)

	constraints := graph.Constraints{}
	constraints.Set(instance, "frisco1")
	values, err := chain.Values(constraints)
	require.NoError(t, err)
	assert.Equal(t, []any{"1", "2"}, values)

	constraints.Set(instance, "frisco2")
	chain, err = instance.Result().Join(ifIndex)
	require.NoError(t, err)
	values, err = chain.Values(constraints)
	require.NoError(t, err)
	assert.Equal(t, []any{"1"}, values)
}

func TestMetricValues(t *testing.T) {
	g := buildInterfaceFixture(t)

	instance := findNode(t, g, "instance")
	ifIndex := findNode(t, g, "ifIndex")
	metric := findNode(t, g, "ifHCOutOctets")

	chain, err := instance.Result().Join(ifIndex)
	require.NoError(t, err)
	chain, err = chain.Join(metric)
	require.NoError(t, err)

	constraints := graph.Constraints{}
	constraints.Set(instance, "frisco1")
	constraints.Set(ifIndex, "1")
	values, err := chain.Values(constraints)
	require.NoError(t, err)
	assert.Equal(t, []any{42.0}, values)

	_, err = chain.Join(ifIndex)
	assert.ErrorContains(t, err, "cannot join on metric")
}

func TestAsQuery(t *testing.T) {
	g := buildInterfaceFixture(t)

	instance := findNode(t, g, "instance")
	ifIndex := findNode(t, g, "ifIndex")
	metric := findNode(t, g, "ifHCOutOctets")

	chain, err := instance.Result().Join(ifIndex)
	require.NoError(t, err)
	chain, err = chain.Join(metric)
	require.NoError(t, err)

	assert.Equal(t,
		`{__name__="ifHCOutOctets", ifIndex=~"^[^\v].*$", instance=~"^[^\v].*$"}`,
		chain.(*metricResult).asQuery())
}

const sensorConfig = `
datasource: prometheus
target: %s
derived_labels:
  - tempSensorName: row
    regex: "([a-zA-Z])0*[0-9]+ .*"
    func: lower
groups:
  sensors:
    metrics: [tempSensorValue]
    primary_labels: [tempSensorName, row]
`

func TestDerivedLabel(t *testing.T) {
	target := newFixtureServer(t,
		map[string][]string{"tempSensorName": {"U5 Cold", "U6 Hot", "R12 Mid", "weird"}},
		nil)
	g := buildFromYAML(t, strings.Replace(sensorConfig, "%s", target, 1))

	row := findNode(t, g, "row")
	values, err := row.Result().Values(graph.Constraints{})
	require.NoError(t, err)
	assert.Equal(t, []any{"r", "u"}, values)

	assert.True(t, row.SameValue("U5 Cold", "u"))
	assert.False(t, row.SameValue("U5 Cold", "r"))
	assert.False(t, row.SameValue("weird", "u"))
}

func TestDerivationDefault(t *testing.T) {
	d, err := parseDerivationYAML(`
tempSensorName: row
regex: "([a-zA-Z])0*[0-9]+ .*"
func: lower
default: a
`)
	require.NoError(t, err)

	value, ok := d.Apply("U5 Cold")
	require.True(t, ok)
	assert.Equal(t, "u", value)

	value, ok = d.Apply("nonsense")
	require.True(t, ok)
	assert.Equal(t, "a", value)
}

func parseDerivationYAML(source string) (*Derivation, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(source), &doc); err != nil {
		return nil, err
	}
	return parseDerivation(doc.Content[0])
}

func TestEnumMetricMatches(t *testing.T) {
	metric := newEnumMetric(nil, "snmp", "pdu_measurements", "active_power", "measurement_index", "2")
	assert.Equal(t, "active_power", metric.Name())
	assert.Equal(t, []string{
		`__name__="pdu_measurements"`,
		`measurement_index="2"`,
	}, metric.labelMatches())
	assert.Equal(t, "measurement_index", metric.canonicalLabel())
}

func TestConfigErrors(t *testing.T) {
	parse := func(source string) error {
		var doc yaml.Node
		require.NoError(t, yaml.Unmarshal([]byte(source), &doc))
		_, err := FromConfig("snmp", doc.Content[0], nil)
		return err
	}

	assert.ErrorContains(t, parse("datasource: prometheus\n"), "target is required")

	assert.ErrorContains(t, parse(`
datasource: prometheus
target: localhost:9090
groups:
  empty:
    metrics: []
`), "declares no metrics")

	assert.ErrorContains(t, parse(`
datasource: prometheus
target: localhost:9090
derived_labels:
  - a: b
    func: reverse
groups: {}
`), "unknown derivation func")

	assert.ErrorContains(t, parse(`
datasource: prometheus
target: localhost:9090
groups:
  sensors:
    metrics: [m]
    primary_labels: []
`), "no primary_labels")
}
