package influx

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

func writeResult(w http.ResponseWriter, series []map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"results": []map[string]any{{"series": series}},
	})
}

func seriesKeys(keys ...string) []map[string]any {
	values := make([][]any, 0, len(keys))
	for _, key := range keys {
		values = append(values, []any{key})
	}
	return []map[string]any{{"columns": []string{"key"}, "values": values}}
}

// newFixtureServer serves canned responses per exact statement text.
func newFixtureServer(t *testing.T, responses map[string][]map[string]any) string {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/query", func(w http.ResponseWriter, r *http.Request) {
		statement := r.URL.Query().Get("q")
		series, ok := responses[statement]
		if !ok {
			t.Errorf("unexpected statement %q", statement)
			http.NotFound(w, r)
			return
		}
		writeResult(w, series)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return strings.TrimPrefix(server.URL, "http://")
}

const cpuConfig = `
datasource: influxdb
target: %s
username: influx
password: hunter2
database: main
measurements:
  cpu_info:
    tags: [host, cpu]
    fields:
      usage: float
      vendor: str
`

func fixtureResponses() map[string][]map[string]any {
	return map[string][]map[string]any{
		"SHOW SERIES WHERE host != null": seriesKeys(
			"cpu_info,cpu=0,host=h1",
			"cpu_info,cpu=1,host=h1",
			"cpu_info,cpu=0,host=h2",
		),
		"SHOW SERIES FROM cpu_info WHERE cpu != null AND host != null": seriesKeys(
			"cpu_info,cpu=0,host=h1",
			"cpu_info,cpu=1,host=h1",
			"cpu_info,cpu=0,host=h2",
		),
		"SELECT last(usage) AS usage FROM cpu_info GROUP BY *": {
			{"name": "cpu_info", "columns": []string{"time", "usage"}, "tags": map[string]string{"host": "h1", "cpu": "0"}, "values": [][]any{{"1970-01-01T00:00:00Z", 12.5}}},
			{"name": "cpu_info", "columns": []string{"time", "usage"}, "tags": map[string]string{"host": "h1", "cpu": "1"}, "values": [][]any{{"1970-01-01T00:00:00Z", 30.0}}},
			{"name": "cpu_info", "columns": []string{"time", "usage"}, "tags": map[string]string{"host": "h2", "cpu": "0"}, "values": [][]any{{"1970-01-01T00:00:00Z", 99.0}}},
		},
	}
}

func buildFixture(t *testing.T) *graph.Graph {
	t.Helper()

	target := newFixtureServer(t, fixtureResponses())

	var doc yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(strings.Replace(cpuConfig, "%s", target, 1)), &doc))

	g, err := FromConfig("metrics", doc.Content[0], nil)
	require.NoError(t, err)
	return g
}

func findNode(t *testing.T, g *graph.Graph, name string) graph.Node {
	t.Helper()
	node, err := g.Find("metrics", name)
	require.NoError(t, err)
	return node
}

func TestFromConfigShape(t *testing.T) {
	g := buildFixture(t)

	host := findNode(t, g, "host")
	cpuInfoHost := findNode(t, g, "cpu_info_host")
	cpuInfoCPU := findNode(t, g, "cpu_info_cpu")

	assert.Equal(t, []graph.Node{cpuInfoHost}, g.Successors(host))

	var names []string
	for _, succ := range g.Successors(cpuInfoCPU) {
		names = append(names, succ.Name())
	}
	assert.Equal(t, []string{"cpu_info_usage", "cpu_info_vendor"}, names)
}

func TestSharedTagValues(t *testing.T) {
	g := buildFixture(t)

	host := findNode(t, g, "host")
	values, err := host.Result().Values(graph.Constraints{})
	require.NoError(t, err)
	assert.Equal(t, []any{"h1", "h2"}, values)
}

func TestMeasurementTagChain(t *testing.T) {
	g := buildFixture(t)

	host := findNode(t, g, "cpu_info_host")
	cpu := findNode(t, g, "cpu_info_cpu")

	chain, err := host.Result().Join(cpu)
	require.NoError(t, err)

	constraints := graph.Constraints{}
	constraints.Set(host, "h1")
	values, err := chain.Values(constraints)
	require.NoError(t, err)
	assert.Equal(t, []any{"0", "1"}, values)
}

func TestFieldValuesCombineAcrossCPUs(t *testing.T) {
	g := buildFixture(t)

	host := findNode(t, g, "host")
	usage := findNode(t, g, "cpu_info_usage")

	// chaining through the shared tag scopes the field query to its
	// measurement
	chain, err := host.Result().Join(findNode(t, g, "cpu_info_host"))
	require.NoError(t, err)
	chain, err = chain.Join(usage)
	require.NoError(t, err)

	constraints := graph.Constraints{}
	constraints.Set(host, "h1")
	values, err := chain.Values(constraints)
	require.NoError(t, err)
	assert.Equal(t, []any{12.5, 30.0}, values)

	constraints.Set(host, "h2")
	chain, err = host.Result().Join(findNode(t, g, "cpu_info_host"))
	require.NoError(t, err)
	chain, err = chain.Join(usage)
	require.NoError(t, err)
	values, err = chain.Values(constraints)
	require.NoError(t, err)
	assert.Equal(t, []any{99.0}, values)
}

func TestParseSeriesKey(t *testing.T) {
	measurement, tags := parseSeriesKey("nvidia,cluster=notchpeak,host=notch309,instance=gpu0")
	assert.Equal(t, "nvidia", measurement)
	assert.Equal(t, map[string]string{"cluster": "notchpeak", "host": "notch309", "instance": "gpu0"}, tags)

	measurement, tags = parseSeriesKey(`pdu,location="DDC u5",rack=r1`)
	assert.Equal(t, "pdu", measurement)
	assert.Equal(t, map[string]string{"location": "DDC u5", "rack": "r1"}, tags)
}

func TestMeasurementAsQuery(t *testing.T) {
	m := &Measurement{
		Name: "cpu_info",
		Tags: []string{"host"},
		FieldTypes: map[string]graph.ValueKind{
			"usage":  graph.KindFloat,
			"vendor": graph.KindString,
		},
	}
	assert.Equal(t,
		"SELECT last(usage) AS usage, last(vendor) AS vendor FROM cpu_info GROUP BY *",
		m.AsQuery())
}

func TestMeasurementCombineMismatch(t *testing.T) {
	a := &Measurement{Name: "cpu_info"}
	b := &Measurement{Name: "mem_info"}
	_, err := a.Combine(b)
	assert.ErrorContains(t, err, "cannot combine")
}

func TestNodeNameFromIdentifier(t *testing.T) {
	assert.Equal(t, "cpu_info_host", NodeNameFromIdentifier("cpu_info.host"))
	assert.Equal(t, "host", NodeNameFromIdentifier("host"))
}

func TestConfigErrors(t *testing.T) {
	parse := func(source string) error {
		var doc yaml.Node
		require.NoError(t, yaml.Unmarshal([]byte(source), &doc))
		_, err := FromConfig("metrics", doc.Content[0], nil)
		return err
	}

	assert.ErrorContains(t, parse("datasource: influxdb\ndatabase: main\n"), "target is required")
	assert.ErrorContains(t, parse("datasource: influxdb\ntarget: localhost:8086\n"), "database is required")
	assert.ErrorContains(t, parse(`
datasource: influxdb
target: localhost:8086
database: main
measurements:
  cpu_info:
    tags: [host]
`), "declares no fields")
}
