package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraphText(t *testing.T) {
	configFile, _ := writeFixtures(t)

	out, err := execute(t, "graph", configFile)
	require.NoError(t, err)
	assert.Contains(t, out, "racks:rack (string)")
	assert.Contains(t, out, "-> racks:position")
	assert.Contains(t, out, "-> power:pdu_rack [join]")
}

func TestGraphJSON(t *testing.T) {
	configFile, _ := writeFixtures(t)

	out, err := execute(t, "--format", "json", "graph", configFile)
	require.NoError(t, err)

	var response struct {
		Status string      `json:"status"`
		Data   GraphReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "ok", response.Status)

	byName := map[string]NodeReport{}
	for _, node := range response.Data.Nodes {
		byName[node.Name] = node
	}
	rack, ok := byName["racks:rack"]
	require.True(t, ok)
	assert.Contains(t, rack.Successors, "power:pdu_rack")
	assert.Contains(t, rack.Adaptors, "power:pdu_rack")
}

func TestGraphDOT(t *testing.T) {
	configFile, _ := writeFixtures(t)

	out, err := execute(t, "graph", "--dot", configFile)
	require.NoError(t, err)
	assert.Contains(t, out, "digraph datagraph {")
	assert.Contains(t, out, `"racks:rack" [label="racks:rack\n(string)"];`)
	assert.Contains(t, out, `"racks:rack" -> "racks:position";`)
	assert.Contains(t, out, `"racks:rack" -> "power:pdu_rack" [style=dashed, label="join"];`)
	assert.Contains(t, out, "}\n")
}

func TestGraphMissingFile(t *testing.T) {
	_, err := execute(t, "graph", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
