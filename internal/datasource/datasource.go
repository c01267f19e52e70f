// Package datasource loads the YAML federation config: per-datasource
// subgraph construction, the shared query cache, includes of external
// config files, and cross-datasource joins.
package datasource

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/roach88/vizgraph/internal/cache"
	"github.com/roach88/vizgraph/internal/datasource/influx"
	"github.com/roach88/vizgraph/internal/datasource/mem"
	"github.com/roach88/vizgraph/internal/datasource/prom"
	"github.com/roach88/vizgraph/internal/datasource/sqlite"
	"github.com/roach88/vizgraph/internal/graph"
)

// module is one backend implementation: how to build a subgraph from
// its config block and how join identifiers map onto its node names.
type module struct {
	build    func(name string, cfg *yaml.Node, c cache.Cache) (*graph.Graph, error)
	nodeName func(identifier string) string
}

// moduleFor maps a config "datasource:" type string to its backend.
func moduleFor(kind string) (module, error) {
	switch kind {
	case "sqlite", "sqlite3":
		return module{build: sqlite.FromConfig, nodeName: sqlite.NodeNameFromIdentifier}, nil
	case "prometheus":
		return module{build: prom.FromConfig, nodeName: prom.NodeNameFromIdentifier}, nil
	case "influx", "influxdb":
		return module{build: influx.FromConfig, nodeName: influx.NodeNameFromIdentifier}, nil
	case "mem", "test":
		return module{build: mem.FromConfig, nodeName: mem.NodeNameFromIdentifier}, nil
	default:
		return module{}, fmt.Errorf("unknown datasource type %q", kind)
	}
}
