package datasource

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/vizgraph/internal/cache"
	"github.com/roach88/vizgraph/internal/graph"
)

// fileConfig is one federation config file. External files are loaded
// recursively; their subgraphs combine with the local ones before joins
// are applied.
type fileConfig struct {
	Cache struct {
		Dir string `yaml:"dir"`
	} `yaml:"cache"`
	External []struct {
		Path string `yaml:"path"`
	} `yaml:"external_datasources"`
	Datasources map[string]yaml.Node `yaml:"datasources"`
	Joins       []yaml.Node          `yaml:"joins"`
}

// FromFile builds the combined data graph from a YAML config file.
// Relative external_datasources paths resolve against the file's
// directory.
func FromFile(path string, logger *slog.Logger) (*graph.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read datasource config: %w", err)
	}
	return FromBytes(data, filepath.Dir(path), logger)
}

// FromBytes builds the combined data graph from raw YAML config.
func FromBytes(data []byte, relativeDir string, logger *slog.Logger) (*graph.Graph, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse datasource config: %w", err)
	}

	queryCache, err := openCache(cfg)
	if err != nil {
		return nil, err
	}
	return build(cfg, relativeDir, queryCache, logger)
}

// openCache opens the persistent query cache when one is configured.
// The cache lives as long as the graph's results do, which is the
// process; the handle is intentionally never closed here.
func openCache(cfg fileConfig) (cache.Cache, error) {
	if cfg.Cache.Dir == "" {
		return cache.Nop{}, nil
	}
	if err := os.MkdirAll(cfg.Cache.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	store, err := cache.Open(filepath.Join(cfg.Cache.Dir, "cache.db"))
	if err != nil {
		return nil, err
	}
	return store, nil
}

func build(cfg fileConfig, relativeDir string, queryCache cache.Cache, logger *slog.Logger) (*graph.Graph, error) {
	var subgraphs []*graph.Graph

	// dsType -> module per datasource name, for join identifier mapping
	modules := map[string]module{}

	for _, external := range cfg.External {
		if external.Path == "" {
			return nil, fmt.Errorf("external datasource entry has no path")
		}
		resolved := external.Path
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(relativeDir, resolved)
		}

		data, err := os.ReadFile(resolved)
		if err != nil {
			return nil, fmt.Errorf("read external datasource %s: %w", external.Path, err)
		}
		var externalCfg fileConfig
		if err := yaml.Unmarshal(data, &externalCfg); err != nil {
			return nil, fmt.Errorf("parse external datasource %s: %w", external.Path, err)
		}

		subgraph, err := build(externalCfg, relativeDir, queryCache, logger)
		if err != nil {
			return nil, fmt.Errorf("external datasource %s: %w", external.Path, err)
		}
		subgraphs = append(subgraphs, subgraph)
		for name, mod := range externalCfg.moduleMap() {
			modules[name] = mod
		}
	}

	names := make([]string, 0, len(cfg.Datasources))
	for name := range cfg.Datasources {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		node := cfg.Datasources[name]
		kind, err := datasourceKind(&node)
		if err != nil {
			return nil, fmt.Errorf("datasource %s: %w", name, err)
		}
		mod, err := moduleFor(kind)
		if err != nil {
			return nil, fmt.Errorf("datasource %s: %w", name, err)
		}
		modules[name] = mod

		logger.Debug("building datasource subgraph", "datasource", name, "type", kind)
		subgraph, err := mod.build(name, &node, queryCache)
		if err != nil {
			return nil, fmt.Errorf("datasource %s: %w", name, err)
		}
		subgraphs = append(subgraphs, subgraph)
	}

	if len(subgraphs) == 0 {
		return nil, fmt.Errorf("no datasources nor external_datasources configured")
	}

	combined, err := graph.Combine(subgraphs...)
	if err != nil {
		return nil, err
	}

	for i := range cfg.Joins {
		if err := applyJoin(combined, &cfg.Joins[i], modules); err != nil {
			return nil, fmt.Errorf("join %d: %w", i+1, err)
		}
	}
	return combined, nil
}

// moduleMap resolves the backend module of every datasource this config
// declares, ignoring unknown types (their build already failed louder).
func (cfg fileConfig) moduleMap() map[string]module {
	out := map[string]module{}
	for name, node := range cfg.Datasources {
		kind, err := datasourceKind(&node)
		if err != nil {
			continue
		}
		if mod, err := moduleFor(kind); err == nil {
			out[name] = mod
		}
	}
	return out
}

func datasourceKind(node *yaml.Node) (string, error) {
	var header struct {
		Kind string `yaml:"datasource"`
	}
	if err := node.Decode(&header); err != nil {
		return "", err
	}
	if header.Kind == "" {
		return "", fmt.Errorf("missing datasource type")
	}
	return header.Kind, nil
}

// applyJoin wires one cross-datasource join: an edge from one node to
// another plus the adaptor that translates constraint values across it.
// The entry is a single "from.identifier: to.identifier" mapping with an
// optional relabel_map; without one the join is a directional identity.
func applyJoin(g *graph.Graph, node *yaml.Node, modules map[string]module) error {
	var entry map[string]yaml.Node
	if err := node.Decode(&entry); err != nil {
		return err
	}

	var relabel map[string]string
	if relabelNode, ok := entry["relabel_map"]; ok {
		if err := relabelNode.Decode(&relabel); err != nil {
			return fmt.Errorf("relabel_map: %w", err)
		}
	}

	// Walk the mapping node's key/value pairs directly so the from/to
	// pair is found in document order.
	var fromIdentifier, toIdentifier string
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		if key == "relabel_map" {
			continue
		}
		fromIdentifier = key
		toIdentifier = node.Content[i+1].Value
		break
	}
	if fromIdentifier == "" || toIdentifier == "" {
		return fmt.Errorf("expected a 'from.identifier: to.identifier' mapping")
	}

	fromNode, err := findJoinNode(g, fromIdentifier, modules)
	if err != nil {
		return err
	}
	toNode, err := findJoinNode(g, toIdentifier, modules)
	if err != nil {
		return err
	}

	var adaptor graph.Adaptor
	if relabel == nil {
		adaptor = graph.NewIdentityAdaptor(fromNode, toNode)
	} else {
		adaptor = graph.NewRelabelAdaptor(fromNode, toNode, relabel)
	}

	if err := g.AddEdge(fromNode, toNode); err != nil {
		return err
	}
	return g.RegisterAdaptor(fromNode, toNode, adaptor)
}

func findJoinNode(g *graph.Graph, identifier string, modules map[string]module) (graph.Node, error) {
	datasourceName, localIdentifier, ok := strings.Cut(identifier, ".")
	if !ok {
		return nil, fmt.Errorf("join identifier %q is not datasource.identifier", identifier)
	}
	mod, ok := modules[datasourceName]
	if !ok {
		return nil, fmt.Errorf("join references unknown datasource %q", datasourceName)
	}
	return g.Find(datasourceName, mod.nodeName(localIdentifier))
}
