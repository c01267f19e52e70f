package prom

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/roach88/vizgraph/internal/cache"
	"github.com/roach88/vizgraph/internal/graph"
)

type config struct {
	Target          string      `yaml:"target"`
	Proxy           string      `yaml:"proxy"`
	LabelCategories yaml.Node   `yaml:"label_categories"`
	DerivedLabels   []yaml.Node `yaml:"derived_labels"`
	Groups          yaml.Node   `yaml:"groups"`
}

type groupConfig struct {
	Metrics         []string   `yaml:"metrics"`
	PrimaryLabels   []string   `yaml:"primary_labels"`
	AliasLabels     [][]string `yaml:"alias_labels"`
	ValueLabels     []string   `yaml:"value_labels"`
	LabelValueEnums yaml.Node  `yaml:"label_value_enums"`
}

// FromConfig builds the subgraph for one prometheus datasource block.
//
//	datasource: prometheus
//	target: localhost:9090
//	label_categories:
//	  group: [instance]
//	derived_labels:
//	  - tempSensorName: row
//	    regex: "([a-zA-Z])0*[0-9]+ .*"
//	    func: lower
//	    default: a
//	groups:
//	  interface:
//	    metrics: [ifHCOutOctets]
//	    primary_labels: [instance, ifIndex]
//	    alias_labels:
//	      - [ifIndex, ifName]
//	    value_labels: [ifAlias]
func FromConfig(name string, cfgNode *yaml.Node, c cache.Cache) (*graph.Graph, error) {
	var cfg config
	if err := cfgNode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse prometheus config: %w", err)
	}
	if cfg.Target == "" {
		return nil, fmt.Errorf("prometheus datasource %s: target is required", name)
	}

	querier := NewQuerier(cfg.Target, c)
	if cfg.Proxy != "" {
		if err := querier.WithProxy(cfg.Proxy); err != nil {
			return nil, err
		}
	}

	b := &builder{
		querier:     querier,
		datasource:  name,
		graph:       graph.New(),
		derivations: make(map[string]*Derivation),
	}
	for _, derivedNode := range cfg.DerivedLabels {
		derivation, err := parseDerivation(&derivedNode)
		if err != nil {
			return nil, err
		}
		if _, ok := b.derivations[derivation.Name]; ok {
			return nil, fmt.Errorf("derived label %s declared twice", derivation.Name)
		}
		b.derivations[derivation.Name] = derivation
	}

	if err := eachMapping(&cfg.Groups, func(groupName string, groupNode *yaml.Node) error {
		var group groupConfig
		if err := groupNode.Decode(&group); err != nil {
			return fmt.Errorf("parse group %s: %w", groupName, err)
		}
		if len(group.Metrics) == 0 {
			return fmt.Errorf("group %s declares no metrics", groupName)
		}
		for _, metric := range group.Metrics {
			if err := b.buildRelationship(metric, &group); err != nil {
				return fmt.Errorf("group %s: %w", groupName, err)
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}

	if err := eachMapping(&cfg.LabelCategories, func(categoryName string, subsetsNode *yaml.Node) error {
		var subsets []string
		if err := subsetsNode.Decode(&subsets); err != nil {
			return fmt.Errorf("parse label category %s: %w", categoryName, err)
		}
		return b.buildCategory(categoryName, subsets)
	}); err != nil {
		return nil, err
	}

	return b.graph, nil
}

// parseDerivation reads one derived_labels entry. The single
// non-keyword pair names the target label and the new label; the
// keyword pairs build the step pipeline in document order.
func parseDerivation(node *yaml.Node) (*Derivation, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("derived label entry at line %d must be a mapping", node.Line)
	}

	d := &Derivation{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		switch key.Value {
		case "regex":
			step, err := regexStep(value.Value)
			if err != nil {
				return nil, err
			}
			d.steps = append(d.steps, step)
		case "func":
			step, err := funcStep(value.Value)
			if err != nil {
				return nil, err
			}
			d.steps = append(d.steps, step)
		case "funcs":
			var names []string
			if err := value.Decode(&names); err != nil {
				return nil, fmt.Errorf("parse derivation funcs: %w", err)
			}
			for _, funcName := range names {
				step, err := funcStep(funcName)
				if err != nil {
					return nil, err
				}
				d.steps = append(d.steps, step)
			}
		case "parent":
			d.Parent = value.Value
		case "default":
			d.Default = value.Value
			d.hasDefault = true
		default:
			if d.Target != "" {
				return nil, fmt.Errorf("derived label entry at line %d maps more than one label", node.Line)
			}
			d.Target, d.Name = key.Value, value.Value
		}
	}

	if d.Target == "" || d.Name == "" {
		return nil, fmt.Errorf("derived label entry at line %d names no target label", node.Line)
	}
	return d, nil
}

type builder struct {
	querier     *Querier
	datasource  string
	graph       *graph.Graph
	derivations map[string]*Derivation
}

func (b *builder) find(name string) (graph.Node, error) {
	return b.graph.Find(b.datasource, name)
}

// constructLabel adds the label dimension, derived when a derivation
// declares it. Labels shared between metrics are interned, so repeated
// construction only accumulates edges.
func (b *builder) constructLabel(name string, from graph.Node) (graph.Node, error) {
	if derivation, ok := b.derivations[name]; ok {
		return b.constructDerived(derivation, from)
	}
	if err := b.graph.AddNode(newLabel(b.querier, b.datasource, name), from); err != nil {
		return nil, err
	}
	return b.find(name)
}

func (b *builder) constructDerived(derivation *Derivation, from graph.Node) (graph.Node, error) {
	target, err := b.find(derivation.Target)
	if err != nil {
		return nil, fmt.Errorf("derived label %s: target label %s not in graph", derivation.Name, derivation.Target)
	}

	node := newDerivedLabel(b.querier, b.datasource, derivation)
	if err := b.graph.AddNode(node, from); err != nil {
		return nil, err
	}
	if err := b.graph.AddEdge(target, node); err != nil {
		return nil, err
	}

	if derivation.Parent != "" {
		parent, err := b.find(derivation.Parent)
		if err != nil {
			return nil, fmt.Errorf("derived label %s: parent label %s not in graph", derivation.Name, derivation.Parent)
		}
		if err := b.graph.AddEdge(parent, node); err != nil {
			return nil, err
		}
	}
	return b.find(derivation.Name)
}

// buildRelationship wires one metric: the primary-label chain, value
// labels off the chain's end, enum metrics, the metric leaf, and the
// alias adjacencies.
func (b *builder) buildRelationship(metric string, group *groupConfig) error {
	enums := make(map[string]bool)
	if err := eachMapping(&group.LabelValueEnums, func(enumLabel string, _ *yaml.Node) error {
		enums[enumLabel] = true
		return nil
	}); err != nil {
		return err
	}

	var prev graph.Node
	for _, labelName := range group.PrimaryLabels {
		if enums[labelName] {
			return fmt.Errorf("primary label %s cannot also be enumerated", labelName)
		}
		node, err := b.constructLabel(labelName, prev)
		if err != nil {
			return err
		}
		prev = node
	}
	if prev == nil {
		return fmt.Errorf("metric %s has no primary_labels", metric)
	}

	// Alias labels exist before value and derived labels so either can
	// refer to them; the adjacency edges wait until the metric leaf is
	// in place.
	for _, aliasGroup := range group.AliasLabels {
		for _, aliasName := range aliasGroup {
			if _, err := b.constructLabel(aliasName, nil); err != nil {
				return err
			}
		}
	}

	for _, valueName := range group.ValueLabels {
		if valueName == metric {
			continue
		}
		if enums[valueName] {
			return fmt.Errorf("value label %s cannot also be enumerated", valueName)
		}
		if _, err := b.constructLabel(valueName, prev); err != nil {
			return err
		}
	}

	if err := eachMapping(&group.LabelValueEnums, func(enumLabel string, valuesNode *yaml.Node) error {
		return eachMapping(valuesNode, func(enumValue string, newNameNode *yaml.Node) error {
			node := newEnumMetric(b.querier, b.datasource, metric, newNameNode.Value, enumLabel, enumValue)
			return b.graph.AddNode(node, prev)
		})
	}); err != nil {
		return err
	}

	if err := b.graph.AddNode(newMetric(b.querier, b.datasource, metric), prev); err != nil {
		return err
	}

	for _, aliasGroup := range group.AliasLabels {
		if err := b.buildAliases(aliasGroup); err != nil {
			return err
		}
	}
	return nil
}

// buildAliases makes every label in the group reachable exactly where
// the others are.
func (b *builder) buildAliases(aliasGroup []string) error {
	nodes := make([]graph.Node, 0, len(aliasGroup))
	for _, aliasName := range aliasGroup {
		node, err := b.find(aliasName)
		if err != nil {
			return err
		}
		nodes = append(nodes, node)
	}

	for i, node := range nodes {
		for j, other := range nodes {
			if i == j {
				continue
			}
			if err := b.graph.InsertAdjacent(node, other); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *builder) buildCategory(categoryName string, subsets []string) error {
	if err := b.graph.AddNode(newLabel(b.querier, b.datasource, categoryName), nil); err != nil {
		return err
	}
	category, err := b.find(categoryName)
	if err != nil {
		return err
	}

	for _, subsetName := range subsets {
		subset, err := b.find(subsetName)
		if err != nil {
			return fmt.Errorf("label category %s: label %s not in graph", categoryName, subsetName)
		}
		if err := b.graph.AddEdge(category, subset); err != nil {
			return err
		}
	}
	return nil
}

// eachMapping walks a YAML mapping node in document order. A zero or
// null node is treated as an empty mapping.
func eachMapping(node *yaml.Node, fn func(key string, value *yaml.Node) error) error {
	if node == nil || node.Kind == 0 || node.Tag == "!!null" {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("expected a mapping at line %d", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if err := fn(node.Content[i].Value, node.Content[i+1]); err != nil {
			return err
		}
	}
	return nil
}
