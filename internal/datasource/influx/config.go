package influx

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/roach88/vizgraph/internal/cache"
	"github.com/roach88/vizgraph/internal/graph"
)

type config struct {
	Target       string    `yaml:"target"`
	Username     string    `yaml:"username"`
	Password     string    `yaml:"password"`
	Database     string    `yaml:"database"`
	Proxy        string    `yaml:"proxy"`
	Measurements yaml.Node `yaml:"measurements"`
}

// FromConfig builds the subgraph for one influxdb datasource block.
//
//	datasource: influxdb
//	target: localhost:8086
//	username: influx
//	password: hunter2
//	database: main
//	measurements:
//	  cpu_info:
//	    tags: [cluster, host, cpu]
//	    fields:
//	      user: float
//	      vendor: str
func FromConfig(name string, cfgNode *yaml.Node, c cache.Cache) (*graph.Graph, error) {
	var cfg config
	if err := cfgNode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse influxdb config: %w", err)
	}
	if cfg.Target == "" {
		return nil, fmt.Errorf("influxdb datasource %s: target is required", name)
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("influxdb datasource %s: database is required", name)
	}

	querier := NewQuerier(cfg.Target, cfg.Database, cfg.Username, cfg.Password, c)
	if cfg.Proxy != "" {
		if err := querier.WithProxy(cfg.Proxy); err != nil {
			return nil, err
		}
	}

	g := graph.New()
	if err := eachMapping(&cfg.Measurements, func(measurementName string, measurementNode *yaml.Node) error {
		return buildMeasurement(g, querier, name, measurementName, measurementNode)
	}); err != nil {
		return nil, err
	}
	return g, nil
}

func buildMeasurement(g *graph.Graph, querier *Querier, datasource, measurementName string, node *yaml.Node) error {
	var mc struct {
		Tags   []string  `yaml:"tags"`
		Fields yaml.Node `yaml:"fields"`
	}
	if err := node.Decode(&mc); err != nil {
		return fmt.Errorf("parse measurement %s: %w", measurementName, err)
	}

	var tagNodes []graph.Node
	for _, tag := range mc.Tags {
		measurementTag := newMeasurementTag(querier, datasource, measurementName, tag)
		if err := g.AddNode(measurementTag, nil); err != nil {
			return err
		}

		shared, err := g.Find(datasource, tag)
		if err != nil {
			shared = newSharedTag(querier, datasource, tag)
		}
		if err := g.AddEdge(shared, measurementTag); err != nil {
			return err
		}
		tagNodes = append(tagNodes, measurementTag)
	}

	fieldCount := 0
	if err := eachMapping(&mc.Fields, func(fieldName string, kindNode *yaml.Node) error {
		fieldCount++
		field := newField(querier, datasource, measurementName, fieldName, kindFromString(kindNode.Value))
		if err := g.AddNode(field, nil); err != nil {
			return err
		}
		for _, tagNode := range tagNodes {
			if err := g.AddEdge(tagNode, field); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	if fieldCount == 0 {
		return fmt.Errorf("measurement %s declares no fields", measurementName)
	}
	return nil
}

func kindFromString(typeName string) graph.ValueKind {
	switch typeName {
	case "float":
		return graph.KindFloat
	case "int":
		return graph.KindInt
	default:
		return graph.KindString
	}
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
