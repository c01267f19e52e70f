package sqlite

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/vizgraph/internal/cache"
	"github.com/roach88/vizgraph/internal/graph"
)

type tableConfig struct {
	PrimaryKeys  []string          `yaml:"primary_keys"`
	ForeignKeys  map[string]string `yaml:"foreign_keys"`
	Values       []string          `yaml:"values"`
	CategoryKeys yaml.Node         `yaml:"category_keys"`
}

type config struct {
	Filepath string    `yaml:"filepath"`
	Tables   yaml.Node `yaml:"tables"`
}

// FromConfig builds the subgraph for one sqlite datasource block.
// Tables and category keys are processed in document order, since both
// determine the refinement structure.
func FromConfig(name string, cfgNode *yaml.Node, _ cache.Cache) (*graph.Graph, error) {
	var cfg config
	if err := cfgNode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse sqlite config: %w", err)
	}
	if cfg.Filepath == "" {
		return nil, fmt.Errorf("sqlite datasource %s: filepath is required", name)
	}

	querier, err := OpenQuerier(cfg.Filepath)
	if err != nil {
		return nil, err
	}

	var tables []*Table
	if err := eachMappingEntry(&cfg.Tables, func(tableName string, tableNode *yaml.Node) error {
		var tc tableConfig
		if err := tableNode.Decode(&tc); err != nil {
			return fmt.Errorf("parse table %s: %w", tableName, err)
		}
		table, err := tc.build(tableName)
		if err != nil {
			return err
		}
		tables = append(tables, table)
		return nil
	}); err != nil {
		return nil, err
	}

	return BuildGraph(querier, name, tables)
}

func (tc *tableConfig) build(tableName string) (*Table, error) {
	table := &Table{Name: tableName}

	for _, keyName := range tc.PrimaryKeys {
		key := Key{Name: keyName, ForeignTable: tableName, ForeignName: keyName}
		if reference, ok := tc.ForeignKeys[keyName]; ok {
			foreignTable, foreignName, ok := strings.Cut(reference, ".")
			if !ok {
				return nil, fmt.Errorf("table %s: foreign key %s must reference table.column, got %q",
					tableName, keyName, reference)
			}
			key.ForeignTable, key.ForeignName = foreignTable, foreignName
		}
		table.PrimaryKeys = append(table.PrimaryKeys, key)
	}

	for localName := range tc.ForeignKeys {
		if !containsKeyName(table.PrimaryKeys, localName) {
			return nil, fmt.Errorf("table %s: foreign key %s is not a primary key", tableName, localName)
		}
	}

	for _, valueName := range tc.Values {
		table.ValueKeys = append(table.ValueKeys, Key{Name: valueName, ForeignTable: tableName, ForeignName: valueName})
	}

	if err := eachMappingEntry(&tc.CategoryKeys, func(categoryName string, subsetsNode *yaml.Node) error {
		if containsKeyName(table.PrimaryKeys, categoryName) || containsKeyName(table.ValueKeys, categoryName) {
			return fmt.Errorf("table %s: category key %s is already a key", tableName, categoryName)
		}

		var subsets []string
		if err := subsetsNode.Decode(&subsets); err != nil {
			return fmt.Errorf("table %s: parse category key %s: %w", tableName, categoryName, err)
		}
		for _, subset := range subsets {
			if !containsKeyName(table.PrimaryKeys, subset) && !containsKeyName(table.ValueKeys, subset) &&
				!containsCategoryName(table.CategoryKeys, subset) {
				return fmt.Errorf("table %s: category key %s groups unknown key %s", tableName, categoryName, subset)
			}
		}

		table.CategoryKeys = append(table.CategoryKeys, CategoryKey{
			Key:     Key{Name: categoryName, ForeignTable: tableName, ForeignName: categoryName},
			Subsets: subsets,
		})
		return nil
	}); err != nil {
		return nil, err
	}

	return table, nil
}

func containsKeyName(keys []Key, name string) bool {
	for _, key := range keys {
		if key.Name == name {
			return true
		}
	}
	return false
}

func containsCategoryName(keys []CategoryKey, name string) bool {
	for _, key := range keys {
		if key.Key.Name == name {
			return true
		}
	}
	return false
}

// eachMappingEntry walks a YAML mapping node in document order. A zero
// or null node is treated as an empty mapping.
func eachMappingEntry(node *yaml.Node, fn func(key string, value *yaml.Node) error) error {
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
