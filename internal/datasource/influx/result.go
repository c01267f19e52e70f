package influx

import (
	"fmt"
	"strings"

	"github.com/roach88/vizgraph/internal/cache"
	"github.com/roach88/vizgraph/internal/graph"
)

// SharedTag is a tag dimension spanning every measurement that carries
// the tag. Its edges point at the per-measurement tag nodes.
type SharedTag struct {
	graph.Info
	querier *Querier
}

func newSharedTag(querier *Querier, datasource, tag string) *SharedTag {
	return &SharedTag{Info: graph.NewInfo(datasource, tag, graph.KindString), querier: querier}
}

func (n *SharedTag) Tag() string { return n.Name() }

func (n *SharedTag) Result() graph.Result {
	return &sharedTagResult{node: n, tags: []string{n.Tag()}, memo: cache.NewMemory()}
}

// measurementNode is a column (tag or field) of one measurement.
type measurementNode interface {
	graph.Node
	columnName() string
	partialMeasurement() *Measurement
}

// MeasurementTag is one tag of one measurement.
type MeasurementTag struct {
	graph.Info
	querier     *Querier
	measurement string
	column      string
}

func newMeasurementTag(querier *Querier, datasource, measurement, tag string) *MeasurementTag {
	return &MeasurementTag{
		Info:        graph.NewInfo(datasource, mangleMeasurementAndColumn(measurement, tag), graph.KindString),
		querier:     querier,
		measurement: measurement,
		column:      tag,
	}
}

func (n *MeasurementTag) columnName() string { return n.column }

func (n *MeasurementTag) partialMeasurement() *Measurement {
	return &Measurement{Name: n.measurement, Tags: []string{n.column}}
}

func (n *MeasurementTag) Result() graph.Result {
	return newMeasurementResult(n, n.querier, n.column, n.partialMeasurement())
}

// Field is one field of one measurement, the value leaf.
type Field struct {
	graph.Info
	querier     *Querier
	measurement string
	column      string
}

func newField(querier *Querier, datasource, measurement, field string, kind graph.ValueKind) *Field {
	return &Field{
		Info:        graph.NewInfo(datasource, mangleMeasurementAndColumn(measurement, field), kind),
		querier:     querier,
		measurement: measurement,
		column:      field,
	}
}

func (n *Field) columnName() string { return n.column }

func (n *Field) partialMeasurement() *Measurement {
	return &Measurement{
		Name:       n.measurement,
		FieldTypes: map[string]graph.ValueKind{n.column: n.Kind()},
	}
}

func (n *Field) Result() graph.Result {
	return newMeasurementResult(n, n.querier, n.column, n.partialMeasurement())
}

// constraint splits applicable ancestor constraints into tag and field
// expectations. Rows from the same measurement family are filtered
// against both.
type constraint struct {
	tags   map[string]any
	fields map[string]any
}

func constraintFrom(ancestors graph.Constraints, datasource string) constraint {
	c := constraint{tags: make(map[string]any), fields: make(map[string]any)}
	for _, entry := range ancestors.Sorted() {
		if entry.Node == nil || entry.Node.Datasource() != datasource {
			continue
		}
		switch ancestor := entry.Node.(type) {
		case *Field:
			c.fields[ancestor.columnName()] = entry.Value
		case *MeasurementTag:
			c.tags[ancestor.columnName()] = entry.Value
		case *SharedTag:
			c.tags[ancestor.Tag()] = entry.Value
		}
	}
	return c
}

func (c constraint) tagNames() []string {
	names := make([]string, 0, len(c.tags))
	for tag := range c.tags {
		names = append(names, tag)
	}
	return names
}

// columnMatches reports whether one row cell is consistent with the
// constraint. Unconstrained columns always match; combined rows carry
// lists, which match when any element does.
func (c constraint) columnMatches(key string, value any) bool {
	expected, constrained := c.tags[key]
	if !constrained {
		if expected, constrained = c.fields[key]; !constrained {
			return true
		}
	}

	if list, ok := value.([]any); ok {
		for _, element := range list {
			if element == expected {
				return true
			}
		}
		return false
	}
	return value == expected
}

// filterValues keeps the rows fully consistent with the constraint and
// projects out the named column, flattening combined lists.
func (c constraint) filterValues(column string, rows []map[string]any) []any {
	var out []any
	for _, row := range rows {
		matched := true
		for key, value := range row {
			if !c.columnMatches(key, value) {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}

		switch value := row[column].(type) {
		case []any:
			out = append(out, value...)
		case nil:
		default:
			out = append(out, value)
		}
	}
	return out
}

// combineDistinctRows merges rows whose values for the measurement's
// tags coincide. Differing values of other columns accumulate into
// lists; first-seen order is preserved. This implements distinctness
// over a tag subset, which InfluxDB cannot express server-side.
func combineDistinctRows(m *Measurement, rows []map[string]any) []map[string]any {
	combined := make(map[string]map[string]any)
	var order []string

	for _, row := range rows {
		tuple := make([]string, 0, len(m.Tags))
		for _, tag := range m.Tags {
			tuple = append(tuple, fmt.Sprintf("%v", row[tag]))
		}
		key := strings.Join(tuple, "\x00")

		prev, ok := combined[key]
		if !ok {
			prev = make(map[string]any, len(row))
			combined[key] = prev
			order = append(order, key)
		}

		for column, value := range row {
			existing, ok := prev[column]
			if !ok {
				prev[column] = value
				continue
			}
			if existing == value {
				continue
			}
			if list, isList := existing.([]any); isList {
				found := false
				for _, element := range list {
					if element == value {
						found = true
						break
					}
				}
				if !found {
					prev[column] = append(list, value)
				}
			} else {
				prev[column] = []any{existing, value}
			}
		}
	}

	out := make([]map[string]any, 0, len(order))
	for _, key := range order {
		out = append(out, combined[key])
	}
	return out
}

// measurementResult resolves values of one measurement column, with
// the chain's accumulated columns folded into the measurement slice.
type measurementResult struct {
	node        graph.Node
	querier     *Querier
	column      string
	measurement *Measurement
	memo        *cache.Memory
}

func newMeasurementResult(node graph.Node, querier *Querier, column string, m *Measurement) *measurementResult {
	return &measurementResult{
		node:        node,
		querier:     querier,
		column:      column,
		measurement: m,
		memo:        cache.NewMemory(),
	}
}

func (r *measurementResult) Node() graph.Node { return r.node }

func (r *measurementResult) Join(other graph.Node) (graph.Result, error) {
	if other.Datasource() != r.node.Datasource() {
		return other.Result(), nil
	}

	var otherSlice *Measurement
	var column string
	switch n := other.(type) {
	case *SharedTag:
		// a shared tag joined mid-chain scopes to this chain's
		// measurement; the graph edge guarantees the tag is in it
		otherSlice = &Measurement{Name: r.measurement.Name, Tags: []string{n.Tag()}}
		column = n.Tag()
	case measurementNode:
		otherSlice = n.partialMeasurement()
		column = n.columnName()
	default:
		return other.Result(), nil
	}

	combined, err := r.measurement.Combine(otherSlice)
	if err != nil {
		return nil, err
	}
	return newMeasurementResult(other, r.querier, column, combined), nil
}

func (r *measurementResult) Values(ancestors graph.Constraints) ([]any, error) {
	c := constraintFrom(ancestors, r.node.Datasource())

	scoped, err := r.measurement.Combine(&Measurement{Name: r.measurement.Name, Tags: c.tagNames()})
	if err != nil {
		return nil, err
	}
	for field := range c.fields {
		if _, ok := scoped.FieldTypes[field]; !ok {
			if scoped.FieldTypes == nil {
				scoped.FieldTypes = make(map[string]graph.ValueKind)
			}
			scoped.FieldTypes[field] = graph.KindString
		}
	}

	// the raw rows depend only on the constrained column set, not the
	// constraint values, so they memoize per column set
	scope := strings.Join(scoped.Columns(), "_")
	cached, err := cache.RetrieveOrUpdate(r.memo, r.column, scope, func() (any, error) {
		var rows []map[string]any
		var err error
		if len(scoped.FieldTypes) == 0 {
			rows, err = r.querier.Series(scoped.Tags, scoped.Name)
		} else {
			rows, err = r.querier.RunQuery(scoped.AsQuery())
		}
		if err != nil {
			return nil, err
		}
		return combineDistinctRows(scoped, rows), nil
	})
	if err != nil {
		return nil, err
	}

	values := c.filterValues(r.column, cached.([]map[string]any))
	for i, value := range values {
		values[i] = r.node.Kind().Coerce(value)
	}
	return graph.DedupFirstSeen(values), nil
}

// sharedTagResult resolves tag values across measurements via SHOW
// SERIES, accumulating the chain's shared tags so tuples correlate.
type sharedTagResult struct {
	node *SharedTag
	tags []string
	memo *cache.Memory
}

func (r *sharedTagResult) Node() graph.Node { return r.node }

func (r *sharedTagResult) Join(other graph.Node) (graph.Result, error) {
	if sibling, ok := other.(*SharedTag); ok && sibling.Datasource() == r.node.Datasource() {
		tags := append([]string(nil), r.tags...)
		found := false
		for _, tag := range tags {
			if tag == sibling.Tag() {
				found = true
				break
			}
		}
		if !found {
			tags = append(tags, sibling.Tag())
		}
		return &sharedTagResult{node: sibling, tags: tags, memo: cache.NewMemory()}, nil
	}
	return other.Result(), nil
}

func (r *sharedTagResult) Values(ancestors graph.Constraints) ([]any, error) {
	c := constraintFrom(ancestors, r.node.Datasource())

	tags := append([]string(nil), r.tags...)
	for _, tag := range c.tagNames() {
		found := false
		for _, existing := range tags {
			if existing == tag {
				found = true
				break
			}
		}
		if !found {
			tags = append(tags, tag)
		}
	}

	scope := strings.Join(tags, "_")
	cached, err := cache.RetrieveOrUpdate(r.memo, r.node.Tag(), scope, func() (any, error) {
		rows, err := r.querier().Series(tags, "")
		if err != nil {
			return nil, err
		}
		return rows, nil
	})
	if err != nil {
		return nil, err
	}

	return graph.DedupFirstSeen(c.filterValues(r.node.Tag(), cached.([]map[string]any))), nil
}

func (r *sharedTagResult) querier() *Querier { return r.node.querier }
