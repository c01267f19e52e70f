// Package influx exposes an InfluxDB v1 database as a datasource.
//
// InfluxDB separates tags from fields and has no JOINs, so this
// backend cannot fold a result chain into one query the way the sqlite
// backend does. Tag-only chains go through SHOW SERIES with the tag
// tuples deduplicated here; chains ending in a field SELECT the last
// field values grouped by every tag and filter rows client-side.
//
// Each measurement tag also gets an unprefixed shared-tag dimension,
// so fields across measurements can be selected under one node
// (.host.cpu_usage and .host.mem_usage instead of two host spellings).
package influx

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/vizgraph/internal/graph"
)

func mangleMeasurementAndColumn(measurement, column string) string {
	// not using a dot because paths separate on dots
	return measurement + "_" + column
}

// NodeNameFromIdentifier maps a join identifier onto a node name:
// "measurement.column" for measurement columns, a bare tag name for
// shared tags.
func NodeNameFromIdentifier(identifier string) string {
	measurement, column, ok := strings.Cut(identifier, ".")
	if !ok {
		return identifier
	}
	return mangleMeasurementAndColumn(measurement, column)
}

// Measurement is a slice of one database measurement: a subset of its
// tags and fields. Result chains accumulate columns by combining
// partial measurements.
type Measurement struct {
	Name       string
	Tags       []string
	FieldTypes map[string]graph.ValueKind
}

// HasTag reports whether the tag is part of this slice.
func (m *Measurement) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Fields returns the field names in sorted order.
func (m *Measurement) Fields() []string {
	fields := make([]string, 0, len(m.FieldTypes))
	for field := range m.FieldTypes {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

// Columns returns every tag and field name, sorted.
func (m *Measurement) Columns() []string {
	columns := append([]string(nil), m.Tags...)
	columns = append(columns, m.Fields()...)
	sort.Strings(columns)
	return columns
}

// Combine unions the tags and fields of two slices of the same
// measurement.
func (m *Measurement) Combine(other *Measurement) (*Measurement, error) {
	if m.Name != other.Name {
		return nil, fmt.Errorf("cannot combine measurements %s and %s", m.Name, other.Name)
	}

	combined := &Measurement{Name: m.Name, FieldTypes: make(map[string]graph.ValueKind)}
	for _, tag := range m.Tags {
		combined.Tags = append(combined.Tags, tag)
	}
	for _, tag := range other.Tags {
		if !combined.HasTag(tag) {
			combined.Tags = append(combined.Tags, tag)
		}
	}
	for field, kind := range m.FieldTypes {
		combined.FieldTypes[field] = kind
	}
	for field, kind := range other.FieldTypes {
		combined.FieldTypes[field] = kind
	}
	return combined, nil
}

// AsQuery renders a SELECT of the slice's last field values. GROUP BY *
// keeps every series separate; last() without it would collapse them
// to one. The aliases keep result columns addressable by field name.
// Tag-only slices cannot use SELECT at all; see Querier.Series.
func (m *Measurement) AsQuery() string {
	fields := m.Fields()
	selectors := make([]string, 0, len(fields))
	for _, field := range fields {
		selectors = append(selectors, fmt.Sprintf("last(%s) AS %s", field, field))
	}
	return fmt.Sprintf("SELECT %s FROM %s GROUP BY *", strings.Join(selectors, ", "), m.Name)
}

// parseSeriesKey splits a SHOW SERIES key of the form
// 'measurement,tag=value,tag="quoted value",...'.
func parseSeriesKey(key string) (string, map[string]string) {
	measurement, rest, _ := strings.Cut(key, ",")

	tagValues := make(map[string]string)
	for rest != "" {
		tag, remainder, ok := strings.Cut(rest, "=")
		if !ok {
			break
		}

		var value string
		if strings.HasPrefix(remainder, `"`) {
			end := strings.Index(remainder[1:], `"`)
			if end < 0 {
				value, rest = remainder[1:], ""
			} else {
				value = remainder[1 : end+1]
				rest = strings.TrimPrefix(remainder[end+2:], ",")
			}
		} else {
			value, rest, _ = strings.Cut(remainder, ",")
		}
		tagValues[tag] = value
	}
	return measurement, tagValues
}
