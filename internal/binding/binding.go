// Package binding connects template elements to data paths: which data
// node an element multiplies over, which attribute values it pulls, and
// which filter and limit prune its instances.
package binding

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/roach88/vizgraph/internal/lang"
	"github.com/roach88/vizgraph/internal/path"
	"github.com/roach88/vizgraph/internal/transform"
)

// Error reports a binding whose declared data could not be applied.
type Error struct {
	Binding string
	Reason  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("binding %q: %s", e.Binding, e.Reason)
}

// IsBindingError reports whether err is a binding Error.
func IsBindingError(err error) bool {
	var be *Error
	return errors.As(err, &be)
}

// AttributeBinding maps one element attribute to the value expressions
// that produce its text. An attribute with several expressions gets
// their formatted fragments concatenated in order.
type AttributeBinding struct {
	Attribute string
	Exprs     []*lang.ValueExpr
}

// DataPaths returns the data path of each expression, in order.
func (b *AttributeBinding) DataPaths() []path.Path {
	paths := make([]path.Path, len(b.Exprs))
	for i, expr := range b.Exprs {
		paths[i] = expr.Path
	}
	return paths
}

// ApplyDefault returns the formatted default of expression i. Querying
// an expression with no declared default is an Error; callers use that
// to drop the candidate instead of rendering an empty fragment.
func (b *AttributeBinding) ApplyDefault(i int) (string, error) {
	value, ok := b.Exprs[i].DefaultValue()
	if !ok {
		return "", &Error{
			Binding: b.Attribute,
			Reason:  fmt.Sprintf("no value at %s and no default to fall back on", b.Exprs[i].Path),
		}
	}
	return value, nil
}

// ApplyPipeline runs the values through expression i's transformation
// pipeline and formats the single remaining value. A pipeline that
// leaves anything other than one value is a transformation error.
func (b *AttributeBinding) ApplyPipeline(i int, values []any, registry *transform.Registry) (string, error) {
	expr := b.Exprs[i]
	for _, name := range expr.Pipeline {
		fn, err := registry.Lookup(name)
		if err != nil {
			return "", err
		}
		values, err = fn(values...)
		if err != nil {
			return "", err
		}
	}

	if len(values) != 1 {
		return "", &transform.Error{
			Transformation: fmt.Sprintf("pipeline of %s=%s", b.Attribute, expr.Path),
			Reason:         fmt.Sprintf("left %d values instead of one", len(values)),
		}
	}
	return expr.Format(formatValue(values[0])), nil
}

// Combine concatenates per-expression fragments into the final
// attribute text.
func (b *AttributeBinding) Combine(fragments []string) string {
	var out string
	for _, fragment := range fragments {
		out += fragment
	}
	return out
}

// formatValue renders an attribute value as text. Floats round to two
// decimals; floats that are whole numbers drop the decimal part
// entirely.
func formatValue(v any) string {
	switch f := v.(type) {
	case float64:
		return formatFloat(f)
	case float32:
		return formatFloat(float64(f))
	default:
		return fmt.Sprintf("%v", v)
	}
}

func formatFloat(f float64) string {
	rounded := float64(int64(f*100+sign(f)*0.5)) / 100
	if rounded == float64(int64(rounded)) {
		return strconv.FormatInt(int64(rounded), 10)
	}
	return strconv.FormatFloat(rounded, 'f', -1, 64)
}

func sign(f float64) float64 {
	if f < 0 {
		return -1
	}
	return 1
}

// Binding ties a template element to the data node it multiplies over,
// the attributes it fills, and an optional filter and instance limit.
type Binding struct {
	TemplatePath path.Path
	Bind         *lang.BindExpr
	Attributes   []*AttributeBinding
	Filter       *lang.FilterExpr

	// Limit caps the number of instances; zero means unlimited.
	Limit int
}

// DataPath returns the data node path the element multiplies over.
func (b *Binding) DataPath() path.Path {
	return b.Bind.Path
}

// KeepWhenFilteredOut reports whether the element should survive as a
// single placeholder instance when filtering discards every value.
func (b *Binding) KeepWhenFilteredOut() bool {
	return b.Bind.KeepWhenFilteredOut
}

// MatchesNull reports whether the binding's filter treats the absence
// of a value as a match.
func (b *Binding) MatchesNull() bool {
	return b.Filter != nil && b.Filter.MatchesNull
}

func (b *Binding) String() string {
	return fmt.Sprintf("%s -> %s", b.TemplatePath, b.DataPath())
}
