// Package explode multiplies templated elements into concrete output
// instances, one per data value, walking the binding tree depth-first
// so parents constrain the queries of their children.
package explode

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/vizgraph/internal/binding"
	"github.com/roach88/vizgraph/internal/graph"
	"github.com/roach88/vizgraph/internal/path"
	"github.com/roach88/vizgraph/internal/transform"
)

// Instance is one exploded element: a concrete output tree path plus
// the attribute values resolved for it. Instances are emitted parent
// before child, in data value order.
type Instance struct {
	Binding *binding.Binding
	Path    path.Path
	Attrs   map[string]string
}

// Engine explodes binding trees against resolved data. It carries the
// transformation registry attribute pipelines are resolved in.
type Engine struct {
	transforms *transform.Registry
	logger     *slog.Logger
}

// New returns an engine using the given registry. A nil logger falls
// back to slog's default.
func New(transforms *transform.Registry, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{transforms: transforms, logger: logger}
}

// Explode walks tree and returns the exploded instances. Each binding's
// values are queried under the constraints accumulated from its already
// resolved ancestors (plus any caller-supplied ones), its filter and
// limit applied, and its attributes resolved. A candidate value whose
// attributes cannot be resolved is dropped rather than rendered
// half-filled; structural failures such as unresolvable paths abort the
// walk.
func (e *Engine) Explode(tree *binding.Tree, results *graph.ResultGraph, g *graph.Graph, constraints graph.Constraints) ([]Instance, error) {
	if constraints == nil {
		constraints = graph.Constraints{}
	}
	w := &walker{engine: e, graph: g, results: results}
	if err := w.walk(tree, path.Path{}, constraints); err != nil {
		return nil, err
	}
	return w.out, nil
}

type walker struct {
	engine  *Engine
	graph   *graph.Graph
	results *graph.ResultGraph
	out     []Instance
}

func (w *walker) walk(node *binding.Tree, parentResolved path.Path, ancestors graph.Constraints) error {
	var parentTemplate path.Path
	if !node.IsRoot() {
		parentTemplate = node.Binding().TemplatePath
	}

	for _, child := range node.Children() {
		b := child.Binding()

		intermediate := b.TemplatePath.WithoutCommonAncestor(parentTemplate)
		if intermediate.Empty() {
			return &binding.Error{
				Binding: b.String(),
				Reason:  fmt.Sprintf("template path is not below its parent %s", parentTemplate),
			}
		}

		result, err := w.results.Result(b.DataPath())
		if err != nil {
			return err
		}
		values, err := queryValues(b, result, ancestors)
		if err != nil {
			return err
		}
		w.engine.logger.Debug("exploding binding",
			"binding", b.String(), "values", len(values))

		// Instance names carry a per-value counter, reset per binding
		// pass, so repeated values stay distinct.
		seen := map[string]int{}

		anyKept := false
		for _, value := range values {
			kept, err := w.applyValue(child, b, result.Node(), value, parentResolved, intermediate, seen, ancestors)
			if err != nil {
				return err
			}
			anyKept = anyKept || kept
		}

		if !anyKept && b.KeepWhenFilteredOut() {
			w.engine.logger.Debug("keeping filtered-out binding as placeholder", "binding", b.String())
			if _, err := w.applyValue(child, b, result.Node(), nil, parentResolved, intermediate, seen, ancestors); err != nil {
				return err
			}
		}
	}
	return nil
}

// applyValue resolves one candidate value into an instance, returning
// whether it was kept. A nil value is the null pass: the filter is
// skipped and every attribute must supply a default.
func (w *walker) applyValue(node *binding.Tree, b *binding.Binding, dataNode graph.Node,
	value any, parentResolved, intermediate path.Path,
	seen map[string]int, ancestors graph.Constraints) (bool, error) {

	nullPass := value == nil

	extended := ancestors.Clone()
	if !nullPass {
		extended.Set(dataNode, value)
		for _, adaptor := range w.graph.AdaptorsFrom(dataNode) {
			target, err := adaptor.AdaptNode(dataNode)
			if err != nil {
				return false, err
			}
			extended.Set(target, adaptor.AdaptValue(value))
		}
	}

	filteredOut, err := w.filteredOut(b, extended, nullPass)
	if err != nil {
		return false, err
	}
	if filteredOut {
		w.engine.logger.Debug("value filtered out", "node", dataNode.Mangled(), "value", value)
		return false, nil
	}

	attrs, ok, err := w.attributeValues(b, extended, nullPass)
	if err != nil {
		return false, err
	}
	if !ok {
		w.engine.logger.Debug("value dropped, attributes unresolvable",
			"node", dataNode.Mangled(), "value", value)
		return false, nil
	}

	resolved := resolveInstancePath(parentResolved, intermediate, value, seen)
	w.out = append(w.out, Instance{Binding: b, Path: resolved, Attrs: attrs})

	return true, w.walk(node, resolved, extended)
}

func queryValues(b *binding.Binding, result graph.Result, ancestors graph.Constraints) ([]any, error) {
	values, err := result.Values(ancestors)
	if err != nil {
		return nil, err
	}

	// A matches-null binding inverts presence: it explodes into a
	// single null instance exactly when the query comes back empty.
	if b.MatchesNull() {
		if len(values) == 0 {
			return []any{nil}, nil
		}
		return nil, nil
	}

	if b.Limit > 0 && len(values) > b.Limit {
		values = values[:b.Limit]
	}
	return values, nil
}

func (w *walker) filteredOut(b *binding.Binding, ancestors graph.Constraints, nullPass bool) (bool, error) {
	if b.Filter == nil || nullPass {
		return false, nil
	}

	result, err := w.results.Result(b.Filter.Path)
	if err != nil {
		return false, err
	}
	values, err := result.Values(ancestors)
	if err != nil {
		return false, err
	}

	if len(values) == 0 {
		return !b.Filter.ShouldKeepNull(), nil
	}
	for _, value := range values {
		if b.Filter.ShouldKeep(fmt.Sprintf("%v", value)) {
			return false, nil
		}
	}
	return true, nil
}

// attributeValues resolves every attribute binding under the extended
// constraints. Value-level failures (no value and no default, a
// pipeline that cannot digest the values) report ok=false so the caller
// drops the candidate; everything else is returned as a hard error.
func (w *walker) attributeValues(b *binding.Binding, ancestors graph.Constraints, nullPass bool) (map[string]string, bool, error) {
	attrs := map[string]string{}
	for _, attr := range b.Attributes {
		fragments := make([]string, 0, len(attr.Exprs))
		for i, expr := range attr.Exprs {
			fragment, err := w.attributeFragment(attr, i, expr.Path, ancestors, nullPass)
			if err != nil {
				if binding.IsBindingError(err) || transform.IsTransformError(err) {
					w.engine.logger.Debug("attribute unresolvable",
						"attribute", attr.Attribute, "path", expr.Path.String(), "error", err)
					return nil, false, nil
				}
				return nil, false, err
			}
			fragments = append(fragments, fragment)
		}
		attrs[attr.Attribute] = attr.Combine(fragments)
	}
	return attrs, true, nil
}

func (w *walker) attributeFragment(attr *binding.AttributeBinding, i int, dataPath path.Path,
	ancestors graph.Constraints, nullPass bool) (string, error) {

	if nullPass {
		return attr.ApplyDefault(i)
	}

	result, err := w.results.Result(dataPath)
	if err != nil {
		return "", err
	}
	values, err := result.Values(ancestors)
	if err != nil {
		return "", err
	}
	if len(values) == 0 {
		return attr.ApplyDefault(i)
	}
	return attr.ApplyPipeline(i, values, w.engine.transforms)
}

// resolveInstancePath names the instance under its parent. Unbound
// intermediate template elements pass through unchanged; the bound leaf
// gets "<template>_<sanitized value>_<n>" where n counts prior
// occurrences of the same sanitized value within this binding pass.
func resolveInstancePath(parentResolved, intermediate path.Path, value any, seen map[string]int) path.Path {
	part := SanitizeValue(value)
	seen[part]++
	leaf := intermediate.Last() + "_" + part + "_" + strconv.Itoa(seen[part])
	return parentResolved.Join(intermediate.WithoutLast()).Append(leaf)
}

var valueSanitizer = strings.NewReplacer(
	".", "_",
	" ", "__",
	":", "_port_",
)

// SanitizeValue renders a data value as a path part. Values are NFC
// normalized first so visually identical names sanitize identically.
// A nil value sanitizes to "null".
func SanitizeValue(value any) string {
	if value == nil {
		return "null"
	}
	return valueSanitizer.Replace(norm.NFC.String(fmt.Sprintf("%v", value)))
}
