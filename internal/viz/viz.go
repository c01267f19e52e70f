// Package viz ties the pieces together: a combined data graph, a
// loaded template with its binding tree, the transformation registry,
// and the output tree the explosion passes reconcile.
package viz

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/roach88/vizgraph/internal/binding"
	"github.com/roach88/vizgraph/internal/datasource"
	"github.com/roach88/vizgraph/internal/explode"
	"github.com/roach88/vizgraph/internal/graph"
	"github.com/roach88/vizgraph/internal/template"
	"github.com/roach88/vizgraph/internal/transform"
	"github.com/roach88/vizgraph/internal/tree"
)

// Visualization updates an output tree from the data graph on every
// call to Update. One Visualization must not be updated concurrently;
// result memoization is per pass and unsynchronized.
type Visualization struct {
	graph      *graph.Graph
	bindings   *binding.Tree
	transforms *transform.Registry
	output     *tree.Node
	logger     *slog.Logger
}

// New builds a visualization over an already combined data graph and a
// loaded template. A nil logger falls back to slog's default.
func New(g *graph.Graph, root *template.Element, bindings *binding.Tree, logger *slog.Logger) *Visualization {
	if logger == nil {
		logger = slog.Default()
	}
	return &Visualization{
		graph:      g,
		bindings:   bindings,
		transforms: transform.NewRegistry(),
		output:     tree.FromTemplate(root),
		logger:     logger,
	}
}

// FromFiles loads the datasource configuration and the template file
// and builds the visualization from them.
func FromFiles(datasourceFile, templateFile string, logger *slog.Logger) (*Visualization, error) {
	g, err := datasource.FromFile(datasourceFile, logger)
	if err != nil {
		return nil, err
	}
	root, bindings, err := template.Load(templateFile)
	if err != nil {
		return nil, err
	}
	return New(g, root, bindings, logger), nil
}

// AddTransformation registers an attribute pipeline function. A name
// that is already registered is an error.
func (v *Visualization) AddTransformation(name string, fn transform.Func) error {
	return v.transforms.Register(name, fn)
}

// Graph returns the combined data graph.
func (v *Visualization) Graph() *graph.Graph { return v.graph }

// Tree returns the output tree. The returned node stays valid across
// updates; Update mutates it in place.
func (v *Visualization) Tree() *tree.Node { return v.output }

// Update runs one explosion pass: it resolves every data path the
// binding tree references into a fresh result graph, explodes the
// bindings under the given external constraints, and reconciles the
// output tree to the emitted instances. Constraint keys are node
// names, either "datasource:name" or a bare name unique across
// datasources.
func (v *Visualization) Update(constraints map[string]string) error {
	token := uuid.Must(uuid.NewV7()).String()
	logger := v.logger.With("pass", token)

	ancestors := graph.Constraints{}
	for name, value := range constraints {
		node, err := v.graph.FindSegment(name)
		if err != nil {
			return err
		}
		ancestors.Set(node, value)
	}

	// A fresh result graph per pass: memoized query values live only as
	// long as the pass, so the next update sees live data again.
	results, err := graph.FromPaths(v.graph, v.bindings.WalkDataPaths())
	if err != nil {
		return err
	}

	logger.Info("exploding template")
	engine := explode.New(v.transforms, logger)
	instances, err := engine.Explode(v.bindings, results, v.graph, ancestors)
	if err != nil {
		return err
	}

	if err := v.output.Reconcile(instances); err != nil {
		return err
	}
	logger.Info("update pass complete", "instances", len(instances))
	return nil
}
