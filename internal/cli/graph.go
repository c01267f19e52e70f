package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/vizgraph/internal/datasource"
	"github.com/roach88/vizgraph/internal/graph"
)

// NodeReport describes one data graph node and its outgoing edges.
type NodeReport struct {
	Name       string   `json:"name"`
	Kind       string   `json:"kind"`
	Successors []string `json:"successors,omitempty"`
	Adaptors   []string `json:"adaptors,omitempty"`
}

// GraphReport is the full graph listing.
type GraphReport struct {
	Nodes []NodeReport `json:"nodes"`
}

// GraphOptions holds flags for the graph command.
type GraphOptions struct {
	DOT bool
}

// NewGraphCommand creates the graph command.
func NewGraphCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GraphOptions{}

	cmd := &cobra.Command{
		Use:   "graph <datasources.yaml>",
		Short: "Print the combined data graph",
		Long: `Build the combined data graph from a datasource configuration and
print every node with its refinement edges and join adaptors.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(rootOpts, opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.DOT, "dot", false, "emit Graphviz DOT instead of the listing")

	return cmd
}

func runGraph(rootOpts *RootOptions, opts *GraphOptions, datasourceFile string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    rootOpts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   rootOpts.Verbose,
	}

	g, err := datasource.FromFile(datasourceFile, slog.Default())
	if err != nil {
		_ = formatter.Error(ErrCodeDatasource, err.Error(), nil)
		return WrapExitError(ExitCommandError, "loading datasources", err)
	}

	report := buildGraphReport(g)
	if opts.DOT {
		writeDOT(formatter.Writer, report)
		return nil
	}
	if formatter.Format == "json" {
		return formatter.Success(report)
	}

	for _, node := range report.Nodes {
		fmt.Fprintf(formatter.Writer, "%s (%s)\n", node.Name, node.Kind)
		for _, succ := range node.Successors {
			marker := ""
			if contains(node.Adaptors, succ) {
				marker = " [join]"
			}
			fmt.Fprintf(formatter.Writer, "  -> %s%s\n", succ, marker)
		}
	}
	return nil
}

func buildGraphReport(g *graph.Graph) GraphReport {
	report := GraphReport{}
	for _, node := range g.Nodes() {
		entry := NodeReport{
			Name: node.Mangled(),
			Kind: string(node.Kind()),
		}
		for _, succ := range g.Successors(node) {
			entry.Successors = append(entry.Successors, succ.Mangled())
			if g.HasAdaptor(node, succ) {
				entry.Adaptors = append(entry.Adaptors, succ.Mangled())
			}
		}
		report.Nodes = append(report.Nodes, entry)
	}
	return report
}

// writeDOT emits the graph as a Graphviz digraph. Node identities carry
// a ':' between datasource and name, so every identifier is quoted;
// join edges are dashed and labeled.
func writeDOT(w io.Writer, report GraphReport) {
	fmt.Fprintln(w, "digraph datagraph {")
	fmt.Fprintln(w, "  rankdir=LR;")
	for _, node := range report.Nodes {
		fmt.Fprintf(w, "  %q [label=\"%s\\n(%s)\"];\n", node.Name, node.Name, node.Kind)
	}
	for _, node := range report.Nodes {
		for _, succ := range node.Successors {
			if contains(node.Adaptors, succ) {
				fmt.Fprintf(w, "  %q -> %q [style=dashed, label=\"join\"];\n", node.Name, succ)
				continue
			}
			fmt.Fprintf(w, "  %q -> %q;\n", node.Name, succ)
		}
	}
	fmt.Fprintln(w, "}")
}

func contains(names []string, name string) bool {
	for _, candidate := range names {
		if candidate == name {
			return true
		}
	}
	return false
}
