package cli

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/vizgraph/internal/viz"
)

// RenderOptions holds flags for the render command.
type RenderOptions struct {
	Constraints []string
	Watch       int
}

// NewRenderCommand creates the render command.
func NewRenderCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RenderOptions{}

	cmd := &cobra.Command{
		Use:   "render <datasources.yaml> <template.cue>",
		Short: "Run one update pass and print the output tree",
		Long: `Build the visualization from a datasource configuration and a
template, run a single update pass against the live backends, and print
the resulting output tree.

Constraints pin a dimension to a value for the whole pass, e.g.
--constraint racks:rack=r1.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(rootOpts, opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Constraints, "constraint", "c", nil, "pin a node to a value (name=value, repeatable)")
	cmd.Flags().IntVarP(&opts.Watch, "watch", "w", 0, "re-run a pass every n seconds until interrupted")

	return cmd
}

// RenderResult is the JSON payload of a render pass.
type RenderResult struct {
	Tree string `json:"tree"`
}

func runRender(rootOpts *RootOptions, opts *RenderOptions, datasourceFile, templateFile string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    rootOpts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   rootOpts.Verbose,
	}

	constraints, err := parseConstraints(opts.Constraints)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "parsing constraints", err)
	}

	v, err := viz.FromFiles(datasourceFile, templateFile, slog.Default())
	if err != nil {
		_ = formatter.Error(ErrCodeDatasource, err.Error(), nil)
		return WrapExitError(ExitCommandError, "loading visualization", err)
	}

	for {
		if err := v.Update(constraints); err != nil {
			_ = formatter.Error(ErrCodeRender, err.Error(), nil)
			return WrapExitError(ExitFailure, "update pass", err)
		}

		rendered := v.Tree().Render()
		if formatter.Format == "json" {
			if err := formatter.Success(RenderResult{Tree: rendered}); err != nil {
				return err
			}
		} else {
			fmt.Fprint(formatter.Writer, rendered)
		}

		if opts.Watch <= 0 {
			return nil
		}
		select {
		case <-cmd.Context().Done():
			return nil
		case <-time.After(time.Duration(opts.Watch) * time.Second):
		}
	}
}

func parseConstraints(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	constraints := make(map[string]string, len(raw))
	for _, entry := range raw {
		name, value, ok := strings.Cut(entry, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("constraint %q is not name=value", entry)
		}
		constraints[name] = value
	}
	return constraints, nil
}
