package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/vizgraph/internal/datasource"
	"github.com/roach88/vizgraph/internal/template"
)

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric    = "E001" // Generic/unknown error
	ErrCodeDatasource = "E002" // Datasource configuration failed to load
	ErrCodeTemplate   = "E003" // Template failed to load
	ErrCodeResolve    = "E004" // Data path does not resolve against the graph
	ErrCodeRender     = "E005" // Update pass failed
)

// ValidationError is one validation finding.
type ValidationError struct {
	Stage   string `json:"stage"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <datasources.yaml> <template.cue>",
		Short: "Validate a datasource configuration and template together",
		Long: `Validate a datasource configuration and a template without querying
any backend.

Loads both files, builds the combined data graph, and checks that every
data path the template binds resolves to a walk through the graph.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], args[1], cmd)
		},
	}
}

func runValidate(opts *RootOptions, datasourceFile, templateFile string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	g, err := datasource.FromFile(datasourceFile, slog.Default())
	if err != nil {
		return outputValidationErrors(formatter, []ValidationError{{
			Stage:   "datasources",
			Code:    ErrCodeDatasource,
			Message: err.Error(),
		}})
	}
	formatter.VerboseLog("Built data graph with %d node(s)", len(g.Nodes()))

	_, bindings, err := template.Load(templateFile)
	if err != nil {
		return outputValidationErrors(formatter, []ValidationError{{
			Stage:   "template",
			Code:    ErrCodeTemplate,
			Message: err.Error(),
		}})
	}

	var errs []ValidationError
	seen := map[string]bool{}
	for _, p := range bindings.WalkDataPaths() {
		if seen[p.String()] {
			continue
		}
		seen[p.String()] = true

		formatter.VerboseLog("Resolving %s", p)
		if _, err := g.ResolveShortestPath(p); err != nil {
			errs = append(errs, ValidationError{
				Stage:   "resolve",
				Code:    ErrCodeResolve,
				Message: err.Error(),
			})
		}
	}

	if len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}
	return outputValidateSuccess(formatter)
}

func outputValidateSuccess(formatter *OutputFormatter) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true})
	}
	fmt.Fprintln(formatter.Writer, "✓ Datasources and template valid")
	return nil
}

func outputValidationErrors(formatter *OutputFormatter, errs []ValidationError) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error:  &CLIError{Code: errs[0].Code, Message: errs[0].Message},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		fmt.Fprintf(formatter.Writer, "  [%s] %s: %s\n", err.Stage, err.Code, err.Message)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
