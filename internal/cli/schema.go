package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/elevanaltd/smartsuite-api-shim-sub000/internal/schemapin"
)

// NewSchemaCommand creates the schema command group.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Work with pinned resource schemas",
	}
	cmd.AddCommand(newSchemaLintCommand(rootOpts))
	return cmd
}

func newSchemaLintCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lint <schemas-dir>",
		Short: "Check pinned schema CUE files",
		Long: `Compile every pinned schema under the directory and report all
problems: missing names, unknown field types, reserved slugs.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchemaLint(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runSchemaLint(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	resources, errs := schemapin.LoadDir(dir, schemapin.LoadModeCollectAll)
	for id, res := range resources {
		formatter.VerboseLog("compiled %s (%d fields)", id, len(res.Fields))
	}

	if len(errs) == 0 {
		if formatter.Format == "json" {
			return formatter.Success(map[string]any{
				"valid":     true,
				"resources": len(resources),
			})
		}
		fmt.Fprintf(formatter.Writer, "✓ %d pinned schema(s) valid\n", len(resources))
		return nil
	}

	if formatter.Format == "json" {
		messages := make([]string, len(errs))
		for i, err := range errs {
			messages[i] = err.Error()
		}
		_ = formatter.Error("SCHEMA_INVALID",
			fmt.Sprintf("%d schema error(s)", len(errs)), messages)
	} else {
		fmt.Fprintln(formatter.Writer, "✗ Schema lint failed")
		for _, err := range errs {
			fmt.Fprintf(formatter.Writer, "  %v\n", err)
		}
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%d schema error(s)", len(errs)))
}
