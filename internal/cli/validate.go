package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/elevanaltd/smartsuite-api-shim-sub000/internal/gate"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	connOpts := &ConnOptions{}

	cmd := &cobra.Command{
		Use:   "validate <request-file>",
		Short: "Dry-run a mutation without executing it",
		Long: `Validate a mutation request against the remote system.

Runs the connectivity and schema checks and records the outcome. A
passing validation admits one execution of the identical request within
the validation window.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, connOpts, args[0], cmd)
		},
	}

	AddConnFlags(cmd, connOpts)
	return cmd
}

func runValidate(opts *RootOptions, connOpts *ConnOptions, requestPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	req, err := LoadRequest(requestPath)
	if err != nil {
		_ = formatter.Error("REQUEST_INVALID", err.Error(), nil)
		return WrapExitError(ExitCommandError, "load request", err)
	}

	g, cleanup, err := buildGate(connOpts)
	if err != nil {
		_ = formatter.Error("SETUP_FAILED", err.Error(), nil)
		return err
	}
	defer cleanup()

	formatter.VerboseLog("validating %s %s/%s", req.Operation, req.ResourceID, req.RecordID)

	result, err := g.Validate(cmd.Context(), *req)
	if err != nil {
		_ = formatter.Error("VALIDATE_FAILED", err.Error(), nil)
		return WrapExitError(ExitCommandError, "validate", err)
	}

	return outputValidation(formatter, result)
}

// outputValidation renders a ValidationResult in either format. A
// failed validation exits 1: scripts chain "validate && execute".
func outputValidation(formatter *OutputFormatter, result *gate.ValidationResult) error {
	if formatter.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		printValidationText(formatter, result)
	}

	if !result.Passed {
		return NewExitError(ExitFailure,
			fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
	}
	return nil
}

func printValidationText(formatter *OutputFormatter, result *gate.ValidationResult) {
	w := formatter.Writer
	if result.Passed {
		fmt.Fprintln(w, "✓ Validation passed")
	} else {
		fmt.Fprintln(w, "✗ Validation failed")
	}
	fmt.Fprintf(w, "  connectivity: %s\n", result.Checks.Connectivity)
	fmt.Fprintf(w, "  schema:       %s\n", result.Checks.Schema)

	if len(result.Errors) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Errors:")
		for _, e := range result.Errors {
			fmt.Fprintf(w, "  - %s\n", e)
		}
	}
	if len(result.Warnings) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Warnings:")
		for _, warning := range result.Warnings {
			fmt.Fprintf(w, "  - %s\n", warning)
		}
	}
}
