package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/elevanaltd/smartsuite-api-shim-sub000/internal/gate"
)

// NewExecuteCommand creates the execute command.
func NewExecuteCommand(rootOpts *RootOptions) *cobra.Command {
	connOpts := &ConnOptions{}

	cmd := &cobra.Command{
		Use:   "execute <request-file>",
		Short: "Execute a previously validated mutation",
		Long: `Execute a mutation request against the remote system.

The request file must state dry_run explicitly. With dry_run true this
behaves like validate; with dry_run false the mutation executes only if
an identical request passed a dry run within the validation window, and
the result is recorded in the audit log.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExecute(rootOpts, connOpts, args[0], cmd)
		},
	}

	AddConnFlags(cmd, connOpts)
	return cmd
}

func runExecute(opts *RootOptions, connOpts *ConnOptions, requestPath string, cmd *cobra.Command) error {
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

	formatter.VerboseLog("executing %s %s/%s", req.Operation, req.ResourceID, req.RecordID)

	result, err := g.Execute(cmd.Context(), *req)
	if err != nil {
		return outputExecuteError(formatter, err)
	}

	if result.Validation != nil {
		// dry_run: true routes through validation.
		return outputValidation(formatter, result.Validation)
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintln(formatter.Writer, "✓ Mutation executed")
	fmt.Fprintf(formatter.Writer, "  audit entry: %s\n", result.AuditEntryID)
	if result.Record != nil {
		data, err := json.MarshalIndent(result.Record, "  ", "  ")
		if err == nil {
			fmt.Fprintf(formatter.Writer, "  record: %s\n", data)
		}
	}
	return nil
}

// outputExecuteError distinguishes protocol violations (exit 1, the
// caller broke the contract) from command errors (exit 2).
func outputExecuteError(formatter *OutputFormatter, err error) error {
	var perr *gate.ProtocolError
	if errors.As(err, &perr) {
		_ = formatter.Error(string(perr.Code), perr.Message, perr.Errors)
		return WrapExitError(ExitFailure, string(perr.Code), err)
	}
	_ = formatter.Error("EXECUTE_FAILED", err.Error(), nil)
	return WrapExitError(ExitCommandError, "execute", err)
}
