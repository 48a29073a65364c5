package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	connOpts := &ConnOptions{}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify audit log integrity hashes",
		Long: `Recompute every audit entry's integrity hash and compare it
against the stored value. A mismatch means the log was edited after the
entry was written.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(rootOpts, connOpts, cmd)
		},
	}

	cmd.Flags().StringVar(&connOpts.AuditLog, "audit-log", "", "audit log path (or "+EnvAuditLog+")")
	return cmd
}

func runVerify(opts *RootOptions, connOpts *ConnOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	led, err := openLedger(connOpts)
	if err != nil {
		_ = formatter.Error("SETUP_FAILED", err.Error(), nil)
		return err
	}

	mismatches, err := led.Verify()
	if err != nil {
		_ = formatter.Error("VERIFY_FAILED", err.Error(), nil)
		return WrapExitError(ExitCommandError, "verify audit log", err)
	}

	if len(mismatches) == 0 {
		if formatter.Format == "json" {
			return formatter.Success(map[string]any{"intact": true})
		}
		fmt.Fprintln(formatter.Writer, "✓ Audit log intact")
		return nil
	}

	if formatter.Format == "json" {
		_ = formatter.Error("LEDGER_TAMPERED",
			fmt.Sprintf("%d entries failed integrity verification", len(mismatches)),
			mismatches)
	} else {
		fmt.Fprintln(formatter.Writer, "✗ Audit log TAMPERED")
		for _, m := range mismatches {
			fmt.Fprintf(formatter.Writer, "  entry %s: stored %s, computed %s\n",
				m.EntryID, m.Stored, m.Computed)
		}
	}
	return NewExitError(ExitFailure,
		fmt.Sprintf("%d entries failed integrity verification", len(mismatches)))
}
