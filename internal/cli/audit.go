package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/elevanaltd/smartsuite-api-shim-sub000/internal/ledger"
)

// NewAuditCommand creates the audit command.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	connOpts := &ConnOptions{}
	var tail int

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List audit log entries",
		Long: `List the entries of the shared audit log, oldest first.

Reads are lock-free: a concurrent append is either fully visible or not
yet visible, never torn.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(rootOpts, connOpts, tail, cmd)
		},
	}

	cmd.Flags().StringVar(&connOpts.AuditLog, "audit-log", "", "audit log path (or "+EnvAuditLog+")")
	cmd.Flags().IntVarP(&tail, "tail", "n", 0, "show only the last N entries")
	return cmd
}

func runAudit(opts *RootOptions, connOpts *ConnOptions, tail int, cmd *cobra.Command) error {
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

	entries, err := led.Entries()
	if err != nil {
		_ = formatter.Error("AUDIT_READ_FAILED", err.Error(), nil)
		return WrapExitError(ExitCommandError, "read audit log", err)
	}
	if tail > 0 && len(entries) > tail {
		entries = entries[len(entries)-tail:]
	}

	if formatter.Format == "json" {
		return formatter.Success(entries)
	}

	if len(entries) == 0 {
		fmt.Fprintln(formatter.Writer, "audit log is empty")
		return nil
	}
	for _, e := range entries {
		printEntry(formatter, e)
	}
	fmt.Fprintf(formatter.Writer, "%d entr%s\n", len(entries), plural(len(entries), "y", "ies"))
	return nil
}

func printEntry(formatter *OutputFormatter, e ledger.AuditEntry) {
	w := formatter.Writer
	fmt.Fprintf(w, "%s  %-6s  %s/%s  (%s)\n",
		e.Timestamp.Format("2006-01-02 15:04:05"),
		e.Operation, e.ResourceID, e.RecordID, e.ID)
	if formatter.Verbose {
		fmt.Fprintf(w, "    reversal: %s %s/%s\n",
			e.Reversal.Operation, e.Reversal.ResourceID, e.Reversal.RecordID)
	}
}

func plural(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}
