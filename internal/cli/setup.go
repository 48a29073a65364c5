package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/elevanaltd/smartsuite-api-shim-sub000/internal/executor"
	"github.com/elevanaltd/smartsuite-api-shim-sub000/internal/gate"
	"github.com/elevanaltd/smartsuite-api-shim-sub000/internal/ledger"
	"github.com/elevanaltd/smartsuite-api-shim-sub000/internal/schemapin"
)

// Environment variable fallbacks for connection flags.
const (
	EnvBaseURL      = "SMARTSUITE_BASE_URL"
	EnvAPIKey       = "SMARTSUITE_API_KEY"
	EnvAuditLog     = "SMARTSUITE_AUDIT_LOG"
	EnvValidationDB = "SMARTSUITE_VALIDATION_DB"
	EnvSchemasDir   = "SMARTSUITE_SCHEMAS"
)

// ConnOptions holds the flags shared by validate and execute.
type ConnOptions struct {
	BaseURL      string
	Token        string
	AuditLog     string
	ValidationDB string
	SchemasDir   string
}

// AddConnFlags registers the shared connection flags on cmd.
func AddConnFlags(cmd *cobra.Command, opts *ConnOptions) {
	cmd.Flags().StringVar(&opts.BaseURL, "base-url", "", "remote API base URL (or "+EnvBaseURL+")")
	cmd.Flags().StringVar(&opts.Token, "token", "", "remote API token (or "+EnvAPIKey+")")
	cmd.Flags().StringVar(&opts.AuditLog, "audit-log", "", "audit log path (or "+EnvAuditLog+")")
	cmd.Flags().StringVar(&opts.ValidationDB, "validation-db", "", "validation record database path (or "+EnvValidationDB+")")
	cmd.Flags().StringVar(&opts.SchemasDir, "schemas", "", "pinned schema directory (or "+EnvSchemasDir+")")
}

// resolve fills unset options from the environment and applies defaults.
func (o *ConnOptions) resolve() error {
	fromEnv := func(val *string, key string) {
		if *val == "" {
			*val = os.Getenv(key)
		}
	}
	fromEnv(&o.BaseURL, EnvBaseURL)
	fromEnv(&o.Token, EnvAPIKey)
	fromEnv(&o.AuditLog, EnvAuditLog)
	fromEnv(&o.ValidationDB, EnvValidationDB)
	fromEnv(&o.SchemasDir, EnvSchemasDir)

	if o.BaseURL == "" {
		return fmt.Errorf("remote API base URL is required: pass --base-url or set %s", EnvBaseURL)
	}
	if o.Token == "" {
		return fmt.Errorf("remote API token is required: pass --token or set %s", EnvAPIKey)
	}
	if o.AuditLog == "" {
		return fmt.Errorf("audit log path is required: pass --audit-log or set %s", EnvAuditLog)
	}
	if o.ValidationDB == "" {
		// Validation records must survive across invocations, so they
		// live next to the audit log unless pointed elsewhere.
		o.ValidationDB = filepath.Join(filepath.Dir(o.AuditLog), "validations.db")
	}
	return nil
}

// buildGate wires a Gate from the resolved connection options. The
// returned cleanup closes the validation store.
func buildGate(opts *ConnOptions) (*gate.Gate, func(), error) {
	if err := opts.resolve(); err != nil {
		return nil, nil, NewExitError(ExitCommandError, err.Error())
	}

	store, err := gate.OpenSQLiteStore(opts.ValidationDB)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "open validation database", err)
	}
	cleanup := func() { _ = store.Close() }

	gateOpts := []gate.Option{gate.WithValidationStore(store)}
	if opts.SchemasDir != "" {
		pinned, errs := schemapin.LoadDir(opts.SchemasDir, schemapin.LoadModeFailFast)
		if len(errs) > 0 {
			cleanup()
			return nil, nil, WrapExitError(ExitCommandError, "load pinned schemas", errs[0])
		}
		gateOpts = append(gateOpts, gate.WithPinnedSchemas(pinned))
	}

	exec := executor.NewClient(opts.BaseURL, opts.Token)
	led := ledger.New(opts.AuditLog)
	return gate.New(exec, led, gateOpts...), cleanup, nil
}

// openLedger builds just the audit ledger for read-side commands.
func openLedger(opts *ConnOptions) (*ledger.Ledger, error) {
	if opts.AuditLog == "" {
		opts.AuditLog = os.Getenv(EnvAuditLog)
	}
	if opts.AuditLog == "" {
		return nil, NewExitError(ExitCommandError,
			"audit log path is required: pass --audit-log or set "+EnvAuditLog)
	}
	return ledger.New(opts.AuditLog), nil
}

// LoadRequest reads a mutation request from a JSON or YAML file, chosen
// by extension.
func LoadRequest(path string) (*gate.MutationRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read request file: %w", err)
	}

	var req gate.MutationRequest
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("parse YAML request: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("parse JSON request: %w", err)
		}
	}
	return &req, nil
}
