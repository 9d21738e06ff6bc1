package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/quorum/internal/config"
	"github.com/roach88/quorum/internal/registry"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool         `json:"valid"`
	Errors []FieldError `json:"errors,omitempty"`
}

// FieldError is one configuration problem.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ConfigSummary describes a valid configuration.
type ConfigSummary struct {
	Owners                 int    `json:"owners"`
	Operator               string `json:"operator"`
	Custodian              string `json:"custodian"`
	RebalanceThreshold     int    `json:"rebalance_threshold"`
	OperatorThreshold      int    `json:"operator_threshold"`
	MethodologistThreshold int    `json:"methodologist_threshold"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config>",
		Short: "Validate a committee configuration",
		Long: `Validate a committee configuration file without starting anything.

The file is parsed (unknown keys rejected), QUORUM_* environment overrides
are applied, and the result is checked against the configuration schema
and the owner registry rules. Every problem is reported.

Exit codes:
  0 - Configuration is valid
  1 - Configuration is invalid
  2 - Configuration could not be read or parsed`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout())

	cfg, err := config.Load(path)
	if err != nil {
		fields := fieldErrors(err)
		if len(fields) == 0 {
			_ = formatter.Error(CodeConfigLoad, err.Error(), nil, nil)
			return WrapExitError(ExitCommandError, "failed to load config", err)
		}

		lines := make([]string, len(fields))
		for i, f := range fields {
			lines[i] = fmt.Sprintf("%s: %s", f.Field, f.Message)
		}
		msg := fmt.Sprintf("%s is invalid (%d problem(s))", path, len(fields))
		if err := formatter.Error(CodeConfigInvalid, msg, ValidationResult{Valid: false, Errors: fields}, lines); err != nil {
			return err
		}
		return NewExitError(ExitFailure, msg)
	}

	summary := ConfigSummary{
		Owners:                 len(cfg.Owners),
		Operator:               cfg.Operator,
		Custodian:              cfg.Custodian,
		RebalanceThreshold:     cfg.RebalanceThreshold,
		OperatorThreshold:      cfg.OperatorThreshold,
		MethodologistThreshold: cfg.MethodologistThreshold,
	}
	text := fmt.Sprintf("✓ %s is valid: %d owners, thresholds rebalance=%d operator=%d methodologist=%d",
		path, summary.Owners, summary.RebalanceThreshold, summary.OperatorThreshold, summary.MethodologistThreshold)
	return formatter.Success(summary, text)
}

// fieldErrors flattens every *registry.ConfigError in err, which may be a
// tree of joined and wrapped errors.
func fieldErrors(err error) []FieldError {
	var out []FieldError
	var walk func(error)
	walk = func(err error) {
		if err == nil {
			return
		}
		if ce, ok := err.(*registry.ConfigError); ok {
			out = append(out, FieldError{Field: ce.Field, Message: ce.Message})
			return
		}
		switch u := err.(type) {
		case interface{ Unwrap() []error }:
			for _, e := range u.Unwrap() {
				walk(e)
			}
		case interface{ Unwrap() error }:
			walk(u.Unwrap())
		}
	}
	walk(err)
	return out
}
