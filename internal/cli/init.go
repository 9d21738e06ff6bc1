package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/spf13/cobra"

	"github.com/roach88/quorum/internal/config"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	Owners int
	Out    string
	Force  bool
}

// InitResult describes a written sample configuration.
type InitResult struct {
	Path   string   `json:"path"`
	Owners []string `json:"owners"`
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a sample committee configuration",
		Long: `Write a sample configuration with randomly named owners and default
thresholds: a simple majority for rebalances and three quarters of the
committee for role rotation.

Examples:
  quorum init
  quorum init --owners 9 --out committee.yaml
  quorum init --out -`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Owners, "owners", "n", 5, "number of owners")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "quorum.yaml", `output path ("-" for stdout)`)
	cmd.Flags().BoolVar(&opts.Force, "force", false, "overwrite an existing file")

	return cmd
}

func runInit(opts *InitOptions, cmd *cobra.Command) error {
	if opts.Owners < 1 {
		return NewExitError(ExitCommandError, "--owners must be at least 1")
	}

	owners := ownerNames(opts.Owners)
	cfg := config.Sample(owners)
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitFailure, "generated config is invalid", err)
	}
	data, err := cfg.Marshal()
	if err != nil {
		return WrapExitError(ExitFailure, "failed to render config", err)
	}

	if opts.Out == "-" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}

	if !opts.Force {
		if _, err := os.Stat(opts.Out); err == nil {
			return NewExitError(ExitCommandError, fmt.Sprintf("%s already exists (use --force to overwrite)", opts.Out))
		} else if !errors.Is(err, fs.ErrNotExist) {
			return WrapExitError(ExitCommandError, "failed to stat output", err)
		}
	}
	if err := os.WriteFile(opts.Out, data, 0o644); err != nil {
		return WrapExitError(ExitCommandError, "failed to write config", err)
	}

	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout())
	return formatter.Success(InitResult{Path: opts.Out, Owners: owners},
		fmt.Sprintf("✓ wrote %s with %d owners", opts.Out, len(owners)))
}

// ownerNames returns n distinct two-word owner handles.
func ownerNames(n int) []string {
	seen := make(map[string]bool, n)
	out := make([]string, 0, n)
	for len(out) < n {
		name := petname.Generate(2, "-")
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}
