package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/quorum/internal/ir"
	"github.com/roach88/quorum/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Gate     string // optional - one gate only
	Domain   string // optional - one domain only
}

// TraceEntry is one journaled event with its gate.
type TraceEntry struct {
	Gate  string   `json:"gate"`
	Name  string   `json:"name"`
	Event ir.Event `json:"event"`
}

// TraceResult holds the trace output.
type TraceResult struct {
	Events []TraceEntry `json:"events"`
	Stats  TraceStats   `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents int            `json:"total_events"`
	ByName      map[string]int `json:"by_name"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Print the event journal",
		Long: `Print journaled gate events in seq order.

Examples:
  quorum trace --db ./quorum.db
  quorum trace --db ./quorum.db --gate operator --domain rebalance
  quorum trace --db ./quorum.db --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Gate, "gate", "", "only this gate")
	cmd.Flags().StringVar(&opts.Domain, "domain", "", "only this domain (rebalance|operator|methodologist)")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	var domain ir.Domain
	if opts.Domain != "" {
		d, err := ir.ParseDomain(opts.Domain)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --domain", err)
		}
		domain = d
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	result, err := readTrace(ctx, st, opts.Gate, domain)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}

	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout())
	return formatter.Success(result, renderTrace(result))
}

// readTrace reads the journal of gate (every gate when empty), filtered to
// domain when set, merged in seq order.
func readTrace(ctx context.Context, st *store.Store, gate string, domain ir.Domain) (TraceResult, error) {
	gates := []string{gate}
	if gate == "" {
		var err error
		if gates, err = st.Gates(ctx); err != nil {
			return TraceResult{}, err
		}
	}

	result := TraceResult{Events: []TraceEntry{}, Stats: TraceStats{ByName: map[string]int{}}}
	for _, g := range gates {
		var (
			events []ir.Event
			err    error
		)
		if domain != "" {
			events, err = st.ReadDomainEvents(ctx, g, domain)
		} else {
			events, err = st.ReadEvents(ctx, g)
		}
		if err != nil {
			return TraceResult{}, err
		}
		for _, ev := range events {
			result.Events = append(result.Events, TraceEntry{Gate: g, Name: ev.Name(), Event: ev})
			result.Stats.ByName[ev.Name()]++
		}
	}
	sort.SliceStable(result.Events, func(i, j int) bool {
		a, b := result.Events[i], result.Events[j]
		if a.Event.Seq != b.Event.Seq {
			return a.Event.Seq < b.Event.Seq
		}
		return a.Gate < b.Gate
	})
	result.Stats.TotalEvents = len(result.Events)
	return result, nil
}

func renderTrace(result TraceResult) string {
	if len(result.Events) == 0 {
		return "No events found."
	}
	var b strings.Builder
	for _, e := range result.Events {
		fmt.Fprintf(&b, "%-13s %s\n", e.Gate, e.Event.String())
	}
	fmt.Fprintf(&b, "\n%d event(s)", result.Stats.TotalEvents)
	return b.String()
}
