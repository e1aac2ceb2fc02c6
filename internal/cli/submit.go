package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/ledger/internal/engine"
	"github.com/roach88/ledger/internal/genesis"
)

// SubmitOptions holds flags for the submit command.
type SubmitOptions struct {
	*RootOptions
	Events bool // print the events of committed batches
}

// SubmitResult is the outcome of one submitted batch file.
type SubmitResult struct {
	File      string   `json:"file"`
	BatchID   string   `json:"batch_id"`
	Committed bool     `json:"committed"`
	Height    uint64   `json:"height,omitempty"`
	Index     *int     `json:"index,omitempty"`
	Code      string   `json:"code,omitempty"`
	Reason    string   `json:"reason,omitempty"`
	Events    []string `json:"events,omitempty"`
}

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "submit <batch-file>...",
		Short: "Submit instruction batches",
		Long: `Submit one batch per file, in order, against the block store.

A batch file uses the genesis format: an optional authority (default: the
configured authority), optional metadata and a list of instructions.
Each batch commits or rolls back as a whole.

Exit codes:
  0 - All batches committed
  1 - One or more batches were rejected
  2 - Command error (unreadable file, database error, etc.)

Examples:
  ledger submit mint.yaml
  ledger submit --authority bob@wonderland transfer.yaml
  ledger submit --events --format json batch.cue`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(cmd.Context(), opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Events, "events", false, "print the events of committed batches")

	return cmd
}

func runSubmit(ctx context.Context, opts *SubmitOptions, files []string, cmd *cobra.Command) error {
	l, err := openLedger(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer l.Close()

	results := make([]SubmitResult, 0, len(files))
	rejected := 0
	for _, file := range files {
		b, err := genesis.LoadBatch(file, opts.Config.AuthorityID())
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load batch", err)
		}

		out, err := l.engine.Apply(ctx, b)
		if err != nil && !engine.IsRejected(err) {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to apply %s", file), err)
		}
		if !out.Committed {
			rejected++
		}
		results = append(results, submitResult(file, out))
	}

	f := NewOutputFormatter(opts.RootOptions, cmd)
	err = f.Emit(results, func(w io.Writer) {
		for _, r := range results {
			writeSubmitResult(w, r, opts.Events)
		}
	})
	if err != nil {
		return err
	}

	if rejected > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d batch(es) rejected", rejected))
	}
	return nil
}

func submitResult(file string, out engine.Outcome) SubmitResult {
	r := SubmitResult{File: file, BatchID: out.BatchID, Committed: out.Committed, Height: out.Height}
	if out.Rejected != nil {
		index := out.Rejected.Index
		r.Index = &index
		r.Code = string(out.Rejected.Code)
		r.Reason = out.Rejected.Reason
	}
	for _, ev := range out.Events {
		r.Events = append(r.Events, ev.String())
	}
	return r
}

func writeSubmitResult(w io.Writer, r SubmitResult, events bool) {
	if !r.Committed {
		fmt.Fprintf(w, "✗ %s: rejected %s: %s at instruction %d: %s\n", r.File, r.BatchID, r.Code, *r.Index, r.Reason)
		return
	}
	fmt.Fprintf(w, "✓ %s: committed %s at height %d (%d events)\n", r.File, r.BatchID, r.Height, len(r.Events))
	if events {
		for _, line := range r.Events {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
}
