package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/ledger/internal/engine"
	"github.com/roach88/ledger/internal/ledgererr"
	"github.com/roach88/ledger/internal/store"
	"github.com/roach88/ledger/internal/world"
)

// ReplayResult holds the replay result.
type ReplayResult struct {
	Height        uint64 `json:"height"`
	Blocks        uint64 `json:"blocks"`
	Rejections    uint64 `json:"rejections"`
	WorldHash     string `json:"world_hash,omitempty"`
	Deterministic bool   `json:"deterministic"`
	Failure       string `json:"failure,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay the block store and verify determinism",
		Long: `Rebuild the world from the block store and verify determinism.

Every stored block is re-executed in height order on a fresh world and
the world hash after each block is checked against the stored one. The
store is replayed twice and the final world hashes are compared.

Exit codes:
  0 - Replay matched the stored blocks
  1 - Determinism verification failed (hash mismatch)
  2 - Command error (database not found, etc.)

Examples:
  ledger replay --db ./ledger.db
  ledger replay --db ./ledger.db --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), rootOpts, cmd)
		},
	}

	return cmd
}

func runReplay(ctx context.Context, opts *RootOptions, cmd *cobra.Command) error {
	st, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	blocks, rejections, err := st.Counts(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read store", err)
	}
	result := ReplayResult{Blocks: blocks, Rejections: rejections, Deterministic: true}

	first, err := replayOnce(ctx, opts, st)
	if err == nil {
		var second *engine.Engine
		if second, err = replayOnce(ctx, opts, st); err == nil {
			err = compareReplays(first, second)
		}
	}
	switch {
	case err == nil:
		result.Height = first.Height()
		if result.WorldHash, err = first.Snapshot().Hash(); err != nil {
			return WrapExitError(ExitCommandError, "failed to hash world", err)
		}
	case ledgererr.Is(err, ledgererr.CodeInvariantViolation):
		result.Deterministic = false
		result.Failure = err.Error()
	default:
		return WrapExitError(ExitCommandError, "replay failed", err)
	}

	f := NewOutputFormatter(opts, cmd)
	if err := f.Emit(result, func(w io.Writer) { writeReplayText(w, result) }); err != nil {
		return err
	}
	if !result.Deterministic {
		// Determinism failure = exit code 1
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

func replayOnce(ctx context.Context, opts *RootOptions, st *store.Store) (*engine.Engine, error) {
	e := engine.New(world.New(), engineOptions(opts, st)...)
	if err := e.Replay(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

func compareReplays(a, b *engine.Engine) error {
	ha, err := a.Snapshot().Hash()
	if err != nil {
		return err
	}
	hb, err := b.Snapshot().Hash()
	if err != nil {
		return err
	}
	if ha != hb || a.Height() != b.Height() {
		return ledgererr.New(ledgererr.CodeInvariantViolation,
			"replays diverged: height %d hash %s, height %d hash %s", a.Height(), ha, b.Height(), hb)
	}
	return nil
}

func writeReplayText(w io.Writer, r ReplayResult) {
	fmt.Fprintf(w, "Replay Summary: %d block(s), %d rejection(s)\n", r.Blocks, r.Rejections)
	if !r.Deterministic {
		fmt.Fprintf(w, "  %s\n", r.Failure)
		fmt.Fprintln(w, "✗ Determinism verification failed")
		return
	}
	fmt.Fprintf(w, "  Height: %d\n", r.Height)
	fmt.Fprintf(w, "  World hash: %s\n", r.WorldHash)
	fmt.Fprintln(w, "✓ Replay verified deterministic")
}
