package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/ledger/internal/model"
)

// BlocksOptions holds flags for the blocks command.
type BlocksOptions struct {
	*RootOptions
	From   uint64
	Limit  int
	Events bool
}

// BlockSummary is one stored block as shown by the blocks command.
type BlockSummary struct {
	Height       uint64   `json:"height"`
	Hash         string   `json:"hash"`
	PrevHash     string   `json:"prev_hash"`
	WorldHash    string   `json:"world_hash"`
	BatchID      string   `json:"batch_id"`
	Authority    string   `json:"authority"`
	TimeMS       uint64   `json:"time_ms"`
	Genesis      bool     `json:"genesis,omitempty"`
	Instructions int      `json:"instructions"`
	EventCount   int      `json:"event_count"`
	Events       []string `json:"events,omitempty"`
}

// NewBlocksCommand creates the blocks command.
func NewBlocksCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BlocksOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "blocks",
		Short: "List committed blocks from the block store",
		Long: `List committed blocks in height order.

Blocks are read from the store without replaying them.

Examples:
  ledger blocks --db ./ledger.db
  ledger blocks --from 10 --limit 5 --events
  ledger blocks --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBlocks(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().Uint64Var(&opts.From, "from", 1, "first block height")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of blocks (0 for all)")
	cmd.Flags().BoolVar(&opts.Events, "events", false, "include event lines")

	return cmd
}

func runBlocks(ctx context.Context, opts *BlocksOptions, cmd *cobra.Command) error {
	if opts.Limit < 0 {
		return NewExitError(ExitCommandError, "--limit must be non-negative")
	}

	st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	blocks, err := st.ReadBlocks(ctx, opts.From, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read blocks", err)
	}

	summaries := make([]BlockSummary, len(blocks))
	for i, b := range blocks {
		summaries[i] = summarizeBlock(b, opts.Events)
	}

	f := NewOutputFormatter(opts.RootOptions, cmd)
	return f.Emit(summaries, func(w io.Writer) { writeBlocksText(w, summaries) })
}

func summarizeBlock(b model.Block, withEvents bool) BlockSummary {
	s := BlockSummary{
		Height:       b.Height,
		Hash:         b.Hash,
		PrevHash:     b.PrevHash,
		WorldHash:    b.WorldHash,
		BatchID:      b.BatchID,
		Authority:    b.Batch.Authority.String(),
		TimeMS:       b.TimeMS,
		Genesis:      b.Genesis,
		Instructions: len(b.Batch.Instructions),
		EventCount:   len(b.Events),
	}
	if withEvents {
		s.Events = make([]string, len(b.Events))
		for i, ev := range b.Events {
			s.Events[i] = ev.String()
		}
	}
	return s
}

func writeBlocksText(w io.Writer, blocks []BlockSummary) {
	if len(blocks) == 0 {
		fmt.Fprintln(w, "No blocks")
		return
	}
	for _, b := range blocks {
		tag := ""
		if b.Genesis {
			tag = " (genesis)"
		}
		fmt.Fprintf(w, "#%d%s %s by %s, %d instructions, %d events\n",
			b.Height, tag, shortHash(b.Hash), b.Authority, b.Instructions, b.EventCount)
		for _, line := range b.Events {
			fmt.Fprintf(w, "    %s\n", line)
		}
	}
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
