package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ledger/internal/model"
	"github.com/roach88/ledger/internal/store"
)

// EventsOptions holds flags for the events command.
type EventsOptions struct {
	*RootOptions
	Entity string
	Kind   string
	From   uint64
	To     uint64
	Limit  int
}

// EventRecord is one stored event as shown by the events command.
type EventRecord struct {
	Height uint64 `json:"height"`
	Index  int    `json:"index"`
	Entity string `json:"entity"`
	Kind   string `json:"kind"`
	Line   string `json:"line"`
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Search the event history in the block store",
		Long: `Search committed events in chain order.

--entity takes kind:id, where kind is one of domain, account,
asset_definition, asset, role or trigger.

Examples:
  ledger events --entity asset:rose##alice@wonderland
  ledger events --kind AmountIncreased --from 2 --to 10
  ledger events --entity account:bob@wonderland --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Entity, "entity", "", "only events about this object (kind:id)")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "only events of this kind (e.g. AmountIncreased)")
	cmd.Flags().Uint64Var(&opts.From, "from", 0, "first block height")
	cmd.Flags().Uint64Var(&opts.To, "to", 0, "last block height (0 for the end of the chain)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of events (0 for all)")

	return cmd
}

func runEvents(ctx context.Context, opts *EventsOptions, cmd *cobra.Command) error {
	filter, err := opts.filter()
	if err != nil {
		return err
	}

	st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	stored, err := st.ReadEvents(ctx, filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	records := make([]EventRecord, len(stored))
	for i, rec := range stored {
		records[i] = EventRecord{
			Height: rec.Height,
			Index:  rec.Index,
			Entity: rec.Event.Entity.String(),
			Kind:   string(rec.Event.Kind),
			Line:   rec.Event.String(),
		}
	}

	f := NewOutputFormatter(opts.RootOptions, cmd)
	return f.Emit(records, func(w io.Writer) {
		if len(records) == 0 {
			fmt.Fprintln(w, "No events")
			return
		}
		for _, r := range records {
			fmt.Fprintf(w, "#%d.%d %s\n", r.Height, r.Index, r.Line)
		}
	})
}

func (o *EventsOptions) filter() (store.EventFilter, error) {
	if o.Limit < 0 {
		return store.EventFilter{}, NewExitError(ExitCommandError, "--limit must be non-negative")
	}
	if o.To > 0 && o.To < o.From {
		return store.EventFilter{}, NewExitError(ExitCommandError, "--to must not be below --from")
	}
	f := store.EventFilter{
		Kind:       model.EventKind(o.Kind),
		FromHeight: o.From,
		ToHeight:   o.To,
		Limit:      o.Limit,
	}
	if o.Entity != "" {
		kind, id, ok := strings.Cut(o.Entity, ":")
		if !ok {
			return store.EventFilter{}, NewExitError(ExitCommandError, "--entity must be kind:id")
		}
		ref, err := model.ParseRef(model.EntityKind(kind), id)
		if err != nil {
			return store.EventFilter{}, WrapExitError(ExitCommandError, "invalid --entity", err)
		}
		f.EntityKind = ref.Kind
		f.EntityID = ref.String()
	}
	return f, nil
}
