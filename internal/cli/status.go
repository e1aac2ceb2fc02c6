package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/ledger/internal/engine"
	"github.com/roach88/ledger/internal/model"
	"github.com/roach88/ledger/internal/query"
	"github.com/roach88/ledger/internal/store"
	"github.com/roach88/ledger/internal/world"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Rejections bool
}

// StatusResult summarizes the ledger.
type StatusResult struct {
	engine.Status
	Height     uint64            `json:"height"`
	WorldHash  string            `json:"world_hash"`
	Objects    ObjectCounts      `json:"objects"`
	Rejections []RejectionRecord `json:"rejections,omitempty"`
}

// ObjectCounts counts registered objects by kind.
type ObjectCounts struct {
	Domains          int `json:"domains"`
	Accounts         int `json:"accounts"`
	AssetDefinitions int `json:"asset_definitions"`
	Assets           int `json:"assets"`
	Roles            int `json:"roles"`
	Triggers         int `json:"triggers"`
}

// RejectionRecord is a stored rejection.
type RejectionRecord struct {
	BatchID   string `json:"batch_id"`
	Authority string `json:"authority"`
	Index     int    `json:"index"`
	Code      string `json:"code"`
	Reason    string `json:"reason"`
	TimeMS    uint64 `json:"time_ms"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show ledger height, world hash and object counts",
		Long: `Show the state of the ledger in the block store.

An empty store is initialized with the configured genesis first.

Examples:
  ledger status --db ./ledger.db
  ledger status --rejections --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Rejections, "rejections", false, "list recorded rejections")

	return cmd
}

func runStatus(ctx context.Context, opts *StatusOptions, cmd *cobra.Command) error {
	l, err := openLedger(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer l.Close()

	result, err := ledgerStatus(l.engine)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read status", err)
	}
	if opts.Rejections {
		if result.Rejections, err = rejectionRecords(ctx, l.store); err != nil {
			return WrapExitError(ExitCommandError, "failed to read rejections", err)
		}
	}

	f := NewOutputFormatter(opts.RootOptions, cmd)
	return f.Emit(result, func(w io.Writer) { writeStatusText(w, result) })
}

// ledgerStatus reads the status of e. The serve command reports the same
// value on /status.
func ledgerStatus(e *engine.Engine) (StatusResult, error) {
	snap := e.Snapshot()
	hash, err := snap.Hash()
	if err != nil {
		return StatusResult{}, err
	}
	return StatusResult{
		Status:    e.Status(),
		Height:    e.Height(),
		WorldHash: hash,
		Objects:   countObjects(snap),
	}, nil
}

func countObjects(r world.Reader) ObjectCounts {
	return ObjectCounts{
		Domains:          len(query.FindDomains(r, query.All[model.Domain]()).Collect()),
		Accounts:         len(query.FindAccounts(r, query.All[model.Account]()).Collect()),
		AssetDefinitions: len(query.FindAssetDefinitions(r, query.All[model.AssetDefinition]()).Collect()),
		Assets:           len(query.FindAssets(r, query.All[model.Asset]()).Collect()),
		Roles:            len(query.FindRoles(r, query.All[model.Role]()).Collect()),
		Triggers:         len(query.FindTriggers(r, query.All[model.Trigger]()).Collect()),
	}
}

func rejectionRecords(ctx context.Context, st *store.Store) ([]RejectionRecord, error) {
	rejections, err := st.ReadRejections(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]RejectionRecord, len(rejections))
	for i, r := range rejections {
		out[i] = RejectionRecord{
			BatchID:   r.BatchID,
			Authority: r.Authority.String(),
			Index:     r.Index,
			Code:      r.Code,
			Reason:    r.Reason,
			TimeMS:    r.TimeMS,
		}
	}
	return out, nil
}

func writeStatusText(w io.Writer, s StatusResult) {
	fmt.Fprintf(w, "Height:       %d\n", s.Height)
	fmt.Fprintf(w, "World hash:   %s\n", s.WorldHash)
	fmt.Fprintf(w, "Accepted:     %d\n", s.TxsAccepted)
	fmt.Fprintf(w, "Rejected:     %d\n", s.TxsRejected)
	fmt.Fprintf(w, "Uptime:       %s\n", s.Uptime.Round(time.Millisecond))
	fmt.Fprintf(w, "Objects:      %d domains, %d accounts, %d asset definitions, %d assets, %d roles, %d triggers\n",
		s.Objects.Domains, s.Objects.Accounts, s.Objects.AssetDefinitions, s.Objects.Assets, s.Objects.Roles, s.Objects.Triggers)
	for _, r := range s.Rejections {
		fmt.Fprintf(w, "  ✗ %s by %s: %s at instruction %d: %s\n", r.BatchID, r.Authority, r.Code, r.Index, r.Reason)
	}
}
