package cli

import (
	"context"
	"fmt"

	"github.com/roach88/ledger/internal/engine"
	"github.com/roach88/ledger/internal/genesis"
	"github.com/roach88/ledger/internal/ledgererr"
	"github.com/roach88/ledger/internal/model"
	"github.com/roach88/ledger/internal/store"
	"github.com/roach88/ledger/internal/world"
)

// ledger is an engine over the configured block store, caught up with
// every stored block.
type ledger struct {
	engine *engine.Engine
	store  *store.Store
}

func (l *ledger) Close() error {
	return l.store.Close()
}

// openStore opens the configured block store.
func openStore(opts *RootOptions) (*store.Store, error) {
	if opts.Config.Database == "" {
		return nil, NewExitError(ExitCommandError, "no database configured (use --db or database in ledger.yaml)")
	}
	st, err := store.Open(opts.Config.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// engineOptions are the engine options derived from the configuration.
func engineOptions(opts *RootOptions, st *store.Store) []engine.EngineOption {
	return []engine.EngineOption{
		engine.WithStore(st),
		engine.WithLogger(opts.Logger),
		engine.WithMaxSteps(opts.Config.Trigger.MaxSteps),
		engine.WithMaxDepth(opts.Config.Trigger.MaxDepth),
		engine.WithImplicitAssetOnMint(opts.Config.Executor.ImplicitAssetOnMint),
	}
}

// openLedger opens the store and brings an engine up to its head. An empty
// store is initialized with the configured genesis; otherwise every stored
// block is replayed.
func openLedger(ctx context.Context, opts *RootOptions, extra ...engine.EngineOption) (*ledger, error) {
	st, err := openStore(opts)
	if err != nil {
		return nil, err
	}

	e := engine.New(world.New(), append(engineOptions(opts, st), extra...)...)
	height, err := st.Height(ctx)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to read store", err)
	}

	if height == 0 {
		b, err := genesisBatch(opts)
		if err != nil {
			st.Close()
			return nil, WrapExitError(ExitCommandError, "failed to load genesis", err)
		}
		if _, err := e.Genesis(ctx, b); err != nil {
			st.Close()
			return nil, WrapExitError(ExitCommandError, "failed to commit genesis", err)
		}
		opts.Logger.Info("ledger initialized", "database", opts.Config.Database, "genesis", genesisName(opts))
	} else if err := e.Replay(ctx); err != nil {
		st.Close()
		code := ExitCommandError
		if ledgererr.Is(err, ledgererr.CodeInvariantViolation) {
			code = ExitFailure
		}
		return nil, WrapExitError(code, "failed to replay store", err)
	}

	return &ledger{engine: e, store: st}, nil
}

func genesisBatch(opts *RootOptions) (model.Batch, error) {
	if opts.Config.Genesis == "" {
		return genesis.Default(), nil
	}
	return genesis.Load(opts.Config.Genesis)
}

func genesisName(opts *RootOptions) string {
	if opts.Config.Genesis == "" {
		return "default"
	}
	return opts.Config.Genesis
}

// describeOutcome renders a batch outcome as one line.
func describeOutcome(out engine.Outcome) string {
	if out.Committed {
		return fmt.Sprintf("committed %s at height %d (%d events)", out.BatchID, out.Height, len(out.Events))
	}
	if out.Rejected != nil {
		return fmt.Sprintf("rejected %s: %s at instruction %d: %s", out.BatchID, out.Rejected.Code, out.Rejected.Index, out.Rejected.Reason)
	}
	return fmt.Sprintf("batch %s not processed", out.BatchID)
}
