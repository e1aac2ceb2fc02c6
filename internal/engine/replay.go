package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/ledger/internal/ledgererr"
	"github.com/roach88/ledger/internal/model"
)

// Replay rebuilds the world from the engine's store.
//
// Every stored block is re-executed in height order through the same path
// a live batch takes: genesis blocks without authorization, the others
// with authorization, trigger cascades and the time check over the block's
// stored time window. After each block the world hash must equal the stored
// one; a mismatch stops the replay with InvariantViolation.
//
// Replay must run on a fresh engine before Run or any other batch.
func (e *Engine) Replay(ctx context.Context) error {
	if e.store == nil {
		return errors.New("replay: engine has no store")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.clock.Current() != 0 {
		return fmt.Errorf("replay: engine already at height %d", e.clock.Current())
	}

	err := e.store.Scan(ctx, 1, func(b model.Block) error {
		return e.replayBlock(b)
	})
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	_, rejected, err := e.store.Counts(ctx)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	e.accepted.Store(e.clock.Current())
	e.rejected.Store(rejected)

	e.logger.Info("replay complete", "height", e.clock.Current())
	return nil
}

func (e *Engine) replayBlock(b model.Block) error {
	tx := e.world.Begin()
	_, err := e.execute(tx, b.Batch, b.Genesis, b.PrevTimeMS, b.TimeMS)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("block %d: %w", b.Height, err)
	}

	got, err := tx.Hash()
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("block %d: %w", b.Height, err)
	}
	if got != b.WorldHash {
		tx.Rollback()
		return ledgererr.New(ledgererr.CodeInvariantViolation,
			"block %d: replayed world hash does not match the stored one", b.Height).
			With("stored", b.WorldHash).
			With("replayed", got)
	}

	tx.Commit()
	e.advance(b)
	e.logger.Debug("block replayed", "height", b.Height, "batch_id", b.BatchID)
	return nil
}

// scanHistory calls fn for every committed block from height from, from
// the store when there is one and from memory otherwise. Callers hold e.mu.
func (e *Engine) scanHistory(ctx context.Context, from uint64, fn func(model.Block) error) error {
	if e.store != nil {
		return e.store.Scan(ctx, from, fn)
	}
	for _, b := range e.memBlocks {
		if b.Height < from {
			continue
		}
		if err := fn(b); err != nil {
			return err
		}
	}
	return nil
}
