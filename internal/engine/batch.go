package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/ledger/internal/metrics"
	"github.com/roach88/ledger/internal/model"
	"github.com/roach88/ledger/internal/store"
	"github.com/roach88/ledger/internal/world"
)

// process runs one batch to completion under the writer lock.
//
// A rejected batch returns its Outcome and a *BatchError. Any other error
// is an infrastructure failure: the world is left unchanged and nothing is
// published.
func (e *Engine) process(ctx context.Context, p *Pending, genesis bool) (Outcome, error) {
	start := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	// The batch runs to completion once started.
	ctx = context.WithoutCancel(ctx)

	if genesis && e.clock.Current() != 0 {
		return Outcome{BatchID: p.ID, Hash: p.Hash}, ErrGenesisNotFirst
	}

	nowMS := e.blockTime()
	tx := e.world.Begin()
	events, err := e.execute(tx, p.batch, genesis, e.lastTimeMS, nowMS)
	if err != nil {
		tx.Rollback()
		var be *BatchError
		if !errors.As(err, &be) {
			return Outcome{BatchID: p.ID, Hash: p.Hash}, err
		}
		be.BatchID = p.ID
		return e.reject(ctx, p, be, nowMS, start)
	}

	block, err := e.seal(tx, p, events, genesis, nowMS)
	if err != nil {
		tx.Rollback()
		return Outcome{BatchID: p.ID, Hash: p.Hash}, err
	}
	if e.store != nil {
		if err := e.store.WriteBlock(ctx, block); err != nil {
			tx.Rollback()
			return Outcome{BatchID: p.ID, Hash: p.Hash}, fmt.Errorf("batch %s: %w", p.ID, err)
		}
	} else {
		e.memBlocks = append(e.memBlocks, block)
	}
	tx.Commit()
	e.advance(block)

	e.accepted.Add(1)
	e.metrics.ObserveBatch(metrics.OutcomeCommitted, time.Since(start))
	e.logger.Info("batch committed",
		"height", block.Height,
		"batch_id", p.ID,
		"events", len(events),
		"genesis", genesis,
	)
	e.subs.publish(block)

	return Outcome{
		BatchID:   p.ID,
		Hash:      p.Hash,
		Committed: true,
		Height:    block.Height,
		Events:    events,
	}, nil
}

// blockTime returns the time of the next block in Unix milliseconds. Block
// times never go backwards.
func (e *Engine) blockTime() uint64 {
	ms := e.now().UnixMilli()
	if ms < 0 || uint64(ms) < e.lastTimeMS {
		return e.lastTimeMS
	}
	return uint64(ms)
}

// execute applies b to tx and returns every raised event in order: each
// instruction's events followed by the trigger firings they set off, then
// the events of the time check. Genesis batches skip authorization and
// triggers.
func (e *Engine) execute(tx *world.Tx, b model.Batch, genesis bool, lastMS, nowMS uint64) ([]model.Event, error) {
	events := []model.Event{}
	if genesis {
		for i, instr := range b.Instructions {
			out, err := e.exec.Execute(tx, b.Authority, instr)
			if err != nil {
				return nil, &BatchError{Index: i, Err: err}
			}
			events = append(events, out...)
		}
		return events, nil
	}

	session := e.runner.Begin(tx)
	for i, instr := range b.Instructions {
		out, err := e.exec.Apply(tx, b.Authority, instr)
		if err != nil {
			return nil, &BatchError{Index: i, Err: err}
		}
		e.metrics.IncrementInstruction(instr.Kind())
		events = append(events, out...)

		raised, err := session.Cascade(out)
		if err != nil {
			return nil, &BatchError{Index: i, Err: err}
		}
		events = append(events, raised...)
	}

	raised, err := session.TimeCheck(lastMS, nowMS)
	if err != nil {
		return nil, &BatchError{Index: PreCommit, Err: err}
	}
	return append(events, raised...), nil
}

// seal builds the block for a successfully executed batch.
func (e *Engine) seal(tx *world.Tx, p *Pending, events []model.Event, genesis bool, nowMS uint64) (model.Block, error) {
	worldHash, err := tx.Hash()
	if err != nil {
		return model.Block{}, fmt.Errorf("batch %s: %w", p.ID, err)
	}
	block := model.Block{
		Height:     e.clock.Current() + 1,
		BatchID:    p.ID,
		BatchHash:  p.Hash,
		PrevHash:   e.lastHash,
		WorldHash:  worldHash,
		TimeMS:     nowMS,
		PrevTimeMS: e.lastTimeMS,
		Genesis:    genesis,
		Batch:      p.batch,
		Events:     events,
	}
	if block.Hash, err = block.ComputeHash(); err != nil {
		return model.Block{}, fmt.Errorf("batch %s: %w", p.ID, err)
	}
	return block, nil
}

// advance moves the chain head to block.
func (e *Engine) advance(block model.Block) {
	e.clock.Next()
	e.lastHash = block.Hash
	e.lastTimeMS = block.TimeMS
	e.metrics.SetHeight(block.Height)
}

func (e *Engine) reject(ctx context.Context, p *Pending, be *BatchError, nowMS uint64, start time.Time) (Outcome, error) {
	out := rejectedOutcome(p.ID, p.Hash, be)
	e.rejected.Add(1)
	e.metrics.ObserveBatch(metrics.OutcomeRejected, time.Since(start))
	e.logger.Info("batch rejected",
		"batch_id", p.ID,
		"index", be.Index,
		"code", string(out.Rejected.Code),
		"reason", out.Rejected.Reason,
	)

	if e.store == nil {
		return out, be
	}
	err := e.store.WriteRejection(ctx, store.Rejection{
		BatchID:   p.ID,
		BatchHash: p.Hash,
		Authority: p.batch.Authority,
		Index:     be.Index,
		Code:      string(out.Rejected.Code),
		Reason:    out.Rejected.Reason,
		TimeMS:    nowMS,
	})
	if err != nil {
		return out, errors.Join(be, fmt.Errorf("record rejection: %w", err))
	}
	return out, be
}
