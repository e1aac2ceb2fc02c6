package store

import (
	"context"
	"fmt"

	"github.com/roach88/ledger/internal/ident"
	"github.com/roach88/ledger/internal/model"
)

// Rejection records a batch that failed and was rolled back.
type Rejection struct {
	BatchID   string
	BatchHash string
	Authority ident.AccountID
	// Index is the failing instruction, or -1 for the pre-commit time check.
	Index  int
	Code   string
	Reason string
	TimeMS uint64
}

// WriteBlock appends a committed block and its events in one SQL
// transaction. A block whose height is not one past the stored height is
// rejected by the primary key or by the explicit check.
func (s *Store) WriteBlock(ctx context.Context, b model.Block) error {
	instrs, err := marshalInstructions(b.Batch.Instructions)
	if err != nil {
		return fmt.Errorf("write block %d: %w", b.Height, err)
	}
	md, err := marshalMetadata(b.Batch.Metadata)
	if err != nil {
		return fmt.Errorf("write block %d: %w", b.Height, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write block %d: begin: %w", b.Height, err)
	}
	defer tx.Rollback()

	var last uint64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(height), 0) FROM blocks`).Scan(&last); err != nil {
		return fmt.Errorf("write block %d: %w", b.Height, err)
	}
	if b.Height != last+1 {
		return fmt.Errorf("write block %d: stored height is %d", b.Height, last)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO blocks
		(height, batch_id, batch_hash, prev_hash, world_hash, block_hash, authority, instructions, metadata, time_ms, prev_time_ms, genesis)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		b.Height,
		b.BatchID,
		b.BatchHash,
		b.PrevHash,
		b.WorldHash,
		b.Hash,
		b.Batch.Authority.String(),
		instrs,
		md,
		b.TimeMS,
		b.PrevTimeMS,
		boolToInt(b.Genesis),
	)
	if err != nil {
		return fmt.Errorf("write block %d: %w", b.Height, err)
	}

	for i, ev := range b.Events {
		payload, err := marshalEvent(ev)
		if err != nil {
			return fmt.Errorf("write block %d: event %d: %w", b.Height, i, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO events (height, idx, kind, entity_kind, entity_id, payload)
			VALUES (?, ?, ?, ?, ?, ?)
		`, b.Height, i, string(ev.Kind), string(ev.Entity.Kind), ev.Entity.String(), payload)
		if err != nil {
			return fmt.Errorf("write block %d: event %d: %w", b.Height, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write block %d: commit: %w", b.Height, err)
	}
	return nil
}

// WriteRejection records a rejected batch. Uses ON CONFLICT DO NOTHING so
// recording the same batch twice is a no-op.
func (s *Store) WriteRejection(ctx context.Context, r Rejection) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rejections (batch_id, batch_hash, authority, instr_index, code, reason, time_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(batch_id) DO NOTHING
	`, r.BatchID, r.BatchHash, r.Authority.String(), r.Index, r.Code, r.Reason, r.TimeMS)
	if err != nil {
		return fmt.Errorf("write rejection %s: %w", r.BatchID, err)
	}
	return nil
}
