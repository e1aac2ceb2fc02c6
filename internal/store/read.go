package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/ledger/internal/ident"
	"github.com/roach88/ledger/internal/model"
)

// ErrNoBlock is returned by ReadBlock for a height that is not stored.
var ErrNoBlock = errors.New("block not found")

// ReadBlocks returns up to limit blocks starting at height from, with their
// events, ordered by height. A non-positive limit reads to the end.
//
// Returns an empty slice (not nil) if no blocks exist in the range.
func (s *Store) ReadBlocks(ctx context.Context, from uint64, limit int) ([]model.Block, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT height, batch_id, batch_hash, prev_hash, world_hash, block_hash,
		       authority, instructions, metadata, time_ms, prev_time_ms, genesis
		FROM blocks
		WHERE height >= ?
		ORDER BY height ASC
		LIMIT ?
	`, from, limit)
	if err != nil {
		return nil, fmt.Errorf("query blocks: %w", err)
	}

	blocks := []model.Block{}
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		blocks = append(blocks, b)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate blocks: %w", err)
	}
	// The pool holds a single connection, so the block rows must be closed
	// before the events query can run.
	rows.Close()

	if len(blocks) == 0 {
		return blocks, nil
	}
	if err := s.attachEvents(ctx, blocks); err != nil {
		return nil, err
	}
	return blocks, nil
}

// ReadBlock returns the block at height, or ErrNoBlock.
func (s *Store) ReadBlock(ctx context.Context, height uint64) (model.Block, error) {
	blocks, err := s.ReadBlocks(ctx, height, 1)
	if err != nil {
		return model.Block{}, err
	}
	if len(blocks) == 0 || blocks[0].Height != height {
		return model.Block{}, fmt.Errorf("read block %d: %w", height, ErrNoBlock)
	}
	return blocks[0], nil
}

// ReadRejections returns every recorded rejection in insertion order.
func (s *Store) ReadRejections(ctx context.Context) ([]Rejection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT batch_id, batch_hash, authority, instr_index, code, reason, time_ms
		FROM rejections
		ORDER BY rowid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query rejections: %w", err)
	}
	defer rows.Close()

	out := []Rejection{}
	for rows.Next() {
		var r Rejection
		var authority string
		if err := rows.Scan(&r.BatchID, &r.BatchHash, &authority, &r.Index, &r.Code, &r.Reason, &r.TimeMS); err != nil {
			return nil, fmt.Errorf("scan rejection: %w", err)
		}
		if r.Authority, err = ident.ParseAccountID(authority); err != nil {
			return nil, fmt.Errorf("scan rejection %s: %w", r.BatchID, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rejections: %w", err)
	}
	return out, nil
}

// attachEvents loads the events of blocks, which must be sorted by height
// and contiguous.
func (s *Store) attachEvents(ctx context.Context, blocks []model.Block) error {
	first, last := blocks[0].Height, blocks[len(blocks)-1].Height
	rows, err := s.db.QueryContext(ctx, `
		SELECT height, payload
		FROM events
		WHERE height BETWEEN ? AND ?
		ORDER BY height ASC, idx ASC
	`, first, last)
	if err != nil {
		return fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	byHeight := make(map[uint64]int, len(blocks))
	for i := range blocks {
		byHeight[blocks[i].Height] = i
		blocks[i].Events = []model.Event{}
	}
	for rows.Next() {
		var height uint64
		var payload string
		if err := rows.Scan(&height, &payload); err != nil {
			return fmt.Errorf("scan event: %w", err)
		}
		ev, err := unmarshalEvent(payload)
		if err != nil {
			return fmt.Errorf("block %d: %w", height, err)
		}
		i, ok := byHeight[height]
		if !ok {
			continue
		}
		blocks[i].Events = append(blocks[i].Events, ev)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate events: %w", err)
	}
	return nil
}

func scanBlock(rows *sql.Rows) (model.Block, error) {
	var b model.Block
	var authority, instrs, md string
	var genesis int
	err := rows.Scan(
		&b.Height,
		&b.BatchID,
		&b.BatchHash,
		&b.PrevHash,
		&b.WorldHash,
		&b.Hash,
		&authority,
		&instrs,
		&md,
		&b.TimeMS,
		&b.PrevTimeMS,
		&genesis,
	)
	if err != nil {
		return model.Block{}, fmt.Errorf("scan block: %w", err)
	}
	b.Genesis = genesis != 0

	if b.Batch.Authority, err = ident.ParseAccountID(authority); err != nil {
		return model.Block{}, fmt.Errorf("scan block %d: %w", b.Height, err)
	}
	if b.Batch.Instructions, err = unmarshalInstructions(instrs); err != nil {
		return model.Block{}, fmt.Errorf("scan block %d: %w", b.Height, err)
	}
	if b.Batch.Metadata, err = unmarshalMetadata(md); err != nil {
		return model.Block{}, fmt.Errorf("scan block %d: %w", b.Height, err)
	}
	return b, nil
}
