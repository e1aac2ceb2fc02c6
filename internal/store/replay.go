package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/ledger/internal/model"
)

// replayPageSize is the number of blocks loaded per query during Scan.
const replayPageSize = 256

// Scan calls fn for every stored block from height from onward, in height
// order, loading them a page at a time. It stops at the first error fn
// returns and checks that heights are contiguous and hashes chain. A from
// past the stored height scans nothing.
func (s *Store) Scan(ctx context.Context, from uint64, fn func(model.Block) error) error {
	if from == 0 {
		from = 1
	}
	var prev string
	if from > 1 {
		b, err := s.ReadBlock(ctx, from-1)
		if errors.Is(err, ErrNoBlock) {
			// Nothing at or after from is stored either.
			return nil
		}
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		prev = b.Hash
	}

	next := from
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := s.ReadBlocks(ctx, next, replayPageSize)
		if err != nil {
			return fmt.Errorf("scan from %d: %w", next, err)
		}
		for _, b := range page {
			if b.Height != next {
				return fmt.Errorf("scan: expected block %d, found %d", next, b.Height)
			}
			if b.PrevHash != prev {
				return fmt.Errorf("scan: block %d does not chain to block %d", b.Height, b.Height-1)
			}
			if err := fn(b); err != nil {
				return err
			}
			prev = b.Hash
			next++
		}
		if len(page) < replayPageSize {
			return nil
		}
	}
}
