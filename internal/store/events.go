package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/ledger/internal/model"
)

// EventFilter selects stored events. Zero fields match everything.
type EventFilter struct {
	EntityKind model.EntityKind
	EntityID   string
	Kind       model.EventKind
	FromHeight uint64
	ToHeight   uint64
	Limit      int
}

// EventRecord is a stored event with its position in the chain.
type EventRecord struct {
	Height uint64
	Index  int
	Event  model.Event
}

// compile builds the parameterized query for f. Values are always bound as
// parameters and rows are always ordered by (height, idx).
func (f EventFilter) compile() (string, []any) {
	var where []string
	var params []any
	if f.EntityKind != "" {
		where = append(where, "entity_kind = ?")
		params = append(params, string(f.EntityKind))
	}
	if f.EntityID != "" {
		where = append(where, "entity_id = ?")
		params = append(params, f.EntityID)
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		params = append(params, string(f.Kind))
	}
	if f.FromHeight > 0 {
		where = append(where, "height >= ?")
		params = append(params, f.FromHeight)
	}
	if f.ToHeight > 0 {
		where = append(where, "height <= ?")
		params = append(params, f.ToHeight)
	}

	var b strings.Builder
	b.WriteString("SELECT height, idx, payload FROM events")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY height ASC, idx ASC LIMIT ?")

	limit := f.Limit
	if limit <= 0 {
		limit = -1
	}
	params = append(params, limit)
	return b.String(), params
}

// ReadEvents returns the stored events matching f in chain order.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ReadEvents(ctx context.Context, f EventFilter) ([]EventRecord, error) {
	if f.ToHeight > 0 && f.ToHeight < f.FromHeight {
		return nil, fmt.Errorf("read events: to height %d is below from height %d", f.ToHeight, f.FromHeight)
	}
	query, params := f.compile()
	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	out := []EventRecord{}
	for rows.Next() {
		var rec EventRecord
		var payload string
		if err := rows.Scan(&rec.Height, &rec.Index, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if rec.Event, err = unmarshalEvent(payload); err != nil {
			return nil, fmt.Errorf("block %d event %d: %w", rec.Height, rec.Index, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}
