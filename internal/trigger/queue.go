package trigger

import "github.com/roach88/ledger/internal/model"

// pending is an event waiting to be matched, with the cascade depth of the
// firing that raised it. Batch events have depth 0.
type pending struct {
	event model.Event
	depth int
}

// queue is the FIFO of events awaiting matching. It is owned by one
// Session and needs no locking.
type queue struct {
	items []pending
}

func (q *queue) push(depth int, events ...model.Event) {
	for _, ev := range events {
		q.items = append(q.items, pending{event: ev, depth: depth})
	}
}

func (q *queue) pop() (pending, bool) {
	if len(q.items) == 0 {
		return pending{}, false
	}
	p := q.items[0]
	// Clear the slot so the backing array does not pin event payloads.
	q.items[0] = pending{}
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return p, true
}

func (q *queue) len() int { return len(q.items) }
