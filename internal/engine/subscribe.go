package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/ledger/internal/model"
	"github.com/roach88/ledger/internal/trigger"
)

// stream delivers items to one subscriber. Items are buffered in an
// unbounded fifo and pumped to the out channel by a goroutine, so the
// writer never waits on a subscriber.
type stream[T any] struct {
	q      *fifo[T]
	out    chan T
	stop   chan struct{}
	once   sync.Once
	detach func()
}

func newStream[T any](detach func()) *stream[T] {
	return &stream[T]{
		q:      newFIFO[T](),
		out:    make(chan T),
		stop:   make(chan struct{}),
		detach: detach,
	}
}

func (s *stream[T]) pump(ctx context.Context) {
	defer close(s.out)
	defer s.close()
	for {
		if v, ok := s.q.TryDequeue(); ok {
			select {
			case s.out <- v:
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			}
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-s.q.Wait():
		}
	}
}

func (s *stream[T]) close() {
	s.once.Do(func() {
		close(s.stop)
		s.q.Close()
		s.detach()
	})
}

// Subscription receives committed events that pass its filter.
type Subscription struct {
	s      *stream[model.Event]
	filter model.EventFilter
}

// Events returns the event channel. It is closed after Close or when the
// subscription's context is done.
func (sub *Subscription) Events() <-chan model.Event { return sub.s.out }

// Close ends the subscription. Safe to call more than once.
func (sub *Subscription) Close() { sub.s.close() }

func (sub *Subscription) accepts(ev model.Event) bool {
	return sub.filter == nil || trigger.Matches(sub.filter, ev)
}

// BlockStream receives committed blocks in height order.
type BlockStream struct {
	s    *stream[model.Block]
	from uint64
}

// Blocks returns the block channel. It is closed after Close or when the
// stream's context is done.
func (bs *BlockStream) Blocks() <-chan model.Block { return bs.s.out }

// Close ends the stream. Safe to call more than once.
func (bs *BlockStream) Close() { bs.s.close() }

type subscribers struct {
	mu     sync.Mutex
	events map[*Subscription]struct{}
	blocks map[*BlockStream]struct{}
}

func (ss *subscribers) init() {
	ss.events = make(map[*Subscription]struct{})
	ss.blocks = make(map[*BlockStream]struct{})
}

// publish hands a committed block to every subscriber. Events of the
// block reach a Subscription only after the block is stored.
func (ss *subscribers) publish(block model.Block) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	for sub := range ss.events {
		for _, ev := range block.Events {
			if sub.accepts(ev) {
				sub.s.q.Enqueue(ev)
			}
		}
	}
	for bs := range ss.blocks {
		if block.Height >= bs.from {
			bs.s.q.Enqueue(block)
		}
	}
}

// Subscribe streams the events of every block committed from now on that
// pass filter. A nil filter passes everything. Data and execute-trigger
// filters match as they do for triggers; time filters match nothing.
//
// The subscription ends when ctx is done or Close is called.
func (e *Engine) Subscribe(ctx context.Context, filter model.EventFilter) *Subscription {
	sub := &Subscription{filter: filter}
	sub.s = newStream[model.Event](func() {
		e.subs.mu.Lock()
		delete(e.subs.events, sub)
		e.subs.mu.Unlock()
	})

	e.subs.mu.Lock()
	e.subs.events[sub] = struct{}{}
	e.subs.mu.Unlock()

	go sub.s.pump(ctx)
	return sub
}

// Blocks streams committed blocks starting at height from: first the
// stored history, then blocks as they commit. A from of 0 starts at the
// first block.
func (e *Engine) Blocks(ctx context.Context, from uint64) (*BlockStream, error) {
	if from == 0 {
		from = 1
	}
	bs := &BlockStream{from: from}
	bs.s = newStream[model.Block](func() {
		e.subs.mu.Lock()
		delete(e.subs.blocks, bs)
		e.subs.mu.Unlock()
	})

	// Holding the writer lock keeps a block from committing between the
	// history read and the registration.
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.scanHistory(ctx, from, func(b model.Block) error {
		bs.s.q.Enqueue(b)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("block history: %w", err)
	}

	e.subs.mu.Lock()
	e.subs.blocks[bs] = struct{}{}
	e.subs.mu.Unlock()

	go bs.s.pump(ctx)
	return bs, nil
}
