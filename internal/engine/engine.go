package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/ledger/internal/executor"
	"github.com/roach88/ledger/internal/ident"
	"github.com/roach88/ledger/internal/metrics"
	"github.com/roach88/ledger/internal/model"
	"github.com/roach88/ledger/internal/store"
	"github.com/roach88/ledger/internal/trigger"
	"github.com/roach88/ledger/internal/world"
)

// Engine is the single-writer batch processor.
//
// Thread-safety model:
//   - Submit, Apply, Snapshot, Subscribe, Blocks, Status: safe from any goroutine
//   - Run: must be called from exactly one goroutine
//
// INVARIANTS:
//   - At most one batch mutates the world at a time (e.mu)
//   - Blocks are published in height order, after they are stored
type Engine struct {
	world   *world.World
	exec    *executor.Executor
	runner  *trigger.Runner
	store   *store.Store
	metrics *metrics.Metrics
	logger  *slog.Logger
	ids     IDGenerator
	now     func() time.Time
	clock   *Clock
	queue   *fifo[*Pending]
	started time.Time

	maxSteps            int
	maxDepth            int
	implicitAssetOnMint bool

	// mu is the writer lock. It guards everything below and is held for
	// the whole of a batch.
	mu         sync.Mutex
	lastHash   string
	lastTimeMS uint64
	memBlocks  []model.Block // committed blocks when there is no store

	accepted atomic.Uint64
	rejected atomic.Uint64

	subs subscribers
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithStore appends committed blocks and rejections to s.
func WithStore(s *store.Store) EngineOption {
	return func(e *Engine) { e.store = s }
}

// WithMetrics records batch metrics on m.
func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the engine logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithIDGenerator sets the batch id generator. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) EngineOption {
	return func(e *Engine) { e.ids = g }
}

// WithNow sets the block time source. Default: time.Now.
func WithNow(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithMaxSteps sets the trigger firing budget per batch.
//
// Default: trigger.DefaultMaxSteps
func WithMaxSteps(n int) EngineOption {
	return func(e *Engine) { e.maxSteps = n }
}

// WithMaxDepth sets the trigger cascade depth limit.
//
// Default: trigger.DefaultMaxDepth
func WithMaxDepth(n int) EngineOption {
	return func(e *Engine) { e.maxDepth = n }
}

// WithImplicitAssetOnMint lets MintAsset register a missing asset.
func WithImplicitAssetOnMint(on bool) EngineOption {
	return func(e *Engine) { e.implicitAssetOnMint = on }
}

// New creates an engine over w. The world should be empty unless the
// caller then calls Replay against a store.
func New(w *world.World, opts ...EngineOption) *Engine {
	e := &Engine{
		world:  w,
		logger: slog.Default(),
		ids:    UUIDv7Generator{},
		now:    time.Now,
		clock:  NewClock(),
		queue:  newFIFO[*Pending](),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.exec = executor.New(executor.Options{
		ImplicitAssetOnMint: e.implicitAssetOnMint,
		Logger:              e.logger,
	})
	e.runner = trigger.New(e.exec, trigger.Options{
		MaxSteps: e.maxSteps,
		MaxDepth: e.maxDepth,
		Logger:   e.logger,
		OnFire:   func(_ ident.TriggerID) { e.metrics.IncrementTriggerFiring() },
	})
	e.subs.init()
	e.started = e.now()
	return e
}

// Pending is the future of a submitted batch.
type Pending struct {
	ID   string
	Hash string

	batch   model.Batch
	done    chan struct{}
	outcome Outcome
	err     error
}

// Wait blocks until the batch is processed or ctx is done. A rejected
// batch returns its Outcome together with a *BatchError.
func (p *Pending) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-ctx.Done():
		return Outcome{BatchID: p.ID, Hash: p.Hash}, ctx.Err()
	case <-p.done:
		return p.outcome, p.err
	}
}

func (p *Pending) resolve(out Outcome, err error) {
	p.outcome, p.err = out, err
	close(p.done)
}

func (e *Engine) prepare(b model.Batch) (*Pending, error) {
	hash, err := b.Hash()
	if err != nil {
		return nil, fmt.Errorf("hash batch: %w", err)
	}
	return &Pending{ID: e.ids.Generate(), Hash: hash, batch: b, done: make(chan struct{})}, nil
}

// Submit enqueues b for the Run loop and returns its future.
// Thread-safe: may be called from any goroutine.
func (e *Engine) Submit(b model.Batch) (*Pending, error) {
	p, err := e.prepare(b)
	if err != nil {
		return nil, err
	}
	if !e.queue.Enqueue(p) {
		return nil, ErrStopped
	}
	e.metrics.SetQueueDepth(e.queue.Len())
	e.logger.Debug("batch submitted", "batch_id", p.ID, "instructions", len(b.Instructions))
	return p, nil
}

// SubmitBlocking submits b and waits for its outcome.
func (e *Engine) SubmitBlocking(ctx context.Context, b model.Batch) (Outcome, error) {
	p, err := e.Submit(b)
	if err != nil {
		return Outcome{}, err
	}
	return p.Wait(ctx)
}

// Apply processes b on the caller's goroutine, bypassing the queue.
func (e *Engine) Apply(ctx context.Context, b model.Batch) (Outcome, error) {
	p, err := e.prepare(b)
	if err != nil {
		return Outcome{}, err
	}
	return e.process(ctx, p, false)
}

// Genesis commits b as the first block, executing every instruction
// without authorization and without triggers. It fails with
// ErrGenesisNotFirst once any block exists.
func (e *Engine) Genesis(ctx context.Context, b model.Batch) (Outcome, error) {
	p, err := e.prepare(b)
	if err != nil {
		return Outcome{}, err
	}
	return e.process(ctx, p, true)
}

// Run starts the single-writer batch loop.
// Blocks until ctx is cancelled or Stop is called. Batches still queued
// when Run returns fail with ErrStopped.
//
// A batch that fails for infrastructure reasons (store errors) is logged
// and reported to its submitter; the loop continues with the next batch.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting", "height", e.clock.Current())
	defer e.failQueued()

	for {
		if p, ok := e.queue.TryDequeue(); ok {
			e.metrics.SetQueueDepth(e.queue.Len())
			out, err := e.process(ctx, p, false)
			if err != nil && !IsRejected(err) {
				e.logger.Error("batch failed", "batch_id", p.ID, "error", err)
			}
			p.resolve(out, err)
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel closes when the queue is closed
			if e.queue.Closed() && e.queue.Len() == 0 {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop gracefully shuts down the engine. Run returns once the queue is
// empty.
func (e *Engine) Stop() {
	e.queue.Close()
}

func (e *Engine) failQueued() {
	for _, p := range e.queue.Drain() {
		p.resolve(Outcome{BatchID: p.ID, Hash: p.Hash}, ErrStopped)
	}
	e.metrics.SetQueueDepth(0)
}

// Snapshot returns a consistent read view of the last committed state.
func (e *Engine) Snapshot() *world.Snapshot {
	return e.world.Snapshot()
}

// Height returns the height of the last committed block.
func (e *Engine) Height() uint64 {
	return e.clock.Current()
}

// Status summarizes the engine.
type Status struct {
	Blocks      uint64        `json:"blocks"`
	TxsAccepted uint64        `json:"txs_accepted"`
	TxsRejected uint64        `json:"txs_rejected"`
	QueueSize   int           `json:"queue_size"`
	Uptime      time.Duration `json:"uptime_ns"`
}

// Status returns the current engine status.
func (e *Engine) Status() Status {
	return Status{
		Blocks:      e.clock.Current(),
		TxsAccepted: e.accepted.Load(),
		TxsRejected: e.rejected.Load(),
		QueueSize:   e.queue.Len(),
		Uptime:      e.now().Sub(e.started),
	}
}
