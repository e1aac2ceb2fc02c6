package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/roach88/ledger/internal/engine"
	"github.com/roach88/ledger/internal/model"
	"github.com/roach88/ledger/internal/store"
	"github.com/roach88/ledger/internal/testutil"
	"github.com/roach88/ledger/internal/world"
)

// DefaultStepMS spaces block times when a scenario sets no clock.
const DefaultStepMS = 1000

// Harness is the test execution engine.
// It runs scenarios with a deterministic clock and batch ids.
type Harness struct {
	engine *engine.Engine
	store  *store.Store
	clock  *testutil.DeterministicClock
	logger *slog.Logger
	seq    int
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs on a fresh world. Deterministic helpers ensure
// reproducible results.
//
// Execution flow:
// 1. Commit the genesis block
// 2. Execute setup batches (each must commit)
// 3. Execute flow batches with expect validation
// 4. Evaluate assertions against the trace and the final world
// 5. With verify_replay, rebuild the world from the stored blocks
//
// A returned error means the scenario could not run (a bad genesis, a
// failing setup batch, a store error). Unmet expectations are reported in
// the Result.
func Run(scenario *Scenario) (*Result, error) {
	h := &Harness{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	if scenario.VerifyReplay {
		dir, err := os.MkdirTemp("", "ledger-harness-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
		defer os.RemoveAll(dir)
		st, err := store.Open(filepath.Join(dir, "blocks.db"))
		if err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
		defer st.Close()
		h.store = st
	}

	h.engine = h.newEngine(scenario)
	ctx := context.Background()
	result := NewResult()

	out, err := h.engine.Genesis(ctx, scenario.genesisBatch)
	if err != nil {
		return nil, fmt.Errorf("failed to commit genesis: %w", err)
	}
	result.Trace = append(result.Trace, h.record(PhaseGenesis, out))

	if err := h.executeSetup(ctx, scenario.Setup, result); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	snap := h.engine.Snapshot()
	result.Height = h.engine.Height()
	if result.WorldHash, err = snap.Hash(); err != nil {
		return nil, fmt.Errorf("failed to hash world: %w", err)
	}

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, snap) {
		result.AddError(errMsg)
	}

	if h.store != nil {
		if err := h.verifyReplay(ctx, scenario, result); err != nil {
			result.AddError(err.Error())
		}
	}

	return result, nil
}

func (h *Harness) newEngine(s *Scenario) *engine.Engine {
	step := s.Clock.StepMS
	if step == 0 {
		step = DefaultStepMS
	}
	h.clock = testutil.NewDeterministicClock(s.Clock.StartMS, time.Duration(step)*time.Millisecond)

	opts := append(h.engineOptions(s),
		engine.WithIDGenerator(testutil.NewSequentialIDGenerator("batch")),
		engine.WithNow(h.clock.Now),
	)
	return engine.New(world.New(), opts...)
}

// engineOptions are the options shared by the live and the replaying
// engine. Zero trigger bounds fall back to the engine defaults.
func (h *Harness) engineOptions(s *Scenario) []engine.EngineOption {
	opts := []engine.EngineOption{
		engine.WithLogger(h.logger),
		engine.WithMaxSteps(s.Engine.MaxSteps),
		engine.WithMaxDepth(s.Engine.MaxDepth),
		engine.WithImplicitAssetOnMint(s.Engine.ImplicitAssetOnMint),
	}
	if h.store != nil {
		opts = append(opts, engine.WithStore(h.store))
	}
	return opts
}

// executeSetup runs all setup batches. Any rejection aborts the run.
func (h *Harness) executeSetup(ctx context.Context, setup []BatchStep, result *Result) error {
	for i, step := range setup {
		out, err := h.engine.Apply(ctx, step.batch)
		if err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
		result.Trace = append(result.Trace, h.record(PhaseSetup, out))
		h.logger.Info("setup batch committed", "step", i, "height", out.Height)
	}
	return nil
}

// executeFlow runs all flow batches and validates expect clauses.
func (h *Harness) executeFlow(ctx context.Context, flow []BatchStep, result *Result) error {
	for i, step := range flow {
		out, err := h.engine.Apply(ctx, step.batch)
		if err != nil && !engine.IsRejected(err) {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
		te := h.record(PhaseFlow, out)
		result.Trace = append(result.Trace, te)

		if step.Expect != nil {
			for _, msg := range checkExpect(step.Expect, te) {
				result.AddError(fmt.Sprintf("flow[%d]: %s", i, msg))
			}
		}

		h.logger.Info("flow batch processed",
			"step", i,
			"batch_id", out.BatchID,
			"outcome", te.Outcome,
		)
	}
	return nil
}

// record turns an outcome into a trace entry.
func (h *Harness) record(phase string, out engine.Outcome) TraceEvent {
	h.seq++
	te := TraceEvent{Seq: h.seq, Phase: phase, BatchID: out.BatchID}
	if !out.Committed {
		te.Outcome = OutcomeRejected
		if out.Rejected != nil {
			index := out.Rejected.Index
			te.Index = &index
			te.Code = string(out.Rejected.Code)
		}
		return te
	}
	te.Outcome = OutcomeCommitted
	te.Height = out.Height
	te.Events = eventLines(out.Events)
	return te
}

func eventLines(events []model.Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.String()
	}
	return out
}

func checkExpect(e *ExpectClause, te TraceEvent) []string {
	var msgs []string
	if te.Outcome != e.Outcome {
		msg := fmt.Sprintf("expected outcome %s, got %s", e.Outcome, te.Outcome)
		if te.Code != "" {
			msg += fmt.Sprintf(" (%s at index %d)", te.Code, *te.Index)
		}
		return append(msgs, msg)
	}
	if e.Code != "" && te.Code != e.Code {
		msgs = append(msgs, fmt.Sprintf("expected code %s, got %s", e.Code, te.Code))
	}
	if e.Index != nil && te.Index != nil && *te.Index != *e.Index {
		msgs = append(msgs, fmt.Sprintf("expected index %d, got %d", *e.Index, *te.Index))
	}
	if e.Events != nil && !slices.Equal(e.Events, te.Events) {
		msgs = append(msgs, fmt.Sprintf("expected events %q, got %q", e.Events, te.Events))
	}
	return msgs
}

// verifyReplay rebuilds the world from the store on a fresh engine and
// compares it with the live one.
func (h *Harness) verifyReplay(ctx context.Context, s *Scenario, result *Result) error {
	replayed := engine.New(world.New(), h.engineOptions(s)...)
	if err := replayed.Replay(ctx); err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	got, err := replayed.Snapshot().Hash()
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	if got != result.WorldHash {
		return errors.New("replay: replayed world hash differs from the live one")
	}
	if replayed.Height() != result.Height {
		return fmt.Errorf("replay: replayed height %d, live height %d", replayed.Height(), result.Height)
	}
	return nil
}
