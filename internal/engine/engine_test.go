package engine

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledger/internal/ident"
	"github.com/roach88/ledger/internal/ledgererr"
	"github.com/roach88/ledger/internal/metrics"
	"github.com/roach88/ledger/internal/model"
	"github.com/roach88/ledger/internal/numeric"
	"github.com/roach88/ledger/internal/store"
	"github.com/roach88/ledger/internal/testutil"
	"github.com/roach88/ledger/internal/value"
	"github.com/roach88/ledger/internal/world"
)

var (
	wonderland = ident.MustDomainID("wonderland")
	alice      = ident.MustAccountID("alice@wonderland")
	bob        = ident.MustAccountID("bob@wonderland")
	rose       = ident.MustAssetDefinitionID("rose#wonderland")
	aliceRose  = ident.NewAssetID(rose, alice)
	bobRose    = ident.NewAssetID(rose, bob)
)

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestEngine(t *testing.T, clock *testutil.DeterministicClock, opts ...EngineOption) *Engine {
	t.Helper()
	base := []EngineOption{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithIDGenerator(testutil.NewSequentialIDGenerator("batch")),
		WithNow(clock.Now),
	}
	return New(world.New(), append(base, opts...)...)
}

// genesisBatch sets up wonderland owned by alice, accounts alice and bob,
// and alice's rose asset holding 13, plus any extra instructions.
func genesisBatch(extra ...model.Instruction) model.Batch {
	instrs := []model.Instruction{
		model.RegisterDomain{ID: wonderland},
		model.RegisterAccount{ID: alice},
		model.RegisterAccount{ID: bob},
		model.RegisterAssetDefinition{ID: rose, Type: model.NumericType(numeric.Integer())},
		model.RegisterAsset{ID: aliceRose, Value: model.NumericValue(numeric.MustInt(13))},
	}
	return model.Batch{Authority: alice, Instructions: append(instrs, extra...)}
}

func batch(instrs ...model.Instruction) model.Batch {
	return model.Batch{Authority: alice, Instructions: instrs}
}

func mintRose(n int64) model.Instruction {
	return model.MintAsset{Asset: aliceRose, Amount: numeric.MustInt(n)}
}

func roses(t *testing.T, e *Engine, id ident.AssetID) string {
	t.Helper()
	a, err := e.Snapshot().Asset(id)
	require.NoError(t, err)
	return a.Value.Numeric.String()
}

func lines(events []model.Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.String()
	}
	return out
}

func mustGenesis(t *testing.T, e *Engine, extra ...model.Instruction) {
	t.Helper()
	out, err := e.Genesis(context.Background(), genesisBatch(extra...))
	require.NoError(t, err)
	require.True(t, out.Committed)
	require.Equal(t, uint64(1), out.Height)
}

func TestEngine_GenesisThenBatch(t *testing.T) {
	e := newTestEngine(t, testutil.NewDeterministicClock(1000, time.Second))
	mustGenesis(t, e)

	out, err := e.Apply(context.Background(), batch(
		mintRose(3),
		model.TransferAsset{Source: aliceRose, Amount: numeric.MustInt(6), Destination: bob},
	))
	require.NoError(t, err)
	assert.True(t, out.Committed)
	assert.Nil(t, out.Rejected)
	assert.Equal(t, uint64(2), out.Height)
	assert.Equal(t, "batch-0002", out.BatchID)
	assert.Len(t, out.Hash, 64)
	assert.Equal(t, []string{
		"asset rose##alice@wonderland AmountIncreased 3",
		"asset rose##bob@wonderland Created",
		"asset rose##alice@wonderland AmountDecreased 6",
		"asset rose##bob@wonderland AmountIncreased 6",
	}, lines(out.Events))

	assert.Equal(t, "10", roses(t, e, aliceRose))
	assert.Equal(t, "6", roses(t, e, bobRose))

	st := e.Status()
	assert.Equal(t, uint64(2), st.Blocks)
	assert.Equal(t, uint64(2), st.TxsAccepted)
	assert.Equal(t, uint64(0), st.TxsRejected)
}

func TestEngine_GenesisOnlyFirst(t *testing.T) {
	e := newTestEngine(t, testutil.NewDeterministicClock(0, time.Second))
	mustGenesis(t, e)

	_, err := e.Genesis(context.Background(), genesisBatch())
	assert.ErrorIs(t, err, ErrGenesisNotFirst)
	assert.Equal(t, uint64(1), e.Height())
}

func TestEngine_RegisterDomainNeedsPermissionAfterGenesis(t *testing.T) {
	e := newTestEngine(t, testutil.NewDeterministicClock(0, time.Second))
	mustGenesis(t, e)

	_, err := e.Apply(context.Background(), model.Batch{
		Authority:    bob,
		Instructions: []model.Instruction{model.RegisterDomain{ID: ident.MustDomainID("looking_glass")}},
	})
	require.Error(t, err)
	assert.True(t, ledgererr.IsNotPermitted(err), "got %v", err)
}

func TestEngine_BatchAtomicity(t *testing.T) {
	e := newTestEngine(t, testutil.NewDeterministicClock(0, time.Second))
	mustGenesis(t, e)
	before, err := e.Snapshot().Hash()
	require.NoError(t, err)

	out, err := e.Apply(context.Background(), batch(
		mintRose(5),
		model.BurnAsset{Asset: aliceRose, Amount: numeric.MustInt(100)},
	))
	require.Error(t, err)

	var be *BatchError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, 1, be.Index)
	assert.Equal(t, "batch-0002", be.BatchID)
	assert.Equal(t, ledgererr.CodeInsufficientFunds, be.Code())

	assert.False(t, out.Committed)
	require.NotNil(t, out.Rejected)
	assert.Equal(t, 1, out.Rejected.Index)
	assert.Equal(t, ledgererr.CodeInsufficientFunds, out.Rejected.Code)

	after, err := e.Snapshot().Hash()
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, "13", roses(t, e, aliceRose))
	assert.Equal(t, uint64(1), e.Height())
	assert.Equal(t, uint64(1), e.Status().TxsRejected)
}

func TestEngine_TriggerEffectsRollBack(t *testing.T) {
	e := newTestEngine(t, testutil.NewDeterministicClock(0, time.Second))
	mustGenesis(t, e, model.RegisterTrigger{Trigger: model.Trigger{
		ID: ident.MustTriggerID("on_meta"),
		Action: model.Action{
			Executable: []model.Instruction{mintRose(1)},
			Repeats:    model.Indefinitely(),
			Authority:  alice,
			Filter:     model.DataFilter{Entity: model.EntityDomain, Events: []model.EventKind{model.EventMetadataInserted}},
		},
	}})
	setMotto := model.SetKeyValue{Object: model.DomainRef(wonderland), Key: ident.MustName("motto"), Value: value.String("curiouser")}

	_, err := e.Apply(context.Background(), batch(setMotto, model.BurnAsset{Asset: aliceRose, Amount: numeric.MustInt(1000)}))
	require.Error(t, err)
	assert.Equal(t, "13", roses(t, e, aliceRose))

	out, err := e.Apply(context.Background(), batch(setMotto))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"domain wonderland MetadataInserted motto",
		"asset rose##alice@wonderland AmountIncreased 1",
	}, lines(out.Events))
	assert.Equal(t, "14", roses(t, e, aliceRose))
}

func TestEngine_TriggerRecursionCap(t *testing.T) {
	e := newTestEngine(t, testutil.NewDeterministicClock(0, time.Second), WithMaxDepth(4))
	mustGenesis(t, e, model.RegisterTrigger{Trigger: model.Trigger{
		ID: ident.MustTriggerID("echo"),
		Action: model.Action{
			Executable: []model.Instruction{mintRose(1)},
			Repeats:    model.Indefinitely(),
			Authority:  alice,
			Filter:     model.DataFilter{ID: aliceRose.String(), Events: []model.EventKind{model.EventAmountIncreased}},
		},
	}})

	out, err := e.Apply(context.Background(), batch(model.Log{Message: "warmup"}, mintRose(1)))
	require.Error(t, err)
	assert.True(t, ledgererr.IsTriggerRecursionLimit(err), "got %v", err)
	require.NotNil(t, out.Rejected)
	assert.Equal(t, 1, out.Rejected.Index)
	assert.Equal(t, "13", roses(t, e, aliceRose))
}

func TestEngine_TimeTriggerPerElapsedPeriod(t *testing.T) {
	clock := testutil.NewDeterministicClock(1000, 0)
	e := newTestEngine(t, clock)
	mustGenesis(t, e, model.RegisterTrigger{Trigger: model.Trigger{
		ID: ident.MustTriggerID("tick"),
		Action: model.Action{
			Executable: []model.Instruction{mintRose(1)},
			Repeats:    model.Indefinitely(),
			Authority:  alice,
			Filter:     model.TimeFilter{Schedule: &model.Schedule{StartMS: 1500, PeriodMS: 1000}},
		},
	}})

	clock.Set(1200)
	_, err := e.Apply(context.Background(), batch(model.Log{Message: "too early"}))
	require.NoError(t, err)
	assert.Equal(t, "13", roses(t, e, aliceRose))

	clock.Set(3600)
	out, err := e.Apply(context.Background(), batch(model.Log{Message: "three periods"}))
	require.NoError(t, err)
	assert.Len(t, out.Events, 3)
	assert.Equal(t, "16", roses(t, e, aliceRose))

	// A clock that goes backwards does not refire anything.
	clock.Set(2000)
	_, err = e.Apply(context.Background(), batch(model.Log{Message: "backwards"}))
	require.NoError(t, err)
	assert.Equal(t, "16", roses(t, e, aliceRose))
}

func TestEngine_LongIdleGapStaysLive(t *testing.T) {
	clock := testutil.NewDeterministicClock(1000, 0)
	e := newTestEngine(t, clock, WithMaxSteps(4))
	mustGenesis(t, e, model.RegisterTrigger{Trigger: model.Trigger{
		ID: ident.MustTriggerID("every_second"),
		Action: model.Action{
			Executable: []model.Instruction{mintRose(1)},
			Repeats:    model.Indefinitely(),
			Authority:  alice,
			Filter:     model.TimeFilter{Schedule: &model.Schedule{StartMS: 1000, PeriodMS: 1000}},
		},
	}})

	steps := []struct {
		at    int64
		roses string
	}{
		{301000, "29"}, // 300 instants due, capped
		{302000, "30"},
		{400000, "46"},
	}
	for _, step := range steps {
		clock.Set(step.at)
		out, err := e.Apply(context.Background(), batch(model.Log{Message: "hello"}))
		require.NoError(t, err, "at %d", step.at)
		assert.True(t, out.Committed)
		assert.Equal(t, step.roses, roses(t, e, aliceRose), "at %d", step.at)
	}
	assert.Equal(t, uint64(4), e.Height())
}

func TestEngine_PreCommitFailureIndex(t *testing.T) {
	e := newTestEngine(t, testutil.NewDeterministicClock(0, time.Second))
	mustGenesis(t, e, model.RegisterTrigger{Trigger: model.Trigger{
		ID: ident.MustTriggerID("greedy"),
		Action: model.Action{
			Executable: []model.Instruction{model.BurnAsset{Asset: aliceRose, Amount: numeric.MustInt(1000)}},
			Repeats:    model.Indefinitely(),
			Authority:  alice,
			Filter:     model.TimeFilter{PreCommit: true},
		},
	}})

	_, err := e.Apply(context.Background(), batch(mintRose(1)))
	var be *BatchError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, PreCommit, be.Index)
	assert.Contains(t, be.Error(), "pre-commit")
	assert.Equal(t, "13", roses(t, e, aliceRose))
}

func TestEngine_RunSubmitStop(t *testing.T) {
	e := newTestEngine(t, testutil.NewDeterministicClock(0, time.Second))
	mustGenesis(t, e)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	p, err := e.Submit(batch(mintRose(1)))
	require.NoError(t, err)
	out, err := e.SubmitBlocking(ctx, batch(mintRose(2)))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), out.Height)

	first, err := p.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), first.Height)
	assert.Equal(t, "16", roses(t, e, aliceRose))

	e.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("Run did not return after Stop")
	}

	_, err = e.Submit(batch(mintRose(1)))
	assert.ErrorIs(t, err, ErrStopped)
}

func TestEngine_RunRejectedBatchReportsToSubmitter(t *testing.T) {
	e := newTestEngine(t, testutil.NewDeterministicClock(0, time.Second))
	mustGenesis(t, e)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	_, err := e.SubmitBlocking(ctx, batch(model.BurnAsset{Asset: bobRose, Amount: numeric.MustInt(1)}))
	require.Error(t, err)
	assert.True(t, IsRejected(err))
	assert.True(t, ledgererr.IsNotFound(err))

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestEngine_Subscribe(t *testing.T) {
	e := newTestEngine(t, testutil.NewDeterministicClock(0, time.Second))
	mustGenesis(t, e)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sub := e.Subscribe(ctx, model.DataFilter{Entity: model.EntityAsset, Events: []model.EventKind{model.EventAmountIncreased}})
	defer sub.Close()

	_, err := e.Apply(ctx, batch(model.Log{Message: "ignored"}, mintRose(4)))
	require.NoError(t, err)

	select {
	case ev := <-sub.Events():
		assert.Equal(t, "asset rose##alice@wonderland AmountIncreased 4", ev.String())
	case <-ctx.Done():
		t.Fatal("no event")
	}

	sub.Close()
	sub.Close()
	for range sub.Events() {
	}
}

func TestEngine_BlocksHistoryThenLive(t *testing.T) {
	e := newTestEngine(t, testutil.NewDeterministicClock(0, time.Second))
	mustGenesis(t, e)
	_, err := e.Apply(context.Background(), batch(mintRose(1)))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	bs, err := e.Blocks(ctx, 2)
	require.NoError(t, err)
	defer bs.Close()

	_, err = e.Apply(ctx, batch(mintRose(2)))
	require.NoError(t, err)

	var heights []uint64
	var prev string
	for len(heights) < 2 {
		select {
		case b := <-bs.Blocks():
			if prev != "" {
				assert.Equal(t, prev, b.PrevHash)
			}
			prev = b.Hash
			heights = append(heights, b.Height)
		case <-ctx.Done():
			t.Fatal("missing blocks")
		}
	}
	assert.Equal(t, []uint64{2, 3}, heights)
}

func TestEngine_ReplayReproducesWorldHash(t *testing.T) {
	s := setupTestStore(t)
	clock := testutil.NewDeterministicClock(1000, 700*time.Millisecond)
	tick := model.RegisterTrigger{Trigger: model.Trigger{
		ID: ident.MustTriggerID("tick"),
		Action: model.Action{
			Executable: []model.Instruction{mintRose(1)},
			Repeats:    model.Exactly(5),
			Authority:  alice,
			Filter:     model.TimeFilter{Schedule: &model.Schedule{StartMS: 1000, PeriodMS: 500}},
		},
	}}

	e := newTestEngine(t, clock, WithStore(s))
	mustGenesis(t, e, tick)
	ctx := context.Background()
	for _, b := range []model.Batch{
		batch(mintRose(2)),
		batch(model.TransferAsset{Source: aliceRose, Amount: numeric.MustInt(4), Destination: bob}),
		batch(model.BurnAsset{Asset: bobRose, Amount: numeric.MustInt(500)}),
		batch(model.SetKeyValue{Object: model.AccountRef(alice), Key: ident.MustName("nick"), Value: value.String("al")}),
	} {
		_, _ = e.Apply(ctx, b)
	}
	want, err := e.Snapshot().Hash()
	require.NoError(t, err)
	require.Equal(t, uint64(4), e.Height())

	replayed := newTestEngine(t, testutil.NewDeterministicClock(0, 0), WithStore(s))
	require.NoError(t, replayed.Replay(ctx))

	got, err := replayed.Snapshot().Hash()
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, uint64(4), replayed.Height())
	assert.Equal(t, roses(t, e, aliceRose), roses(t, replayed, aliceRose))

	st := replayed.Status()
	assert.Equal(t, uint64(4), st.TxsAccepted)
	assert.Equal(t, uint64(1), st.TxsRejected)

	// The replayed engine continues the chain.
	out, err := replayed.Apply(ctx, batch(mintRose(1)))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), out.Height)
}

func TestEngine_ReplayDetectsDivergence(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	e := newTestEngine(t, testutil.NewDeterministicClock(0, time.Second), WithStore(s), WithImplicitAssetOnMint(true))
	mustGenesis(t, e)
	_, err := e.Apply(ctx, batch(model.MintAsset{Asset: bobRose, Amount: numeric.MustInt(1)}))
	require.NoError(t, err)

	// Without implicit asset creation the second block cannot be replayed.
	replayed := newTestEngine(t, testutil.NewDeterministicClock(0, 0), WithStore(s))
	err = replayed.Replay(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "block 2")
	assert.True(t, ledgererr.IsNotFound(err))
}

func TestEngine_ReplayNeedsStore(t *testing.T) {
	e := newTestEngine(t, testutil.NewDeterministicClock(0, 0))
	assert.Error(t, e.Replay(context.Background()))
}

func TestEngine_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	e := newTestEngine(t, testutil.NewDeterministicClock(0, time.Second), WithMetrics(m))
	mustGenesis(t, e, model.RegisterTrigger{Trigger: model.Trigger{
		ID: ident.MustTriggerID("bell"),
		Action: model.Action{
			Executable: []model.Instruction{model.Log{Message: "ding"}},
			Repeats:    model.Indefinitely(),
			Authority:  alice,
			Filter:     model.ExecuteTriggerFilter{Trigger: ident.MustTriggerID("bell")},
		},
	}})

	ctx := context.Background()
	_, err := e.Apply(ctx, batch(mintRose(1), model.ExecuteTrigger{Trigger: ident.MustTriggerID("bell")}))
	require.NoError(t, err)
	_, err = e.Apply(ctx, batch(model.BurnAsset{Asset: aliceRose, Amount: numeric.MustInt(99)}))
	require.Error(t, err)

	assert.Equal(t, 2.0, promtest.ToFloat64(m.Batches.WithLabelValues(metrics.OutcomeCommitted)))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.Batches.WithLabelValues(metrics.OutcomeRejected)))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.Instructions.WithLabelValues("mint_asset")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.TriggerFirings))
	assert.Equal(t, 2.0, promtest.ToFloat64(m.Height))
}
