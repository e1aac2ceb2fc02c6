// Package trigger runs the triggers a batch sets off.
//
// A Session belongs to one batch and one world.Tx. Cascade matches the
// batch's events against every active trigger in trigger-id order and
// fires each match under the trigger's authority. The events a firing
// raises are queued behind the ones already waiting, so the cascade runs
// breadth-first. TimeCheck fires schedule and pre-commit triggers at the
// pre-commit point and cascades their events the same way.
//
// Each firing uses up one repetition. A trigger whose repetitions run out
// is unregistered and a Deleted event is raised for it. Any failing action
// fails the whole batch.
package trigger

import (
	"fmt"
	"log/slog"

	"github.com/roach88/ledger/internal/executor"
	"github.com/roach88/ledger/internal/ident"
	"github.com/roach88/ledger/internal/model"
	"github.com/roach88/ledger/internal/world"
)

// DefaultMaxCatchUp bounds how many missed instants of one schedule a
// single time check fires.
const DefaultMaxCatchUp = 16

// Options configures a Runner.
type Options struct {
	MaxSteps int
	MaxDepth int

	// MaxCatchUp caps the firings of one schedule trigger per time check.
	// Older instants beyond the cap are skipped. Non-positive means
	// DefaultMaxCatchUp.
	MaxCatchUp int

	Logger *slog.Logger

	// OnFire, when set, is called after every successful firing.
	OnFire func(id ident.TriggerID)
}

// Runner creates per-batch sessions.
type Runner struct {
	exec   *executor.Executor
	opts   Options
	logger *slog.Logger
}

// New creates a runner that executes trigger actions with exec.
func New(exec *executor.Executor, opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{exec: exec, opts: opts, logger: logger}
}

// Session is the trigger state of one batch.
type Session struct {
	r     *Runner
	tx    *world.Tx
	quota *Quota
	queue queue
}

// Begin starts a session on tx.
func (r *Runner) Begin(tx *world.Tx) *Session {
	return &Session{r: r, tx: tx, quota: NewQuota(r.opts.MaxSteps, r.opts.MaxDepth)}
}

// Steps returns the number of firings so far.
func (s *Session) Steps() int { return s.quota.Steps() }

// Cascade feeds events through the data and execute-trigger filters and
// returns the events raised by the resulting firings, in firing order.
func (s *Session) Cascade(events []model.Event) ([]model.Event, error) {
	s.queue.push(0, events...)
	return s.drain()
}

// TimeCheck fires every schedule trigger once per scheduled instant in
// (lastMS, nowMS], at most MaxCatchUp times, and every pre-commit trigger
// once, then cascades the raised events. Triggers are visited in id order.
//
// The firings made here directly are not counted against MaxSteps, so a
// long gap between blocks cannot exhaust the step budget. The cascades
// they start are counted.
func (s *Session) TimeCheck(lastMS, nowMS uint64) ([]model.Event, error) {
	var raised []model.Event
	for _, t := range s.timeTriggers() {
		f := t.Action.Filter.(model.TimeFilter)
		firings := uint64(1)
		if f.Schedule != nil {
			if t.NextFireMS > nowMS {
				continue
			}
			count, next := dueInstants(*f.Schedule, lastMS, nowMS)
			if err := s.setNextFire(t.ID, next); err != nil {
				return raised, err
			}
			if limit := s.r.maxCatchUp(); count > limit {
				s.r.logger.Warn("schedule instants skipped",
					"trigger", t.ID.String(),
					"due", count,
					"fired", limit,
				)
				count = limit
			}
			firings = count
		}
		for range firings {
			events, fired, err := s.fireUncounted(t.ID, 1)
			if err != nil {
				return raised, err
			}
			if !fired {
				break
			}
			raised = append(raised, events...)
			s.queue.push(1, events...)
		}
	}
	cascaded, err := s.drain()
	return append(raised, cascaded...), err
}

func (s *Session) timeTriggers() []model.Trigger {
	var out []model.Trigger
	for t := range s.tx.Triggers() {
		if _, ok := t.Action.Filter.(model.TimeFilter); ok {
			out = append(out, t)
		}
	}
	return out
}

func (s *Session) setNextFire(id ident.TriggerID, next uint64) error {
	t, err := s.tx.Trigger(id)
	if err != nil {
		return err
	}
	t.NextFireMS = next
	return s.tx.UpdateTrigger(t)
}

// drain matches queued events until the queue is empty.
func (s *Session) drain() ([]model.Event, error) {
	var raised []model.Event
	for {
		p, ok := s.queue.pop()
		if !ok {
			return raised, nil
		}
		for _, id := range s.matching(p.event) {
			events, fired, err := s.fire(id, p.depth+1)
			if err != nil {
				return raised, err
			}
			if fired {
				raised = append(raised, events...)
				s.queue.push(p.depth+1, events...)
			}
		}
	}
}

// matching returns the ids of the active triggers whose filter accepts ev.
func (s *Session) matching(ev model.Event) []ident.TriggerID {
	var ids []ident.TriggerID
	for t := range s.tx.Triggers() {
		if !t.Action.Repeats.Exhausted() && Matches(t.Action.Filter, ev) {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

func (r *Runner) maxCatchUp() uint64 {
	if r.opts.MaxCatchUp <= 0 {
		return DefaultMaxCatchUp
	}
	return uint64(r.opts.MaxCatchUp)
}

// fire runs one firing of id at depth. It reports fired=false when the
// trigger is gone or exhausted by the time its turn comes.
func (s *Session) fire(id ident.TriggerID, depth int) (events []model.Event, fired bool, err error) {
	return s.run(id, depth, true)
}

// fireUncounted is fire without a step, for the time check's own firings.
func (s *Session) fireUncounted(id ident.TriggerID, depth int) (events []model.Event, fired bool, err error) {
	return s.run(id, depth, false)
}

func (s *Session) run(id ident.TriggerID, depth int, counted bool) (events []model.Event, fired bool, err error) {
	t, err := s.tx.Trigger(id)
	if err != nil || t.Action.Repeats.Exhausted() {
		return nil, false, nil
	}
	check := s.quota.CheckDepth
	if counted {
		check = s.quota.Check
	}
	if err := check(id, depth); err != nil {
		return nil, false, err
	}
	s.r.logger.Debug("trigger firing", "trigger", id.String(), "depth", depth, "authority", t.Action.Authority.String())

	for i, instr := range t.Action.Executable {
		out, err := s.r.exec.Apply(s.tx, t.Action.Authority, instr)
		if err != nil {
			return nil, false, fmt.Errorf("trigger %s: action %d (%s): %w", id, i, instr.Kind(), err)
		}
		events = append(events, out...)
	}

	spent, err := s.spend(id)
	if err != nil {
		return nil, false, fmt.Errorf("trigger %s: %w", id, err)
	}
	if s.r.opts.OnFire != nil {
		s.r.opts.OnFire(id)
	}
	return append(events, spent...), true, nil
}

// spend uses up one repetition of id, unregistering it when none are left.
// A trigger its own action removed is left alone.
func (s *Session) spend(id ident.TriggerID) ([]model.Event, error) {
	t, err := s.tx.Trigger(id)
	if err != nil {
		return nil, nil
	}
	if t.Action.Repeats.Indefinitely {
		return nil, nil
	}
	t.Action.Repeats.Count--
	if !t.Action.Repeats.Exhausted() {
		return nil, s.tx.UpdateTrigger(t)
	}
	refs, err := s.tx.UnregisterTrigger(id)
	if err != nil {
		return nil, err
	}
	events := make([]model.Event, len(refs))
	for i, ref := range refs {
		events[i] = model.Event{Kind: model.EventDeleted, Entity: ref}
	}
	return events, nil
}
