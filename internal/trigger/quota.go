package trigger

import (
	"strconv"

	"github.com/roach88/ledger/internal/ident"
	"github.com/roach88/ledger/internal/ledgererr"
)

// Default cascade bounds.
const (
	DefaultMaxSteps = 256
	DefaultMaxDepth = 16
)

// Quota bounds the trigger firings of one batch.
//
// Steps counts the event-driven firings of the batch and catches long
// linear chains. Depth is the number of firings between an
// event and the batch instruction it descends from, and catches triggers
// that keep re-arming each other. Exceeding either fails the batch.
type Quota struct {
	maxSteps int
	maxDepth int
	steps    int
}

// NewQuota creates a quota. Non-positive limits fall back to the defaults.
func NewQuota(maxSteps, maxDepth int) *Quota {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Quota{maxSteps: maxSteps, maxDepth: maxDepth}
}

// Check counts one firing of id at depth and fails with
// TriggerRecursionLimit when a bound is exceeded.
func (q *Quota) Check(id ident.TriggerID, depth int) error {
	q.steps++
	if q.steps > q.maxSteps {
		return ledgererr.New(ledgererr.CodeTriggerRecursionLimit,
			"trigger %s: %d firings exceed the limit of %d", id, q.steps, q.maxSteps).
			With("trigger", id.String()).
			With("max_steps", strconv.Itoa(q.maxSteps))
	}
	return q.CheckDepth(id, depth)
}

// CheckDepth fails with TriggerRecursionLimit when depth exceeds the depth
// bound. It does not count a step.
func (q *Quota) CheckDepth(id ident.TriggerID, depth int) error {
	if depth > q.maxDepth {
		return ledgererr.New(ledgererr.CodeTriggerRecursionLimit,
			"trigger %s: cascade depth %d exceeds the limit of %d", id, depth, q.maxDepth).
			With("trigger", id.String()).
			With("max_depth", strconv.Itoa(q.maxDepth))
	}
	return nil
}

// Steps returns the number of firings counted so far.
func (q *Quota) Steps() int { return q.steps }
