package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/ledger/internal/ledgererr"
	"github.com/roach88/ledger/internal/model"
	"github.com/roach88/ledger/internal/value"
	"github.com/roach88/ledger/internal/world"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string   // Assertion type for categorization
	Expected string   // Human-readable expected outcome
	Actual   string   // Human-readable actual outcome
	Events   []string // Full event trace for debugging context; nil for state assertions
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Events) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, line := range e.Events {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, line)
		}
	}

	return buf.String()
}

// assertEventContains checks that the trace contains the event line.
func assertEventContains(events []string, assertion Assertion) error {
	for _, line := range events {
		if line == assertion.Event {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertEventContains,
		Expected: fmt.Sprintf("event %q", assertion.Event),
		Actual:   "not found in trace",
		Events:   events,
	}
}

// assertEventOrder checks if events appear in the specified order.
// Events don't need to be consecutive (intervening events are allowed).
// Each expected line is matched after the previous match, so a line may be
// listed more than once.
func assertEventOrder(events []string, assertion Assertion) error {
	pos := 0
	for i, want := range assertion.Events {
		found := -1
		for j := pos; j < len(events); j++ {
			if events[j] == want {
				found = j
				break
			}
		}
		if found < 0 {
			actual := fmt.Sprintf("missing event: %s", want)
			if i > 0 {
				actual = fmt.Sprintf("%s not found after %s (pos %d)", want, assertion.Events[i-1], pos)
			}
			return &AssertionError{
				Type:     AssertEventOrder,
				Expected: fmt.Sprintf("events in order: %q", assertion.Events),
				Actual:   actual,
				Events:   events,
			}
		}
		pos = found + 1
	}
	return nil
}

// assertEventCount checks if the event appears exactly the specified number of times.
func assertEventCount(events []string, assertion Assertion) error {
	count := 0
	for _, line := range events {
		if line == assertion.Event {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d occurrences of %q", assertion.Count, assertion.Event),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Events:   events,
		}
	}
	return nil
}

// assertFinalState checks an object in the final world. Expected fields are
// compared against the object's JSON form with subset semantics.
func assertFinalState(r world.Reader, assertion Assertion) error {
	ref := assertion.ref
	if ref.Kind == "" {
		var err error
		if ref, err = model.ParseRef(model.EntityKind(assertion.Entity), assertion.ID); err != nil {
			return err
		}
	}
	obj, err := lookup(r, ref)
	if assertion.Absent {
		if err == nil {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s %s to be absent", assertion.Entity, assertion.ID),
				Actual:   "object exists",
			}
		}
		if !ledgererr.IsNotFound(err) {
			return err
		}
		return nil
	}
	if err != nil {
		if ledgererr.IsNotFound(err) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s %s", assertion.Entity, assertion.ID),
				Actual:   "object not found",
			}
		}
		return err
	}

	actual, err := toGeneric(obj)
	if err != nil {
		return fmt.Errorf("final_state %s %s: %w", assertion.Entity, assertion.ID, err)
	}
	expected, err := toGeneric(value.ToStringMaps(assertion.Expect))
	if err != nil {
		return fmt.Errorf("final_state %s %s: expect: %w", assertion.Entity, assertion.ID, err)
	}

	if path, ok := matchSubset(actual, expected, ""); !ok {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s %s to contain %s", assertion.Entity, assertion.ID, compact(expected)),
			Actual:   fmt.Sprintf("mismatch at %s in %s", path, compact(actual)),
		}
	}
	return nil
}

// lookup fetches the object ref points at.
func lookup(r world.Reader, ref model.Ref) (any, error) {
	switch ref.Kind {
	case model.EntityDomain:
		return r.Domain(ref.Domain)
	case model.EntityAccount:
		return r.Account(ref.Account)
	case model.EntityAssetDefinition:
		return r.AssetDefinition(ref.AssetDefinition)
	case model.EntityAsset:
		return r.Asset(ref.Asset)
	case model.EntityRole:
		return r.Role(ref.Role)
	case model.EntityTrigger:
		return r.Trigger(ref.Trigger)
	default:
		return nil, fmt.Errorf("unknown entity kind %q", ref.Kind)
	}
}

// toGeneric round-trips v through JSON so that expected and actual values
// compare as the same Go types. Numbers decode as json.Number.
func toGeneric(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// matchSubset checks if actual contains expected. Objects match when every
// expected key matches; other values must be equal. It returns the path of
// the first mismatch.
func matchSubset(actual, expected any, path string) (string, bool) {
	exp, ok := expected.(map[string]any)
	if !ok {
		if reflect.DeepEqual(actual, expected) {
			return "", true
		}
		return orRoot(path), false
	}
	act, ok := actual.(map[string]any)
	if !ok {
		return orRoot(path), false
	}

	// Sort keys for a deterministic first mismatch
	keys := make([]string, 0, len(exp))
	for k := range exp {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v, exists := act[k]
		if !exists {
			return path + "." + k, false
		}
		if p, ok := matchSubset(v, exp[k], path+"."+k); !ok {
			return p, false
		}
	}
	return "", true
}

func orRoot(path string) string {
	if path == "" {
		return "."
	}
	return path
}

func compact(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// EvaluateAssertions evaluates all assertions against the result and the
// final world. Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, r world.Reader) []string {
	var errors []string
	events := result.events()

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertEventContains:
			err = assertEventContains(events, assertion)
		case AssertEventOrder:
			err = assertEventOrder(events, assertion)
		case AssertEventCount:
			err = assertEventCount(events, assertion)
		case AssertFinalState:
			if r == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires a world", i)
			} else {
				err = assertFinalState(r, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
