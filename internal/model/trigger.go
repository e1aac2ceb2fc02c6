package model

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/roach88/ledger/internal/ident"
	"github.com/roach88/ledger/internal/value"
)

// Repeats is how many more times a trigger may fire.
type Repeats struct {
	Indefinitely bool
	Count        uint32
}

// Indefinitely never exhausts.
func Indefinitely() Repeats { return Repeats{Indefinitely: true} }

// Exactly returns a finite budget of n firings.
func Exactly(n uint32) Repeats { return Repeats{Count: n} }

// Exhausted reports whether no firings remain.
func (r Repeats) Exhausted() bool { return !r.Indefinitely && r.Count == 0 }

func (r Repeats) String() string {
	if r.Indefinitely {
		return "Indefinitely"
	}
	return strconv.FormatUint(uint64(r.Count), 10)
}

// MarshalJSON encodes r as "Indefinitely" or a number.
func (r Repeats) MarshalJSON() ([]byte, error) {
	if r.Indefinitely {
		return []byte(`"Indefinitely"`), nil
	}
	return []byte(strconv.FormatUint(uint64(r.Count), 10)), nil
}

// UnmarshalJSON accepts "Indefinitely" or a non-negative integer.
func (r *Repeats) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "Indefinitely" {
			return fmt.Errorf("repeats: unknown value %q", s)
		}
		*r = Indefinitely()
		return nil
	}
	var n uint32
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("repeats: %w", err)
	}
	*r = Exactly(n)
	return nil
}

// NeverFires is the NextFireMS of a schedule that has no instants left.
const NeverFires = math.MaxUint64

// Trigger pairs an event filter with an action.
//
// NextFireMS is owned by the trigger engine: for schedule filters it is the
// next instant (milliseconds since the Unix epoch) at which the trigger is
// due. It is zero for other filters.
type Trigger struct {
	ID         ident.TriggerID `json:"id"`
	Action     Action          `json:"action"`
	NextFireMS uint64          `json:"next_fire_ms,omitempty"`
}

// Action is what a trigger does when it fires.
type Action struct {
	Executable []Instruction
	Repeats    Repeats
	Authority  ident.AccountID
	Filter     EventFilter
	Metadata   value.Metadata
}

type actionJSON struct {
	Executable []json.RawMessage `json:"executable"`
	Repeats    Repeats           `json:"repeats"`
	Authority  ident.AccountID   `json:"authority"`
	Filter     json.RawMessage   `json:"filter"`
	Metadata   value.Metadata    `json:"metadata"`
}

// MarshalJSON implements json.Marshaler.
func (a Action) MarshalJSON() ([]byte, error) {
	out := actionJSON{
		Executable: make([]json.RawMessage, len(a.Executable)),
		Repeats:    a.Repeats,
		Authority:  a.Authority,
		Metadata:   a.Metadata,
	}
	for i, instr := range a.Executable {
		raw, err := MarshalInstruction(instr)
		if err != nil {
			return nil, fmt.Errorf("executable[%d]: %w", i, err)
		}
		out.Executable[i] = raw
	}
	filter, err := MarshalFilter(a.Filter)
	if err != nil {
		return nil, err
	}
	out.Filter = filter
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Action) UnmarshalJSON(data []byte) error {
	var raw actionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("action: %w", err)
	}
	out := Action{
		Executable: make([]Instruction, len(raw.Executable)),
		Repeats:    raw.Repeats,
		Authority:  raw.Authority,
		Metadata:   raw.Metadata,
	}
	for i, r := range raw.Executable {
		instr, err := UnmarshalInstruction(r)
		if err != nil {
			return fmt.Errorf("executable[%d]: %w", i, err)
		}
		out.Executable[i] = instr
	}
	filter, err := UnmarshalFilter(raw.Filter)
	if err != nil {
		return err
	}
	out.Filter = filter
	*a = out
	return nil
}

// EventFilter selects the events a trigger reacts to.
// Implemented by DataFilter, TimeFilter and ExecuteTriggerFilter.
type EventFilter interface {
	filterKind() string
}

// DataFilter matches data events. Empty fields match anything.
type DataFilter struct {
	// Entity restricts the kind of object the event is about.
	Entity EntityKind `json:"entity,omitempty"`
	// Events restricts the event kinds.
	Events []EventKind `json:"events,omitempty"`
	// ID restricts to one object, by canonical id text.
	ID string `json:"id,omitempty"`
	// Domain restricts to objects living in one domain.
	Domain *ident.DomainID `json:"domain,omitempty"`
}

// Matches reports whether ev passes the filter.
func (f DataFilter) Matches(ev Event) bool {
	if ev.Kind == EventExecuteTrigger {
		return false
	}
	if f.Entity != "" && ev.Entity.Kind != f.Entity {
		return false
	}
	if len(f.Events) > 0 && !slices.Contains(f.Events, ev.Kind) {
		return false
	}
	if f.ID != "" && ev.Entity.String() != f.ID {
		return false
	}
	if f.Domain != nil && !ev.Entity.InDomain(*f.Domain) {
		return false
	}
	return true
}

// Schedule fires at Start and then every Period. A zero Period fires once.
type Schedule struct {
	StartMS  uint64 `json:"start_ms"`
	PeriodMS uint64 `json:"period_ms,omitempty"`
}

// TimeFilter matches the pre-commit time check. Exactly one of Schedule and
// PreCommit is set.
type TimeFilter struct {
	Schedule  *Schedule `json:"schedule,omitempty"`
	PreCommit bool      `json:"pre_commit,omitempty"`
}

// ExecuteTriggerFilter matches explicit ExecuteTrigger calls for one trigger,
// optionally only from one authority.
type ExecuteTriggerFilter struct {
	Trigger   ident.TriggerID  `json:"trigger"`
	Authority *ident.AccountID `json:"authority,omitempty"`
}

// Matches reports whether ev is an ExecuteTrigger call this filter accepts.
func (f ExecuteTriggerFilter) Matches(ev Event) bool {
	if ev.Kind != EventExecuteTrigger || ev.Entity.Trigger != f.Trigger {
		return false
	}
	return f.Authority == nil || *f.Authority == ev.Authority
}

func (DataFilter) filterKind() string           { return "data" }
func (TimeFilter) filterKind() string           { return "time" }
func (ExecuteTriggerFilter) filterKind() string { return "execute_trigger" }

// MarshalFilter encodes f as a single-key envelope: {"data": {...}}.
func MarshalFilter(f EventFilter) ([]byte, error) {
	if f == nil {
		return nil, fmt.Errorf("marshal nil filter")
	}
	return json.Marshal(map[string]EventFilter{f.filterKind(): f})
}

// UnmarshalFilter decodes a filter envelope.
func UnmarshalFilter(data []byte) (EventFilter, error) {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	if len(env) != 1 {
		return nil, fmt.Errorf("filter: expected exactly one of data, time, execute_trigger")
	}
	for kind, body := range env {
		switch kind {
		case "data":
			var f DataFilter
			if err := json.Unmarshal(body, &f); err != nil {
				return nil, fmt.Errorf("data filter: %w", err)
			}
			return f, nil
		case "time":
			var f TimeFilter
			if err := json.Unmarshal(body, &f); err != nil {
				return nil, fmt.Errorf("time filter: %w", err)
			}
			if (f.Schedule == nil) == !f.PreCommit {
				return nil, fmt.Errorf("time filter: exactly one of schedule or pre_commit required")
			}
			return f, nil
		case "execute_trigger":
			var f ExecuteTriggerFilter
			if err := json.Unmarshal(body, &f); err != nil {
				return nil, fmt.Errorf("execute_trigger filter: %w", err)
			}
			return f, nil
		default:
			return nil, fmt.Errorf("filter: unknown kind %q", kind)
		}
	}
	panic("unreachable")
}
