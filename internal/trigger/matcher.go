package trigger

import "github.com/roach88/ledger/internal/model"

// Matches reports whether filter reacts to ev. Time filters never match
// events; they are driven by the pre-commit time check.
func Matches(filter model.EventFilter, ev model.Event) bool {
	switch f := filter.(type) {
	case model.DataFilter:
		return f.Matches(ev)
	case model.ExecuteTriggerFilter:
		return f.Matches(ev)
	default:
		return false
	}
}

// dueInstants counts the scheduled instants in (last, now] and returns the
// next instant after now, or model.NeverFires when none remain.
//
// A schedule without a period has the single instant Start.
func dueInstants(s model.Schedule, last, now uint64) (count uint64, next uint64) {
	if s.PeriodMS == 0 {
		switch {
		case s.StartMS <= last:
			return 0, model.NeverFires
		case s.StartMS <= now:
			return 1, model.NeverFires
		default:
			return 0, s.StartMS
		}
	}

	// first is the earliest instant strictly after last.
	first := s.StartMS
	if first <= last {
		first = s.StartMS + ((last-s.StartMS)/s.PeriodMS+1)*s.PeriodMS
	}
	if first > now {
		return 0, first
	}
	count = (now-first)/s.PeriodMS + 1
	return count, first + count*s.PeriodMS
}
