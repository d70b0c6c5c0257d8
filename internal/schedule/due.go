package schedule

import (
	"time"

	"github.com/robfig/cron/v3"
)

// DueWithin reports whether the rule has a due instant inside the inclusive
// window [windowStart, windowEnd], evaluated against the local calendar in
// loc. At most one instant is returned per call; callers pass windows one
// tick-interval wide.
//
// The evaluation is pure: it never reads a wall clock. Calendar edge cases
// follow the cron wall-clock field matching that robfig/cron implements over
// the Go time package:
//
//   - A month day beyond the current month's length (31 in February) simply
//     never matches that month; the occurrence is skipped, never rolled to
//     month end.
//   - A local time erased by a DST spring-forward transition does not fire
//     that day.
//   - A local time repeated by a fall-back transition fires once, at its
//     first occurrence.
func DueWithin(r Rule, loc *time.Location, windowStart, windowEnd time.Time) (time.Time, bool) {
	sched, err := cron.ParseStandard(r.CronSpec())
	if err != nil {
		// Rules are validated before storage; an unparseable spec is a
		// programmer error and evaluates to never-due.
		return time.Time{}, false
	}

	// Next is strictly after its argument; back up one second so an instant
	// exactly at windowStart is included. The schedule carries no fixed
	// location, so Next matches fields in the location of its argument.
	next := sched.Next(windowStart.In(loc).Add(-time.Second))
	if next.IsZero() || next.After(windowEnd) {
		return time.Time{}, false
	}
	return next, true
}
