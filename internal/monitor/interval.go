package monitor

import (
	"errors"
	"fmt"
	"time"
)

// ErrBadInterval rejects non-positive polling intervals at configuration time.
var ErrBadInterval = errors.New("interval must be at least 1 second")

// Schedule is a polling interval decomposed into hours/minutes/seconds.
type Schedule struct {
	Hours   int
	Minutes int
	Seconds int
}

// FromSeconds decomposes a total-seconds interval by integer division.
// Total for every total >= 1; zero and negatives are configuration errors.
func FromSeconds(total int) (Schedule, error) {
	if total < 1 {
		return Schedule{}, fmt.Errorf("%d: %w", total, ErrBadInterval)
	}
	minutes, seconds := total/60, total%60
	hours, minutes := minutes/60, minutes%60
	return Schedule{Hours: hours, Minutes: minutes, Seconds: seconds}, nil
}

// Period is the exact recurrence the schedule stands for.
func (s Schedule) Period() time.Duration {
	return time.Duration(s.Hours)*time.Hour +
		time.Duration(s.Minutes)*time.Minute +
		time.Duration(s.Seconds)*time.Second
}

// Spec renders the schedule as a cron "@every" directive. The engine fires at
// the exact period; the per-unit decomposition exists only for display.
func (s Schedule) Spec() string {
	return "@every " + s.Period().String()
}

// Fields renders a cron-style (seconds, minutes, hours) view of the schedule:
// every non-zero unit becomes "*/N", a zero unit below a non-zero one is
// pinned to "0", and units above the coarsest non-zero one stay "*". When both
// hours and minutes are non-zero, both are kept. This view is informational;
// scheduling always goes through Spec.
func (s Schedule) Fields() (secondsField, minutesField, hoursField string) {
	field := func(v int, coarserSet bool) string {
		switch {
		case v > 0:
			return fmt.Sprintf("*/%d", v)
		case coarserSet:
			return "0"
		default:
			return "*"
		}
	}
	hoursField = field(s.Hours, false)
	minutesField = field(s.Minutes, s.Hours > 0)
	secondsField = field(s.Seconds, s.Hours > 0 || s.Minutes > 0)
	return secondsField, minutesField, hoursField
}
