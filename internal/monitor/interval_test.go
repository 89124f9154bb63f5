package monitor

import (
	"errors"
	"testing"
	"time"
)

func TestFromSecondsRejectsNonPositive(t *testing.T) {
	t.Parallel()
	for _, n := range []int{0, -1, -3600} {
		if _, err := FromSeconds(n); !errors.Is(err, ErrBadInterval) {
			t.Fatalf("FromSeconds(%d) err = %v, want ErrBadInterval", n, err)
		}
	}
}

func TestFromSecondsDecomposition(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in      int
		want    Schedule
		period  time.Duration
		spec    string
		seconds string
		minutes string
		hours   string
	}{
		{30, Schedule{Seconds: 30}, 30 * time.Second, "@every 30s", "*/30", "*", "*"},
		{60, Schedule{Minutes: 1}, time.Minute, "@every 1m0s", "0", "*/1", "*"},
		{90, Schedule{Minutes: 1, Seconds: 30}, 90 * time.Second, "@every 1m30s", "*/30", "*/1", "*"},
		{3600, Schedule{Hours: 1}, time.Hour, "@every 1h0m0s", "0", "0", "*/1"},
		{3660, Schedule{Hours: 1, Minutes: 1}, time.Hour + time.Minute, "@every 1h1m0s", "0", "*/1", "*/1"},
		{7325, Schedule{Hours: 2, Minutes: 2, Seconds: 5}, 2*time.Hour + 2*time.Minute + 5*time.Second, "@every 2h2m5s", "*/5", "*/2", "*/2"},
	}
	for _, tc := range cases {
		got, err := FromSeconds(tc.in)
		if err != nil {
			t.Fatalf("FromSeconds(%d): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("FromSeconds(%d) = %+v, want %+v", tc.in, got, tc.want)
		}
		if got.Period() != tc.period {
			t.Fatalf("Period(%d) = %v, want %v", tc.in, got.Period(), tc.period)
		}
		if got.Spec() != tc.spec {
			t.Fatalf("Spec(%d) = %q, want %q", tc.in, got.Spec(), tc.spec)
		}
		sec, min, hr := got.Fields()
		if sec != tc.seconds || min != tc.minutes || hr != tc.hours {
			t.Fatalf("Fields(%d) = (%s, %s, %s), want (%s, %s, %s)",
				tc.in, sec, min, hr, tc.seconds, tc.minutes, tc.hours)
		}
	}
}

func TestPeriodMatchesInput(t *testing.T) {
	t.Parallel()
	// decomposition must never change the effective period
	for _, n := range []int{1, 59, 60, 61, 3599, 3600, 3661, 86400} {
		s, err := FromSeconds(n)
		if err != nil {
			t.Fatalf("FromSeconds(%d): %v", n, err)
		}
		if got := s.Period(); got != time.Duration(n)*time.Second {
			t.Fatalf("Period(%d) = %v", n, got)
		}
	}
}
