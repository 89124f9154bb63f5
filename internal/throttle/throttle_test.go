package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"relaybot/internal/store"
	"relaybot/pkg/logx"
)

func newTestGate(t *testing.T, buckets ...Bucket) (*Gate, *store.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	st := store.Wrap(rdb, logx.Nop())

	g, err := NewGate(st, logx.Nop(), buckets...)
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	return g, st
}

func TestBucketValidation(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	st := store.Wrap(rdb, logx.Nop())

	cases := []struct {
		name string
		b    Bucket
	}{
		{"zero limit", Bucket{Key: "k", Window: time.Second, Limit: 0}},
		{"negative limit", Bucket{Key: "k", Window: time.Second, Limit: -1}},
		{"zero window", Bucket{Key: "k", Limit: 2}},
		{"empty key", Bucket{Window: time.Second, Limit: 2}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewGate(st, logx.Nop(), tc.b); err == nil {
				t.Fatal("expected constructor error")
			}
		})
	}
}

func TestMonotonicity(t *testing.T) {
	t.Parallel()
	g, _ := newTestGate(t, Bucket{Key: "msgs", Window: 10 * time.Second, Limit: 2})
	ctx := context.Background()

	now := time.Unix(1_700_000_000, 0)
	g.now = func() time.Time { return now }

	warns := 0
	for i := 1; i <= 5; i++ {
		d, err := g.Admit(ctx, "msgs", 1)
		if err != nil {
			t.Fatalf("Admit #%d: %v", i, err)
		}
		wantThrottled := i > 2
		if d.Throttled != wantThrottled {
			t.Fatalf("call %d: throttled = %v, want %v", i, d.Throttled, wantThrottled)
		}
		if d.Warn {
			warns++
		}
	}
	// exactly one warning across the whole burst
	if warns != 1 {
		t.Fatalf("warns = %d, want 1", warns)
	}
}

func TestEscalationGrowsWindow(t *testing.T) {
	t.Parallel()
	const win = 10 * time.Second
	g, st := newTestGate(t, Bucket{Key: "msgs", Window: win, Limit: 2})
	ctx := context.Background()

	now := time.Unix(1_700_000_000, 0)
	g.now = func() time.Time { return now }

	for i := 0; i < 6; i++ {
		if _, err := g.Admit(ctx, "msgs", 1); err != nil {
			t.Fatalf("Admit: %v", err)
		}
	}

	var w window
	ok, err := st.GetUser(ctx, 1, "msgs", &w)
	if err != nil || !ok {
		t.Fatalf("window read: ok=%v err=%v", ok, err)
	}
	// 6 admits with limit 2 accumulate overhead 0+0+1+1+2+2 = 6 extra windows
	wantReset := now.Add(win).UnixMilli() + 6*win.Milliseconds()
	if w.ResetAt != wantReset {
		t.Fatalf("ResetAt = %d, want %d", w.ResetAt, wantReset)
	}
	if w.ResetAt <= now.Add(win).UnixMilli() {
		t.Fatal("penalty window did not grow")
	}
}

func TestWindowResetCallback(t *testing.T) {
	t.Parallel()
	const win = 10 * time.Second

	var (
		calls  int
		gotUID int64
		gotCnt int
	)
	g, _ := newTestGate(t, Bucket{
		Key:    "paid",
		Window: win,
		Limit:  2,
		OnReset: func(_ context.Context, userID int64, count int) error {
			calls++
			gotUID = userID
			gotCnt = count
			return nil
		},
	})
	ctx := context.Background()

	now := time.Unix(1_700_000_000, 0)
	g.now = func() time.Time { return now }

	for i := 0; i < 7; i++ {
		if _, err := g.Admit(ctx, "paid", 9); err != nil {
			t.Fatalf("Admit: %v", err)
		}
	}
	if calls != 0 {
		t.Fatalf("callback fired inside the window (%d times)", calls)
	}

	// jump far past the escalated window so the next admit rolls over
	now = now.Add(24 * time.Hour)
	d, err := g.Admit(ctx, "paid", 9)
	if err != nil {
		t.Fatalf("Admit after rollover: %v", err)
	}
	if d.Throttled {
		t.Fatal("first admit of a fresh window must not be throttled")
	}
	if calls != 1 || gotUID != 9 || gotCnt != 7 {
		t.Fatalf("callback calls=%d user=%d count=%d, want 1/9/7", calls, gotUID, gotCnt)
	}
}

func TestWarningClearsAtRollover(t *testing.T) {
	t.Parallel()
	const win = 10 * time.Second
	g, _ := newTestGate(t, Bucket{Key: "msgs", Window: win, Limit: 2})
	ctx := context.Background()

	now := time.Unix(1_700_000_000, 0)
	g.now = func() time.Time { return now }

	warnsFirst := 0
	for i := 0; i < 4; i++ {
		d, _ := g.Admit(ctx, "msgs", 5)
		if d.Warn {
			warnsFirst++
		}
	}
	if warnsFirst != 1 {
		t.Fatalf("first window warns = %d, want 1", warnsFirst)
	}

	now = now.Add(48 * time.Hour)
	warnsSecond := 0
	for i := 0; i < 4; i++ {
		d, _ := g.Admit(ctx, "msgs", 5)
		if d.Warn {
			warnsSecond++
		}
	}
	// notified flag cleared at rollover, so the next escalated window warns again
	if warnsSecond != 1 {
		t.Fatalf("second window warns = %d, want 1", warnsSecond)
	}
}
