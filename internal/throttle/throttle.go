// Package throttle implements per-user admission control with an adaptive
// sliding window: every time a user exceeds the bucket limit inside one
// window, the window's end is pushed out by another window length, so a
// repeat offender's penalty grows with continued traffic.
package throttle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"relaybot/internal/store"
	"relaybot/pkg/logx"
)

// ResetFunc runs at window rollover with the count accumulated in the window
// that just ended. Used to flush paid-request counts to durable storage.
type ResetFunc func(ctx context.Context, userID int64, count int) error

// Bucket is a named throttling scope with its own window and limit.
type Bucket struct {
	Key     string        // logical store key, e.g. "user_requests"
	Window  time.Duration // must be > 0
	Limit   int           // must be >= 1 (overhead is count/limit)
	OnReset ResetFunc     // optional
}

// Decision is the outcome of one admit check.
//
// Warn is true at most once per escalated window: the caller sends exactly
// one notice, and further throttled requests are dropped silently.
type Decision struct {
	Throttled bool
	Warn      bool
}

// window is the stored per-(bucket,user) state. ResetAt is unix milliseconds
// so sub-second windows keep their precision.
type window struct {
	Count    int   `json:"count"`
	ResetAt  int64 `json:"reset_at"`
	Notified bool  `json:"was_notified,omitempty"`
}

// Gate checks admits against the configured buckets.
//
// Concurrent admits for the same user are not serialized; a read-modify-write
// race can under-count in rare bursts. The consequence is only a slightly
// delayed throttle trigger.
type Gate struct {
	st      *store.Store
	log     logx.Logger
	buckets map[string]Bucket
	now     func() time.Time
}

// NewGate validates and registers the buckets. A Limit below 1 is rejected
// here so the overhead division can never fault at admit time.
func NewGate(st *store.Store, log logx.Logger, buckets ...Bucket) (*Gate, error) {
	if st == nil {
		return nil, errors.New("throttle: store is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	m := make(map[string]Bucket, len(buckets))
	for _, b := range buckets {
		if b.Key == "" {
			return nil, errors.New("throttle: bucket key is empty")
		}
		if b.Window <= 0 {
			return nil, fmt.Errorf("throttle: bucket %q window must be positive", b.Key)
		}
		if b.Limit < 1 {
			return nil, fmt.Errorf("throttle: bucket %q limit must be >= 1", b.Key)
		}
		if _, dup := m[b.Key]; dup {
			return nil, fmt.Errorf("throttle: duplicate bucket %q", b.Key)
		}
		m[b.Key] = b
	}
	return &Gate{st: st, log: log, buckets: m, now: time.Now}, nil
}

// Admit counts one request for (bucket, userID) and reports whether it is
// throttled. Throttling is an admission decision, not an error; the error
// return covers store faults only.
func (g *Gate) Admit(ctx context.Context, bucket string, userID int64) (Decision, error) {
	b, ok := g.buckets[bucket]
	if !ok {
		return Decision{}, fmt.Errorf("throttle: unknown bucket %q", bucket)
	}

	now := g.now()
	nowMS := now.UnixMilli()
	winMS := b.Window.Milliseconds()

	var w window
	found, err := g.st.GetUser(ctx, userID, b.Key, &w)
	if err != nil {
		return Decision{}, err
	}
	if !found {
		w = window{ResetAt: nowMS + winMS}
	}

	// Window elapsed: flush the finished count, then start fresh.
	if w.ResetAt < nowMS {
		if b.OnReset != nil {
			if err := b.OnReset(ctx, userID, w.Count); err != nil {
				// Flush failure must not block admission.
				g.log.Warn("throttle window flush failed",
					logx.String("bucket", b.Key), logx.Int64("user", userID), logx.Err(err))
			}
		}
		w.Count = 0
		w.ResetAt = nowMS + winMS
		w.Notified = false
	}

	// Escalation: each full multiple of the limit extends the window by one
	// more window length. No separate backoff counter needed.
	overhead := w.Count / b.Limit
	w.ResetAt += winMS * int64(overhead)
	w.Count++

	d := Decision{Throttled: overhead > 0}
	if d.Throttled && !w.Notified {
		w.Notified = true
		d.Warn = true
	}

	if err := g.st.SetUser(ctx, userID, b.Key, w); err != nil {
		return Decision{}, err
	}

	g.log.Trace("admit",
		logx.String("bucket", b.Key),
		logx.Int64("user", userID),
		logx.Int("count", w.Count),
		logx.Int("overhead", overhead),
		logx.Bool("throttled", d.Throttled))
	return d, nil
}
