package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"relaybot/internal/media"
	"relaybot/internal/transport"
	"relaybot/pkg/logx"
)

type fakeAdapter struct {
	mu    sync.Mutex
	texts []string
	items []media.Item
	fail  int // fail this many sends before succeeding
}

func (f *fakeAdapter) Start(context.Context, chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                          { return nil }
func (f *fakeAdapter) AnswerCallback(context.Context, string, string) error {
	return nil
}

func (f *fakeAdapter) SendText(_ context.Context, _ transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail > 0 {
		f.fail--
		return transport.MessageRef{}, errors.New("flaky")
	}
	f.texts = append(f.texts, text)
	return transport.MessageRef{MessageID: len(f.texts)}, nil
}

func (f *fakeAdapter) SendMedia(_ context.Context, _ transport.ChatTarget, item media.Item, caption string, _ *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, item)
	f.texts = append(f.texts, caption)
	return transport.MessageRef{MessageID: len(f.texts)}, nil
}

func (f *fakeAdapter) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func (f *fakeAdapter) mediaCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 2s")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDeliversTextAndMedia(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	s := New(Config{RatePerSec: 100}, ad, logx.Nop())
	ctx := context.Background()
	s.Start(ctx)
	defer s.Stop(ctx)

	if err := s.Notify(ctx, 42, "hello", nil); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	it := media.Item{Kind: media.KindPhoto, ID: "p1", URL: "https://cdn/p1.jpg"}
	if err := s.Notify(ctx, 42, "new content", &it); err != nil {
		t.Fatalf("Notify media: %v", err)
	}

	waitFor(t, func() bool { return len(ad.sent()) == 2 })
	if ad.mediaCount() != 1 {
		t.Fatalf("media sends = %d, want 1", ad.mediaCount())
	}
}

func TestRetriesFlakySends(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{fail: 2}
	s := New(Config{RatePerSec: 100, RetryMax: 3, RetryBase: time.Millisecond, RetryMaxDelay: 5 * time.Millisecond}, ad, logx.Nop())
	ctx := context.Background()
	s.Start(ctx)
	defer s.Stop(ctx)

	if err := s.Notify(ctx, 7, "eventually", nil); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	waitFor(t, func() bool { return len(ad.sent()) == 1 })
}

func TestDedupSuppressesRepeats(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	s := New(Config{RatePerSec: 100, DedupWindow: time.Minute}, ad, logx.Nop())
	ctx := context.Background()
	s.Start(ctx)
	defer s.Stop(ctx)

	for i := 0; i < 5; i++ {
		if err := s.Notify(ctx, 1, "same thing", nil); err != nil {
			t.Fatalf("Notify #%d: %v", i, err)
		}
	}
	// different chat id is a different key
	if err := s.Notify(ctx, 2, "same thing", nil); err != nil {
		t.Fatalf("Notify other chat: %v", err)
	}

	waitFor(t, func() bool { return len(ad.sent()) == 2 })
	time.Sleep(20 * time.Millisecond)
	if got := len(ad.sent()); got != 2 {
		t.Fatalf("sends = %d, want 2", got)
	}
}

func TestNotifyAfterStopFails(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	s := New(Config{}, ad, logx.Nop())
	ctx := context.Background()
	s.Start(ctx)
	s.Stop(ctx)

	if err := s.Notify(ctx, 1, "late", nil); !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
}

func TestStopDrainsQueue(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	s := New(Config{Workers: 1, RatePerSec: 1000}, ad, logx.Nop())
	ctx := context.Background()
	s.Start(ctx)

	for i := 0; i < 10; i++ {
		if err := s.Notify(ctx, int64(i), "bye", nil); err != nil {
			t.Fatalf("Notify #%d: %v", i, err)
		}
	}
	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	s.Stop(stopCtx)

	if got := len(ad.sent()); got != 10 {
		t.Fatalf("drained sends = %d, want 10", got)
	}
}
