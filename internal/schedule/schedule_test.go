package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"relaybot/pkg/logx"
)

func noopJob(context.Context) error { return nil }

func TestAddValidation(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())

	if err := s.Add("job-1", "@every 1m", noopJob); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add("job-1", "@every 1m", noopJob); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("duplicate err = %v, want ErrDuplicateID", err)
	}
	if err := s.Add("job-2", "not a spec", noopJob); err == nil {
		t.Fatal("bad spec accepted")
	}
	if !s.Has("job-1") || s.Has("job-2") {
		t.Fatal("Has mismatch after failed add")
	}
}

func TestRemovePauseResume(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())

	if err := s.Remove("ghost"); !errors.Is(err, ErrUnknownID) {
		t.Fatalf("Remove(ghost) = %v, want ErrUnknownID", err)
	}
	if err := s.Pause("ghost"); !errors.Is(err, ErrUnknownID) {
		t.Fatalf("Pause(ghost) = %v, want ErrUnknownID", err)
	}

	if err := s.Add("job", "@every 1h", noopJob); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Pause("job"); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if !s.Paused("job") {
		t.Fatal("job not paused")
	}
	// pausing twice is a no-op
	if err := s.Pause("job"); err != nil {
		t.Fatalf("second Pause: %v", err)
	}
	if err := s.Resume("job"); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if s.Paused("job") {
		t.Fatal("job still paused after resume")
	}
	if err := s.Remove("job"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if s.Has("job") {
		t.Fatal("job still registered after remove")
	}
}

func TestJobTicks(t *testing.T) {
	t.Parallel()
	s := New(Config{Workers: 1}, logx.Nop())

	var ticks atomic.Int32
	if err := s.Add("ticker", "@every 10ms", func(context.Context) error {
		ticks.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	ctx := context.Background()
	s.Start(ctx)
	defer s.Stop(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for ticks.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("ticks = %d after 2s, want >= 2", ticks.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestOverlappingTicksAreSkipped(t *testing.T) {
	t.Parallel()
	s := New(Config{Workers: 4}, logx.Nop())

	var running atomic.Int32
	var overlapped atomic.Bool
	block := make(chan struct{})

	if err := s.Add("slow", "@every 10ms", func(context.Context) error {
		if running.Add(1) > 1 {
			overlapped.Store(true)
		}
		<-block
		running.Add(-1)
		return nil
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	ctx := context.Background()
	s.Start(ctx)
	time.Sleep(150 * time.Millisecond)
	close(block)
	s.Stop(ctx)

	if overlapped.Load() {
		t.Fatal("ticks of the same job overlapped")
	}
}

func TestPausedJobDoesNotTick(t *testing.T) {
	t.Parallel()
	s := New(Config{Workers: 1}, logx.Nop())

	var ticks atomic.Int32
	if err := s.Add("paused", "@every 10ms", func(context.Context) error {
		ticks.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Pause("paused"); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	ctx := context.Background()
	s.Start(ctx)
	time.Sleep(100 * time.Millisecond)
	s.Stop(ctx)

	if n := ticks.Load(); n != 0 {
		t.Fatalf("paused job ticked %d times", n)
	}
}
