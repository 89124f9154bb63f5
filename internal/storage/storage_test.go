package storage

import (
	"context"
	"path/filepath"
	"testing"

	"relaybot/pkg/logx"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "counters.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPaidRequestsAccumulate(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	n, err := s.PaidRequests(ctx, 7)
	if err != nil {
		t.Fatalf("PaidRequests: %v", err)
	}
	if n != 0 {
		t.Fatalf("fresh user count = %d, want 0", n)
	}

	if err := s.AddPaidRequests(ctx, 7, 5); err != nil {
		t.Fatalf("AddPaidRequests: %v", err)
	}
	if err := s.AddPaidRequests(ctx, 7, 2); err != nil {
		t.Fatalf("AddPaidRequests: %v", err)
	}
	// zero flushes are no-ops
	if err := s.AddPaidRequests(ctx, 7, 0); err != nil {
		t.Fatalf("AddPaidRequests(0): %v", err)
	}

	n, err = s.PaidRequests(ctx, 7)
	if err != nil {
		t.Fatalf("PaidRequests: %v", err)
	}
	if n != 7 {
		t.Fatalf("count = %d, want 7", n)
	}

	// counts are per user
	n, err = s.PaidRequests(ctx, 8)
	if err != nil {
		t.Fatalf("PaidRequests: %v", err)
	}
	if n != 0 {
		t.Fatalf("other user count = %d, want 0", n)
	}
}
