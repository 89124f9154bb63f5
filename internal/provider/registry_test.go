package provider

import (
	"context"
	"testing"

	"relaybot/internal/media"
)

type stubFetcher struct{ name string }

func (s stubFetcher) Name() string { return s.name }
func (s stubFetcher) FetchByKeyword(context.Context, string, int) (media.FetchResult, error) {
	return media.FetchResult{Provider: s.name}, nil
}

func TestRegistryOrderAndHas(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.Register(CapInstagramStories, stubFetcher{"primary"}, stubFetcher{"backup"})
	r.Register(CapInstagramStories, stubFetcher{"lastresort"})

	fs := r.Fetchers(CapInstagramStories)
	if len(fs) != 3 {
		t.Fatalf("fetchers = %d, want 3", len(fs))
	}
	want := []string{"primary", "backup", "lastresort"}
	for i, f := range fs {
		if f.Name() != want[i] {
			t.Fatalf("fetcher[%d] = %s, want %s", i, f.Name(), want[i])
		}
	}

	if !r.Has(CapInstagramStories) {
		t.Fatal("Has(stories) = false")
	}
	if r.Has(CapTikTokMusic) {
		t.Fatal("Has(tiktok music) = true for empty capability")
	}
	if r.Fetchers(CapTikTokMusic) != nil {
		t.Fatal("empty capability must return nil")
	}
}
