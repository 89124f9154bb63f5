package bot

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"relaybot/internal/fetch"
	"relaybot/internal/media"
	"relaybot/internal/provider"
	"relaybot/pkg/logx"
)

type scriptedFetcher struct {
	name string
	res  media.FetchResult
	err  error
	keys []string
}

func (s *scriptedFetcher) Name() string { return s.name }
func (s *scriptedFetcher) FetchByKeyword(_ context.Context, key string, _ int) (media.FetchResult, error) {
	s.keys = append(s.keys, key)
	return s.res, s.err
}

func photos(n int) media.FetchResult {
	res := media.FetchResult{Source: media.SourceInstagram, Provider: "fake"}
	for i := 0; i < n; i++ {
		res.Items = append(res.Items, media.Item{
			Kind: media.KindPhoto, ID: fmt.Sprint(i), URL: fmt.Sprintf("https://cdn/%d.jpg", i),
		})
	}
	return res
}

func newLinkFixture(caps map[provider.Capability]*scriptedFetcher) *LinkHandler {
	reg := provider.NewRegistry()
	for c, f := range caps {
		reg.Register(c, f)
	}
	return NewLinkHandler(fetch.New(reg, logx.Nop()), 10, "hang on")
}

func TestUsernameDefaultsToStories(t *testing.T) {
	t.Parallel()
	f := &scriptedFetcher{name: "ig", res: photos(2)}
	h := newLinkFixture(map[provider.Capability]*scriptedFetcher{provider.CapInstagramStories: f})

	ad := &fakeAdapter{}
	req := newRequest(ad)
	req.Text = "@alice"
	if err := h.Handle(context.Background(), req); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(f.keys) != 1 || f.keys[0] != "alice" {
		t.Fatalf("keys = %v, want [alice]", f.keys)
	}
	if len(ad.items) != 2 {
		t.Fatalf("items sent = %d, want 2", len(ad.items))
	}
}

func TestLinkRoutesToPost(t *testing.T) {
	t.Parallel()
	f := &scriptedFetcher{name: "ig", res: photos(1)}
	h := newLinkFixture(map[provider.Capability]*scriptedFetcher{provider.CapInstagramPost: f})

	ad := &fakeAdapter{}
	req := newRequest(ad)
	req.Text = "https://www.instagram.com/p/Cxyz123/"
	if err := h.Handle(context.Background(), req); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(f.keys) != 1 || f.keys[0] != "Cxyz123" {
		t.Fatalf("keys = %v, want [Cxyz123]", f.keys)
	}
}

func TestGarbageIsWrongInput(t *testing.T) {
	t.Parallel()
	h := newLinkFixture(nil)
	req := newRequest(&fakeAdapter{})
	req.Text = "https://example.com/whatever"
	if err := h.Handle(context.Background(), req); !errors.Is(err, media.ErrWrongInput) {
		t.Fatalf("err = %v, want ErrWrongInput", err)
	}
}

func TestProgressNoticeOnSlowFallback(t *testing.T) {
	t.Parallel()
	flaky := &scriptedFetcher{name: "a", err: fmt.Errorf("a: %w", media.ErrProvider)}
	good := &scriptedFetcher{name: "b", res: photos(1)}

	reg := provider.NewRegistry()
	reg.Register(provider.CapInstagramStories, flaky, good)
	h := NewLinkHandler(fetch.New(reg, logx.Nop()), 10, "hang on")

	ad := &fakeAdapter{}
	req := newRequest(ad)
	req.Text = "alice"
	if err := h.Handle(context.Background(), req); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	got := ad.sent()
	if len(got) != 1 || got[0] != "hang on" {
		t.Fatalf("replies = %v, want one progress notice", got)
	}
	if len(ad.items) != 1 {
		t.Fatalf("items = %d, want 1", len(ad.items))
	}
}
