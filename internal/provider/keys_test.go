package provider

import (
	"errors"
	"testing"

	"relaybot/internal/media"
)

func TestKeyword(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"alice", "alice", false},
		{"@alice", "alice", false},
		{"  alice  ", "alice", false},
		{"https://www.instagram.com/alice/", "alice", false},
		{"https://www.instagram.com/alice?igsh=abc", "alice", false},
		{"https://www.tiktok.com/@bob", "bob", false},
		{"", "", true},
		{"@", "", true},
		{"https://www.instagram.com/", "", true},
	}
	for _, tc := range cases {
		got, err := Keyword(tc.in)
		if tc.wantErr {
			if !errors.Is(err, media.ErrWrongInput) {
				t.Fatalf("Keyword(%q) err = %v, want ErrWrongInput", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Keyword(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("Keyword(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRoute(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		link    string
		wantCap Capability
		wantKey string
	}{
		{
			"ig highlight",
			"https://www.instagram.com/stories/highlights/17912345678901234/",
			CapInstagramHighlights,
			"https://www.instagram.com/stories/highlights/17912345678901234/",
		},
		{
			"ig highlight share",
			"https://www.instagram.com/s/aGlnaGxpZ2h0OjE3OTEy",
			CapInstagramHighlights,
			"https://www.instagram.com/s/aGlnaGxpZ2h0OjE3OTEy",
		},
		{
			"ig story",
			"https://www.instagram.com/stories/alice/3141592653589793238/",
			CapInstagramStory,
			"alice/3141592653589793238",
		},
		{
			"ig story with query",
			"https://instagram.com/stories/alice/31415?igsh=xyz",
			CapInstagramStory,
			"alice/31415",
		},
		{
			"ig post",
			"https://www.instagram.com/p/Cxyz123/",
			CapInstagramPost,
			"Cxyz123",
		},
		{
			"ig reel",
			"https://www.instagram.com/reel/Cabc987/?igsh=1",
			CapInstagramPost,
			"Cabc987",
		},
		{
			"ig audio",
			"https://www.instagram.com/reels/audio/1234567890/",
			CapInstagramMusic,
			"1234567890",
		},
		{
			"ig profile",
			"https://www.instagram.com/alice/",
			CapInstagramStories,
			"alice",
		},
		{
			"tt video",
			"https://www.tiktok.com/@bob/video/7123456789012345678",
			CapTikTokVideo,
			"https://www.tiktok.com/@bob/video/7123456789012345678",
		},
		{
			"tt music",
			"https://www.tiktok.com/music/cool-song-7123",
			CapTikTokMusic,
			"https://www.tiktok.com/music/cool-song-7123",
		},
		{
			"tt short link",
			"https://www.tiktok.com/t/ZTabc123/",
			CapTikTokUnknown,
			"https://www.tiktok.com/t/ZTabc123/",
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			gotCap, gotKey, err := Route(tc.link)
			if err != nil {
				t.Fatalf("Route(%q): %v", tc.link, err)
			}
			if gotCap != tc.wantCap || gotKey != tc.wantKey {
				t.Fatalf("Route(%q) = (%s, %q), want (%s, %q)",
					tc.link, gotCap, gotKey, tc.wantCap, tc.wantKey)
			}
		})
	}
}

func TestRouteRejectsUnknownHosts(t *testing.T) {
	t.Parallel()
	for _, link := range []string{"", "https://example.com/p/abc", "not a link"} {
		if _, _, err := Route(link); !errors.Is(err, media.ErrWrongInput) {
			t.Fatalf("Route(%q) err = %v, want ErrWrongInput", link, err)
		}
	}
}

func TestRouteMalformedStoryLink(t *testing.T) {
	t.Parallel()
	_, _, err := Route("https://www.instagram.com/stories/alice/")
	if !errors.Is(err, media.ErrWrongInput) {
		t.Fatalf("err = %v, want ErrWrongInput", err)
	}
}
