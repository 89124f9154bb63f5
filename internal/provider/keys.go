package provider

import (
	"fmt"
	"strings"

	"relaybot/internal/media"
)

// trailingSegment returns the last path segment of a URL, ignoring any query
// string and a trailing slash.
func trailingSegment(url string) string {
	if i := strings.IndexByte(url, '?'); i >= 0 {
		url = url[:i]
	}
	url = strings.TrimRight(url, "/")
	if i := strings.LastIndexByte(url, '/'); i >= 0 {
		url = url[i+1:]
	}
	return url
}

// Keyword normalizes free-form input (a username, possibly with a leading @,
// or a profile link) into the bare keyword providers expect.
func Keyword(input string) (string, error) {
	s := strings.TrimSpace(input)
	if strings.Contains(s, "/") {
		s = trailingSegment(s)
	}
	s = strings.TrimPrefix(s, "@")
	if s == "" {
		return "", fmt.Errorf("keyword %q: %w", input, media.ErrWrongInput)
	}
	return s, nil
}

// Route classifies a share link into the capability that can serve it and the
// fetch key to pass along. Full URLs only; bare usernames go through Keyword.
func Route(link string) (Capability, string, error) {
	s := strings.TrimSpace(link)
	switch {
	case strings.Contains(s, "instagram.com"):
		return routeInstagram(s)
	case strings.Contains(s, "tiktok.com"):
		return routeTikTok(s)
	}
	return "", "", fmt.Errorf("link %q: %w", link, media.ErrWrongInput)
}

func routeInstagram(link string) (Capability, string, error) {
	switch {
	case strings.Contains(link, "/highlights/"), strings.Contains(link, "/s/"):
		// highlights keep the whole link: the provider needs it verbatim
		return CapInstagramHighlights, link, nil
	case strings.Contains(link, "/stories/"):
		// .../stories/{username}/{storyID}
		rest := link[strings.Index(link, "/stories/")+len("/stories/"):]
		if i := strings.IndexByte(rest, '?'); i >= 0 {
			rest = rest[:i]
		}
		rest = strings.TrimRight(rest, "/")
		username, storyID, ok := strings.Cut(rest, "/")
		if !ok || username == "" || storyID == "" {
			return "", "", fmt.Errorf("story link %q: %w", link, media.ErrWrongInput)
		}
		return CapInstagramStory, username + "/" + storyID, nil
	case strings.Contains(link, "/reel/"), strings.Contains(link, "/p/"):
		code := trailingSegment(link)
		if code == "" {
			return "", "", fmt.Errorf("post link %q: %w", link, media.ErrWrongInput)
		}
		return CapInstagramPost, code, nil
	case strings.Contains(link, "/audio/"):
		id := trailingSegment(link)
		if id == "" {
			return "", "", fmt.Errorf("audio link %q: %w", link, media.ErrWrongInput)
		}
		return CapInstagramMusic, id, nil
	}
	// profile link: treat as a stories request for that user
	key, err := Keyword(link)
	if err != nil {
		return "", "", err
	}
	return CapInstagramStories, key, nil
}

func routeTikTok(link string) (Capability, string, error) {
	switch {
	case strings.Contains(link, "/video/"):
		return CapTikTokVideo, link, nil
	case strings.Contains(link, "/music/"):
		return CapTikTokMusic, link, nil
	}
	// short share links carry no type hint; the provider has to probe
	return CapTikTokUnknown, link, nil
}
