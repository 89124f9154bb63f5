package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"relaybot/internal/media"
	"relaybot/pkg/logx"
)

// InstagramConfig is pure configuration for the Instagram upstream.
type InstagramConfig struct {
	BaseURL string
	Host    string // x-rapidapi-host
	Key     string // x-rapidapi-key
	Timeout time.Duration
}

// Instagram talks to the Instagram data provider.
type Instagram struct {
	c *apiClient
}

func NewInstagram(name string, cfg InstagramConfig, log logx.Logger) *Instagram {
	headers := map[string]string{
		"x-rapidapi-host": cfg.Host,
		"x-rapidapi-key":  cfg.Key,
	}
	return &Instagram{c: newAPIClient(name, cfg.BaseURL, headers, cfg.Timeout, log)}
}

func (ig *Instagram) Name() string { return ig.c.name }

// igMedia mirrors the upstream media shape. PK is a json.Number because the
// upstream flips between numeric and string ids.
type igMedia struct {
	MediaType      int         `json:"media_type"`
	PK             json.Number `json:"pk"`
	TakenAt        int64       `json:"taken_at"`
	ImageVersions2 struct {
		Candidates []struct {
			URL string `json:"url"`
		} `json:"candidates"`
	} `json:"image_versions2"`
	VideoVersions []struct {
		URL string `json:"url"`
	} `json:"video_versions"`
	CarouselMedia []igMedia `json:"carousel_media"`
}

const (
	igTypePhoto    = 1
	igTypeVideo    = 2
	igTypeCarousel = 8
)

// items converts one upstream media entry (carousels flatten recursively).
func (m igMedia) items() []media.Item {
	var taken time.Time
	if m.TakenAt > 0 {
		taken = time.Unix(m.TakenAt, 0)
	}
	switch m.MediaType {
	case igTypePhoto:
		if len(m.ImageVersions2.Candidates) == 0 {
			return nil
		}
		return []media.Item{{
			Kind: media.KindPhoto, ID: m.PK.String(),
			URL: m.ImageVersions2.Candidates[0].URL, TakenAt: taken,
		}}
	case igTypeVideo:
		if len(m.VideoVersions) == 0 {
			return nil
		}
		// last entry is the smallest rendition that still plays everywhere
		return []media.Item{{
			Kind: media.KindVideo, ID: m.PK.String(),
			URL: m.VideoVersions[len(m.VideoVersions)-1].URL, TakenAt: taken,
		}}
	case igTypeCarousel:
		var out []media.Item
		for _, cm := range m.CarouselMedia {
			if cm.TakenAt == 0 {
				cm.TakenAt = m.TakenAt
			}
			out = append(out, cm.items()...)
		}
		return out
	default:
		return nil
	}
}

// igResult flattens entries into items, capping on delivered items: a carousel
// expands to many items and must not blow past the limit.
func igResult(name string, ms []igMedia, limit int) media.FetchResult {
	res := media.FetchResult{Source: media.SourceInstagram, Provider: name}
	for _, m := range ms {
		res.Items = append(res.Items, m.items()...)
		if limit > 0 && len(res.Items) >= limit {
			res.Items = res.Items[:limit]
			break
		}
	}
	return res
}

// UserStories fetches the user's current stories, newest first.
func (ig *Instagram) UserStories(ctx context.Context, username string, limit int) (media.FetchResult, error) {
	var raw []igMedia
	err := ig.c.getJSON(ctx, "user/stories", map[string]string{"username": username}, &raw)
	if err != nil {
		return media.FetchResult{}, err
	}
	// upstream orders stories chronologically (earliest first)
	for i, j := 0, len(raw)-1; i < j; i, j = i+1, j-1 {
		raw[i], raw[j] = raw[j], raw[i]
	}
	return igResult(ig.c.name, raw, limit), nil
}

// SelectedStory finds one story by id among the user's current stories.
func (ig *Instagram) SelectedStory(ctx context.Context, username, storyID string) (media.FetchResult, error) {
	all, err := ig.UserStories(ctx, username, 0)
	if err != nil {
		return media.FetchResult{}, err
	}
	for _, it := range all.Items {
		if it.ID == storyID {
			return media.FetchResult{Source: media.SourceInstagram, Provider: ig.c.name, Items: []media.Item{it}}, nil
		}
	}
	return media.FetchResult{}, fmt.Errorf("story %s not found: %w", storyID, media.ErrEmptyResults)
}

// PostsByUsername fetches the user's feed.
func (ig *Instagram) PostsByUsername(ctx context.Context, username string, limit int) (media.FetchResult, error) {
	var raw struct {
		Items []igMedia `json:"items"`
	}
	err := ig.c.getJSON(ctx, "user/feed/v2", map[string]string{"username": username}, &raw)
	if err != nil {
		return media.FetchResult{}, err
	}
	return igResult(ig.c.name, raw.Items, limit), nil
}

// ReelsByUsername fetches the user's reels.
func (ig *Instagram) ReelsByUsername(ctx context.Context, username string, limit int) (media.FetchResult, error) {
	q := map[string]string{"username": username}
	if limit > 0 {
		q["limit"] = fmt.Sprint(limit)
	}
	var raw struct {
		Items []igMedia `json:"items"`
	}
	if err := ig.c.getJSON(ctx, "user/reels", q, &raw); err != nil {
		return media.FetchResult{}, err
	}
	return igResult(ig.c.name, raw.Items, limit), nil
}

// Post fetches a single post or reel by its shortcode.
func (ig *Instagram) Post(ctx context.Context, shortcode string) (media.FetchResult, error) {
	q := map[string]string{"post": "https://www.instagram.com/p/" + shortcode + "/"}
	var raw igMedia
	if err := ig.c.getJSON(ctx, "post/info", q, &raw); err != nil {
		return media.FetchResult{}, err
	}
	return igResult(ig.c.name, []igMedia{raw}, 0), nil
}

// Highlights fetches a highlight reel by its share URL.
func (ig *Instagram) Highlights(ctx context.Context, highlightURL string) (media.FetchResult, error) {
	var raw struct {
		Reels map[string]struct {
			Items []igMedia `json:"items"`
		} `json:"reels"`
	}
	if err := ig.c.getJSON(ctx, "user/stories/highlights", map[string]string{"url": highlightURL}, &raw); err != nil {
		return media.FetchResult{}, err
	}
	id := trailingSegment(highlightURL)
	reel, ok := raw.Reels["highlight:"+id]
	if !ok {
		return media.FetchResult{}, fmt.Errorf("highlight %s: %w", id, media.ErrEmptyResults)
	}
	return igResult(ig.c.name, reel.Items, 0), nil
}

// Music fetches a downloadable audio asset by id.
func (ig *Instagram) Music(ctx context.Context, musicID string) (media.FetchResult, error) {
	var raw struct {
		Metadata struct {
			OriginalSoundInfo *struct {
				ProgressiveDownloadURL string `json:"progressive_download_url"`
			} `json:"original_sound_info"`
			MusicInfo struct {
				MusicAssetInfo struct {
					ProgressiveDownloadURL string `json:"progressive_download_url"`
				} `json:"music_asset_info"`
			} `json:"music_info"`
		} `json:"metadata"`
	}
	if err := ig.c.getJSON(ctx, "audio/feed", map[string]string{"audio_id": musicID}, &raw); err != nil {
		return media.FetchResult{}, err
	}

	url := ""
	if raw.Metadata.OriginalSoundInfo != nil {
		url = raw.Metadata.OriginalSoundInfo.ProgressiveDownloadURL
	}
	if url == "" {
		url = raw.Metadata.MusicInfo.MusicAssetInfo.ProgressiveDownloadURL
	}
	if url == "" {
		return media.FetchResult{}, fmt.Errorf("audio %s: %w", musicID, media.ErrEmptyResults)
	}
	return media.FetchResult{
		Source:   media.SourceInstagram,
		Provider: ig.c.name,
		Items:    []media.Item{{Kind: media.KindAudio, ID: musicID, URL: url}},
	}, nil
}

// Capability variant wrappers. Each one is a KeywordFetcher the registry can
// hand to the orchestrator.

type InstagramStories struct{ *Instagram }

func (f InstagramStories) FetchByKeyword(ctx context.Context, key string, limit int) (media.FetchResult, error) {
	return f.UserStories(ctx, key, limit)
}

type InstagramPosts struct{ *Instagram }

func (f InstagramPosts) FetchByKeyword(ctx context.Context, key string, limit int) (media.FetchResult, error) {
	return f.PostsByUsername(ctx, key, limit)
}

type InstagramReels struct{ *Instagram }

func (f InstagramReels) FetchByKeyword(ctx context.Context, key string, limit int) (media.FetchResult, error) {
	return f.ReelsByUsername(ctx, key, limit)
}

type InstagramPost struct{ *Instagram }

func (f InstagramPost) FetchByKeyword(ctx context.Context, key string, _ int) (media.FetchResult, error) {
	return f.Post(ctx, key)
}

type InstagramHighlights struct{ *Instagram }

func (f InstagramHighlights) FetchByKeyword(ctx context.Context, key string, _ int) (media.FetchResult, error) {
	return f.Highlights(ctx, key)
}

type InstagramMusic struct{ *Instagram }

func (f InstagramMusic) FetchByKeyword(ctx context.Context, key string, _ int) (media.FetchResult, error) {
	return f.Music(ctx, key)
}

// InstagramStory fetches one story; its key is "username/storyID" as produced
// by NormalizeKey for story links.
type InstagramStory struct{ *Instagram }

func (f InstagramStory) FetchByKeyword(ctx context.Context, key string, _ int) (media.FetchResult, error) {
	username, storyID, ok := strings.Cut(key, "/")
	if !ok || username == "" || storyID == "" {
		return media.FetchResult{}, fmt.Errorf("story key %q: %w", key, media.ErrWrongInput)
	}
	return f.SelectedStory(ctx, username, storyID)
}
