package provider

import (
	"context"
	"fmt"
	"time"

	"relaybot/internal/media"
	"relaybot/pkg/logx"
)

// TikTokConfig is pure configuration for the TikTok upstream.
type TikTokConfig struct {
	BaseURL string
	Host    string
	Key     string
	Timeout time.Duration
}

// TikTok talks to the TikTok data provider.
type TikTok struct {
	c *apiClient
}

func NewTikTok(name string, cfg TikTokConfig, log logx.Logger) *TikTok {
	headers := map[string]string{
		"x-rapidapi-host": cfg.Host,
		"x-rapidapi-key":  cfg.Key,
	}
	return &TikTok{c: newAPIClient(name, cfg.BaseURL, headers, cfg.Timeout, log)}
}

func (tt *TikTok) Name() string { return tt.c.name }

// ttCodeNotFound is this upstream's in-band "nothing found" marker: the call
// answers 200 with code=-1 instead of a 404.
const ttCodeNotFound = -1

// VideosByUsername fetches a user's recent videos.
func (tt *TikTok) VideosByUsername(ctx context.Context, username string, limit int) (media.FetchResult, error) {
	var raw struct {
		Code int `json:"code"`
		Data struct {
			Videos []struct {
				ID         string `json:"video_id"`
				Play       string `json:"play"`
				CreateTime int64  `json:"create_time"`
			} `json:"videos"`
		} `json:"data"`
	}
	if err := tt.c.getJSON(ctx, "user/posts", map[string]string{"unique_id": username}, &raw); err != nil {
		return media.FetchResult{}, err
	}
	if raw.Code == ttCodeNotFound {
		return media.FetchResult{}, fmt.Errorf("tiktok user %s: %w", username, media.ErrEmptyResults)
	}

	res := media.FetchResult{Source: media.SourceTikTok, Provider: tt.c.name}
	for i, v := range raw.Data.Videos {
		if limit > 0 && i == limit {
			break
		}
		var taken time.Time
		if v.CreateTime > 0 {
			taken = time.Unix(v.CreateTime, 0)
		}
		res.Items = append(res.Items, media.Item{
			Kind: media.KindVideo, ID: v.ID, URL: v.Play, TakenAt: taken,
		})
	}
	return res, nil
}

type ttSingle struct {
	Code int `json:"code"`
	Data struct {
		ID   string `json:"id"`
		Play string `json:"play"`
	} `json:"data"`
}

// Video resolves one video by share URL. With lenient=true a not-found answer
// yields an empty result instead of an error (used by the unknown-media probe).
func (tt *TikTok) Video(ctx context.Context, url string, lenient bool) (media.FetchResult, error) {
	var raw ttSingle
	if err := tt.c.getJSON(ctx, "", map[string]string{"url": url}, &raw); err != nil {
		return media.FetchResult{}, err
	}
	if raw.Code == ttCodeNotFound {
		if lenient {
			return media.FetchResult{Source: media.SourceTikTok, Provider: tt.c.name}, nil
		}
		return media.FetchResult{}, fmt.Errorf("tiktok video: %w", media.ErrEmptyResults)
	}
	return media.FetchResult{
		Source:   media.SourceTikTok,
		Provider: tt.c.name,
		Items:    []media.Item{{Kind: media.KindVideo, ID: raw.Data.ID, URL: raw.Data.Play}},
	}, nil
}

// Music resolves one audio track by share URL.
func (tt *TikTok) Music(ctx context.Context, url string, lenient bool) (media.FetchResult, error) {
	var raw ttSingle
	if err := tt.c.getJSON(ctx, "music/info", map[string]string{"url": url}, &raw); err != nil {
		return media.FetchResult{}, err
	}
	if raw.Code == ttCodeNotFound {
		if lenient {
			return media.FetchResult{Source: media.SourceTikTok, Provider: tt.c.name}, nil
		}
		return media.FetchResult{}, fmt.Errorf("tiktok music: %w", media.ErrEmptyResults)
	}
	return media.FetchResult{
		Source:   media.SourceTikTok,
		Provider: tt.c.name,
		Items:    []media.Item{{Kind: media.KindAudio, ID: raw.Data.ID, URL: raw.Data.Play}},
	}, nil
}

// UnknownMedia handles universal share links that carry no type hint: try the
// video-shaped parse, then the music-shaped one, and only then give up with
// WrongInput.
func (tt *TikTok) UnknownMedia(ctx context.Context, url string) (media.FetchResult, error) {
	res, err := tt.Video(ctx, url, true)
	if err != nil {
		return media.FetchResult{}, err
	}
	if !res.Empty() {
		return res, nil
	}
	res, err = tt.Music(ctx, url, true)
	if err != nil {
		return media.FetchResult{}, err
	}
	if !res.Empty() {
		return res, nil
	}
	return media.FetchResult{}, fmt.Errorf("link %q is neither video nor music: %w", url, media.ErrWrongInput)
}

// Capability variant wrappers.

type TikTokVideos struct{ *TikTok }

func (f TikTokVideos) FetchByKeyword(ctx context.Context, key string, limit int) (media.FetchResult, error) {
	return f.VideosByUsername(ctx, key, limit)
}

type TikTokVideo struct{ *TikTok }

func (f TikTokVideo) FetchByKeyword(ctx context.Context, key string, _ int) (media.FetchResult, error) {
	return f.Video(ctx, key, false)
}

type TikTokMusic struct{ *TikTok }

func (f TikTokMusic) FetchByKeyword(ctx context.Context, key string, _ int) (media.FetchResult, error) {
	return f.Music(ctx, key, false)
}

type TikTokUnknown struct{ *TikTok }

func (f TikTokUnknown) FetchByKeyword(ctx context.Context, key string, _ int) (media.FetchResult, error) {
	return f.UnknownMedia(ctx, key)
}
