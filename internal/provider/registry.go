package provider

import (
	"context"

	"relaybot/internal/media"
)

// Capability names one operation a provider may or may not support,
// keyed by (network, content kind).
type Capability string

const (
	CapInstagramStories    Capability = "instagram.stories"
	CapInstagramStory      Capability = "instagram.story"
	CapInstagramPosts      Capability = "instagram.posts"
	CapInstagramReels      Capability = "instagram.reels"
	CapInstagramPost       Capability = "instagram.post"
	CapInstagramHighlights Capability = "instagram.highlights"
	CapInstagramMusic      Capability = "instagram.music"
	CapTikTokVideos        Capability = "tiktok.videos"
	CapTikTokVideo         Capability = "tiktok.video"
	CapTikTokMusic         Capability = "tiktok.music"
	CapTikTokUnknown       Capability = "tiktok.unknown"
)

// KeywordFetcher is the per-capability contract a provider variant implements.
// limit <= 0 means "all the provider returns".
type KeywordFetcher interface {
	Name() string
	FetchByKeyword(ctx context.Context, key string, limit int) (media.FetchResult, error)
}

// Registry maps capabilities to fetchers in declared (preference) order.
// Registration happens at wiring time; lookups are read-only afterwards,
// so there is no lock.
type Registry struct {
	m map[Capability][]KeywordFetcher
}

func NewRegistry() *Registry {
	return &Registry{m: map[Capability][]KeywordFetcher{}}
}

// Register appends fetchers for capability. Order of registration is the fallback
// order: cheapest/most reliable provider first.
func (r *Registry) Register(capability Capability, fs ...KeywordFetcher) {
	r.m[capability] = append(r.m[capability], fs...)
}

// Fetchers returns the fetchers for capability in declared order (nil when none).
func (r *Registry) Fetchers(capability Capability) []KeywordFetcher {
	return r.m[capability]
}

func (r *Registry) Has(capability Capability) bool { return len(r.m[capability]) > 0 }
