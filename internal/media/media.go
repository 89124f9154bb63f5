// Package media holds the value types exchanged between providers, the fetch
// orchestrator, and the monitoring scheduler, plus the shared error taxonomy.
package media

import "time"

// Kind is the media type of a single fetched item.
type Kind string

const (
	KindPhoto   Kind = "photo"
	KindVideo   Kind = "video"
	KindAudio   Kind = "audio"
	KindUnknown Kind = "unknown"
)

// Source is the social network an item came from.
type Source string

const (
	SourceInstagram Source = "instagram"
	SourceTikTok    Source = "tiktok"
)

// Item is a single piece of fetched content. Immutable once constructed.
type Item struct {
	Kind    Kind
	ID      string
	URL     string
	TakenAt time.Time // zero when the provider doesn't report it
}

// FetchResult is the outcome of one successful provider call.
// Lifetime is a single orchestration request; it is never persisted.
type FetchResult struct {
	Source   Source
	Provider string // which provider produced the items
	Items    []Item
}

func (r FetchResult) Empty() bool { return len(r.Items) == 0 }
