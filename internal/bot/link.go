package bot

import (
	"context"
	"strings"

	"relaybot/internal/fetch"
	"relaybot/internal/provider"
	"relaybot/pkg/logx"
)

// LinkHandler turns an inbound message into a fetch: share links route to the
// capability matching their shape, bare usernames default to Instagram
// stories. Fetched items are streamed back into the chat.
type LinkHandler struct {
	orch     *fetch.Orchestrator
	maxItems int
	progress string
}

func NewLinkHandler(orch *fetch.Orchestrator, maxItems int, progressText string) *LinkHandler {
	if maxItems <= 0 {
		maxItems = 10
	}
	if progressText == "" {
		progressText = "Still working on it, the first source is slow..."
	}
	return &LinkHandler{orch: orch, maxItems: maxItems, progress: progressText}
}

func (h *LinkHandler) Handle(ctx context.Context, req *Request) error {
	text := strings.TrimSpace(req.Text)

	var (
		capability provider.Capability
		key        string
		err        error
	)
	if strings.Contains(text, "://") {
		capability, key, err = provider.Route(text)
	} else {
		key, err = provider.Keyword(text)
		capability = provider.CapInstagramStories
	}
	if err != nil {
		return err
	}

	r := h.orch.Request(capability, key,
		fetch.WithLimit(h.maxItems),
		fetch.WithProgress(func(ctx context.Context) {
			if rerr := req.Reply(ctx, h.progress); rerr != nil {
				req.Logger.Debug("progress notice failed", logx.Err(rerr))
			}
		}),
	)
	res, err := r.Fetch(ctx)
	if err != nil {
		return err
	}

	for _, item := range res.Items {
		if err := req.SendItem(ctx, item, ""); err != nil {
			return err
		}
	}
	return nil
}
