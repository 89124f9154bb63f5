// Package fetch runs one content request across every provider registered for
// a capability, in declared order, until one of them delivers.
package fetch

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"relaybot/internal/media"
	"relaybot/internal/provider"
	"relaybot/pkg/logx"
)

// ErrNoFetchers means no provider is registered for the requested capability.
// This is a wiring mistake, not a user-facing condition.
var ErrNoFetchers = errors.New("no fetchers registered for capability")

// ProgressFunc is invoked at most once per request, the first time a provider
// fails retriably and the orchestrator moves on to the next one. It lets the
// caller tell the user "still working on it" during a slow fallback chain.
type ProgressFunc func(ctx context.Context)

// Orchestrator fans a request over the registry.
type Orchestrator struct {
	reg *provider.Registry
	log logx.Logger
}

func New(reg *provider.Registry, log logx.Logger) *Orchestrator {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Orchestrator{reg: reg, log: log}
}

// Request is a single fetch attempt. The outcome is memoized: calling Fetch
// again returns the stored result without touching any provider. Not safe for
// concurrent use; a request belongs to one handler invocation.
type Request struct {
	o          *Orchestrator
	id         string
	capability provider.Capability
	key        string

	limit    int
	progress ProgressFunc

	done bool
	res  media.FetchResult
	err  error
}

// Option configures a Request.
type Option func(*Request)

// WithLimit caps how many entries a provider should return (0 = all).
func WithLimit(n int) Option {
	return func(r *Request) { r.limit = n }
}

// WithProgress installs the slow-fallback notification hook.
func WithProgress(fn ProgressFunc) Option {
	return func(r *Request) { r.progress = fn }
}

// Request builds a new request for capability/key.
func (o *Orchestrator) Request(capability provider.Capability, key string, opts ...Option) *Request {
	r := &Request{o: o, id: uuid.NewString(), capability: capability, key: key}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ID returns the request's correlation id, present on every log line it emits.
func (r *Request) ID() string { return r.id }

// FetchLatest runs a one-shot limit-1 request. Monitoring ticks only ever care
// about the newest item, so there is no point memoizing a Request for them.
func (o *Orchestrator) FetchLatest(ctx context.Context, capability provider.Capability, key string) (media.FetchResult, error) {
	return o.Request(capability, key, WithLimit(1)).Fetch(ctx)
}

// Fetch walks the providers registered for the capability in order.
//
// First non-empty success wins. A permanent account-level error or a malformed
// key aborts the chain immediately: no other provider can answer differently.
// Retriable failures (provider faults, empty results) move on to the next
// provider, firing the progress hook on the first one. When every provider has
// been tried without content, the request fails with EmptyResults.
func (r *Request) Fetch(ctx context.Context) (media.FetchResult, error) {
	if r.done {
		return r.res, r.err
	}
	r.res, r.err = r.fetch(ctx)
	r.done = true
	return r.res, r.err
}

func (r *Request) fetch(ctx context.Context) (media.FetchResult, error) {
	log := r.o.log.With(
		logx.String("request_id", r.id),
		logx.String("capability", string(r.capability)),
		logx.String("key", r.key),
	)

	fetchers := r.o.reg.Fetchers(r.capability)
	if len(fetchers) == 0 {
		return media.FetchResult{}, fmt.Errorf("%s: %w", r.capability, ErrNoFetchers)
	}

	notified := false
	for _, f := range fetchers {
		res, err := f.FetchByKeyword(ctx, r.key, r.limit)
		if err == nil && !res.Empty() {
			log.Debug("fetched", logx.String("provider", f.Name()), logx.Int("items", len(res.Items)))
			return res, nil
		}
		if err == nil {
			// a 200 with nothing in it counts as empty results
			err = fmt.Errorf("%s returned nothing: %w", f.Name(), media.ErrEmptyResults)
		}

		if media.Permanent(err) || errors.Is(err, media.ErrWrongInput) {
			log.Debug("permanent failure", logx.String("provider", f.Name()), logx.Err(err))
			return media.FetchResult{}, err
		}
		if ctx.Err() != nil {
			return media.FetchResult{}, ctx.Err()
		}
		if !media.Retriable(err) {
			// outside the taxonomy; surface as-is so callers can log it loudly
			log.Warn("unrecognized provider failure", logx.String("provider", f.Name()), logx.Err(err))
			return media.FetchResult{}, media.WrapUnrecognized(err)
		}

		log.Debug("provider failed, falling back", logx.String("provider", f.Name()), logx.Err(err))
		if !notified && r.progress != nil {
			notified = true
			r.progress(ctx)
		}
	}
	return media.FetchResult{}, fmt.Errorf("no results for %q: %w", r.key, media.ErrEmptyResults)
}
