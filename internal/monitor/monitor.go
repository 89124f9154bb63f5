// Package monitor owns change-detecting subscriptions: recurring jobs that
// poll a provider for the latest item, diff it against last-seen state, and
// notify the user only when something new appears.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"relaybot/internal/media"
	"relaybot/internal/provider"
	"relaybot/internal/store"
	"relaybot/pkg/logx"
)

const subsKey = "monitoring_subscriptions"

var (
	ErrNotFound      = errors.New("subscription not found")
	ErrAlreadyExists = errors.New("subscription already exists")
	ErrQuotaExceeded = errors.New("subscription quota exceeded")
	ErrUnknownKind   = errors.New("unknown content kind for network")
)

// Subscription tracks one (network, subject, kind) for one user.
//
// Lifecycle: created unconfirmed by the wizard, confirmed into Active, toggled
// between Active and paused, removed on delete. At most one unconfirmed
// subscription exists per user; creating a new one purges abandoned ones.
type Subscription struct {
	Network   media.Source `json:"network"`
	Subject   string       `json:"subject"`
	Kind      string       `json:"kind"`
	Active    bool         `json:"active"`
	Confirmed bool         `json:"confirmed"`
	StartDate time.Time    `json:"start_date"`
	Interval  int          `json:"interval_seconds"`
}

// subscriptionList is the whole-record store layout: one versioned blob per
// user, replaced wholesale on every mutation so list invariants hold within a
// single read-modify-write.
type subscriptionList struct {
	Version int            `json:"version"`
	Subs    []Subscription `json:"subscriptions"`
}

// LastSeen is the per-subscription diff marker, updated on every successful
// tick whether or not a notification fired.
type LastSeen struct {
	LastItemID string    `json:"last_item_id,omitempty"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// capability resolves the subscription to the fetch capability serving it.
func (s Subscription) capability() (provider.Capability, error) {
	switch s.Network {
	case media.SourceInstagram:
		switch s.Kind {
		case "stories":
			return provider.CapInstagramStories, nil
		case "posts":
			return provider.CapInstagramPosts, nil
		case "reels":
			return provider.CapInstagramReels, nil
		}
	case media.SourceTikTok:
		if s.Kind == "videos" {
			return provider.CapTikTokVideos, nil
		}
	}
	return "", fmt.Errorf("%s/%s: %w", s.Network, s.Kind, ErrUnknownKind)
}

// JobID names the recurring job for one subscription.
func JobID(userID int64, network media.Source, subject string) string {
	return fmt.Sprintf("monitoring-%d-%s-%s", userID, network, subject)
}

// Scheduler is the slice of the cron service the manager drives.
type Scheduler interface {
	Add(id, spec string, job func(ctx context.Context) error) error
	Remove(id string) error
	Pause(id string) error
	Resume(id string) error
	Has(id string) bool
}

// Fetcher is the slice of the orchestrator a tick needs.
type Fetcher interface {
	FetchLatest(ctx context.Context, capability provider.Capability, key string) (media.FetchResult, error)
}

// Notifier delivers monitoring messages to the user. item is nil for pure
// status messages (account gone, account private).
type Notifier interface {
	Notify(ctx context.Context, userID int64, text string, item *media.Item) error
}

// Texts are the user-facing monitoring messages. Subject is interpolated via
// a single %s verb.
type Texts struct {
	AccountNotExist  string
	AccountIsPrivate string
	EmptyResults     string
	NewContent       string
}

type Config struct {
	// IntervalSeconds is the default polling cadence for new subscriptions.
	IntervalSeconds int
	// MaxSubscriptions caps confirmed subscriptions per user; 0 = unlimited.
	MaxSubscriptions int
	Texts            Texts
}

func (c *Config) applyDefaults() {
	if c.IntervalSeconds <= 0 {
		c.IntervalSeconds = 300
	}
	if c.Texts.AccountNotExist == "" {
		c.Texts.AccountNotExist = "Account %s no longer exists, monitoring stopped."
	}
	if c.Texts.AccountIsPrivate == "" {
		c.Texts.AccountIsPrivate = "Account %s is private, will keep checking."
	}
	if c.Texts.EmptyResults == "" {
		c.Texts.EmptyResults = "No content found for %s yet, will keep checking."
	}
	if c.Texts.NewContent == "" {
		c.Texts.NewContent = "New content from %s!"
	}
}

// Manager owns the subscription store records and their recurring jobs.
type Manager struct {
	st     *store.Store
	sched  Scheduler
	fetch  Fetcher
	notify Notifier
	cfg    Config
	log    logx.Logger

	now func() time.Time
}

func New(st *store.Store, sched Scheduler, fetch Fetcher, notify Notifier, cfg Config, log logx.Logger) (*Manager, error) {
	cfg.applyDefaults()
	if _, err := FromSeconds(cfg.IntervalSeconds); err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{
		st:     st,
		sched:  sched,
		fetch:  fetch,
		notify: notify,
		cfg:    cfg,
		log:    log.With(logx.String("svc", "monitor")),
		now:    time.Now,
	}, nil
}

// List returns the user's subscriptions, confirmed and unconfirmed alike.
func (m *Manager) List(ctx context.Context, userID int64) ([]Subscription, error) {
	list, err := m.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return list.Subs, nil
}

// Create starts the subscribe flow with an unconfirmed record. Any prior
// unconfirmed record is an abandoned wizard and gets purged.
func (m *Manager) Create(ctx context.Context, userID int64, network media.Source, subject, kind string) error {
	draft := Subscription{
		Network:   network,
		Subject:   subject,
		Kind:      kind,
		StartDate: m.now(),
		Interval:  m.cfg.IntervalSeconds,
	}
	if _, err := draft.capability(); err != nil {
		return err
	}

	list, err := m.load(ctx, userID)
	if err != nil {
		return err
	}
	confirmed := 0
	for _, s := range list.Subs {
		if s.Confirmed {
			confirmed++
			// job ids and every lookup key on (network, subject); a second
			// kind for the same subject would collide with the existing job
			if s.Network == network && s.Subject == subject {
				return fmt.Errorf("%s %s: %w", network, subject, ErrAlreadyExists)
			}
		}
	}
	if m.cfg.MaxSubscriptions > 0 && confirmed >= m.cfg.MaxSubscriptions {
		return fmt.Errorf("user %d: %w", userID, ErrQuotaExceeded)
	}

	list.Subs = dropUnconfirmed(list.Subs)
	list.Subs = append(list.Subs, draft)
	return m.save(ctx, userID, list)
}

// Confirm promotes the user's unconfirmed subscription matching (network,
// subject) to Active and schedules its recurring job. Other unconfirmed rows
// are purged; no state ever ends up Active without Confirmed.
func (m *Manager) Confirm(ctx context.Context, userID int64, network media.Source, subject string) error {
	list, err := m.load(ctx, userID)
	if err != nil {
		return err
	}

	idx := -1
	for i, s := range list.Subs {
		if !s.Confirmed && s.Network == network && s.Subject == subject {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("unconfirmed %s/%s: %w", network, subject, ErrNotFound)
	}

	sub := list.Subs[idx]
	sub.Confirmed = true
	sub.Active = true
	sub.StartDate = m.now()

	kept := dropUnconfirmed(list.Subs)
	kept = append(kept, sub)
	list.Subs = kept

	// schedule first: a job that cannot be added must not leave a confirmed
	// record behind, and a record that cannot be saved must not leave a job
	if err := m.schedule(userID, sub); err != nil {
		return err
	}
	if err := m.save(ctx, userID, list); err != nil {
		_ = m.sched.Remove(JobID(userID, network, subject))
		return err
	}
	return nil
}

// Pause suspends the job but keeps all state.
func (m *Manager) Pause(ctx context.Context, userID int64, network media.Source, subject string) error {
	if err := m.setActive(ctx, userID, network, subject, false); err != nil {
		return err
	}
	if err := m.sched.Pause(JobID(userID, network, subject)); err != nil {
		m.log.Warn("pause job", logx.String("job", JobID(userID, network, subject)), logx.Err(err))
	}
	return nil
}

// Resume reactivates a paused subscription.
func (m *Manager) Resume(ctx context.Context, userID int64, network media.Source, subject string) error {
	if err := m.setActive(ctx, userID, network, subject, true); err != nil {
		return err
	}
	id := JobID(userID, network, subject)
	if !m.sched.Has(id) {
		// process restarted since the pause; rebuild the job
		list, err := m.load(ctx, userID)
		if err != nil {
			return err
		}
		for _, s := range list.Subs {
			if s.Confirmed && s.Network == network && s.Subject == subject {
				return m.schedule(userID, s)
			}
		}
		return fmt.Errorf("%s/%s: %w", network, subject, ErrNotFound)
	}
	return m.sched.Resume(id)
}

// Delete removes the subscription, its job, and its last-seen marker.
func (m *Manager) Delete(ctx context.Context, userID int64, network media.Source, subject string) error {
	list, err := m.load(ctx, userID)
	if err != nil {
		return err
	}
	kept := list.Subs[:0]
	found := false
	for _, s := range list.Subs {
		if s.Network == network && s.Subject == subject {
			found = true
			continue
		}
		kept = append(kept, s)
	}
	if !found {
		return fmt.Errorf("%s/%s: %w", network, subject, ErrNotFound)
	}
	list.Subs = kept
	if err := m.save(ctx, userID, list); err != nil {
		return err
	}

	// unconfirmed subscriptions never had a job; ignore unknown ids
	if err := m.sched.Remove(JobID(userID, network, subject)); err != nil {
		m.log.Debug("remove job", logx.String("job", JobID(userID, network, subject)), logx.Err(err))
	}
	return m.st.DeleteUser(ctx, userID, lastSeenKey(network, subject))
}

// Restore rebuilds recurring jobs for every active subscription in the store.
// Called once at startup; polling state survives restarts because everything
// lives in the store, only the in-memory cron entries are lost.
func (m *Manager) Restore(ctx context.Context) error {
	keys, err := m.st.Keys(ctx, "*_"+subsKey)
	if err != nil {
		return err
	}
	restored := 0
	for _, key := range keys {
		uid, ok := userIDFromKey(key)
		if !ok {
			continue
		}
		var list subscriptionList
		if _, err := m.st.Get(ctx, key, &list); err != nil {
			m.log.Warn("restore: bad record", logx.String("key", key), logx.Err(err))
			continue
		}
		for _, s := range list.Subs {
			if !s.Confirmed {
				continue
			}
			if err := m.schedule(uid, s); err != nil {
				m.log.Warn("restore: schedule failed",
					logx.Int64("user", uid), logx.String("subject", s.Subject), logx.Err(err))
				continue
			}
			if !s.Active {
				_ = m.sched.Pause(JobID(uid, s.Network, s.Subject))
			}
			restored++
		}
	}
	m.log.Info("subscriptions restored", logx.Int("jobs", restored))
	return nil
}

func (m *Manager) schedule(userID int64, sub Subscription) error {
	interval := sub.Interval
	if interval <= 0 {
		interval = m.cfg.IntervalSeconds
	}
	sched, err := FromSeconds(interval)
	if err != nil {
		return err
	}
	id := JobID(userID, sub.Network, sub.Subject)
	network, subject := sub.Network, sub.Subject
	return m.sched.Add(id, sched.Spec(), func(ctx context.Context) error {
		return m.pollTick(ctx, userID, network, subject)
	})
}

// pollTick is one scheduled poll of one subscription.
//
// The subscription is re-read from the store every tick so pause/delete takes
// effect no later than the next fire. AccountNotExist kills the job for good;
// private accounts and empty results notify but keep polling, the condition
// may clear. Anything outside the taxonomy propagates so the scheduler logs it
// and the job stays alive for the next tick.
func (m *Manager) pollTick(ctx context.Context, userID int64, network media.Source, subject string) error {
	list, err := m.load(ctx, userID)
	if err != nil {
		return err
	}
	var sub *Subscription
	for i := range list.Subs {
		s := &list.Subs[i]
		if s.Network == network && s.Subject == subject {
			sub = s
			break
		}
	}
	if sub == nil || !sub.Confirmed || !sub.Active {
		return nil
	}

	capability, err := sub.capability()
	if err != nil {
		return err
	}

	res, err := m.fetch.FetchLatest(ctx, capability, subject)
	switch {
	case errors.Is(err, media.ErrAccountNotExist):
		m.notifyText(ctx, userID, m.cfg.Texts.AccountNotExist, subject)
		if rerr := m.sched.Remove(JobID(userID, network, subject)); rerr != nil {
			m.log.Warn("cancel dead job", logx.Err(rerr))
		}
		return m.setActive(ctx, userID, network, subject, false)
	case errors.Is(err, media.ErrAccountIsPrivate):
		m.notifyText(ctx, userID, m.cfg.Texts.AccountIsPrivate, subject)
		return nil
	case errors.Is(err, media.ErrEmptyResults):
		m.notifyText(ctx, userID, m.cfg.Texts.EmptyResults, subject)
		return nil
	case err != nil:
		return err
	}
	if res.Empty() {
		return nil
	}
	item := res.Items[0]

	var seen LastSeen
	had, err := m.st.GetUser(ctx, userID, lastSeenKey(network, subject), &seen)
	if err != nil {
		return err
	}

	changed := had && seen.LastItemID != "" && seen.LastItemID != item.ID
	fresh := (!had || seen.LastItemID == "") && !item.TakenAt.Before(sub.StartDate)
	if changed || fresh {
		text := fmt.Sprintf(m.cfg.Texts.NewContent, subject)
		if err := m.notify.Notify(ctx, userID, text, &item); err != nil {
			m.log.Warn("notify failed", logx.Int64("user", userID), logx.Err(err))
		}
	}

	return m.st.SetUser(ctx, userID, lastSeenKey(network, subject), LastSeen{
		LastItemID: item.ID,
		LastSeenAt: m.now(),
	})
}

func (m *Manager) notifyText(ctx context.Context, userID int64, format, subject string) {
	if err := m.notify.Notify(ctx, userID, fmt.Sprintf(format, subject), nil); err != nil {
		m.log.Warn("notify failed", logx.Int64("user", userID), logx.Err(err))
	}
}

func (m *Manager) setActive(ctx context.Context, userID int64, network media.Source, subject string, active bool) error {
	list, err := m.load(ctx, userID)
	if err != nil {
		return err
	}
	for i := range list.Subs {
		s := &list.Subs[i]
		if s.Confirmed && s.Network == network && s.Subject == subject {
			s.Active = active
			return m.save(ctx, userID, list)
		}
	}
	return fmt.Errorf("%s/%s: %w", network, subject, ErrNotFound)
}

func (m *Manager) load(ctx context.Context, userID int64) (subscriptionList, error) {
	var list subscriptionList
	if _, err := m.st.GetUser(ctx, userID, subsKey, &list); err != nil {
		return subscriptionList{}, err
	}
	return list, nil
}

func (m *Manager) save(ctx context.Context, userID int64, list subscriptionList) error {
	list.Version++
	return m.st.SetUser(ctx, userID, subsKey, list)
}

func dropUnconfirmed(subs []Subscription) []Subscription {
	kept := subs[:0]
	for _, s := range subs {
		if s.Confirmed {
			kept = append(kept, s)
		}
	}
	return kept
}

func lastSeenKey(network media.Source, subject string) string {
	return "monitoring_lastseen_" + string(network) + "_" + subject
}

func userIDFromKey(key string) (int64, bool) {
	prefix, _, ok := strings.Cut(key, "_")
	if !ok {
		return 0, false
	}
	uid, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return 0, false
	}
	return uid, true
}
