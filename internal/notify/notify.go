// Package notify is the async outbound pipeline: queue, worker pool, rate
// limit, retry with backoff, and short-window dedup. Everything user-facing
// that the bot sends on its own initiative (monitoring alerts, throttle
// warnings) goes through here instead of calling the adapter directly.
package notify

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"relaybot/internal/media"
	"relaybot/internal/transport"
	"relaybot/pkg/logx"
)

var (
	ErrQueueFull = errors.New("notify queue full")
	ErrStopped   = errors.New("notify service stopped")
)

type Config struct {
	Workers         int
	QueueSize       int
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	SendTimeout     time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
}

func (c *Config) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 512
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 3
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 10 * time.Second
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	if c.DedupWindow < 0 {
		c.DedupWindow = 0
	}
	if c.DedupMaxEntries <= 0 {
		c.DedupMaxEntries = 2000
	}
}

type job struct {
	chatID   int64
	text     string
	item     *media.Item
	dedupKey string
}

// Service is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log     logx.Logger
	adapter transport.Adapter
	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup

	queue chan job

	runCtx    context.Context
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup

	// dedup key -> suppress until
	dmu   sync.Mutex
	dedup map[string]time.Time
}

func New(cfg Config, adapter transport.Adapter, log logx.Logger) *Service {
	cfg.applyDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:     log.With(logx.String("svc", "notify")),
		adapter: adapter,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		dedup:   map[string]time.Time{},
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.queue != nil {
		s.mu.Unlock()
		return
	}
	s.queue = make(chan job, s.cfg.QueueSize)
	s.accepting = true
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	workers := s.cfg.Workers
	queue, runCtx := s.queue, s.runCtx
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		idx := i
		s.workerWG.Add(1)
		go func() {
			defer s.workerWG.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("panic in notify worker",
						logx.Int("worker", idx),
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())))
				}
			}()
			s.workerLoop(runCtx, queue)
		}()
	}
}

// Stop blocks intake and drains the queue best-effort until ctx deadline.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	q := s.queue
	cancel := s.runCancel
	if q == nil {
		s.mu.Unlock()
		return
	}
	s.accepting = false
	s.mu.Unlock()

	// wait for in-flight enqueues before closing the channel
	enqueued := make(chan struct{})
	go func() {
		s.sendWG.Wait()
		close(enqueued)
	}()
	select {
	case <-ctx.Done():
		if cancel != nil {
			cancel()
		}
		return
	case <-enqueued:
	}
	close(q)

	drained := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
	}
	if cancel != nil {
		cancel()
	}

	s.mu.Lock()
	s.queue = nil
	s.runCtx = nil
	s.runCancel = nil
	s.mu.Unlock()
}

// Notify queues one outbound message. item may be nil for text-only messages.
// Satisfies the monitoring layer's notifier contract.
func (s *Service) Notify(ctx context.Context, chatID int64, text string, item *media.Item) error {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	s.mu.Lock()
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	window, max := s.cfg.DedupWindow, s.cfg.DedupMaxEntries
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	key := dedupKey(chatID, text, item)
	if window > 0 && !s.dedupAllow(key, window, max) {
		s.log.Debug("deduped", logx.Int64("chat", chatID))
		return nil
	}

	select {
	case q <- job{chatID: chatID, text: text, item: item, dedupKey: key}:
		return nil
	default:
		s.log.Warn("queue full, dropping", logx.Int64("chat", chatID))
		return ErrQueueFull
	}
}

func (s *Service) workerLoop(runCtx context.Context, queue chan job) {
	for j := range queue {
		select {
		case <-runCtx.Done():
			return
		default:
		}
		s.sendWithRetry(runCtx, j)
	}
}

func (s *Service) sendWithRetry(runCtx context.Context, j job) {
	cfg := s.cfg

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.RetryBase
	bo.MaxInterval = cfg.RetryMaxDelay
	bo.MaxElapsedTime = 0

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		if err := s.limiter.Wait(runCtx); err != nil {
			return backoff.Permanent(err)
		}
		callCtx, cancel := context.WithTimeout(runCtx, cfg.SendTimeout)
		defer cancel()
		if err := s.send(callCtx, j); err != nil {
			s.log.Debug("send failed", logx.Int("attempt", attempt), logx.Err(err))
			return err
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(cfg.RetryMax)), runCtx))
	if err != nil {
		s.log.Warn("delivery gave up",
			logx.Int64("chat", j.chatID),
			logx.Int("attempts", attempt),
			logx.Err(err))
	}
}

func (s *Service) send(ctx context.Context, j job) error {
	to := transport.ChatTarget{ChatID: j.chatID}
	if j.item != nil {
		_, err := s.adapter.SendMedia(ctx, to, *j.item, j.text, nil)
		return err
	}
	_, err := s.adapter.SendText(ctx, to, j.text, &transport.SendOptions{DisablePreview: true})
	return err
}

func dedupKey(chatID int64, text string, item *media.Item) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(fmt.Sprintf("%d|", chatID)))
	_, _ = h.Write([]byte(text))
	if item != nil {
		_, _ = h.Write([]byte("|" + item.ID))
	}
	return fmt.Sprintf("%x", h.Sum64())
}

func (s *Service) dedupAllow(key string, window time.Duration, max int) bool {
	now := time.Now()

	s.dmu.Lock()
	defer s.dmu.Unlock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		return false
	}
	s.dedup[key] = now.Add(window)

	for k, until := range s.dedup {
		if !now.Before(until) {
			delete(s.dedup, k)
		}
	}
	for max > 0 && len(s.dedup) > max {
		var (
			minKey string
			minT   time.Time
			set    bool
		)
		for k, t := range s.dedup {
			if !set || t.Before(minT) {
				minKey, minT, set = k, t, true
			}
		}
		delete(s.dedup, minKey)
	}
	return true
}
