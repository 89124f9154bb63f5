// Package bot consumes transport updates and runs them through the middleware
// pipeline into the content handler. It owns no business state; everything it
// does is delegated to the throttle gate, the orchestrator, and the adapter.
package bot

import (
	"context"
	"strconv"
	"sync"
	"time"

	"relaybot/internal/media"
	"relaybot/internal/transport"
	"relaybot/pkg/logx"
)

type Config struct {
	Workers        int
	QueueSize      int
	HandlerTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = 90 * time.Second
	}
}

// Request is one inbound message moving through the pipeline.
type Request struct {
	ChatID int64
	FromID int64
	Text   string
	Logger logx.Logger

	adapter transport.Adapter
}

// Reply sends a plain text answer back to the chat.
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.adapter.SendText(ctx, transport.ChatTarget{ChatID: r.ChatID}, text,
		&transport.SendOptions{DisablePreview: true})
	return err
}

// SendItem delivers one fetched media item to the chat.
func (r *Request) SendItem(ctx context.Context, item media.Item, caption string) error {
	_, err := r.adapter.SendMedia(ctx, transport.ChatTarget{ChatID: r.ChatID}, item, caption, nil)
	return err
}

// Service pumps updates from the adapter into the handler chain.
type Service struct {
	cfg     Config
	log     logx.Logger
	adapter transport.Adapter
	handler HandlerFunc

	mu      sync.Mutex
	updates chan transport.Update
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func New(cfg Config, adapter transport.Adapter, handler HandlerFunc, log logx.Logger) *Service {
	cfg.applyDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg,
		log:     log.With(logx.String("svc", "bot")),
		adapter: adapter,
		handler: handler,
	}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.updates != nil {
		s.mu.Unlock()
		return nil
	}
	s.updates = make(chan transport.Update, s.cfg.QueueSize)
	s.stopCh = make(chan struct{})
	updates, stopCh := s.updates, s.stopCh
	workers := s.cfg.Workers
	s.mu.Unlock()

	if err := s.adapter.Start(ctx, updates); err != nil {
		return err
	}

	s.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-stopCh:
					return
				case up := <-updates:
					s.dispatch(ctx, up)
				}
			}
		}()
	}
	s.log.Info("started", logx.Int("workers", workers))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.updates == nil {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.updates = nil
	s.mu.Unlock()

	_ = s.adapter.Stop(ctx)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	s.log.Info("stopped")
}

func (s *Service) dispatch(ctx context.Context, up transport.Update) {
	// callbacks belong to the wizard surface; the content pipeline only
	// handles plain messages
	if up.Kind != transport.UpdateMessage || up.Message == nil {
		return
	}
	m := up.Message
	if m.IsGroup || m.Text == "" {
		return
	}

	req := &Request{
		ChatID:  m.ChatID,
		FromID:  m.FromID,
		Text:    m.Text,
		adapter: s.adapter,
		Logger: s.log.With(
			logx.String("chat", strconv.FormatInt(m.ChatID, 10)),
			logx.Int64("from", m.FromID),
		),
	}
	hctx, cancel := context.WithTimeout(ctx, s.cfg.HandlerTimeout)
	defer cancel()
	if err := s.handler(hctx, req); err != nil {
		// the error-reply middleware swallows handler errors; anything
		// surfacing here is a transport failure
		s.log.Warn("dispatch failed", logx.Int64("chat", m.ChatID), logx.Err(err))
	}
}
