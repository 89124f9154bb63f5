// Package schedule runs keyed recurring jobs on top of robfig/cron. Jobs are
// addressed by caller-chosen ids so they can be paused, resumed, or removed
// individually, which is what the monitoring layer needs.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"relaybot/pkg/logx"
)

type Config struct {
	Workers    int
	JobTimeout time.Duration
	Timezone   string // IANA TZ, empty = local
}

var (
	ErrNotStarted  = errors.New("scheduler not started")
	ErrDuplicateID = errors.New("job id already registered")
	ErrUnknownID   = errors.New("unknown job id")
)

type jobDef struct {
	id     string
	spec   string
	job    func(ctx context.Context) error
	paused bool
	entry  cron.EntryID

	// 1 while a tick of this job is executing; overlapping ticks are skipped
	running int32
}

type task struct {
	def *jobDef
}

// Service is the keyed cron runner. Jobs added before Start are bound when the
// cron engine comes up; jobs added after are bound immediately.
type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	parser cron.Parser
	c      *cron.Cron
	defs   map[string]*jobDef

	queue    chan task
	stopCh   chan struct{}
	runCtx   context.Context
	cancel   context.CancelFunc
	workerWG sync.WaitGroup
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg: cfg,
		log: log.With(logx.String("svc", "schedule")),
		// SecondOptional allows both 5-field and 6-field specs plus @every.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		defs:   map[string]*jobDef{},
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})
	s.runCtx, s.cancel = context.WithCancel(ctx)

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	s.queue = make(chan task, 256)

	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))

	for _, d := range s.defs {
		if !d.paused {
			s.bindLocked(d)
		}
	}

	runCtx, stopCh, queue := s.runCtx, s.stopCh, s.queue
	s.workerWG.Add(workers)
	for i := 0; i < workers; i++ {
		idx := i
		go func() {
			defer s.workerWG.Done()
			s.worker(runCtx, stopCh, queue, idx)
		}()
	}
	s.c.Start()
	s.log.Info("started",
		logx.Int("workers", workers),
		logx.String("tz", loc.String()),
		logx.Int("jobs", len(s.defs)))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	stopCh := s.stopCh
	cancel := s.cancel
	c := s.c
	s.stopCh = nil
	s.c = nil
	s.cancel = nil
	s.mu.Unlock()

	close(stopCh)
	if cancel != nil {
		cancel()
	}
	if c != nil {
		<-c.Stop().Done()
	}

	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	s.log.Info("stopped")
}

// Add registers a recurring job under id. Fails on duplicate ids or a spec the
// parser rejects.
func (s *Service) Add(id, spec string, job func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.defs[id]; exists {
		return fmt.Errorf("%s: %w", id, ErrDuplicateID)
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("spec %q: %w", spec, err)
	}
	d := &jobDef{id: id, spec: spec, job: job}
	s.defs[id] = d
	if s.c != nil {
		s.bindLocked(d)
	}
	s.log.Debug("job added", logx.String("job", id), logx.String("spec", spec))
	return nil
}

// Remove drops the job entirely.
func (s *Service) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.defs[id]
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrUnknownID)
	}
	s.unbindLocked(d)
	delete(s.defs, id)
	s.log.Debug("job removed", logx.String("job", id))
	return nil
}

// Pause stops ticks without forgetting the definition.
func (s *Service) Pause(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.defs[id]
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrUnknownID)
	}
	if d.paused {
		return nil
	}
	d.paused = true
	s.unbindLocked(d)
	return nil
}

// Resume re-binds a paused job.
func (s *Service) Resume(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.defs[id]
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrUnknownID)
	}
	if !d.paused {
		return nil
	}
	d.paused = false
	if s.c != nil {
		s.bindLocked(d)
	}
	return nil
}

func (s *Service) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.defs[id]
	return ok
}

// Paused reports whether id exists and is currently paused.
func (s *Service) Paused(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.defs[id]
	return ok && d.paused
}

func (s *Service) bindLocked(d *jobDef) {
	entry, err := s.c.AddFunc(d.spec, func() { s.enqueue(d) })
	if err != nil {
		// spec was validated at Add time; only a programming error lands here
		s.log.Error("bind failed", logx.String("job", d.id), logx.Err(err))
		return
	}
	d.entry = entry
}

func (s *Service) unbindLocked(d *jobDef) {
	if s.c != nil && d.entry != 0 {
		s.c.Remove(d.entry)
	}
	d.entry = 0
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone, falling back to local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func (s *Service) enqueue(d *jobDef) {
	s.mu.Lock()
	queue := s.queue
	s.mu.Unlock()
	if queue == nil {
		return
	}
	select {
	case queue <- task{def: d}:
	default:
		s.log.Warn("queue full, dropping tick", logx.String("job", d.id))
	}
}

func (s *Service) worker(ctx context.Context, stopCh chan struct{}, queue chan task, idx int) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case t := <-queue:
			s.execOne(ctx, t.def)
		}
	}
}

func (s *Service) execOne(ctx context.Context, d *jobDef) {
	if !atomic.CompareAndSwapInt32(&d.running, 0, 1) {
		s.log.Debug("tick skipped, previous still running", logx.String("job", d.id))
		return
	}
	defer atomic.StoreInt32(&d.running, 0)
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in job",
				logx.String("job", d.id),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
		}
	}()

	runCtx := ctx
	if s.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.JobTimeout)
		defer cancel()
	}

	start := time.Now()
	if err := d.job(runCtx); err != nil {
		s.log.Warn("job failed",
			logx.String("job", d.id),
			logx.Duration("took", time.Since(start)),
			logx.Err(err))
		return
	}
	s.log.Debug("job ok", logx.String("job", d.id), logx.Duration("took", time.Since(start)))
}
