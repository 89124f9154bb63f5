// Package app wires the services together and owns their lifecycle.
package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"relaybot/internal/bot"
	"relaybot/internal/config"
	"relaybot/internal/fetch"
	"relaybot/internal/monitor"
	"relaybot/internal/notify"
	"relaybot/internal/provider"
	"relaybot/internal/schedule"
	"relaybot/internal/storage"
	"relaybot/internal/store"
	"relaybot/internal/throttle"
	"relaybot/internal/transport/telegram"
	"relaybot/pkg/logx"
)

// Throttle bucket keys. The paid bucket counts upstream API spend and flushes
// to the SQLite ledger on window rollover.
const (
	bucketMessages = "user_requests"
	bucketPaid     = "paid_requests"
)

type App struct {
	cfgm *config.Manager

	logs *logx.Service
	log  logx.Logger

	kv     *store.Store
	ledger *storage.Store

	adapter *telegram.Adapter
	sched   *schedule.Service
	notif   *notify.Service
	mon     *monitor.Manager
	bot     *bot.Service

	watchCancel context.CancelFunc
	wg          sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath, logx.NewConsole("INFO"))
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	// every opened resource registers here so any later construction failure
	// releases all of them
	var closers []func()
	fail := func(err error) (*App, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		return nil, err
	}
	closers = append(closers, func() { logSvc.Close() })

	kv, err := store.Open(store.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, log.With(logx.String("comp", "store")))
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func() { kv.Close() })

	// The counter ledger is optional; without it paid-window flushes are
	// logged and dropped.
	var ledger *storage.Store
	if strings.TrimSpace(cfg.Storage.Path) != "" {
		busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
		if err == nil {
			ledger, err = storage.Open(storage.Config{
				Path:        cfg.Storage.Path,
				BusyTimeout: busy,
			}, log.With(logx.String("comp", "storage")))
		}
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { ledger.Close() })
	}

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return fail(err)
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return fail(err)
	}

	reg := buildRegistry(cfg, log)
	orch := fetch.New(reg, log.With(logx.String("comp", "fetch")))

	jobTimeout, err := config.ParseDurationField("scheduler.job_timeout", cfg.Scheduler.JobTimeout)
	if err != nil {
		return fail(err)
	}
	sched := schedule.New(schedule.Config{
		Workers:    cfg.Scheduler.Workers,
		JobTimeout: jobTimeout,
		Timezone:   cfg.Scheduler.Timezone,
	}, log.With(logx.String("comp", "schedule")))

	ncfg, err := mapNotifierConfig(cfg.Notifier)
	if err != nil {
		return fail(err)
	}
	notif := notify.New(ncfg, adapter, log.With(logx.String("comp", "notify")))

	mon, err := monitor.New(kv, sched, orch, notif, monitor.Config{
		IntervalSeconds:  cfg.Monitoring.IntervalSeconds,
		MaxSubscriptions: cfg.Monitoring.MaxSubscriptions,
		Texts: monitor.Texts{
			AccountNotExist:  cfg.Monitoring.TextAccountNotExist,
			AccountIsPrivate: cfg.Monitoring.TextAccountIsPrivate,
			EmptyResults:     cfg.Monitoring.TextEmptyResults,
			NewContent:       cfg.Monitoring.TextNewContent,
		},
	}, log.With(logx.String("comp", "monitor")))
	if err != nil {
		return fail(err)
	}

	gate, err := buildGate(cfg, kv, ledger, log)
	if err != nil {
		return fail(err)
	}

	handlerTimeout, err := config.ParseDurationField("bot.handler_timeout", cfg.Bot.HandlerTimeout)
	if err != nil {
		return fail(err)
	}
	handler := buildHandler(cfg, orch, gate, log)
	botSvc := bot.New(bot.Config{
		Workers:        cfg.Bot.Workers,
		QueueSize:      cfg.Bot.QueueSize,
		HandlerTimeout: handlerTimeout,
	}, adapter, handler, log.With(logx.String("comp", "bot")))

	return &App{
		cfgm:    cfgm,
		logs:    logSvc,
		log:     log,
		kv:      kv,
		ledger:  ledger,
		adapter: adapter,
		sched:   sched,
		notif:   notif,
		mon:     mon,
		bot:     botSvc,
	}, nil
}

// buildRegistry registers one fetcher per capability per configured endpoint.
// List order is fallback order.
func buildRegistry(cfg *config.Config, log logx.Logger) *provider.Registry {
	reg := provider.NewRegistry()

	for _, ep := range cfg.Providers.Instagram {
		timeout, _ := config.ParseDurationField("providers.instagram.timeout", ep.Timeout)
		ig := provider.NewInstagram(ep.Name, provider.InstagramConfig{
			BaseURL: ep.BaseURL,
			Host:    ep.Host,
			Key:     ep.Key,
			Timeout: timeout,
		}, log.With(logx.String("provider", ep.Name)))
		reg.Register(provider.CapInstagramStories, provider.InstagramStories{Instagram: ig})
		reg.Register(provider.CapInstagramStory, provider.InstagramStory{Instagram: ig})
		reg.Register(provider.CapInstagramPosts, provider.InstagramPosts{Instagram: ig})
		reg.Register(provider.CapInstagramReels, provider.InstagramReels{Instagram: ig})
		reg.Register(provider.CapInstagramPost, provider.InstagramPost{Instagram: ig})
		reg.Register(provider.CapInstagramHighlights, provider.InstagramHighlights{Instagram: ig})
		reg.Register(provider.CapInstagramMusic, provider.InstagramMusic{Instagram: ig})
	}

	for _, ep := range cfg.Providers.TikTok {
		timeout, _ := config.ParseDurationField("providers.tiktok.timeout", ep.Timeout)
		tt := provider.NewTikTok(ep.Name, provider.TikTokConfig{
			BaseURL: ep.BaseURL,
			Host:    ep.Host,
			Key:     ep.Key,
			Timeout: timeout,
		}, log.With(logx.String("provider", ep.Name)))
		reg.Register(provider.CapTikTokVideos, provider.TikTokVideos{TikTok: tt})
		reg.Register(provider.CapTikTokVideo, provider.TikTokVideo{TikTok: tt})
		reg.Register(provider.CapTikTokMusic, provider.TikTokMusic{TikTok: tt})
		reg.Register(provider.CapTikTokUnknown, provider.TikTokUnknown{TikTok: tt})
	}

	return reg
}

func buildGate(cfg *config.Config, kv *store.Store, ledger *storage.Store, log logx.Logger) (*throttle.Gate, error) {
	msgWindow, err := config.ParseDurationField("throttle.messages.window", cfg.Throttle.Messages.Window)
	if err != nil {
		return nil, err
	}
	paidWindow, err := config.ParseDurationField("throttle.paid.window", cfg.Throttle.Paid.Window)
	if err != nil {
		return nil, err
	}

	var onPaidReset throttle.ResetFunc
	if ledger != nil {
		onPaidReset = func(ctx context.Context, userID int64, count int) error {
			return ledger.AddPaidRequests(ctx, userID, count)
		}
	}

	return throttle.NewGate(kv, log.With(logx.String("comp", "throttle")),
		throttle.Bucket{
			Key:    bucketMessages,
			Window: msgWindow,
			Limit:  cfg.Throttle.Messages.Limit,
		},
		throttle.Bucket{
			Key:     bucketPaid,
			Window:  paidWindow,
			Limit:   cfg.Throttle.Paid.Limit,
			OnReset: onPaidReset,
		},
	)
}

func buildHandler(cfg *config.Config, orch *fetch.Orchestrator, gate *throttle.Gate, log logx.Logger) bot.HandlerFunc {
	maxItems := cfg.Bot.MaxItems
	if maxItems <= 0 {
		maxItems = 10
	}
	warnText := strings.TrimSpace(cfg.Throttle.WarnText)
	if warnText == "" {
		warnText = "Slow down a little. I will answer again in a bit."
	}

	link := bot.NewLinkHandler(orch, maxItems, cfg.Bot.TextProgress)

	return bot.Chain(link.Handle,
		bot.MWPanicRecover(log),
		bot.MWRequestLog(log),
		bot.MWThrottle(gate, bucketMessages, warnText),
		bot.MWThrottle(gate, bucketPaid, warnText),
		bot.MWErrorReply(bot.ErrorTexts{
			WrongInput:       cfg.Bot.TextWrongInput,
			EmptyResults:     cfg.Bot.TextEmptyResults,
			AccountNotExist:  cfg.Bot.TextAccountNotExist,
			AccountIsPrivate: cfg.Bot.TextAccountIsPrivate,
			ProviderError:    cfg.Bot.TextProviderError,
			Internal:         cfg.Bot.TextInternal,
		}),
	)
}

func mapNotifierConfig(nc *config.NotifierConfig) (notify.Config, error) {
	if nc == nil {
		return notify.Config{}, nil
	}
	retryBase, err := config.ParseDurationField("notifier.retry_base", nc.RetryBase)
	if err != nil {
		return notify.Config{}, err
	}
	retryMaxDelay, err := config.ParseDurationField("notifier.retry_max_delay", nc.RetryMaxDelay)
	if err != nil {
		return notify.Config{}, err
	}
	sendTimeout, err := config.ParseDurationField("notifier.send_timeout", nc.SendTimeout)
	if err != nil {
		return notify.Config{}, err
	}
	dedupWindow, err := config.ParseDurationField("notifier.dedup_window", nc.DedupWindow)
	if err != nil {
		return notify.Config{}, err
	}
	return notify.Config{
		Workers:         nc.Workers,
		QueueSize:       nc.QueueSize,
		RatePerSec:      nc.RatePerSec,
		RetryMax:        nc.RetryMax,
		RetryBase:       retryBase,
		RetryMaxDelay:   retryMaxDelay,
		SendTimeout:     sendTimeout,
		DedupWindow:     dedupWindow,
		DedupMaxEntries: nc.DedupMaxEntries,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	a.sched.Start(ctx)
	a.notif.Start(ctx)

	if err := a.mon.Restore(ctx); err != nil {
		a.log.Warn("monitoring restore incomplete", logx.Err(err))
	}

	if err := a.bot.Start(ctx); err != nil {
		a.sched.Stop(ctx)
		a.notif.Stop(ctx)
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	a.watchCancel = cancel
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(watchCtx)
	}()
	sub := a.cfgm.Subscribe(4)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		a.applyReloads(watchCtx, sub)
	}()

	a.log.Info("started")
	return nil
}

// applyReloads re-applies the sections that can change live. Everything else
// logs a restart hint; a validated-but-unapplied config is still better than
// crashing mid-run.
func (a *App) applyReloads(ctx context.Context, sub chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			changed, _ := config.SummarizeChange(last, cfg)
			last = cfg

			for _, section := range changed {
				switch section {
				case "logging":
					a.logs.Apply(logx.Config{
						Level:   cfg.Logging.Level,
						Console: cfg.Logging.Console,
						File: logx.FileConfig{
							Enabled: cfg.Logging.File.Enabled,
							Path:    cfg.Logging.File.Path,
						},
					})
					a.log.Info("logging config re-applied", logx.String("level", cfg.Logging.Level))
				case "monitoring":
					// new interval affects subscriptions confirmed from now on
					a.log.Info("monitoring config updated",
						logx.Int("interval_seconds", cfg.Monitoring.IntervalSeconds))
				default:
					a.log.Warn("config section changed; restart required to apply",
						logx.String("section", section))
				}
			}
		}
	}
}

func (a *App) Stop(ctx context.Context) {
	if a.watchCancel != nil {
		a.watchCancel()
	}
	a.wg.Wait()

	a.bot.Stop(ctx)
	a.sched.Stop(ctx)
	a.notif.Stop(ctx)

	if err := a.kv.Close(); err != nil {
		a.log.Warn("store close failed", logx.Err(err))
	}
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
	}
	a.log.Info("stopped")
	a.logs.Close()
}
