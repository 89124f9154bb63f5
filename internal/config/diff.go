package config

import (
	"reflect"
	"sort"
	"strings"

	"relaybot/pkg/logx"
)

// SummarizeChange returns the changed top-level sections and structured attrs
// safe for logging. Secrets (tokens, API keys, passwords) never appear in the
// output, only whether they are set.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	var (
		changed []string
		attrs   []logx.Field
	)

	if oldCfg.Telegram != newCfg.Telegram {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
			logx.String("telegram.poll_timeout", newCfg.Telegram.PollTimeout),
		)
	}
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
		)
	}
	if oldCfg.Redis != newCfg.Redis {
		changed = append(changed, "redis")
		attrs = append(attrs, logx.String("redis.addr", newCfg.Redis.Addr))
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""))
	}
	if !reflect.DeepEqual(oldCfg.Providers, newCfg.Providers) {
		changed = append(changed, "providers")
		attrs = append(attrs,
			logx.Int("providers.instagram", len(newCfg.Providers.Instagram)),
			logx.Int("providers.tiktok", len(newCfg.Providers.TikTok)),
		)
	}
	if oldCfg.Throttle != newCfg.Throttle {
		changed = append(changed, "throttle")
		attrs = append(attrs,
			logx.Int("throttle.messages_limit", newCfg.Throttle.Messages.Limit),
			logx.String("throttle.messages_window", newCfg.Throttle.Messages.Window),
			logx.Int("throttle.paid_limit", newCfg.Throttle.Paid.Limit),
		)
	}
	if oldCfg.Monitoring != newCfg.Monitoring {
		changed = append(changed, "monitoring")
		attrs = append(attrs,
			logx.Int("monitoring.interval_seconds", newCfg.Monitoring.IntervalSeconds),
			logx.Int("monitoring.max_subscriptions", newCfg.Monitoring.MaxSubscriptions),
		)
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Int("scheduler.workers", newCfg.Scheduler.Workers),
			logx.String("scheduler.timezone", newCfg.Scheduler.Timezone),
		)
	}
	if oldCfg.Bot != newCfg.Bot {
		changed = append(changed, "bot")
		attrs = append(attrs, logx.Int("bot.workers", newCfg.Bot.Workers))
	}

	oldN, newN := oldCfg.Notifier, newCfg.Notifier
	switch {
	case oldN == nil && newN == nil:
	case oldN == nil || newN == nil || *oldN != *newN:
		changed = append(changed, "notifier")
		if newN != nil {
			attrs = append(attrs,
				logx.Int("notifier.workers", newN.Workers),
				logx.Int("notifier.rate_per_sec", newN.RatePerSec),
			)
		}
	}

	sort.Strings(changed)
	return changed, attrs
}
