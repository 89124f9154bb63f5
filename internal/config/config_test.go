package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"relaybot/pkg/logx"
)

const validYAML = `
telegram:
  token: "123:abc"
logging:
  level: info
  console: true
redis:
  addr: "127.0.0.1:6379"
storage:
  path: "./data/relaybot.db"
providers:
  instagram:
    - name: ig-primary
      base_url: "https://ig.example.com"
      host: "ig.example.com"
      key: "k1"
    - name: ig-backup
      base_url: "https://ig2.example.com"
      host: "ig2.example.com"
      key: "k2"
  tiktok:
    - name: tt-primary
      base_url: "https://tt.example.com"
      host: "tt.example.com"
      key: "k3"
throttle:
  messages:
    window: "30s"
    limit: 5
  paid:
    window: "24h"
    limit: 50
monitoring:
  interval_seconds: 300
  max_subscriptions: 3
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.yaml", validYAML), logx.Nop())
	cfg, err := m.Load()
	require.NoError(t, err)

	require.Equal(t, "123:abc", cfg.Telegram.Token)
	require.Len(t, cfg.Providers.Instagram, 2)
	require.Equal(t, "ig-backup", cfg.Providers.Instagram[1].Name)
	require.Equal(t, 300, cfg.Monitoring.IntervalSeconds)
	require.Equal(t, 5, cfg.Throttle.Messages.Limit)
	require.Same(t, cfg, m.Get())
}

func TestUnknownFieldRejected(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.yaml", validYAML+"\ntypo_section:\n  x: 1\n"), logx.Nop())
	_, err := m.Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()
	base := func() *Config {
		m := NewManager(writeConfig(t, "config.yaml", validYAML), logx.Nop())
		cfg, err := m.Parse()
		require.NoError(t, err)
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing token", func(c *Config) { c.Telegram.Token = "" }},
		{"missing redis", func(c *Config) { c.Redis.Addr = "" }},
		{"no providers", func(c *Config) { c.Providers = ProvidersConfig{} }},
		{"zero interval", func(c *Config) { c.Monitoring.IntervalSeconds = 0 }},
		{"zero bucket limit", func(c *Config) { c.Throttle.Messages.Limit = 0 }},
		{"bad bucket window", func(c *Config) { c.Throttle.Paid.Window = "soon" }},
		{"endpoint without url", func(c *Config) { c.Providers.TikTok[0].BaseURL = "" }},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			require.NoError(t, cfg.Validate())
			tc.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.yaml", validYAML), logx.Nop())
	oldCfg, err := m.Parse()
	require.NoError(t, err)
	newCfg, err := m.Parse()
	require.NoError(t, err)

	changed, _ := SummarizeChange(oldCfg, newCfg)
	require.Empty(t, changed)

	newCfg.Monitoring.IntervalSeconds = 600
	newCfg.Throttle.Messages.Limit = 10
	changed, _ = SummarizeChange(oldCfg, newCfg)
	require.Equal(t, []string{"monitoring", "throttle"}, changed)
}
