package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_DefaultsFromEmptyConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.InitialBank != 100 {
		t.Fatalf("initial_bank = %v, want 100", cfg.InitialBank)
	}
	if len(cfg.Engine.Symbols) != 3 || cfg.Engine.Symbols[0] != "BTCUSDT" {
		t.Fatalf("symbols = %v", cfg.Engine.Symbols)
	}
	if cfg.Engine.Interval != "1h" || cfg.Engine.Bars != 100 {
		t.Fatalf("engine defaults = %+v", cfg.Engine)
	}
	if cfg.Risk.MinConfidence != 0.6 || cfg.Risk.MaxConsecutiveLosses != 3 {
		t.Fatalf("risk defaults = %+v", cfg.Risk)
	}
	if cfg.Exits.TakeProfitPct != 5 || cfg.Exits.StopLossPct != 2 || cfg.Exits.MaxHoldMinutes != 1440 {
		t.Fatalf("exit defaults = %+v", cfg.Exits)
	}
	if cfg.Sched.DecisionIntervalSec != 30 || cfg.Sched.SnapshotIntervalSec != 60 {
		t.Fatalf("sched defaults = %+v", cfg.Sched)
	}
	if cfg.Store.LocalPath != "data/state.json" || cfg.Store.Remote.Key != "paper-trader-state" {
		t.Fatalf("store defaults = %+v", cfg.Store)
	}
}

func TestLoad_OverridesSurvive(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
initial_bank: 250
engine:
  symbols: [DOGEUSDT]
  per_strategy_positions: true
risk:
  min_confidence: 0.75
sched:
  session:
    enabled: true
    open_hour_utc: 14
    close_hour_utc: 21
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.InitialBank != 250 {
		t.Fatalf("initial_bank = %v", cfg.InitialBank)
	}
	if len(cfg.Engine.Symbols) != 1 || cfg.Engine.Symbols[0] != "DOGEUSDT" {
		t.Fatalf("symbols = %v", cfg.Engine.Symbols)
	}
	if !cfg.Engine.PerStrategyPositions {
		t.Fatal("per_strategy_positions lost")
	}
	if cfg.Risk.MinConfidence != 0.75 {
		t.Fatalf("min_confidence = %v", cfg.Risk.MinConfidence)
	}
	if !cfg.Sched.Session.Enabled || cfg.Sched.Session.OpenHourUTC != 14 {
		t.Fatalf("session = %+v", cfg.Sched.Session)
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"negative bank", "initial_bank: -5\n", "initial_bank"},
		{"confidence range", "risk:\n  min_confidence: 1.5\n", "min_confidence"},
		{"inverted fractions", "sizing:\n  min_risk_fraction: 0.5\n  max_risk_fraction: 0.1\n", "min_risk_fraction"},
		{"inverted thresholds", "sizing:\n  decrease_threshold: 0.7\n  increase_threshold: 0.6\n", "decrease_threshold"},
		{"bad adapter", "feed:\n  adapter: kraken\n", "feed.adapter"},
		{"session hours", "sched:\n  session:\n    enabled: true\n    open_hour_utc: 26\n", "session"},
		{"remote without url", "store:\n  remote:\n    enabled: true\n", "base_url"},
	}
	for _, tc := range cases {
		_, err := Load(writeConfig(t, tc.body))
		if err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: error %q does not mention %q", tc.name, err, tc.want)
		}
	}
}

func TestEnvResolution(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	t.Setenv("REMOTE_KV_TOKEN", "tok-123")
	t.Setenv("SLACK_WEBHOOK_URL", "https://hooks.slack.invalid/x")
	if cfg.RemoteToken() != "tok-123" {
		t.Fatalf("remote token = %q", cfg.RemoteToken())
	}
	if cfg.SlackWebhookURL() != "https://hooks.slack.invalid/x" {
		t.Fatalf("webhook = %q", cfg.SlackWebhookURL())
	}
}
