package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Engine struct {
	Symbols              []string `yaml:"symbols"`
	Interval             string   `yaml:"interval"`
	Bars                 int      `yaml:"bars"`
	PerStrategyPositions bool     `yaml:"per_strategy_positions"`
}

type Risk struct {
	MinConfidence        float64 `yaml:"min_confidence"`
	MaxConsecutiveLosses int     `yaml:"max_consecutive_losses"`
	MaxDailyLossFraction float64 `yaml:"max_daily_loss_fraction"`
	BankFloorUSD         float64 `yaml:"bank_floor_usd"`
}

type Sizing struct {
	BaseRiskFraction  float64 `yaml:"base_risk_fraction"`
	MaxRiskFraction   float64 `yaml:"max_risk_fraction"`
	MinRiskFraction   float64 `yaml:"min_risk_fraction"`
	IncreaseThreshold float64 `yaml:"increase_threshold"`
	DecreaseThreshold float64 `yaml:"decrease_threshold"`
	GrowthFactor      float64 `yaml:"growth_factor"`
	DecayFactor       float64 `yaml:"decay_factor"`
	MinSampleSize     int     `yaml:"min_sample_size"`
	MinStakeFraction  float64 `yaml:"min_stake_fraction"`
}

type Exits struct {
	TakeProfitPct  float64 `yaml:"take_profit_pct"`
	StopLossPct    float64 `yaml:"stop_loss_pct"`
	MaxHoldMinutes int     `yaml:"max_hold_minutes"`
	WindowMinutes  int     `yaml:"window_minutes"`
}

type Session struct {
	Enabled      bool `yaml:"enabled"`
	OpenHourUTC  int  `yaml:"open_hour_utc"`
	CloseHourUTC int  `yaml:"close_hour_utc"`
}

type Sched struct {
	DecisionIntervalSec int     `yaml:"decision_interval_sec"`
	SnapshotIntervalSec int     `yaml:"snapshot_interval_sec"`
	ReportIntervalSec   int     `yaml:"report_interval_sec"`
	Session             Session `yaml:"session"`
}

type Feed struct {
	Adapter            string `yaml:"adapter"` // binance | mock
	StreamEnabled      bool   `yaml:"stream_enabled"`
	TimeoutSec         int    `yaml:"timeout_sec"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
}

type Remote struct {
	Enabled    bool   `yaml:"enabled"`
	BaseURL    string `yaml:"base_url"`
	TokenEnv   string `yaml:"token_env"`
	Key        string `yaml:"key"`
	TimeoutMs  int    `yaml:"timeout_ms"`
	MaxRetries int    `yaml:"max_retries"`
}

type Store struct {
	LocalPath string `yaml:"local_path"`
	Remote    Remote `yaml:"remote"`
}

type Slack struct {
	Enabled       bool   `yaml:"enabled"`
	WebhookURLEnv string `yaml:"webhook_url_env"`
	Channel       string `yaml:"channel"`
}

type Root struct {
	InitialBank float64 `yaml:"initial_bank"`
	Engine      Engine  `yaml:"engine"`
	Risk        Risk    `yaml:"risk"`
	Sizing      Sizing  `yaml:"sizing"`
	Exits       Exits   `yaml:"exits"`
	Sched       Sched   `yaml:"sched"`
	Feed        Feed    `yaml:"feed"`
	Store       Store   `yaml:"store"`
	Slack       Slack   `yaml:"slack"`
}

// Load reads the YAML config, applies defaults and validates. A .env beside
// the process is picked up first so token_env/webhook_url_env resolve.
func Load(path string) (Root, error) {
	_ = godotenv.Load()

	var c Root
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, err
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func (c *Root) applyDefaults() {
	if c.InitialBank == 0 {
		c.InitialBank = 100
	}
	if len(c.Engine.Symbols) == 0 {
		c.Engine.Symbols = []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}
	}
	if c.Engine.Interval == "" {
		c.Engine.Interval = "1h"
	}
	if c.Engine.Bars == 0 {
		c.Engine.Bars = 100
	}
	if c.Risk.MinConfidence == 0 {
		c.Risk.MinConfidence = 0.6
	}
	if c.Risk.MaxConsecutiveLosses == 0 {
		c.Risk.MaxConsecutiveLosses = 3
	}
	if c.Risk.MaxDailyLossFraction == 0 {
		c.Risk.MaxDailyLossFraction = 0.10
	}
	if c.Sizing.BaseRiskFraction == 0 {
		c.Sizing.BaseRiskFraction = 0.10
	}
	if c.Sizing.MaxRiskFraction == 0 {
		c.Sizing.MaxRiskFraction = 0.20
	}
	if c.Sizing.MinRiskFraction == 0 {
		c.Sizing.MinRiskFraction = 0.02
	}
	if c.Sizing.IncreaseThreshold == 0 {
		c.Sizing.IncreaseThreshold = 0.60
	}
	if c.Sizing.DecreaseThreshold == 0 {
		c.Sizing.DecreaseThreshold = 0.40
	}
	if c.Sizing.GrowthFactor == 0 {
		c.Sizing.GrowthFactor = 1.1
	}
	if c.Sizing.DecayFactor == 0 {
		c.Sizing.DecayFactor = 0.70
	}
	if c.Sizing.MinSampleSize == 0 {
		c.Sizing.MinSampleSize = 3
	}
	if c.Sizing.MinStakeFraction == 0 {
		c.Sizing.MinStakeFraction = 0.01
	}
	if c.Exits.TakeProfitPct == 0 {
		c.Exits.TakeProfitPct = 5
	}
	if c.Exits.StopLossPct == 0 {
		c.Exits.StopLossPct = 2
	}
	if c.Exits.MaxHoldMinutes == 0 {
		c.Exits.MaxHoldMinutes = 24 * 60
	}
	if c.Exits.WindowMinutes == 0 {
		c.Exits.WindowMinutes = 5
	}
	if c.Sched.DecisionIntervalSec == 0 {
		c.Sched.DecisionIntervalSec = 30
	}
	if c.Sched.SnapshotIntervalSec == 0 {
		c.Sched.SnapshotIntervalSec = 60
	}
	if c.Sched.ReportIntervalSec == 0 {
		c.Sched.ReportIntervalSec = 3600
	}
	if c.Feed.Adapter == "" {
		c.Feed.Adapter = "binance"
	}
	if c.Feed.TimeoutSec == 0 {
		c.Feed.TimeoutSec = 10
	}
	if c.Feed.RateLimitPerMinute == 0 {
		c.Feed.RateLimitPerMinute = 60
	}
	if c.Store.LocalPath == "" {
		c.Store.LocalPath = "data/state.json"
	}
	if c.Store.Remote.Key == "" {
		c.Store.Remote.Key = "paper-trader-state"
	}
	if c.Store.Remote.TokenEnv == "" {
		c.Store.Remote.TokenEnv = "REMOTE_KV_TOKEN"
	}
	if c.Store.Remote.TimeoutMs == 0 {
		c.Store.Remote.TimeoutMs = 5000
	}
	if c.Store.Remote.MaxRetries == 0 {
		c.Store.Remote.MaxRetries = 3
	}
	if c.Slack.WebhookURLEnv == "" {
		c.Slack.WebhookURLEnv = "SLACK_WEBHOOK_URL"
	}
}

// Validate rejects configurations the engine cannot safely start with.
func (c *Root) Validate() error {
	if c.InitialBank <= 0 {
		return fmt.Errorf("initial_bank must be positive, got %v", c.InitialBank)
	}
	if c.Risk.BankFloorUSD < 0 {
		return fmt.Errorf("risk.bank_floor_usd must not be negative, got %v", c.Risk.BankFloorUSD)
	}
	if c.Risk.MinConfidence < 0 || c.Risk.MinConfidence > 1 {
		return fmt.Errorf("risk.min_confidence must be in [0,1], got %v", c.Risk.MinConfidence)
	}
	if c.Sizing.MinRiskFraction > c.Sizing.MaxRiskFraction {
		return fmt.Errorf("sizing.min_risk_fraction %v exceeds max_risk_fraction %v",
			c.Sizing.MinRiskFraction, c.Sizing.MaxRiskFraction)
	}
	if c.Sizing.DecreaseThreshold >= c.Sizing.IncreaseThreshold {
		return fmt.Errorf("sizing.decrease_threshold %v must be below increase_threshold %v",
			c.Sizing.DecreaseThreshold, c.Sizing.IncreaseThreshold)
	}
	if c.Exits.TakeProfitPct <= 0 || c.Exits.StopLossPct <= 0 {
		return fmt.Errorf("exits thresholds must be positive")
	}
	if c.Feed.Adapter != "binance" && c.Feed.Adapter != "mock" {
		return fmt.Errorf("feed.adapter must be binance or mock, got %q", c.Feed.Adapter)
	}
	if s := c.Sched.Session; s.Enabled {
		if s.OpenHourUTC < 0 || s.OpenHourUTC > 23 || s.CloseHourUTC < 0 || s.CloseHourUTC > 24 {
			return fmt.Errorf("sched.session hours out of range")
		}
	}
	if c.Store.Remote.Enabled && c.Store.Remote.BaseURL == "" {
		return fmt.Errorf("store.remote.base_url required when remote store is enabled")
	}
	return nil
}

// RemoteToken resolves the remote store bearer token from the environment.
func (c *Root) RemoteToken() string {
	return os.Getenv(c.Store.Remote.TokenEnv)
}

// SlackWebhookURL resolves the Slack webhook from the environment.
func (c *Root) SlackWebhookURL() string {
	return os.Getenv(c.Slack.WebhookURLEnv)
}
