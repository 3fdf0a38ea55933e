package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Rajchodisetti/paper-trader/internal/alerts"
	"github.com/Rajchodisetti/paper-trader/internal/config"
	"github.com/Rajchodisetti/paper-trader/internal/engine"
	"github.com/Rajchodisetti/paper-trader/internal/marketdata"
	"github.com/Rajchodisetti/paper-trader/internal/observ"
	"github.com/Rajchodisetti/paper-trader/internal/portfolio"
	"github.com/Rajchodisetti/paper-trader/internal/risk"
	"github.com/Rajchodisetti/paper-trader/internal/sched"
	"github.com/Rajchodisetti/paper-trader/internal/sizing"
	"github.com/Rajchodisetti/paper-trader/internal/store"
	"github.com/Rajchodisetti/paper-trader/internal/strategy"
)

func main() {
	var cfgPath string
	var metricsAddr string
	var sim bool
	flag.StringVar(&cfgPath, "config", "config/config.yaml", "config path")
	flag.StringVar(&metricsAddr, "metrics-addr", "127.0.0.1:8091", "metrics listen address (empty to disable)")
	flag.BoolVar(&sim, "sim", false, "use the mock feed instead of Binance")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v (did you copy config.example.yaml?)", err)
	}
	if os.Getenv("REMOTE_ENABLED") != "" {
		cfg.Store.Remote.Enabled = os.Getenv("REMOTE_ENABLED") == "true"
	}
	if os.Getenv("SLACK_ENABLED") != "" {
		cfg.Slack.Enabled = os.Getenv("SLACK_ENABLED") == "true"
	}
	if sim {
		cfg.Feed.Adapter = "mock"
	}

	observ.Log("startup", observ.Fields{
		"symbols":        cfg.Engine.Symbols,
		"interval":       cfg.Engine.Interval,
		"initial_bank":   cfg.InitialBank,
		"feed":           cfg.Feed.Adapter,
		"stream":         cfg.Feed.StreamEnabled,
		"remote_enabled": cfg.Store.Remote.Enabled,
		"slack_enabled":  cfg.Slack.Enabled,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	feed := buildFeed(ctx, cfg)
	defer feed.Close()

	local := store.NewFileStore(cfg.Store.LocalPath)
	var remote *store.RemoteStore
	if cfg.Store.Remote.Enabled {
		remote = store.NewRemoteStore(store.RemoteConfig{
			BaseURL:    cfg.Store.Remote.BaseURL,
			Token:      cfg.RemoteToken(),
			Key:        cfg.Store.Remote.Key,
			Timeout:    time.Duration(cfg.Store.Remote.TimeoutMs) * time.Millisecond,
			MaxRetries: cfg.Store.Remote.MaxRetries,
		})
	}

	book := portfolio.NewBook(cfg.InitialBank, portfolio.Rules{
		Exits: portfolio.ExitRules{
			TakeProfitPct: cfg.Exits.TakeProfitPct,
			StopLossPct:   cfg.Exits.StopLossPct,
			MaxHold:       time.Duration(cfg.Exits.MaxHoldMinutes) * time.Minute,
		},
		PerStrategyKeys: cfg.Engine.PerStrategyPositions,
		MinSample:       cfg.Sizing.MinSampleSize,
	})
	sizer := sizing.NewController(sizing.Params{
		BaseRiskFraction:  cfg.Sizing.BaseRiskFraction,
		MaxRiskFraction:   cfg.Sizing.MaxRiskFraction,
		MinRiskFraction:   cfg.Sizing.MinRiskFraction,
		IncreaseThreshold: cfg.Sizing.IncreaseThreshold,
		DecreaseThreshold: cfg.Sizing.DecreaseThreshold,
		GrowthFactor:      cfg.Sizing.GrowthFactor,
		DecayFactor:       cfg.Sizing.DecayFactor,
		MinSampleSize:     cfg.Sizing.MinSampleSize,
		MinStakeFraction:  cfg.Sizing.MinStakeFraction,
	})

	now := time.Now().UTC()
	loadCtx, cancelLoad := context.WithTimeout(context.Background(), 15*time.Second)
	snap, source := store.Loader{Local: local, Remote: remote, InitialBank: cfg.InitialBank}.Load(loadCtx, now)
	cancelLoad()
	store.Apply(snap, book, now)
	sizer.Restore(snap.Stakes)
	observ.Log("state_ready", observ.Fields{
		"source": source, "bank": book.Account().Bank,
		"open_positions": len(book.OpenPositions()),
	})

	var slack *alerts.SlackClient
	if cfg.Slack.Enabled {
		slack = alerts.NewSlackClient(cfg.SlackWebhookURL(), cfg.Slack.Channel)
		defer slack.Close()
	}

	gov := risk.NewGovernor(risk.Limits{
		MinConfidence:        cfg.Risk.MinConfidence,
		MaxConsecutiveLosses: cfg.Risk.MaxConsecutiveLosses,
		MaxDailyLossFraction: cfg.Risk.MaxDailyLossFraction,
		BankFloorUSD:         cfg.Risk.BankFloorUSD,
	})
	cycle := engine.New(engine.Deps{
		Feed:                 feed,
		Signals:              strategy.NewEngine(),
		Governor:             gov,
		Book:                 book,
		Sizer:                sizer,
		Local:                local,
		Remote:               remote,
		Slack:                slack,
		Symbols:              cfg.Engine.Symbols,
		Interval:             cfg.Engine.Interval,
		BarLimit:             cfg.Engine.Bars,
		MaxConsecutiveLosses: cfg.Risk.MaxConsecutiveLosses,
	})

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observ.Handler())
		go func() { _ = http.ListenAndServe(metricsAddr, mux) }()
		observ.Log("metrics_listening", observ.Fields{"addr": metricsAddr})
	}

	scheduler := sched.New(sched.Config{
		DecisionInterval: time.Duration(cfg.Sched.DecisionIntervalSec) * time.Second,
		SnapshotInterval: time.Duration(cfg.Sched.SnapshotIntervalSec) * time.Second,
		ReportInterval:   time.Duration(cfg.Sched.ReportIntervalSec) * time.Second,
		WindowInterval:   time.Duration(cfg.Exits.WindowMinutes) * time.Minute,
		Session: sched.Session{
			Enabled:      cfg.Sched.Session.Enabled,
			OpenHourUTC:  cfg.Sched.Session.OpenHourUTC,
			CloseHourUTC: cfg.Sched.Session.CloseHourUTC,
		},
	}, cycle)

	scheduler.Run(ctx)
	observ.Log("shutdown", observ.Fields{"bank": book.Account().Bank})
}

func buildFeed(ctx context.Context, cfg config.Root) marketdata.Feed {
	if cfg.Feed.Adapter == "mock" {
		return marketdata.NewMockFeed()
	}
	rest := marketdata.NewBinanceFeed(marketdata.BinanceConfig{
		RateLimitPerMinute: cfg.Feed.RateLimitPerMinute,
		TimeoutSec:         cfg.Feed.TimeoutSec,
	})
	if !cfg.Feed.StreamEnabled {
		return rest
	}
	stream := marketdata.NewPriceStream(cfg.Engine.Symbols)
	stream.Start(ctx)
	return marketdata.NewStreamingFeed(rest, stream, 0)
}
