// Package alerts posts trade and risk events to a Slack incoming webhook.
// Delivery is asynchronous and best-effort; a slow or dead webhook never
// stalls the decision cycle.
package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Rajchodisetti/paper-trader/internal/observ"
	"github.com/Rajchodisetti/paper-trader/internal/portfolio"
)

type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type SlackAttachment struct {
	Color  string       `json:"color"`
	Fields []SlackField `json:"fields"`
}

type SlackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Text        string            `json:"text"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

// SlackClient delivers messages through one worker goroutine over a bounded
// queue. When the queue is full the message is dropped and counted.
type SlackClient struct {
	webhookURL string
	channel    string
	httpClient *http.Client
	queue      chan SlackMessage
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewSlackClient returns nil when webhookURL is empty; all methods are safe
// on a nil client, so callers never need to branch.
func NewSlackClient(webhookURL, channel string) *SlackClient {
	if webhookURL == "" {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &SlackClient{
		webhookURL: webhookURL,
		channel:    channel,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		queue:      make(chan SlackMessage, 100),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go c.worker()
	return c
}

func (c *SlackClient) worker() {
	defer close(c.done)
	for {
		select {
		case msg := <-c.queue:
			c.post(msg)
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *SlackClient) post(msg SlackMessage) {
	body, err := json.Marshal(msg)
	if err != nil {
		return
	}
	req, err := http.NewRequestWithContext(c.ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		observ.IncCounter("slack_webhook_errors_total", nil)
		observ.Log("slack_post_failed", observ.Fields{"error": err.Error()})
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		observ.IncCounter("slack_webhook_errors_total", nil)
		return
	}
	observ.IncCounter("slack_alerts_sent_total", nil)
}

func (c *SlackClient) enqueue(msg SlackMessage) {
	if c == nil {
		return
	}
	msg.Channel = c.channel
	select {
	case c.queue <- msg:
	default:
		observ.IncCounter("slack_alerts_dropped_total", nil)
	}
}

// TradeOpened announces a new position.
func (c *SlackClient) TradeOpened(p *portfolio.Position) {
	c.enqueue(SlackMessage{
		Text: fmt.Sprintf("Opened %s %s", p.Direction, p.Symbol),
		Attachments: []SlackAttachment{{
			Color: "#439FE0",
			Fields: []SlackField{
				{Title: "Strategy", Value: p.Strategy, Short: true},
				{Title: "Entry", Value: fmt.Sprintf("%.4f", p.EntryPrice), Short: true},
				{Title: "Size", Value: fmt.Sprintf("$%.2f", p.Size), Short: true},
				{Title: "Confidence", Value: fmt.Sprintf("%.0f%%", p.Confidence*100), Short: true},
			},
		}},
	})
}

// TradeClosed announces a settled position with its result.
func (c *SlackClient) TradeClosed(p *portfolio.Position, bank float64) {
	color := "good"
	if p.PnL <= 0 {
		color = "danger"
	}
	c.enqueue(SlackMessage{
		Text: fmt.Sprintf("Closed %s %s (%s)", p.Direction, p.Symbol, p.ExitReason),
		Attachments: []SlackAttachment{{
			Color: color,
			Fields: []SlackField{
				{Title: "PnL", Value: fmt.Sprintf("$%.4f (%.2f%%)", p.PnL, p.PnLPercent), Short: true},
				{Title: "Exit", Value: fmt.Sprintf("%.4f", p.ExitPrice), Short: true},
				{Title: "Bank", Value: fmt.Sprintf("$%.2f", bank), Short: true},
				{Title: "Strategy", Value: p.Strategy, Short: true},
			},
		}},
	})
}

// RiskPause announces that the governor is holding back new trades.
func (c *SlackClient) RiskPause(reason string, acct portfolio.Account) {
	c.enqueue(SlackMessage{
		Text: "Trading paused by risk governor",
		Attachments: []SlackAttachment{{
			Color: "warning",
			Fields: []SlackField{
				{Title: "Reason", Value: reason, Short: true},
				{Title: "Bank", Value: fmt.Sprintf("$%.2f", acct.Bank), Short: true},
				{Title: "Consecutive losses", Value: fmt.Sprintf("%d", acct.ConsecutiveLosses), Short: true},
			},
		}},
	})
}

// Close stops the worker after the in-flight post finishes.
func (c *SlackClient) Close() {
	if c == nil {
		return
	}
	c.cancel()
	<-c.done
}
