package alerts

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rajchodisetti/paper-trader/internal/portfolio"
	"github.com/Rajchodisetti/paper-trader/internal/strategy"
)

func TestNilClientIsSafe(t *testing.T) {
	var c *SlackClient
	c.TradeOpened(&portfolio.Position{})
	c.TradeClosed(&portfolio.Position{}, 100)
	c.RiskPause("loss_cooldown", portfolio.Account{})
	c.Close()
}

func TestNewSlackClient_DisabledWithoutWebhook(t *testing.T) {
	assert.Nil(t, NewSlackClient("", "#trades"))
}

func TestTradeClosed_Delivery(t *testing.T) {
	got := make(chan SlackMessage, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var msg SlackMessage
		require.NoError(t, json.Unmarshal(body, &msg))
		got <- msg
	}))
	defer srv.Close()

	c := NewSlackClient(srv.URL, "#paper-trades")
	defer c.Close()

	c.TradeClosed(&portfolio.Position{
		Symbol: "BTCUSDT", Strategy: "breakout", Direction: strategy.Long,
		PnL: 0.6, PnLPercent: 6, ExitPrice: 106, ExitReason: portfolio.ExitTakeProfit,
	}, 100.6)

	select {
	case msg := <-got:
		assert.Equal(t, "#paper-trades", msg.Channel)
		assert.Contains(t, msg.Text, "BTCUSDT")
		assert.Contains(t, msg.Text, portfolio.ExitTakeProfit)
		require.Len(t, msg.Attachments, 1)
		assert.Equal(t, "good", msg.Attachments[0].Color)
	case <-time.After(3 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestLosingTradeIsRed(t *testing.T) {
	got := make(chan SlackMessage, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var msg SlackMessage
		json.Unmarshal(body, &msg)
		got <- msg
	}))
	defer srv.Close()

	c := NewSlackClient(srv.URL, "")
	defer c.Close()

	c.TradeClosed(&portfolio.Position{Symbol: "ETHUSDT", PnL: -0.2}, 99.8)
	select {
	case msg := <-got:
		require.Len(t, msg.Attachments, 1)
		assert.Equal(t, "danger", msg.Attachments[0].Color)
	case <-time.After(3 * time.Second):
		t.Fatal("message not delivered")
	}
}
