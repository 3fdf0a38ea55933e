package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rajchodisetti/paper-trader/internal/portfolio"
	"github.com/Rajchodisetti/paper-trader/internal/strategy"
)

func sampleSnapshot() Snapshot {
	return Snapshot{
		Bank:        104.2,
		InitialBank: 100,
		PnL:         4.2,
		PnLPercent:  4.2,
		Trades:      3,
		Wins:        2,
		Losses:      1,
		WinRate:     2.0 / 3.0,
		LastUpdate:  time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		StrategyStats: map[string]portfolio.StrategyStats{
			"breakout": {Wins: 2, Losses: 1, Total: 3},
		},
		TradesList: []*portfolio.Position{
			{ID: 1, Symbol: "BTCUSDT", Strategy: "breakout", Direction: strategy.Long,
				EntryPrice: 100, Size: 10, Status: portfolio.StatusClosed,
				PnL: 0.6, ExitPrice: 106, ExitReason: portfolio.ExitTakeProfit},
		},
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	fs := NewFileStore(path)

	_, ok, err := fs.Load()
	require.NoError(t, err)
	assert.False(t, ok, "fresh path must report no state")

	want := sampleSnapshot()
	require.NoError(t, fs.Save(want))

	got, ok, err := fs.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.Bank, got.Bank)
	assert.Equal(t, want.StrategyStats, got.StrategyStats)
	require.Len(t, got.TradesList, 1)
	assert.Equal(t, want.TradesList[0].PnL, got.TradesList[0].PnL)

	// No temp file left behind.
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestFileStore_MalformedIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, ok, err := NewFileStore(path).Load()
	assert.Error(t, err)
	assert.False(t, ok)
}

func remoteServer(t *testing.T, getBody string) (*httptest.Server, *RemoteStore) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		switch r.Method {
		case http.MethodGet:
			w.Write([]byte(getBody))
		case http.MethodPost:
			w.Write([]byte(`{"result":"OK"}`))
		}
	}))
	t.Cleanup(srv.Close)
	rs := NewRemoteStore(RemoteConfig{
		BaseURL: srv.URL, Token: "test-token", Key: "paper-trader-state",
		Timeout: 2 * time.Second, MaxRetries: 2,
	})
	return srv, rs
}

func TestRemoteStore_LoadObjectResult(t *testing.T) {
	doc, err := json.Marshal(sampleSnapshot())
	require.NoError(t, err)
	body, err := json.Marshal(map[string]json.RawMessage{"result": doc})
	require.NoError(t, err)

	_, rs := remoteServer(t, string(body))
	snap, err := rs.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 104.2, snap.Bank)
}

func TestRemoteStore_LoadStringResult(t *testing.T) {
	doc, err := json.Marshal(sampleSnapshot())
	require.NoError(t, err)
	body, err := json.Marshal(map[string]string{"result": string(doc)})
	require.NoError(t, err)

	_, rs := remoteServer(t, string(body))
	snap, err := rs.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100.0, snap.InitialBank)
}

func TestRemoteStore_LoadDoubleEncodedResult(t *testing.T) {
	doc, err := json.Marshal(sampleSnapshot())
	require.NoError(t, err)
	once, err := json.Marshal(string(doc))
	require.NoError(t, err)
	body, err := json.Marshal(map[string]string{"result": string(once)})
	require.NoError(t, err)

	_, rs := remoteServer(t, string(body))
	snap, err := rs.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Wins)
}

func TestRemoteStore_LoadRejectsEmptyAndInvalid(t *testing.T) {
	_, rs := remoteServer(t, `{"result":null}`)
	_, err := rs.Load(context.Background())
	assert.Error(t, err, "null result must not produce a snapshot")

	_, rs = remoteServer(t, `{"result":"{\"bank\":0,\"initialBank\":0}"}`)
	_, err = rs.Load(context.Background())
	assert.Error(t, err, "zero initialBank is structurally invalid")
}

func TestRemoteStore_SaveRetriesThenSucceeds(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"result":"OK"}`))
	}))
	defer srv.Close()

	rs := NewRemoteStore(RemoteConfig{
		BaseURL: srv.URL, Token: "t", Key: "k",
		Timeout: 2 * time.Second, MaxRetries: 3,
	})
	require.NoError(t, rs.Save(context.Background(), sampleSnapshot()))
	assert.Equal(t, 2, calls)
}

func TestLoader_Precedence(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().UTC()

	// Remote healthy: remote wins.
	doc, _ := json.Marshal(sampleSnapshot())
	body, _ := json.Marshal(map[string]json.RawMessage{"result": doc})
	_, rs := remoteServer(t, string(body))

	local := NewFileStore(filepath.Join(dir, "state.json"))
	require.NoError(t, local.Save(Snapshot{Bank: 50, InitialBank: 50}))

	snap, source := Loader{Local: local, Remote: rs, InitialBank: 100}.Load(context.Background(), now)
	assert.Equal(t, SourceRemote, source)
	assert.Equal(t, 104.2, snap.Bank)

	// Remote garbage: local wins.
	_, bad := remoteServer(t, `{"result":"not-json-at-all"}`)
	snap, source = Loader{Local: local, Remote: bad, InitialBank: 100}.Load(context.Background(), now)
	assert.Equal(t, SourceLocal, source)
	assert.Equal(t, 50.0, snap.Bank)

	// Nothing anywhere: fresh account.
	empty := NewFileStore(filepath.Join(dir, "missing.json"))
	snap, source = Loader{Local: empty, Remote: bad, InitialBank: 100}.Load(context.Background(), now)
	assert.Equal(t, SourceFresh, source)
	assert.Equal(t, 100.0, snap.Bank)
	assert.Equal(t, 100.0, snap.InitialBank)
}

func TestApply_ReconcilesFromPositions(t *testing.T) {
	book := portfolio.NewBook(100, portfolio.Rules{
		Exits: portfolio.ExitRules{TakeProfitPct: 5, StopLossPct: 2, MaxHold: 24 * time.Hour},
	})

	snap := sampleSnapshot()
	snap.Bank = 9999 // cached aggregate lies; positions are authoritative
	Apply(snap, book, time.Now().UTC())

	acct := book.Account()
	assert.InDelta(t, 100.6, acct.Bank, 1e-9)
	assert.Equal(t, 1, acct.Wins)
}
