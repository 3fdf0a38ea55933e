package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jpillora/backoff"
	"golang.org/x/time/rate"

	"github.com/Rajchodisetti/paper-trader/internal/observ"
)

// RemoteConfig wires an Upstash-style REST key-value endpoint.
type RemoteConfig struct {
	BaseURL    string
	Token      string
	Key        string
	Timeout    time.Duration
	MaxRetries int
}

// RemoteStore mirrors snapshots to a REST key-value service. It is strictly
// best-effort; callers treat every error as non-fatal.
type RemoteStore struct {
	cfg     RemoteConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewRemoteStore(cfg RemoteConfig) *RemoteStore {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &RemoteStore{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Every(time.Second), 2),
	}
}

// Save POSTs the JSON document to /set/<key>, retrying transient failures
// with jittered exponential backoff.
func (r *RemoteStore) Save(ctx context.Context, snap Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	boff := &backoff.Backoff{Min: 200 * time.Millisecond, Max: 3 * time.Second, Jitter: true}
	var lastErr error
	for attempt := 0; attempt < r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(boff.Duration()):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		lastErr = r.do(ctx, http.MethodPost, "/set/"+r.cfg.Key, body, nil)
		if lastErr == nil {
			return nil
		}
	}
	observ.IncCounter("remote_save_failures_total", nil)
	return fmt.Errorf("remote save after %d attempts: %w", r.cfg.MaxRetries, lastErr)
}

// Load GETs /get/<key> and unwraps the result envelope. The service may
// return the document as an object, as a JSON string, or double-encoded;
// all three shapes are accepted.
func (r *RemoteStore) Load(ctx context.Context) (Snapshot, error) {
	var raw []byte
	err := r.do(ctx, http.MethodGet, "/get/"+r.cfg.Key, nil, &raw)
	if err != nil {
		return Snapshot{}, err
	}

	var env struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return Snapshot{}, fmt.Errorf("parse envelope: %w", err)
	}
	if len(env.Result) == 0 || bytes.Equal(env.Result, []byte("null")) {
		return Snapshot{}, fmt.Errorf("remote key %s is empty", r.cfg.Key)
	}

	doc := []byte(env.Result)
	for i := 0; i < 2; i++ {
		var s string
		if json.Unmarshal(doc, &s) != nil {
			break
		}
		doc = []byte(s)
	}
	var snap Snapshot
	if err := json.Unmarshal(doc, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("parse remote snapshot: %w", err)
	}
	if !snap.Valid() {
		return Snapshot{}, fmt.Errorf("remote snapshot invalid (initialBank=%g)", snap.InitialBank)
	}
	return snap, nil
}

func (r *RemoteStore) do(ctx context.Context, method, path string, body []byte, out *[]byte) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+r.cfg.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("remote %s %s: status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		*out = data
	}
	return nil
}
