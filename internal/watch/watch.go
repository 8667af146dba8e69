package watch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/live-poll/pkg/types"
)

const (
	DefaultInterval = 2 * time.Second
	redialDelay     = time.Second
)

// RenderFunc receives each snapshot that differs from the last rendered one.
// Calls are serialized.
type RenderFunc func(types.StateSnapshot)

type Option func(*Watcher)

func WithInterval(d time.Duration) Option {
	return func(w *Watcher) { w.interval = d }
}

func WithHTTPClient(c *http.Client) Option {
	return func(w *Watcher) { w.client = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.log = l }
}

// Watcher follows a poll server over both channels at once: pushed frames
// from /ws and a periodic pull of /api/state. Whichever arrives first is
// rendered; the other is suppressed by fingerprint.
type Watcher struct {
	base     *url.URL
	client   *http.Client
	interval time.Duration
	render   RenderFunc
	log      *zap.Logger

	mu   sync.Mutex
	last string
}

func New(baseURL string, render RenderFunc, opts ...Option) (*Watcher, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url: unsupported scheme %q", u.Scheme)
	}

	w := &Watcher{
		base:     u,
		client:   &http.Client{Timeout: 5 * time.Second},
		interval: DefaultInterval,
		render:   render,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run blocks until ctx is cancelled. Transport errors are logged and retried,
// never returned.
func (w *Watcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.pull(ctx) })
	g.Go(func() error { return w.push(ctx) })
	return g.Wait()
}

// Offer renders snap unless it matches the last rendered fingerprint.
func (w *Watcher) Offer(snap types.StateSnapshot) bool {
	fp := types.Fingerprint(&snap)

	w.mu.Lock()
	defer w.mu.Unlock()
	if fp == w.last {
		return false
	}
	w.last = fp
	w.render(snap)
	return true
}

// Fetch pulls one snapshot from /api/state.
func (w *Watcher) Fetch(ctx context.Context) (types.StateSnapshot, error) {
	var snap types.StateSnapshot

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.base.String()+"/api/state", nil)
	if err != nil {
		return snap, err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return snap, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return snap, fmt.Errorf("get state: status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return snap, fmt.Errorf("decode state: %w", err)
	}
	return snap, nil
}

func (w *Watcher) pull(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		snap, err := w.Fetch(ctx)
		switch {
		case err == nil:
			w.Offer(snap)
		case ctx.Err() == nil:
			w.log.Warn("pull failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *Watcher) push(ctx context.Context) error {
	for {
		err := w.stream(ctx)
		if ctx.Err() != nil {
			return nil
		}
		w.log.Info("push channel lost, redialing", zap.Error(err))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(redialDelay):
		}
	}
}

func (w *Watcher) stream(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, w.wsURL(), nil)
	if err != nil {
		return err
	}
	defer conn.CloseNow()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var msg types.ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			w.log.Debug("bad frame", zap.Error(err))
			continue
		}
		if msg.Type != types.MessageTypeState || msg.Payload == nil {
			continue
		}
		w.Offer(*msg.Payload)
	}
}

func (w *Watcher) wsURL() string {
	u := *w.base
	u.Scheme = "ws"
	if w.base.Scheme == "https" {
		u.Scheme = "wss"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String()
}

var ErrNoActiveTopic = errors.New("no active topic")

// Summary renders the active topic on one line, options in catalog order.
func Summary(snap types.StateSnapshot) (string, error) {
	t, ok := snap.Active()
	if !ok {
		return "", ErrNoActiveTopic
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s/%s] %s", t.ID, t.Status, t.Visibility, t.Question)
	for _, o := range t.Options {
		fmt.Fprintf(&b, " | %s=%d", o.Label, t.Totals[o.ID])
		if names := t.Names[o.ID]; len(names) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(names, ", "))
		}
	}
	if t.ClosingEndsAt != nil {
		left := time.Until(time.UnixMilli(*t.ClosingEndsAt)).Round(100 * time.Millisecond)
		fmt.Fprintf(&b, " | closes in %s", left)
	}
	return b.String(), nil
}
