// Package transport maintains one logical, resilient message stream to the
// caption backend.
//
// A [Client] owns at most one physical WebSocket connection at a time. When
// the connection drops it reconnects automatically with exponential backoff
// up to a retry budget, after which the failure is terminal. A manual
// [Client.Disconnect] is also terminal: it cancels any pending retry timer,
// closes the live socket, and suppresses all future automatic reconnection.
//
// Transport failures never propagate as errors across the package boundary —
// they are represented as [State] plus a human-readable status string that
// callers observe.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// DefaultEndpoint is the local development caption stream endpoint.
const DefaultEndpoint = "ws://localhost:8765"

// Default connection parameters.
const (
	defaultBaseDelay   = 1 * time.Second
	defaultDelayCap    = 30 * time.Second
	defaultMaxAttempts = 10
	defaultGracePeriod = 2 * time.Second
)

// Conn is the minimal surface of a live duplex connection the client needs.
// The production implementation wraps a coder/websocket connection; tests
// substitute in-memory fakes via [Config.Dial].
type Conn interface {
	// Read blocks until the next raw message arrives or the connection fails.
	Read(ctx context.Context) ([]byte, error)

	// Close closes the connection. Safe to call more than once.
	Close() error
}

// DialFunc opens a physical connection to the given endpoint URL.
type DialFunc func(ctx context.Context, url string) (Conn, error)

// Config configures a [Client].
type Config struct {
	// URL is the caption stream endpoint. Defaults to [DefaultEndpoint].
	URL string

	// BaseDelay seeds the exponential backoff. After the Nth drop the retry
	// fires after min(BaseDelay * 2^N, DelayCap). Defaults to 1s if zero.
	BaseDelay time.Duration

	// DelayCap is the upper limit on the backoff delay. Defaults to 30s if zero.
	DelayCap time.Duration

	// MaxAttempts bounds the total number of reconnection attempts. Once the
	// attempt counter reaches it the client enters [StateFailed] permanently.
	// Defaults to 10 if zero.
	MaxAttempts int

	// GracePeriod delays the initial connection attempt after [Client.Connect]
	// to tolerate a backend that is still starting. Defaults to 2s if zero.
	GracePeriod time.Duration

	// Dial opens physical connections. Defaults to a WebSocket dial.
	Dial DialFunc

	// Handler receives every successfully parsed [Event]. May be nil.
	Handler func(Event)

	// OnStateChange is invoked after every state transition with the new
	// state and status string. Called outside the client's lock. May be nil.
	OnStateChange func(State, string)
}

// Client maintains a single resilient connection to the caption backend.
// All methods are safe for concurrent use.
type Client struct {
	url         string
	baseDelay   time.Duration
	delayCap    time.Duration
	maxAttempts int
	gracePeriod time.Duration
	dial        DialFunc
	handler     func(Event)
	onState     func(State, string)

	mu      sync.Mutex
	state   State
	status  string
	attempt int
	active  bool
	started bool
	conn    Conn
	timer   *time.Timer
}

// NewClient creates a [Client] for the given configuration. The endpoint URL
// must be a well-formed ws:// or wss:// URL.
func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		cfg.URL = DefaultEndpoint
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("transport: parse endpoint %q: %w", cfg.URL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("transport: endpoint %q: scheme must be ws or wss", cfg.URL)
	}

	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.DelayCap <= 0 {
		cfg.DelayCap = defaultDelayCap
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.GracePeriod < 0 {
		cfg.GracePeriod = 0
	} else if cfg.GracePeriod == 0 {
		cfg.GracePeriod = defaultGracePeriod
	}
	dial := cfg.Dial
	if dial == nil {
		dial = wsDial
	}

	return &Client{
		url:         cfg.URL,
		baseDelay:   cfg.BaseDelay,
		delayCap:    cfg.DelayCap,
		maxAttempts: cfg.MaxAttempts,
		gracePeriod: cfg.GracePeriod,
		dial:        dial,
		handler:     cfg.Handler,
		onState:     cfg.OnStateChange,
	}, nil
}

// Connect schedules the initial connection attempt after the configured
// grace period. It is idempotent: once the client has started (or been
// disconnected) further calls are no-ops. ctx bounds the lifetime of all
// dials and reads; cancelling it drops the connection.
func (c *Client) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.active = true
	notify := c.transitionLocked(StateConnecting, "connecting")
	c.timer = time.AfterFunc(c.gracePeriod, func() {
		c.dialAndServe(ctx)
	})
	c.mu.Unlock()
	notify()
}

// Disconnect permanently stops the client: it cancels any pending retry
// timer, closes the live socket if open, and guarantees that no future close
// event schedules another attempt. Safe to call multiple times.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.active = false
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	conn := c.conn
	c.conn = nil
	notify := c.transitionLocked(StateDisconnected, "")
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	notify()
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns the current human-readable status string. Empty after a
// manual disconnect.
func (c *Client) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Attempt returns the current retry attempt counter. Zero while connected.
func (c *Client) Attempt() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt
}

// transitionLocked updates state and status and returns the callback
// delivery closure. Must be called with c.mu held; invoke the returned
// function after unlocking.
func (c *Client) transitionLocked(s State, status string) func() {
	c.state = s
	c.status = status
	if c.onState == nil {
		return func() {}
	}
	cb := c.onState
	return func() { cb(s, status) }
}

// dialAndServe performs one physical connection attempt and, on success,
// starts the read loop.
func (c *Client) dialAndServe(ctx context.Context) {
	c.mu.Lock()
	if !c.active || c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	conn, err := c.dial(ctx, c.url)
	if err != nil {
		slog.Warn("caption stream dial failed", "url", c.url, "err", err)
		c.handleDrop(ctx, nil)
		return
	}

	c.mu.Lock()
	if !c.active {
		// Disconnected while the dial was in flight.
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.attempt = 0
	notify := c.transitionLocked(StateConnected, "connected")
	c.mu.Unlock()
	notify()

	slog.Info("caption stream connected", "url", c.url)
	go c.readLoop(ctx, conn)
}

// readLoop receives raw messages until the connection fails, decoding each
// into an [Event] and handing it to the configured handler. Malformed
// payloads are logged and dropped without affecting connection state.
func (c *Client) readLoop(ctx context.Context, conn Conn) {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			c.handleDrop(ctx, conn)
			return
		}

		ev, err := DecodeEvent(data)
		if err != nil {
			slog.Warn("dropping malformed caption message", "err", err)
			continue
		}
		if u, ok := ev.(UnknownEvent); ok {
			slog.Debug("unknown caption message type", "type", u.Type)
		}
		if c.handler != nil {
			c.handler(ev)
		}
	}
}

// handleDrop reacts to a failed dial (prev == nil) or a broken connection
// (prev != nil): it either schedules a retry, or transitions to the terminal
// failed state once the attempt budget is exhausted.
func (c *Client) handleDrop(ctx context.Context, prev Conn) {
	c.mu.Lock()

	if prev != nil {
		if c.conn != prev {
			// A newer connection (or a manual disconnect) already superseded
			// this one; reacting again would fork a duplicate retry chain.
			c.mu.Unlock()
			return
		}
		c.conn = nil
		_ = prev.Close()
	}

	if !c.active {
		c.mu.Unlock()
		return
	}

	c.attempt++
	if c.attempt >= c.maxAttempts {
		c.active = false
		status := fmt.Sprintf("connection failed after %d attempts", c.attempt)
		notify := c.transitionLocked(StateFailed, status)
		c.mu.Unlock()
		notify()
		slog.Error("caption stream failed permanently",
			"url", c.url,
			"attempts", c.maxAttempts,
		)
		return
	}

	delay := c.backoffDelay(c.attempt)
	status := fmt.Sprintf("reconnecting (%d/%d)", c.attempt, c.maxAttempts)
	notify := c.transitionLocked(StateReconnecting, status)
	c.timer = time.AfterFunc(delay, func() {
		c.retry(ctx)
	})
	c.mu.Unlock()
	notify()

	slog.Warn("caption stream dropped, retry scheduled",
		"url", c.url,
		"attempt", c.attempt,
		"max_attempts", c.maxAttempts,
		"delay", delay,
	)
}

// retry is the pending-timer callback. It re-checks that the client is still
// active so a just-fired timer cannot race a manual disconnect.
func (c *Client) retry(ctx context.Context) {
	c.mu.Lock()
	if !c.active || c.state != StateReconnecting {
		c.mu.Unlock()
		return
	}
	status := fmt.Sprintf("connecting (attempt %d/%d)", c.attempt, c.maxAttempts)
	notify := c.transitionLocked(StateConnecting, status)
	c.mu.Unlock()
	notify()

	c.dialAndServe(ctx)
}

// backoffDelay computes min(baseDelay * 2^attempt, delayCap).
func (c *Client) backoffDelay(attempt int) time.Duration {
	d := c.baseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= c.delayCap {
			return c.delayCap
		}
	}
	if d > c.delayCap {
		return c.delayCap
	}
	return d
}

// wsDial is the production [DialFunc] backed by coder/websocket.
func wsDial(ctx context.Context, rawURL string) (Conn, error) {
	conn, _, err := websocket.Dial(ctx, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", rawURL, err)
	}
	return &wsConn{conn: conn}, nil
}

// wsConn adapts *websocket.Conn to [Conn].
type wsConn struct {
	conn *websocket.Conn
	once sync.Once
}

func (w *wsConn) Read(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := w.conn.Read(ctx)
		if err != nil {
			return nil, err
		}
		if typ != websocket.MessageText {
			// The caption stream is text-only; stray binary frames are noise,
			// not a connection fault.
			slog.Debug("ignoring non-text frame on caption stream")
			continue
		}
		return data, nil
	}
}

func (w *wsConn) Close() error {
	w.once.Do(func() {
		_ = w.conn.Close(websocket.StatusNormalClosure, "client disconnect")
	})
	return nil
}
