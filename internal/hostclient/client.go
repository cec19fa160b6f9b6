package hostclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/termdeck/internal/api/wire"
	"github.com/GriffinCanCode/termdeck/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/termdeck/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/termdeck/internal/ptyhost"
	"github.com/GriffinCanCode/termdeck/internal/terminal"
)

var errNotConnected = errors.New("stream not connected")

const (
	defaultTimeout        = 10 * time.Second
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaxBackoff     = 30 * time.Second
	streamWriteWait       = 5 * time.Second
)

// Config configures a Client.
type Config struct {
	// BaseURL is the server root, for example http://127.0.0.1:8000.
	BaseURL string
	// Timeout bounds each REST call.
	Timeout        time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Breaker overrides the circuit breaker in front of liveness and
	// creation calls.
	Breaker *resilience.Settings
	Logger  *zap.Logger
}

// ExitHandler is notified when a remote session's process exits.
type ExitHandler = ptyhost.ExitHandler

// Client is a terminal.ProcessHost backed by a remote termdeck server.
// REST carries control calls; a websocket stream carries output and
// keystrokes and reconnects with exponential backoff.
type Client struct {
	cfg       Config
	rest      *resty.Client
	breaker   *resilience.Breaker
	logger    *zap.Logger
	streamURL string

	mu      sync.RWMutex
	outputs map[int]terminal.OutputHandler
	exits   map[int]ExitHandler
	nextSub int

	connMu sync.Mutex
	conn   *websocket.Conn

	ctx       context.Context
	cancel    context.CancelFunc
	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	startOnce sync.Once
	started   bool
}

var _ terminal.ProcessHost = (*Client)(nil)

// DefaultBreakerSettings trips after three consecutive transport failures.
// Unknown-session answers are successful round trips.
func DefaultBreakerSettings() resilience.Settings {
	return resilience.Settings{
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ptyhost.ErrSessionNotFound) || errors.Is(err, ptyhost.ErrSessionClosed)
		},
	}
}

// New creates a client. Call Start to open the output stream.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultInitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	settings := DefaultBreakerSettings()
	if cfg.Breaker != nil {
		settings = *cfg.Breaker
	}
	if settings.OnStateChange == nil {
		settings.OnStateChange = func(name string, from, to resilience.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		}
	}
	base := strings.TrimRight(cfg.BaseURL, "/")

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		cfg: cfg,
		rest: resty.New().
			SetBaseURL(base).
			SetTimeout(cfg.Timeout).
			SetHeader("User-Agent", "termdeck-client/1.0").
			SetError(&wire.ErrorResponse{}).
			OnBeforeRequest(tracing.RestyPropagator()),
		breaker:   resilience.New("ptyhost", settings),
		logger:    logger,
		streamURL: streamURL(base),
		outputs:   make(map[int]terminal.OutputHandler),
		exits:     make(map[int]ExitHandler),
		ctx:       ctx,
		cancel:    cancel,
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func streamURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + "/stream"
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + "/stream"
	}
	return base + "/stream"
}

// Breaker exposes the circuit breaker state for diagnostics.
func (c *Client) Breaker() *resilience.Breaker {
	return c.breaker
}

// CreateSession asks the server to start a shell.
func (c *Client) CreateSession(ctx context.Context, opts terminal.CreateOptions) (terminal.SessionHandle, error) {
	return resilience.Do(c.breaker, func() (terminal.SessionHandle, error) {
		var out wire.CreateResponse
		resp, err := c.rest.R().
			SetContext(ctx).
			SetBody(wire.CreateRequest{Cwd: opts.Cwd, Rows: opts.Rows, Cols: opts.Cols, Shell: opts.Shell}).
			SetResult(&out).
			Post("/sessions")
		if err := check(resp, err, ""); err != nil {
			return terminal.SessionHandle{}, fmt.Errorf("create session: %w", err)
		}
		return terminal.SessionHandle{ID: out.ID, CreatedAt: out.CreatedAt}, nil
	})
}

// WriteSession sends keystrokes over the stream, or over REST while the
// stream is down.
func (c *Client) WriteSession(ctx context.Context, sessionID string, data []byte) error {
	if err := c.writeFrame(wire.Frame{Type: wire.TypeWrite, SessionID: sessionID, Data: data}); err == nil {
		return nil
	}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetPathParam("id", sessionID).
		SetBody(wire.InputRequest{Data: data}).
		Post("/sessions/{id}/input")
	if err := check(resp, err, sessionID); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// ResizeSession changes the remote geometry.
func (c *Client) ResizeSession(ctx context.Context, sessionID string, rows, cols int) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetPathParam("id", sessionID).
		SetBody(wire.ResizeRequest{Rows: rows, Cols: cols}).
		Post("/sessions/{id}/resize")
	if err := check(resp, err, sessionID); err != nil {
		return fmt.Errorf("resize session: %w", err)
	}
	return nil
}

// CloseSession kills the remote session.
func (c *Client) CloseSession(ctx context.Context, sessionID string) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetPathParam("id", sessionID).
		Delete("/sessions/{id}")
	if err := check(resp, err, sessionID); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}

// IsSessionActive queries liveness. An open breaker is returned as an
// error, which callers treat like any other transport failure.
func (c *Client) IsSessionActive(ctx context.Context, sessionID string) (bool, error) {
	return resilience.Do(c.breaker, func() (bool, error) {
		var out wire.ActiveResponse
		resp, err := c.rest.R().
			SetContext(ctx).
			SetPathParam("id", sessionID).
			SetResult(&out).
			Get("/sessions/{id}/active")
		if err := check(resp, err, sessionID); err != nil {
			return false, fmt.Errorf("session liveness: %w", err)
		}
		return out.Active, nil
	})
}

// List returns every remote session.
func (c *Client) List(ctx context.Context) ([]ptyhost.SessionInfo, error) {
	var out struct {
		Sessions []ptyhost.SessionInfo `json:"sessions"`
	}
	resp, err := c.rest.R().SetContext(ctx).SetResult(&out).Get("/sessions")
	if err := check(resp, err, ""); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out.Sessions, nil
}

// Info returns one remote session.
func (c *Client) Info(ctx context.Context, sessionID string) (*ptyhost.SessionInfo, error) {
	var out ptyhost.SessionInfo
	resp, err := c.rest.R().
		SetContext(ctx).
		SetPathParam("id", sessionID).
		SetResult(&out).
		Get("/sessions/{id}")
	if err := check(resp, err, sessionID); err != nil {
		return nil, fmt.Errorf("session info: %w", err)
	}
	return &out, nil
}

// Scrollback returns the remote session's recent output. The transport
// negotiates gzip and decodes it transparently.
func (c *Client) Scrollback(ctx context.Context, sessionID string) ([]byte, error) {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetPathParam("id", sessionID).
		Get("/sessions/{id}/scrollback")
	if err := check(resp, err, sessionID); err != nil {
		return nil, fmt.Errorf("scrollback: %w", err)
	}
	return resp.Body(), nil
}

// OnSessionOutput registers fn for output from every session received on
// the stream. fn runs on the stream reader goroutine.
func (c *Client) OnSessionOutput(fn terminal.OutputHandler) terminal.Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := c.nextSub
	c.nextSub++
	c.outputs[key] = fn
	return c.unsubscriber(func() { delete(c.outputs, key) })
}

// OnSessionExit registers fn for exit events received on the stream.
func (c *Client) OnSessionExit(fn ExitHandler) terminal.Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := c.nextSub
	c.nextSub++
	c.exits[key] = fn
	return c.unsubscriber(func() { delete(c.exits, key) })
}

func (c *Client) unsubscriber(remove func()) terminal.Subscription {
	var once sync.Once
	return terminal.SubscriptionFunc(func() {
		once.Do(func() {
			c.mu.Lock()
			remove()
			c.mu.Unlock()
		})
	})
}

// check turns a transport error or an error status into an error that
// wraps the ptyhost sentinels where they apply.
func check(resp *resty.Response, err error, sessionID string) error {
	if err != nil {
		return err
	}
	if !resp.IsError() {
		return nil
	}
	msg := resp.Status()
	if e, ok := resp.Error().(*wire.ErrorResponse); ok && e.Error != "" {
		msg = e.Error
	}
	switch resp.StatusCode() {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ptyhost.ErrSessionNotFound, sessionID)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", ptyhost.ErrSessionClosed, sessionID)
	}
	return fmt.Errorf("server returned %d: %s", resp.StatusCode(), msg)
}
