package terminal

import (
	"context"
	"time"
)

// SessionHandle refers to a pseudo-terminal process owned by a ProcessHost.
// Holding a handle says nothing about liveness.
type SessionHandle struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateOptions describes a new session request.
type CreateOptions struct {
	Cwd   string `json:"cwd"`
	Rows  int    `json:"rows"`
	Cols  int    `json:"cols"`
	Shell string `json:"shell"`
}

// Subscription is one registered output listener.
type Subscription interface {
	Unsubscribe()
}

// SubscriptionFunc adapts a plain function to Subscription.
type SubscriptionFunc func()

// Unsubscribe calls f.
func (f SubscriptionFunc) Unsubscribe() { f() }

// OutputHandler receives raw output for a session. The data slice may be
// reused by the caller after the handler returns.
type OutputHandler func(sessionID string, data []byte)

// ProcessHost owns pseudo-terminal process lifetime. The controller treats
// it as an opaque collaborator and never closes sessions itself.
type ProcessHost interface {
	CreateSession(ctx context.Context, opts CreateOptions) (SessionHandle, error)
	WriteSession(ctx context.Context, sessionID string, data []byte) error
	ResizeSession(ctx context.Context, sessionID string, rows, cols int) error
	CloseSession(ctx context.Context, sessionID string) error
	IsSessionActive(ctx context.Context, sessionID string) (bool, error)

	// OnSessionOutput registers fn for the output of every session. Events
	// are delivered at least once and in order per session.
	OnSessionOutput(fn OutputHandler) Subscription
}

// Callbacks are the notifications exposed to the owning container.
type Callbacks struct {
	// OnSessionCreated fires once per successful creation so the caller can
	// persist the id across remounts.
	OnSessionCreated func(sessionID string)
	// OnSessionEnded fires when the health monitor finds the session dead.
	OnSessionEnded func()
}

// Snapshot is a point-in-time view of the controller for diagnostics and tests.
type Snapshot struct {
	Mounted       bool
	MountID       string
	SessionID     string
	Reattached    bool
	Renderer      RendererState
	Buffering     bool
	Ended         bool
	Subscriptions int
	PendingTimers int
}
