package terminal

import (
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/termdeck/internal/infrastructure/monitoring"
)

var (
	// ErrControllerClosed is returned by Mount after Close.
	ErrControllerClosed = errors.New("terminal controller is closed")
	// ErrNoEngine is returned when the controller has no engine factory.
	ErrNoEngine = errors.New("terminal controller has no engine factory")
	// ErrNotMounted is returned when no mount is bound to a session.
	ErrNotMounted = errors.New("terminal is not mounted to a session")
)

// Config wires a Controller to its collaborators.
type Config struct {
	Host     ProcessHost
	Engines  EngineFactory
	Settings *LiveSettings
	Timings  Timings
	Logger   *zap.Logger
}

// Controller binds one display slot to a PTY session. It owns creation vs.
// reattachment, renderer fallback, reconnection buffering, resize
// coordination and liveness monitoring, and tears all of it down without
// ever closing the session itself.
//
// All state changes run on a single executor goroutine. Callbacks are
// invoked on that goroutine and must not call Close.
type Controller struct {
	host     ProcessHost
	engines  EngineFactory
	settings *LiveSettings
	timings  Timings
	logger   *zap.Logger
	metrics  *monitoring.Metrics

	exec      *executor
	callbacks atomic.Pointer[Callbacks]
	visible   atomic.Bool

	mu      sync.Mutex
	current *mount
	last    *mount
}

// NewController creates a controller. Missing settings, timings and logger
// fall back to defaults.
func NewController(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	settings := cfg.Settings
	if settings == nil {
		settings = NewLiveSettings(DefaultSettings())
	}

	c := &Controller{
		host:     cfg.Host,
		engines:  cfg.Engines,
		settings: settings,
		timings:  cfg.Timings.withDefaults(),
		logger:   logger.Named("terminal"),
		exec:     newExecutor(logger.Named("terminal")),
	}
	c.visible.Store(true)
	c.callbacks.Store(&Callbacks{})
	return c
}

// WithMetrics attaches a metrics collector.
func (c *Controller) WithMetrics(m *monitoring.Metrics) *Controller {
	c.metrics = m
	return c
}

// SetCallbacks replaces the callbacks. The latest value is read each time a
// notification fires, so callers may update it at any time.
func (c *Controller) SetCallbacks(cb Callbacks) {
	c.callbacks.Store(&cb)
}

// Settings returns the live settings cell.
func (c *Controller) Settings() *LiveSettings {
	return c.settings
}

// Mount binds surface to a session. An empty existingSessionID creates a
// new session; otherwise the existing one is reattached with output
// buffering. A mount that is still live is torn down first.
func (c *Controller) Mount(existingSessionID string, surface Surface) error {
	if c.engines == nil {
		return ErrNoEngine
	}

	m := newMount(c, existingSessionID, surface)

	c.mu.Lock()
	prev := c.current
	c.current = m
	c.last = m
	c.mu.Unlock()

	if prev != nil {
		prev.deactivate()
	}

	ok := c.exec.post(func() {
		if prev != nil {
			prev.teardown()
		}
		m.start()
	})
	if !ok {
		m.deactivate()
		m.closeDone()
		return ErrControllerClosed
	}
	return nil
}

// Unmount tears the current mount down. It is idempotent; the returned
// channel closes once teardown has completed.
func (c *Controller) Unmount() <-chan struct{} {
	c.mu.Lock()
	m := c.current
	c.current = nil
	if m == nil {
		m = c.last
	}
	c.mu.Unlock()

	if m == nil {
		done := make(chan struct{})
		close(done)
		return done
	}

	if m.deactivate() {
		if !c.exec.post(m.teardown) {
			// Executor already drained; nothing can run teardown any more.
			m.closeDone()
		}
	}
	return m.done
}

// SetVisible starts or stops liveness polling for the current mount.
func (c *Controller) SetVisible(visible bool) {
	c.visible.Store(visible)
	if m := c.mounted(); m != nil {
		m.post(func() {
			if m.health == nil {
				return
			}
			if visible {
				m.health.start()
			} else {
				m.health.stop()
			}
		})
	}
}

// NotifyWindowResize feeds a window-resize signal to the resize coordinator.
func (c *Controller) NotifyWindowResize() {
	c.requestResize()
}

// NotifyContainerResize feeds a container-resize signal to the resize
// coordinator, for surfaces that cannot report resizes themselves.
func (c *Controller) NotifyContainerResize() {
	c.requestResize()
}

func (c *Controller) requestResize() {
	if m := c.mounted(); m != nil {
		m.post(func() {
			if m.resize != nil {
				m.resize.request()
			}
		})
	}
}

// Snapshot reports the state of the current (or last) mount.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	m := c.current
	mounted := m != nil
	if m == nil {
		m = c.last
	}
	c.mu.Unlock()

	if m == nil {
		return Snapshot{}
	}
	s := m.snapshot()
	s.Mounted = mounted && m.active.Load()
	return s
}

// SessionID returns the id of the session the current mount is bound to.
func (c *Controller) SessionID() (string, error) {
	m := c.mounted()
	if m == nil || !m.active.Load() {
		return "", ErrNotMounted
	}
	id := m.sessionID.Load().(string)
	if id == "" {
		return "", ErrNotMounted
	}
	return id, nil
}

// Close unmounts and stops the executor. Close must not be called from a
// callback.
func (c *Controller) Close() {
	<-c.Unmount()
	c.exec.close()
}

func (c *Controller) mounted() *mount {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Controller) fireSessionCreated(id string) {
	cb := c.callbacks.Load()
	if cb != nil && cb.OnSessionCreated != nil {
		cb.OnSessionCreated(id)
	}
}

func (c *Controller) fireSessionEnded() {
	cb := c.callbacks.Load()
	if cb != nil && cb.OnSessionEnded != nil {
		cb.OnSessionEnded()
	}
}
