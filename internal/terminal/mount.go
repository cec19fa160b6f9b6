package terminal

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// mount is one binding of a surface to a session. Everything except the
// atomics is owned by the controller's executor.
type mount struct {
	c          *Controller
	id         string
	existingID string
	surface    Surface
	logger     *zap.Logger

	active   atomic.Bool
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	doneOnce sync.Once
	torn     bool

	engine     Engine
	session    SessionHandle
	reattach   bool
	polls      int
	lastOutput time.Time

	renderer *rendererChain
	bridge   *bridge
	resize   *resizeCoordinator
	health   *healthMonitor
	unwatch  func()
	applied  Settings

	timers map[*mountTimer]struct{}

	// Published for Snapshot.
	sessionID     atomic.Value // string
	rendererState atomic.Int32
	buffering     atomic.Bool
	ended         atomic.Bool
	subscriptions atomic.Int32
	pendingTimers atomic.Int32
}

func newMount(c *Controller, existingID string, surface Surface) *mount {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	m := &mount{
		c:          c,
		id:         id,
		existingID: existingID,
		surface:    surface,
		logger:     c.logger.With(zap.String("mount_id", id)),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		timers:     make(map[*mountTimer]struct{}),
	}
	m.sessionID.Store("")
	m.active.Store(true)
	return m
}

// deactivate clears the active flag. It reports whether this call did it.
func (m *mount) deactivate() bool {
	return m.active.CompareAndSwap(true, false)
}

func (m *mount) closeDone() {
	m.doneOnce.Do(func() { close(m.done) })
}

// post runs fn on the executor if the mount is still active when fn's turn
// comes.
func (m *mount) post(fn func()) {
	m.c.exec.post(func() {
		if m.active.Load() {
			fn()
		}
	})
}

// async runs work off the executor and posts the continuation it returns.
func (m *mount) async(work func(ctx context.Context) func()) {
	go func() {
		next := work(m.ctx)
		if next != nil {
			m.post(next)
		}
	}()
}

// start begins the mount sequence: engine, fonts, layout, session.
func (m *mount) start() {
	if !m.active.Load() {
		return
	}
	c := m.c

	if err := registerEngine(c.engines); err != nil {
		m.logger.Warn("Engine registration failed", zap.Error(err))
	}

	settings := c.settings.Load()
	m.applied = settings
	eng, err := c.engines.NewEngine(EngineOptions{
		FontSize:    settings.FontSize,
		CursorBlink: settings.CursorBlink,
	})
	if err != nil {
		m.logger.Error("Failed to create terminal engine", zap.Error(err))
		return
	}
	m.engine = eng

	if err := eng.Open(m.surface); err != nil {
		m.logger.Error("Failed to open terminal engine", zap.Error(err))
		return
	}

	m.logger.Debug("Engine opened, waiting for fonts")
	m.async(func(ctx context.Context) func() {
		err := eng.FontsReady(ctx)
		return func() {
			if err != nil {
				m.logger.Debug("Font readiness wait failed", zap.Error(err))
			}
			m.pollDimensions()
		}
	})
}

// pollDimensions waits until the surface has been laid out. There is no
// single layout-complete event, so this polls until the surface reports a
// size, the mount goes inactive, or the attempt cap is hit.
func (m *mount) pollDimensions() {
	w, h := m.surface.Dimensions()
	if w > 0 && h > 0 {
		m.connect()
		return
	}

	m.polls++
	if m.polls >= m.c.timings.MaxDimensionPolls {
		m.logger.Warn("Surface never reported dimensions, using engine defaults",
			zap.Int("polls", m.polls),
		)
		m.connect()
		return
	}
	m.after(m.c.timings.DimensionPollInterval, m.pollDimensions)
}

// connect fits the grid and obtains a session handle.
func (m *mount) connect() {
	rows, cols, ok := m.engine.Fit()
	if !ok {
		rows, cols = m.engine.Size()
	}

	if m.existingID != "" {
		m.reattach = true
		m.c.metrics.IncMount("reattach")
		m.logger.Info("Reattaching to session",
			zap.String("session_id", m.existingID),
			zap.Int("rows", rows),
			zap.Int("cols", cols),
		)
		m.bind(SessionHandle{ID: m.existingID})
		return
	}

	settings := m.c.settings.Load()
	opts := CreateOptions{
		Cwd:   settings.Cwd,
		Rows:  rows,
		Cols:  cols,
		Shell: settings.Shell,
	}
	m.c.metrics.IncMount("create")
	m.logger.Info("Creating session",
		zap.String("shell", opts.Shell),
		zap.String("cwd", opts.Cwd),
		zap.Int("rows", rows),
		zap.Int("cols", cols),
	)

	// Creation is not tied to the mount context: the process outlives the
	// display, so an unmount must not abort a request the host may finish.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(m.ctx), m.c.timings.CreateTimeout)
	go func() {
		defer cancel()
		handle, err := m.c.host.CreateSession(ctx, opts)
		posted := m.c.exec.post(func() {
			if err == nil {
				m.c.fireSessionCreated(handle.ID)
			}
			if !m.active.Load() {
				return
			}
			if err != nil {
				m.logger.Error("Failed to create session", zap.Error(err))
				m.engine.Write([]byte(fmt.Sprintf("\r\n\x1b[31mFailed to create terminal session: %v\x1b[0m\r\n", err)))
				return
			}
			m.logger.Info("Session created", zap.String("session_id", handle.ID))
			m.bind(handle)
		})
		if !posted && err == nil {
			m.c.fireSessionCreated(handle.ID)
		}
	}()
}

// bind attaches everything that needs a confirmed session, in acquisition
// order: renderer, bridge, resize coordinator, health monitor, settings.
func (m *mount) bind(handle SessionHandle) {
	m.session = handle
	m.sessionID.Store(handle.ID)

	m.renderer = newRendererChain(m)
	m.renderer.attach(m.c.settings.Load().Renderer)

	m.bridge = newBridge(m)
	m.bridge.attach(handle.ID, m.reattach)
	if m.reattach {
		rows, cols := m.engine.Size()
		m.bridge.sendResize(rows, cols)
	}

	m.resize = newResizeCoordinator(m)
	m.resize.start()

	m.health = newHealthMonitor(m)
	if m.c.visible.Load() {
		m.health.start()
	}

	m.unwatch = m.c.settings.Watch(func(s Settings) {
		m.post(func() { m.applySettings(s) })
	})
}

// applySettings pushes live display options into the engine.
func (m *mount) applySettings(s Settings) {
	prev := m.applied
	m.applied = s
	if s.FontSize == prev.FontSize && s.CursorBlink == prev.CursorBlink {
		return
	}
	m.engine.SetOptions(EngineOptions{FontSize: s.FontSize, CursorBlink: s.CursorBlink})
	if s.FontSize != prev.FontSize && m.resize != nil {
		m.resize.request()
	}
}

// noteOutput records output activity for the resize coordinator.
func (m *mount) noteOutput(at time.Time) {
	m.lastOutput = at
}

// teardown releases everything in reverse acquisition order. Each step is
// isolated so one failing resource never blocks the rest. The session
// itself is left running.
func (m *mount) teardown() {
	if m.torn {
		return
	}
	m.torn = true
	m.active.Store(false)
	m.cancel()
	m.stopTimers()

	if m.unwatch != nil {
		m.guard("settings watch", func() error { m.unwatch(); return nil })
	}
	if m.health != nil {
		m.guard("health monitor", func() error { m.health.stop(); return nil })
	}
	if m.resize != nil {
		m.guard("resize coordinator", func() error { m.resize.stop(); return nil })
	}
	if m.bridge != nil {
		m.guard("io bridge", func() error { m.bridge.detach(); return nil })
	}
	if m.renderer != nil {
		m.guard("renderer", m.renderer.dispose)
	}
	if m.engine != nil {
		m.guard("engine", m.engine.Dispose)
	}

	m.c.metrics.IncUnmount()
	m.logger.Info("Display unmounted", zap.String("session_id", m.session.ID))
	m.closeDone()
}

// guard runs one disposal step, swallowing errors and panics.
func (m *mount) guard(what string, fn func() error) {
	defer func() {
		if p := recover(); p != nil {
			m.logger.Debug("Disposal panicked", zap.String("resource", what), zap.Any("panic", p))
		}
	}()
	if err := fn(); err != nil {
		m.logger.Debug("Disposal failed", zap.String("resource", what), zap.Error(err))
	}
}

func (m *mount) snapshot() Snapshot {
	return Snapshot{
		MountID:       m.id,
		SessionID:     m.sessionID.Load().(string),
		Reattached:    m.existingID != "",
		Renderer:      RendererState(m.rendererState.Load()),
		Buffering:     m.buffering.Load(),
		Ended:         m.ended.Load(),
		Subscriptions: int(m.subscriptions.Load()),
		PendingTimers: int(m.pendingTimers.Load()),
	}
}

// mountTimer is a timer whose callback runs on the executor and only while
// the mount is active.
type mountTimer struct {
	t *time.Timer
}

// after schedules fn on the executor after d.
func (m *mount) after(d time.Duration, fn func()) *mountTimer {
	mt := &mountTimer{}
	m.timers[mt] = struct{}{}
	m.pendingTimers.Store(int32(len(m.timers)))
	mt.t = time.AfterFunc(d, func() {
		m.post(func() {
			if _, ok := m.timers[mt]; !ok {
				return
			}
			delete(m.timers, mt)
			m.pendingTimers.Store(int32(len(m.timers)))
			fn()
		})
	})
	return mt
}

// cancelTimer stops mt. A nil timer is ignored.
func (m *mount) cancelTimer(mt *mountTimer) {
	if mt == nil {
		return
	}
	if _, ok := m.timers[mt]; !ok {
		return
	}
	mt.t.Stop()
	delete(m.timers, mt)
	m.pendingTimers.Store(int32(len(m.timers)))
}

func (m *mount) stopTimers() {
	for mt := range m.timers {
		mt.t.Stop()
	}
	clear(m.timers)
	m.pendingTimers.Store(0)
}
