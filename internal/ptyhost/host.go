package ptyhost

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/creack/pty"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/termdeck/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/termdeck/internal/shared/id"
	"github.com/GriffinCanCode/termdeck/internal/terminal"
)

var (
	// ErrSessionNotFound is returned for ids the host does not know.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionClosed is returned when writing to an exited session.
	ErrSessionClosed = errors.New("session is closed")
	// ErrInvalidSize is returned for a geometry a PTY cannot represent.
	ErrInvalidSize = errors.New("invalid terminal size")
)

const (
	defaultRows        = 24
	defaultCols        = 80
	defaultScrollback  = 1 << 20
	readChunk          = 32 * 1024
	exitDrainTimeout   = 200 * time.Millisecond
	processStatTimeout = 500 * time.Millisecond
	maxDimension       = math.MaxUint16
)

// ExitHandler is notified once when a session's process exits.
type ExitHandler func(sessionID string, exitCode int)

// Config configures a Host.
type Config struct {
	Shell           string
	Cwd             string
	ScrollbackBytes int
	Env             map[string]string
	Logger          *zap.Logger
	Metrics         *monitoring.Metrics
}

// Host runs shells on pseudo-terminals and fans their output out to
// listeners. It implements terminal.ProcessHost.
type Host struct {
	cfg      Config
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	sessions cmap.ConcurrentMap[string, *Session]

	mu       sync.RWMutex
	outputs  map[int]terminal.OutputHandler
	exits    map[int]ExitHandler
	nextSubs int
}

var _ terminal.ProcessHost = (*Host)(nil)

// New creates a host.
func New(cfg Config) *Host {
	if cfg.ScrollbackBytes <= 0 {
		cfg.ScrollbackBytes = defaultScrollback
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Host{
		cfg:      cfg,
		logger:   logger.Named("ptyhost"),
		metrics:  cfg.Metrics,
		sessions: cmap.New[*Session](),
		outputs:  make(map[int]terminal.OutputHandler),
		exits:    make(map[int]ExitHandler),
	}
}

// CreateSession starts a shell at the requested size.
func (h *Host) CreateSession(ctx context.Context, opts terminal.CreateOptions) (terminal.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return terminal.SessionHandle{}, err
	}

	shell := firstNonEmpty(opts.Shell, h.cfg.Shell, os.Getenv("SHELL"), "/bin/bash")
	cwd := firstNonEmpty(opts.Cwd, h.cfg.Cwd, os.Getenv("HOME"), "/tmp")
	rows, cols := opts.Rows, opts.Cols
	if rows <= 0 {
		rows = defaultRows
	}
	if cols <= 0 {
		cols = defaultCols
	}
	if rows > maxDimension || cols > maxDimension {
		return terminal.SessionHandle{}, fmt.Errorf("%w: %dx%d", ErrInvalidSize, rows, cols)
	}

	cmd := exec.Command(shell)
	cmd.Dir = cwd
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	for key, value := range h.cfg.Env {
		cmd.Env = append(cmd.Env, key+"="+value)
	}

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
	if err != nil {
		return terminal.SessionHandle{}, fmt.Errorf("failed to start PTY: %w", err)
	}

	s := &Session{
		ID:         id.NewSessionID().String(),
		Shell:      shell,
		Cwd:        cwd,
		StartedAt:  time.Now(),
		cmd:        cmd,
		ptmx:       ptmx,
		scrollback: NewBuffer(h.cfg.ScrollbackBytes),
		readerDone: make(chan struct{}),
		rows:       rows,
		cols:       cols,
	}
	h.sessions.Set(s.ID, s)
	h.metrics.IncSessionsCreated()

	go h.readOutput(s)
	go h.waitProcess(s)

	h.logger.Info("Session started",
		zap.String("session_id", s.ID),
		zap.String("shell", shell),
		zap.String("cwd", cwd),
		zap.Int("pid", s.pid()),
		zap.Int("rows", rows),
		zap.Int("cols", cols),
	)
	return terminal.SessionHandle{ID: s.ID, CreatedAt: s.StartedAt}, nil
}

// readOutput copies PTY output into scrollback and to every listener, in
// read order.
func (h *Host) readOutput(s *Session) {
	defer close(s.readerDone)
	buf := make([]byte, readChunk)
	for {
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			_, _ = s.scrollback.Write(buf[:n])
			h.metrics.AddOutputBytes(n)
			h.publish(s.ID, buf[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				h.logger.Debug("PTY read ended", zap.String("session_id", s.ID), zap.Error(err))
			}
			return
		}
	}
}

func (h *Host) publish(sessionID string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, fn := range h.outputs {
		fn(sessionID, data)
	}
}

// waitProcess reaps the shell. Output still in the PTY is drained before
// exit listeners run.
func (h *Host) waitProcess(s *Session) {
	err := s.cmd.Wait()
	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}

	select {
	case <-s.readerDone:
	case <-time.After(exitDrainTimeout):
	}
	_ = s.ptmx.Close()

	s.mu.Lock()
	s.closed = true
	s.exitCode = code
	s.mu.Unlock()

	h.endSession(s, "exited")
	h.logger.Info("Session exited", zap.String("session_id", s.ID), zap.Int("exit_code", code))

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, fn := range h.exits {
		fn(s.ID, code)
	}
}

func (h *Host) endSession(s *Session, reason string) {
	s.endOnce.Do(func() { h.metrics.IncSessionsClosed(reason) })
}

func (h *Host) get(sessionID string) (*Session, error) {
	s, ok := h.sessions.Get(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return s, nil
}

// WriteSession sends input to a session.
func (h *Host) WriteSession(_ context.Context, sessionID string, data []byte) error {
	s, err := h.get(sessionID)
	if err != nil {
		return err
	}
	if s.isClosed() {
		return fmt.Errorf("%w: %s", ErrSessionClosed, sessionID)
	}
	if _, err := s.ptmx.Write(data); err != nil {
		return fmt.Errorf("write to session %s: %w", sessionID, err)
	}
	return nil
}

// ResizeSession changes the PTY window size.
func (h *Host) ResizeSession(_ context.Context, sessionID string, rows, cols int) error {
	if rows <= 0 || cols <= 0 || rows > maxDimension || cols > maxDimension {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, rows, cols)
	}
	s, err := h.get(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: %s", ErrSessionClosed, sessionID)
	}
	if err := pty.Setsize(s.ptmx, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)}); err != nil {
		return fmt.Errorf("resize session %s: %w", sessionID, err)
	}
	s.rows, s.cols = rows, cols
	return nil
}

// CloseSession kills the process and forgets the session.
func (h *Host) CloseSession(_ context.Context, sessionID string) error {
	s, ok := h.sessions.Pop(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	s.mu.Lock()
	wasClosed := s.closed
	s.closed = true
	s.mu.Unlock()

	if !wasClosed && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.ptmx.Close()
	h.endSession(s, "killed")
	h.logger.Info("Session closed", zap.String("session_id", sessionID))
	return nil
}

// IsSessionActive reports whether the session exists, has not exited and
// its process is still running.
func (h *Host) IsSessionActive(ctx context.Context, sessionID string) (bool, error) {
	s, ok := h.sessions.Get(sessionID)
	if !ok || s.isClosed() {
		return false, nil
	}
	pid := s.pid()
	if pid == 0 {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, processStatTimeout)
	defer cancel()

	exists, err := process.PidExistsWithContext(ctx, int32(pid))
	if err != nil || !exists {
		return false, err
	}
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return false, nil
	}
	if status, err := p.StatusWithContext(ctx); err == nil && slices.Contains(status, process.Zombie) {
		return false, nil
	}
	return true, nil
}

// OnSessionOutput registers fn for output from every session. fn runs on
// the session's reader goroutine and must not block.
func (h *Host) OnSessionOutput(fn terminal.OutputHandler) terminal.Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := h.nextSubs
	h.nextSubs++
	h.outputs[key] = fn
	return h.unsubscriber(func() { delete(h.outputs, key) })
}

// OnSessionExit registers fn for process exits.
func (h *Host) OnSessionExit(fn ExitHandler) terminal.Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := h.nextSubs
	h.nextSubs++
	h.exits[key] = fn
	return h.unsubscriber(func() { delete(h.exits, key) })
}

func (h *Host) unsubscriber(remove func()) terminal.Subscription {
	var once sync.Once
	return terminal.SubscriptionFunc(func() {
		once.Do(func() {
			h.mu.Lock()
			remove()
			h.mu.Unlock()
		})
	})
}

// Scrollback returns the recent output of a session.
func (h *Host) Scrollback(sessionID string) ([]byte, error) {
	s, err := h.get(sessionID)
	if err != nil {
		return nil, err
	}
	return s.scrollback.Bytes(), nil
}

// Info returns session details including process stats when available.
func (h *Host) Info(ctx context.Context, sessionID string) (*SessionInfo, error) {
	s, err := h.get(sessionID)
	if err != nil {
		return nil, err
	}
	info := s.info()
	if info.Active && info.PID > 0 {
		h.addProcessStats(ctx, &info)
	}
	return &info, nil
}

func (h *Host) addProcessStats(ctx context.Context, info *SessionInfo) {
	ctx, cancel := context.WithTimeout(ctx, processStatTimeout)
	defer cancel()

	p, err := process.NewProcessWithContext(ctx, int32(info.PID))
	if err != nil {
		return
	}
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		info.RSSBytes = mem.RSS
	}
	if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
		info.CPUPercent = cpu
	}
}

// List returns every known session, oldest first.
func (h *Host) List() []SessionInfo {
	sessions := make([]SessionInfo, 0, h.sessions.Count())
	for item := range h.sessions.IterBuffered() {
		sessions = append(sessions, item.Val.info())
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID < sessions[j].ID })
	return sessions
}

// Count returns the number of known sessions.
func (h *Host) Count() int {
	return h.sessions.Count()
}

// Shutdown kills every session.
func (h *Host) Shutdown(ctx context.Context) {
	for _, sessionID := range h.sessions.Keys() {
		if err := h.CloseSession(ctx, sessionID); err != nil && !errors.Is(err, ErrSessionNotFound) {
			h.logger.Warn("Failed to close session on shutdown", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
