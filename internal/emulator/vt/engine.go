package vt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/vito/midterm"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/termdeck/internal/terminal"
)

var (
	// ErrDisposed is returned by operations on a disposed engine.
	ErrDisposed = errors.New("engine is disposed")
	// ErrNoTerminal is returned when the damage-tracking renderer is
	// requested for output that is not a terminal.
	ErrNoTerminal = errors.New("output is not a terminal")
	// ErrOutputFailed is returned when a renderer cannot draw its first
	// frame.
	ErrOutputFailed = errors.New("renderer output failed")
)

const (
	defaultRows = 24
	defaultCols = 80
)

// KeySource is implemented by surfaces that deliver keystrokes.
type KeySource interface {
	OnKeys(fn func(data []byte)) (dispose func())
}

// Engine emulates a terminal with midterm and paints it to an output
// writer through the active renderer. Without a renderer, output passes
// straight through to the writer.
type Engine struct {
	cfg    FactoryConfig
	logger *zap.Logger

	mu        sync.Mutex
	vt        *midterm.Terminal
	surface   terminal.Surface
	rows      int
	cols      int
	opts      terminal.EngineOptions
	renderer  *renderer
	status    string
	statusBar lipgloss.Style
	replies   []byte
	disposed  bool
	stopKeys  func()
	nextKey   int
	dataFns   map[int]func([]byte)
	resizeFns map[int]func(rows, cols int)
}

var _ terminal.Engine = (*Engine)(nil)

func newEngine(cfg FactoryConfig, logger *zap.Logger, opts terminal.EngineOptions) *Engine {
	e := &Engine{
		cfg:       cfg,
		logger:    logger,
		rows:      defaultRows,
		cols:      defaultCols,
		opts:      opts,
		status:    cfg.Status,
		statusBar: statusStyle(cfg.Out),
		dataFns:   make(map[int]func([]byte)),
		resizeFns: make(map[int]func(rows, cols int)),
	}
	e.vt = midterm.NewTerminal(e.rows, e.cols)
	// Replies to terminal queries go back to the program like keystrokes.
	e.vt.ForwardResponses = responseWriter{e}
	return e
}

// statusStyle renders the status bar in reverse video. The profile is fixed
// because the output is often a raw-mode TTY that termenv cannot query.
func statusStyle(out io.Writer) lipgloss.Style {
	r := lipgloss.NewRenderer(out)
	r.SetColorProfile(termenv.ANSI)
	return r.NewStyle().Reverse(true)
}

// responseWriter collects query replies while the emulator runs under
// e.mu. Write delivers them once the lock is released.
type responseWriter struct{ e *Engine }

func (w responseWriter) Write(p []byte) (int, error) {
	w.e.replies = append(w.e.replies, p...)
	return len(p), nil
}

// Open attaches the engine to a surface.
func (e *Engine) Open(surface terminal.Surface) error {
	if surface == nil {
		return errors.New("open engine: nil surface")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return ErrDisposed
	}
	e.surface = surface
	if keys, ok := surface.(KeySource); ok {
		e.stopKeys = keys.OnKeys(e.Input)
	}
	e.applyOptionsLocked()
	return nil
}

// FontsReady resolves immediately: a text terminal has no web fonts.
func (e *Engine) FontsReady(ctx context.Context) error {
	return ctx.Err()
}

// Fit sizes the grid to the surface, minus the status line.
func (e *Engine) Fit() (rows, cols int, ok bool) {
	e.mu.Lock()
	if e.disposed || e.surface == nil {
		e.mu.Unlock()
		return 0, 0, false
	}
	width, height := e.surface.Dimensions()
	if width <= 0 || height <= 0 {
		e.mu.Unlock()
		return 0, 0, false
	}
	rows, cols = height, width
	if e.cfg.StatusLine && rows > 1 {
		rows--
	}
	changed := rows != e.rows || cols != e.cols
	if changed {
		e.rows, e.cols = rows, cols
		e.vt.Resize(rows, cols)
		e.repaintLocked()
	}
	fns := e.resizeListenersLocked()
	e.mu.Unlock()

	if changed {
		for _, fn := range fns {
			fn(rows, cols)
		}
	}
	return rows, cols, true
}

// Size returns the current grid.
func (e *Engine) Size() (rows, cols int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rows, e.cols
}

// Write feeds program output to the emulator and paints it.
func (e *Engine) Write(data []byte) {
	e.mu.Lock()
	if e.disposed || len(data) == 0 {
		e.mu.Unlock()
		return
	}
	if _, err := e.vt.Write(data); err != nil {
		e.logger.Debug("Emulator rejected output", zap.Error(err))
	}
	if e.renderer != nil {
		e.renderer.paint(false)
	} else if _, err := e.cfg.Out.Write(data); err != nil {
		e.logger.Debug("Passthrough write failed", zap.Error(err))
	}
	replies := e.replies
	e.replies = nil
	e.mu.Unlock()

	if len(replies) > 0 {
		e.emitData(replies)
	}
}

// Input delivers keystrokes to OnData listeners.
func (e *Engine) Input(data []byte) {
	e.mu.Lock()
	disposed := e.disposed
	e.mu.Unlock()
	if disposed || len(data) == 0 {
		return
	}
	e.emitData(data)
}

func (e *Engine) emitData(data []byte) {
	e.mu.Lock()
	fns := make([]func([]byte), 0, len(e.dataFns))
	for _, fn := range e.dataFns {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(data)
	}
}

// LoadRenderer builds a renderer. Only the gpu and canvas kinds exist;
// the default is passthrough and needs no loading.
func (e *Engine) LoadRenderer(kind terminal.RendererState) (terminal.Renderer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return nil, ErrDisposed
	}

	var r *renderer
	switch kind {
	case terminal.RendererGPU:
		if !e.cfg.TTY {
			return nil, ErrNoTerminal
		}
		r = newRenderer(e, true)
	case terminal.RendererCanvas:
		r = newRenderer(e, false)
	default:
		return nil, fmt.Errorf("no loadable renderer for %s", kind)
	}

	if e.renderer != nil {
		e.renderer.detachLocked()
	}
	e.renderer = r
	r.paint(true)
	if r.isLost() {
		// Nobody has subscribed to loss yet, so fail the load instead.
		r.detachLocked()
		e.renderer = nil
		return nil, fmt.Errorf("%w: %s", ErrOutputFailed, kind)
	}
	return r, nil
}

// SetOptions applies display options. Font size has no meaning on a text
// terminal and is only recorded.
func (e *Engine) SetOptions(opts terminal.EngineOptions) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.opts = opts
	if !e.disposed && e.surface != nil {
		e.applyOptionsLocked()
	}
}

// Options returns the last applied options.
func (e *Engine) Options() terminal.EngineOptions {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opts
}

func (e *Engine) applyOptionsLocked() {
	mode := "\x1b[?12l"
	if e.opts.CursorBlink {
		mode = "\x1b[?12h"
	}
	_, _ = io.WriteString(e.cfg.Out, mode)
}

// SetStatus sets the status line text.
func (e *Engine) SetStatus(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = text
	if !e.disposed && e.surface != nil {
		e.paintStatusLocked()
	}
}

// OnData registers fn for keystrokes and terminal query replies.
func (e *Engine) OnData(fn func(data []byte)) (dispose func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := e.nextKey
	e.nextKey++
	e.dataFns[key] = fn
	return func() {
		e.mu.Lock()
		delete(e.dataFns, key)
		e.mu.Unlock()
	}
}

// OnResize registers fn for grid changes.
func (e *Engine) OnResize(fn func(rows, cols int)) (dispose func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := e.nextKey
	e.nextKey++
	e.resizeFns[key] = fn
	return func() {
		e.mu.Lock()
		delete(e.resizeFns, key)
		e.mu.Unlock()
	}
}

func (e *Engine) resizeListenersLocked() []func(rows, cols int) {
	fns := make([]func(rows, cols int), 0, len(e.resizeFns))
	for _, fn := range e.resizeFns {
		fns = append(fns, fn)
	}
	return fns
}

// Dispose releases the surface and stops painting. It is idempotent.
func (e *Engine) Dispose() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return nil
	}
	e.disposed = true
	if e.stopKeys != nil {
		e.stopKeys()
		e.stopKeys = nil
	}
	if e.renderer != nil {
		e.renderer.detachLocked()
		e.renderer = nil
	}
	clear(e.dataFns)
	clear(e.resizeFns)
	if e.surface != nil {
		// Restore the full scroll region and leave the cursor visible.
		_, _ = io.WriteString(e.cfg.Out, "\x1b[r\x1b[?25h\x1b[0m\r\n")
	}
	return nil
}

// repaintLocked redraws after a grid change.
func (e *Engine) repaintLocked() {
	if e.renderer != nil {
		e.renderer.paint(true)
		return
	}
	if e.cfg.StatusLine {
		// Keep passthrough output above the status line.
		fmt.Fprintf(e.cfg.Out, "\x1b[1;%dr", e.rows)
		e.paintStatusLocked()
	}
}

func (e *Engine) paintStatusLocked() {
	if !e.cfg.StatusLine || e.status == "" {
		return
	}
	bar := e.statusBar.Width(e.cols).MaxWidth(e.cols).MaxHeight(1).Render(e.status)
	fmt.Fprintf(e.cfg.Out, "\x1b7\x1b[%d;1H%s\x1b8", e.rows+1, bar)
}
