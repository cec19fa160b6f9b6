package vt

import (
	"fmt"
	"sync"

	"github.com/valyala/bytebufferpool"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/termdeck/internal/terminal"
)

// renderer paints the emulator grid to the output. With damage tracking
// it rewrites only rows that changed since the last frame; otherwise it
// repaints the whole grid on every write.
//
// A failed write to the output is the text-terminal analogue of a lost
// drawing context and is reported through OnContextLoss.
type renderer struct {
	e      *Engine
	damage bool
	prev   []string

	lossMu   sync.Mutex
	lossFns  []func()
	lost     bool
	detached bool
}

var _ terminal.Renderer = (*renderer)(nil)

func newRenderer(e *Engine, damage bool) *renderer {
	return &renderer{e: e, damage: damage}
}

// paint draws a frame. e.mu must be held.
func (r *renderer) paint(full bool) {
	if r.detached || r.lost {
		return
	}
	e := r.e
	if len(r.prev) != e.rows {
		r.prev = make([]string, e.rows)
		full = true
	}

	frame := bytebufferpool.Get()
	defer bytebufferpool.Put(frame)
	line := bytebufferpool.Get()
	defer bytebufferpool.Put(line)

	frame.WriteString("\x1b[?25l")
	for row := 0; row < e.rows; row++ {
		line.Reset()
		if err := e.vt.RenderLine(line, row); err != nil {
			e.logger.Debug("Failed to render line", zap.Int("row", row), zap.Error(err))
			continue
		}
		if r.damage && !full && line.String() == r.prev[row] {
			continue
		}
		r.prev[row] = line.String()
		fmt.Fprintf(frame, "\x1b[%d;1H", row+1)
		frame.Write(line.B)
		frame.WriteString("\x1b[0m\x1b[K")
	}
	fmt.Fprintf(frame, "\x1b[%d;%dH\x1b[?25h", e.vt.Cursor.Y+1, e.vt.Cursor.X+1)

	if _, err := e.cfg.Out.Write(frame.B); err != nil {
		e.logger.Debug("Renderer output failed", zap.Error(err))
		r.loseContext()
		return
	}
	if full {
		e.paintStatusLocked()
	}
}

func (r *renderer) loseContext() {
	r.lossMu.Lock()
	if r.lost {
		r.lossMu.Unlock()
		return
	}
	r.lost = true
	fns := append([]func(){}, r.lossFns...)
	r.lossMu.Unlock()

	// Listeners may re-enter the engine, which is locked here.
	go func() {
		for _, fn := range fns {
			fn()
		}
	}()
}

func (r *renderer) isLost() bool {
	r.lossMu.Lock()
	defer r.lossMu.Unlock()
	return r.lost
}

// OnContextLoss registers fn for output failure. A renderer that has
// already lost its output reports it to fn right away.
func (r *renderer) OnContextLoss(fn func()) {
	r.lossMu.Lock()
	defer r.lossMu.Unlock()
	if r.lost {
		if !r.detached {
			go fn()
		}
		return
	}
	r.lossFns = append(r.lossFns, fn)
}

// Dispose detaches the renderer from its engine. Output reverts to
// passthrough.
func (r *renderer) Dispose() error {
	r.e.mu.Lock()
	defer r.e.mu.Unlock()
	r.detachLocked()
	if r.e.renderer == r {
		r.e.renderer = nil
	}
	return nil
}

func (r *renderer) detachLocked() {
	r.detached = true
	r.lossMu.Lock()
	r.lossFns = nil
	r.lossMu.Unlock()
}
