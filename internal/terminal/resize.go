package terminal

import (
	"time"

	"go.uber.org/zap"
)

// resizeCoordinator coalesces resize signals with a trailing debounce. The
// delay stretches to the quiet period while output is streaming, and a
// fire that lands during output re-arms until the stream goes quiet.
type resizeCoordinator struct {
	m       *mount
	timer   *mountTimer
	dispose func()
}

func newResizeCoordinator(m *mount) *resizeCoordinator {
	return &resizeCoordinator{m: m}
}

func (r *resizeCoordinator) start() {
	m := r.m
	r.dispose = m.surface.OnResize(func() {
		m.post(r.request)
	})
}

// request (re)starts the debounce.
func (r *resizeCoordinator) request() {
	r.m.cancelTimer(r.timer)
	r.timer = r.m.after(r.delay(time.Now()), r.fire)
}

func (r *resizeCoordinator) delay(now time.Time) time.Duration {
	t := r.m.c.timings
	if r.outputWithin(now, t.QuietPeriod) {
		return t.QuietPeriod
	}
	return t.ResizeDelay
}

func (r *resizeCoordinator) outputWithin(now time.Time, window time.Duration) bool {
	last := r.m.lastOutput
	return !last.IsZero() && now.Sub(last) < window
}

func (r *resizeCoordinator) fire() {
	r.timer = nil
	now := time.Now()
	quiet := r.m.c.timings.QuietPeriod
	if r.outputWithin(now, quiet) {
		remaining := quiet - now.Sub(r.m.lastOutput)
		r.timer = r.m.after(remaining, r.fire)
		return
	}

	rows, cols, ok := r.m.engine.Fit()
	if !ok {
		return
	}
	r.m.c.metrics.IncResizeFits()
	r.m.logger.Debug("Refit terminal", zap.Int("rows", rows), zap.Int("cols", cols))
}

func (r *resizeCoordinator) stop() {
	if r.dispose != nil {
		r.dispose()
		r.dispose = nil
	}
	r.m.cancelTimer(r.timer)
	r.timer = nil
}
