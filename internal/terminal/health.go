package terminal

import (
	"context"

	"go.uber.org/zap"
)

// healthMonitor polls session liveness while the display is visible. A
// transport error counts as dead.
type healthMonitor struct {
	m       *mount
	running bool
	gen     uint64
	timer   *mountTimer
}

func newHealthMonitor(m *mount) *healthMonitor {
	return &healthMonitor{m: m}
}

// start schedules the initial check. Calling it while already running
// does nothing, so visibility toggles never stack up polls.
func (h *healthMonitor) start() {
	if h.running || h.m.ended.Load() {
		return
	}
	h.running = true
	h.gen++
	h.timer = h.m.after(h.m.c.timings.HealthInitialDelay, h.check)
}

func (h *healthMonitor) stop() {
	if !h.running {
		return
	}
	h.running = false
	h.gen++
	h.m.cancelTimer(h.timer)
	h.timer = nil
}

func (h *healthMonitor) check() {
	h.timer = nil
	if !h.running {
		return
	}
	gen := h.gen
	id := h.m.session.ID
	host := h.m.c.host
	timeout := h.m.c.timings.LivenessTimeout

	h.m.async(func(ctx context.Context) func() {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		alive, err := host.IsSessionActive(ctx, id)
		return func() { h.result(gen, alive, err) }
	})
}

func (h *healthMonitor) result(gen uint64, alive bool, err error) {
	if gen != h.gen || !h.running {
		return
	}
	switch {
	case err != nil:
		h.m.logger.Warn("Liveness check failed, treating session as ended",
			zap.String("session_id", h.m.session.ID),
			zap.Error(err),
		)
		h.m.c.metrics.RecordHealthCheck("error")
		h.markEnded()
	case !alive:
		h.m.c.metrics.RecordHealthCheck("dead")
		h.markEnded()
	default:
		h.m.c.metrics.RecordHealthCheck("alive")
		h.timer = h.m.after(h.m.c.timings.HealthInterval, h.check)
	}
}

// markEnded surfaces the ended indicator. No respawn is attempted.
func (h *healthMonitor) markEnded() {
	h.running = false
	h.gen++
	if !h.m.ended.CompareAndSwap(false, true) {
		return
	}
	h.m.logger.Info("Session ended", zap.String("session_id", h.m.session.ID))
	h.m.engine.Write([]byte("\r\n\x1b[33m[session ended]\x1b[0m\r\n"))
	h.m.c.fireSessionEnded()
}
