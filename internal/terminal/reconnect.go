package terminal

import (
	"time"

	"github.com/valyala/bytebufferpool"
	"go.uber.org/zap"
)

// reconnectBuffer holds output for a short window after reattaching so a
// burst that races subscription setup is not interleaved with the
// engine's initial size negotiation. It is never used on first creation.
type reconnectBuffer struct {
	m      *mount
	active bool
	chunks [][]byte
	timer  *mountTimer
}

func newReconnectBuffer(m *mount) *reconnectBuffer {
	return &reconnectBuffer{m: m}
}

func (r *reconnectBuffer) activate(window time.Duration) {
	r.active = true
	r.m.buffering.Store(true)
	r.timer = r.m.after(window, r.flush)
}

func (r *reconnectBuffer) buffering() bool {
	return r.active
}

func (r *reconnectBuffer) push(chunk []byte) {
	r.chunks = append(r.chunks, chunk)
}

// flush writes every buffered chunk as one write, in arrival order, then
// deactivates. Live events stay queued behind this while active is set.
func (r *reconnectBuffer) flush() {
	r.timer = nil
	if !r.active {
		return
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	for _, chunk := range r.chunks {
		_, _ = buf.Write(chunk)
	}
	count := len(r.chunks)
	r.chunks = nil
	r.active = false
	r.m.buffering.Store(false)

	if buf.Len() > 0 {
		r.m.engine.Write(buf.B)
	}
	r.m.c.metrics.ObserveReconnectFlush(buf.Len())
	r.m.logger.Debug("Reconnection buffer flushed",
		zap.Int("chunks", count),
		zap.Int("bytes", buf.Len()),
	)
}

// discard drops pending output without writing it.
func (r *reconnectBuffer) discard() {
	r.m.cancelTimer(r.timer)
	r.timer = nil
	r.chunks = nil
	r.active = false
	r.m.buffering.Store(false)
}
