package terminal

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const outboxSize = 256

// bridge connects the host output stream to the engine and forwards
// keystrokes and resizes back to the host.
type bridge struct {
	m         *mount
	sessionID string

	sub       Subscription
	buffer    *reconnectBuffer
	sanitizer Sanitizer

	disposeData   func()
	disposeResize func()

	outbox   chan func(ctx context.Context) error
	stop     chan struct{}
	stopOnce sync.Once
}

func newBridge(m *mount) *bridge {
	return &bridge{
		m:      m,
		outbox: make(chan func(ctx context.Context) error, outboxSize),
		stop:   make(chan struct{}),
	}
}

// attach subscribes to sessionID's output. With reattach set, output is
// held in the reconnection buffer for the reconnect window first.
func (b *bridge) attach(sessionID string, reattach bool) {
	m := b.m
	b.sessionID = sessionID
	b.buffer = newReconnectBuffer(m)
	if reattach {
		b.buffer.activate(m.c.timings.ReconnectWindow)
	}

	b.sub = m.c.host.OnSessionOutput(func(id string, data []byte) {
		if id != sessionID || len(data) == 0 {
			return
		}
		chunk := append([]byte(nil), data...)
		m.post(func() { b.deliver(chunk) })
	})
	m.subscriptions.Add(1)
	m.c.metrics.AddSubscriptions(1)

	b.disposeData = m.engine.OnData(func(data []byte) {
		payload := append([]byte(nil), data...)
		b.send(func(ctx context.Context) error {
			return m.c.host.WriteSession(ctx, sessionID, payload)
		})
	})
	b.disposeResize = m.engine.OnResize(func(rows, cols int) {
		b.sendResize(rows, cols)
	})

	go b.drain()
	m.logger.Debug("I/O bridge attached",
		zap.String("session_id", sessionID),
		zap.Bool("buffering", reattach),
	)
}

// deliver applies one output event. The sanitize setting is read per
// event so toggling it takes effect immediately. Deliveries run on the
// mount's executor, which serializes access to the sanitizer.
func (b *bridge) deliver(chunk []byte) {
	b.m.noteOutput(time.Now())

	if b.m.c.settings.Load().SanitizeOutput {
		chunk = b.sanitizer.Filter(chunk)
		if len(chunk) == 0 {
			return
		}
	} else if held := b.sanitizer.Release(); len(held) > 0 {
		chunk = append(held, chunk...)
	}

	if b.buffer.buffering() {
		b.buffer.push(chunk)
		return
	}
	b.m.engine.Write(chunk)
}

func (b *bridge) sendResize(rows, cols int) {
	if rows <= 0 || cols <= 0 {
		return
	}
	id := b.sessionID
	host := b.m.c.host
	b.send(func(ctx context.Context) error {
		return host.ResizeSession(ctx, id, rows, cols)
	})
}

// send queues a fire-and-forget host call. Order is preserved; once the
// bridge is detached new calls are dropped.
func (b *bridge) send(call func(ctx context.Context) error) {
	select {
	case <-b.stop:
		return
	default:
	}
	select {
	case b.outbox <- call:
	case <-b.stop:
	}
}

func (b *bridge) drain() {
	for {
		select {
		case <-b.stop:
			return
		case call := <-b.outbox:
			select {
			case <-b.stop:
				return
			default:
			}
			if err := call(b.m.ctx); err != nil {
				b.m.logger.Debug("Host call failed",
					zap.String("session_id", b.sessionID),
					zap.Error(err),
				)
			}
		}
	}
}

// detach releases the subscription and the engine listeners. Queued host
// calls are dropped and buffered output is discarded.
func (b *bridge) detach() {
	b.stopOnce.Do(func() { close(b.stop) })

	if b.disposeData != nil {
		b.disposeData()
		b.disposeData = nil
	}
	if b.disposeResize != nil {
		b.disposeResize()
		b.disposeResize = nil
	}
	if b.sub != nil {
		b.sub.Unsubscribe()
		b.sub = nil
		b.m.subscriptions.Add(-1)
		b.m.c.metrics.AddSubscriptions(-1)
	}
	if b.buffer != nil {
		b.buffer.discard()
	}
}
