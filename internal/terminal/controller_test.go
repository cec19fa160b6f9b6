package terminal

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMountCreatesSession(t *testing.T) {
	h := newHarness(t, testTimings())
	eng := h.mountBound("")

	creates := h.host.creates()
	require.Len(t, creates, 1)
	assert.Equal(t, CreateOptions{Cwd: "/tmp", Rows: 30, Cols: 100, Shell: "/bin/sh"}, creates[0])

	require.Eventually(t, func() bool { return len(h.createdIDs()) == 1 }, waitFor, tick)
	assert.Equal(t, []string{"pty_1"}, h.createdIDs())

	snap := h.ctrl.Snapshot()
	assert.True(t, snap.Mounted)
	assert.Equal(t, "pty_1", snap.SessionID)
	assert.False(t, snap.Reattached)
	assert.False(t, snap.Buffering)
	assert.Equal(t, RendererGPU, snap.Renderer)
	assert.Equal(t, 1, snap.Subscriptions)

	id, err := h.ctrl.SessionID()
	require.NoError(t, err)
	assert.Equal(t, "pty_1", id)

	h.host.emit("pty_1", "hello")
	h.host.emit("pty_other", "not mine")
	require.Eventually(t, func() bool { return len(eng.writeLog()) == 1 }, waitFor, tick)
	assert.Equal(t, []string{"hello"}, eng.writeLog())
}

func TestKeystrokesForwardedInOrder(t *testing.T) {
	h := newHarness(t, testTimings())
	eng := h.mountBound("")

	for _, k := range []string{"l", "s", "\r"} {
		eng.typeKeys(k)
	}
	require.Eventually(t, func() bool { return len(h.host.writesFor("pty_1")) == 3 }, waitFor, tick)
	assert.Equal(t, []string{"l", "s", "\r"}, h.host.writesFor("pty_1"))
}

func TestReattachBuffersOutput(t *testing.T) {
	h := newHarness(t, testTimings())
	eng := h.mountBound("pty_existing")

	assert.Empty(t, h.host.creates(), "reattach must not create a session")
	assert.Empty(t, h.createdIDs())
	assert.True(t, h.ctrl.Snapshot().Reattached)
	assert.True(t, h.ctrl.Snapshot().Buffering)

	h.host.emit("pty_existing", "a")
	h.host.emit("pty_existing", "b")
	h.host.emit("pty_existing", "c")

	require.Eventually(t, func() bool { return !h.ctrl.Snapshot().Buffering }, waitFor, tick)
	assert.Equal(t, []string{"abc"}, eng.writeLog(), "buffered output flushes as one write")

	h.host.emit("pty_existing", "d")
	require.Eventually(t, func() bool { return len(eng.writeLog()) == 2 }, waitFor, tick)
	assert.Equal(t, []string{"abc", "d"}, eng.writeLog())

	// The existing process is told the new geometry.
	assert.Contains(t, h.host.resizeCalls(), resizeCall{id: "pty_existing", rows: 30, cols: 100})
}

func TestFirstCreationDoesNotBuffer(t *testing.T) {
	h := newHarness(t, testTimings())
	eng := h.mountBound("")

	assert.False(t, h.ctrl.Snapshot().Buffering)
	h.host.emit("pty_1", "x")
	h.host.emit("pty_1", "y")
	require.Eventually(t, func() bool { return len(eng.writeLog()) == 2 }, waitFor, tick)
	assert.Equal(t, []string{"x", "y"}, eng.writeLog())
}

func TestUnmountBeforeAsyncStepsResolve(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness) (release func())
	}{
		{
			name: "during font readiness",
			setup: func(h *harness) func() {
				gate := make(chan struct{})
				h.factory.fontsGate = gate
				return func() { close(gate) }
			},
		},
		{
			name: "during dimension polling",
			setup: func(h *harness) func() {
				h.surface = newFakeSurface(0, 0)
				return func() { h.surface.resize(100, 30) }
			},
		},
		{
			name: "during session creation",
			setup: func(h *harness) func() {
				gate := make(chan struct{})
				h.host.createGate = gate
				return func() { close(gate) }
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, testTimings())
			release := tt.setup(h)

			require.NoError(t, h.ctrl.Mount("", h.surface))
			require.Eventually(t, func() bool { return h.factory.engineCount() == 1 }, waitFor, tick)
			h.unmount()
			eng := h.factory.last()
			fits := eng.fitCount()

			release()

			assert.Never(t, func() bool {
				return eng.callsAfterDispose() > 0 || eng.fitCount() != fits
			}, 200*time.Millisecond, tick)
			assert.Equal(t, 1, eng.disposeCount())
			assert.Zero(t, h.host.listenerCount())
			assert.Zero(t, h.ctrl.Snapshot().PendingTimers)
			assert.Zero(t, h.ctrl.Snapshot().Subscriptions)
			assert.False(t, h.ctrl.Snapshot().Mounted)
			assert.Zero(t, h.host.closeCalls)
		})
	}
}

func TestSessionCreatedDuringTeardownIsReported(t *testing.T) {
	h := newHarness(t, testTimings())
	gate := make(chan struct{})
	h.host.createGate = gate

	require.NoError(t, h.ctrl.Mount("", h.surface))
	require.Eventually(t, func() bool { return len(h.host.creates()) == 1 }, waitFor, tick)
	h.unmount()
	close(gate)

	require.Eventually(t, func() bool { return len(h.createdIDs()) == 1 }, waitFor, tick)
	assert.Never(t, func() bool { return h.host.listenerCount() > 0 }, 100*time.Millisecond, tick)
	assert.Empty(t, h.ctrl.Snapshot().SessionID)
}

func TestRepeatedMountCyclesLeakNothing(t *testing.T) {
	h := newHarness(t, testTimings())

	var sessionID string
	for i := 0; i < 20; i++ {
		eng := h.mountBound(sessionID)
		if sessionID == "" {
			sessionID = h.ctrl.Snapshot().SessionID
		}
		h.host.emit(sessionID, "tick")
		h.surface.trigger()
		h.unmount()

		assert.Equal(t, 1, eng.disposeCount())
		assert.Zero(t, eng.listenerCount())
		for _, r := range eng.loadedRenderers() {
			assert.Equal(t, 1, r.disposeCount())
		}
	}

	assert.Equal(t, 20, h.factory.engineCount())
	assert.Zero(t, h.host.listenerCount())
	assert.Zero(t, h.surface.listenerCount())
	assert.Zero(t, h.ctrl.Snapshot().PendingTimers)
	assert.Len(t, h.host.creates(), 1)
	assert.Zero(t, h.host.closeCalls, "sessions outlive the display")
	assert.Equal(t, int32(1), h.factory.registers.Load(), "engine registration runs once")

	for i := 0; i < h.factory.engineCount(); i++ {
		assert.Zero(t, h.factory.engine(i).callsAfterDispose())
	}
}

func TestUnmountIsIdempotent(t *testing.T) {
	h := newHarness(t, testTimings())
	eng := h.mountBound("")

	first := h.ctrl.Unmount()
	second := h.ctrl.Unmount()
	<-first
	<-second
	h.unmount()

	assert.Equal(t, 1, eng.disposeCount())
	assert.Zero(t, h.host.listenerCount())
}

func TestUnmountWithoutMount(t *testing.T) {
	h := newHarness(t, testTimings())
	select {
	case <-h.ctrl.Unmount():
	case <-time.After(time.Second):
		t.Fatal("unmount of an empty controller should complete immediately")
	}
	_, err := h.ctrl.SessionID()
	assert.ErrorIs(t, err, ErrNotMounted)
}

func TestLastMountWins(t *testing.T) {
	h := newHarness(t, testTimings())

	require.NoError(t, h.ctrl.Mount("", h.surface))
	require.Eventually(t, func() bool { return h.factory.engineCount() == 1 }, waitFor, tick)
	second := newFakeSurface(120, 40)
	require.NoError(t, h.ctrl.Mount("pty_existing", second))

	require.Eventually(t, func() bool {
		s := h.ctrl.Snapshot()
		return s.SessionID == "pty_existing" && s.Subscriptions == 1
	}, waitFor, tick)

	require.Equal(t, 2, h.factory.engineCount())
	assert.Equal(t, 1, h.factory.engine(0).disposeCount())
	assert.Zero(t, h.factory.engine(0).callsAfterDispose())
	assert.Equal(t, 1, h.host.listenerCount())
	assert.Zero(t, h.surface.listenerCount())
}

func TestCreationFailureWritesErrorLine(t *testing.T) {
	h := newHarness(t, testTimings())
	h.host.createErr = errors.New("fork/exec /bin/nope: no such file or directory")

	require.NoError(t, h.ctrl.Mount("", h.surface))
	require.Eventually(t, func() bool {
		eng := h.factory.last()
		return eng != nil && len(eng.writeLog()) == 1
	}, waitFor, tick)

	line := h.factory.last().writeLog()[0]
	assert.Contains(t, line, "Failed to create terminal session")
	assert.Contains(t, line, "no such file or directory")
	assert.True(t, strings.HasPrefix(line, "\r\n\x1b[31m"))

	assert.Never(t, func() bool { return len(h.host.creates()) > 1 }, 100*time.Millisecond, tick, "no retry")
	assert.Empty(t, h.createdIDs())
	assert.Zero(t, h.host.listenerCount())
	assert.Equal(t, RendererNone, h.ctrl.Snapshot().Renderer)
}

func TestSurfaceWithoutLayoutFallsBackToEngineSize(t *testing.T) {
	timings := testTimings()
	timings.MaxDimensionPolls = 5
	h := newHarness(t, timings)
	h.surface = newFakeSurface(0, 0)

	h.mountBound("")
	creates := h.host.creates()
	require.Len(t, creates, 1)
	assert.Equal(t, 24, creates[0].Rows)
	assert.Equal(t, 80, creates[0].Cols)
}

func TestMountRequiresEngineFactory(t *testing.T) {
	c := NewController(Config{Host: newFakeHost(), Logger: zap.NewNop()})
	defer c.Close()
	assert.ErrorIs(t, c.Mount("", newFakeSurface(80, 24)), ErrNoEngine)
}

func TestMountAfterClose(t *testing.T) {
	h := newHarness(t, testTimings())
	h.ctrl.Close()
	assert.ErrorIs(t, h.ctrl.Mount("", h.surface), ErrControllerClosed)
	select {
	case <-h.ctrl.Unmount():
	case <-time.After(time.Second):
		t.Fatal("unmount after close should not block")
	}
}

func TestLiveSettingsApplyToMountedEngine(t *testing.T) {
	h := newHarness(t, testTimings())
	eng := h.mountBound("")

	h.settings.Update(func(s *Settings) { s.FontSize = 18 })
	require.Eventually(t, func() bool { return len(eng.optionLog()) == 1 }, waitFor, tick)
	assert.Equal(t, EngineOptions{FontSize: 18, CursorBlink: true}, eng.optionLog()[0])

	// Unrelated changes do not touch the engine.
	h.settings.Update(func(s *Settings) { s.Shell = "/bin/zsh" })
	assert.Never(t, func() bool { return len(eng.optionLog()) > 1 }, 100*time.Millisecond, tick)
}

func TestSanitizeToggleIsReadPerEvent(t *testing.T) {
	h := newHarness(t, testTimings())
	eng := h.mountBound("")

	h.host.emit("pty_1", "a\x1bcb")
	require.Eventually(t, func() bool { return len(eng.writeLog()) == 1 }, waitFor, tick)

	h.settings.Update(func(s *Settings) { s.SanitizeOutput = true })
	h.host.emit("pty_1", "c\x1bcd")
	require.Eventually(t, func() bool { return len(eng.writeLog()) == 2 }, waitFor, tick)

	assert.Equal(t, []string{"a\x1bcb", "cd"}, eng.writeLog())
}

func TestSanitizeHoldsSequenceSplitAcrossEvents(t *testing.T) {
	h := newHarness(t, testTimings())
	h.settings.Update(func(s *Settings) { s.SanitizeOutput = true })
	eng := h.mountBound("")

	h.host.emit("pty_1", "x\x1b]52;c;ZX")
	require.Eventually(t, func() bool { return len(eng.writeLog()) == 1 }, waitFor, tick)
	h.host.emit("pty_1", "ZpbA==\x07y")
	require.Eventually(t, func() bool { return len(eng.writeLog()) == 2 }, waitFor, tick)

	assert.Equal(t, []string{"x", "y"}, eng.writeLog())
}
