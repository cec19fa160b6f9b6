package terminal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type resizeCall struct {
	id         string
	rows, cols int
}

// fakeHost is an in-memory ProcessHost.
type fakeHost struct {
	mu          sync.Mutex
	createCalls []CreateOptions
	createErr   error
	createGate  chan struct{}
	writes      map[string][][]byte
	resizes     []resizeCall
	closeCalls  int
	active      bool
	activeErr   error
	activeCalls int
	listeners   map[int]OutputHandler
	nextID      int
	sessions    int
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		active:    true,
		writes:    make(map[string][][]byte),
		listeners: make(map[int]OutputHandler),
	}
}

func (h *fakeHost) CreateSession(ctx context.Context, opts CreateOptions) (SessionHandle, error) {
	h.mu.Lock()
	h.createCalls = append(h.createCalls, opts)
	gate := h.createGate
	err := h.createErr
	h.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return SessionHandle{}, ctx.Err()
		}
	}
	if err != nil {
		return SessionHandle{}, err
	}

	h.mu.Lock()
	h.sessions++
	id := fmt.Sprintf("pty_%d", h.sessions)
	h.mu.Unlock()
	return SessionHandle{ID: id, CreatedAt: time.Now()}, nil
}

func (h *fakeHost) WriteSession(_ context.Context, id string, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.writes[id] = append(h.writes[id], append([]byte(nil), data...))
	return nil
}

func (h *fakeHost) ResizeSession(_ context.Context, id string, rows, cols int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.resizes = append(h.resizes, resizeCall{id: id, rows: rows, cols: cols})
	return nil
}

func (h *fakeHost) CloseSession(_ context.Context, _ string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closeCalls++
	return nil
}

func (h *fakeHost) IsSessionActive(_ context.Context, _ string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.activeCalls++
	return h.active, h.activeErr
}

func (h *fakeHost) OnSessionOutput(fn OutputHandler) Subscription {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = fn
	h.mu.Unlock()
	return SubscriptionFunc(func() {
		h.mu.Lock()
		delete(h.listeners, id)
		h.mu.Unlock()
	})
}

func (h *fakeHost) emit(id, data string) {
	h.mu.Lock()
	fns := make([]OutputHandler, 0, len(h.listeners))
	for _, fn := range h.listeners {
		fns = append(fns, fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn(id, []byte(data))
	}
}

func (h *fakeHost) listenerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}

func (h *fakeHost) creates() []CreateOptions {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]CreateOptions(nil), h.createCalls...)
}

func (h *fakeHost) resizeCalls() []resizeCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]resizeCall(nil), h.resizes...)
}

func (h *fakeHost) writesFor(id string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.writes[id]))
	for _, w := range h.writes[id] {
		out = append(out, string(w))
	}
	return out
}

func (h *fakeHost) livenessCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.activeCalls
}

func (h *fakeHost) setActive(active bool, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.active = active
	h.activeErr = err
}

// fakeRenderer records disposal and lets tests trigger context loss.
type fakeRenderer struct {
	kind     RendererState
	mu       sync.Mutex
	disposed int
	lossFn   func()
}

func (r *fakeRenderer) OnContextLoss(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lossFn = fn
}

func (r *fakeRenderer) Dispose() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disposed++
	return nil
}

func (r *fakeRenderer) loseContext() {
	r.mu.Lock()
	fn := r.lossFn
	r.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (r *fakeRenderer) disposeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disposed
}

// fakeFactory builds fakeEngines. Failure knobs are copied into each engine.
type fakeFactory struct {
	registers atomic.Int32

	mu        sync.Mutex
	engines   []*fakeEngine
	gpuErr    error
	gpuPanic  bool
	canvasErr error
	fontsGate chan struct{}
}

func (f *fakeFactory) Register() error {
	f.registers.Add(1)
	return nil
}

func (f *fakeFactory) NewEngine(opts EngineOptions) (Engine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := &fakeEngine{
		opts:      opts,
		rows:      24,
		cols:      80,
		gpuErr:    f.gpuErr,
		gpuPanic:  f.gpuPanic,
		canvasErr: f.canvasErr,
		fontsGate: f.fontsGate,
		loads:     make(map[RendererState]int),
		dataFns:   make(map[int]func([]byte)),
		resizeFns: make(map[int]func(int, int)),
	}
	f.engines = append(f.engines, e)
	return e, nil
}

func (f *fakeFactory) engineCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.engines)
}

func (f *fakeFactory) engine(i int) *fakeEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.engines[i]
}

func (f *fakeFactory) last() *fakeEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.engines) == 0 {
		return nil
	}
	return f.engines[len(f.engines)-1]
}

// fakeEngine records every call and counts those made after Dispose.
type fakeEngine struct {
	mu        sync.Mutex
	opts      EngineOptions
	surface   Surface
	rows      int
	cols      int
	writes    []string
	fits      int
	fitTimes  []time.Time
	options   []EngineOptions
	disposed  int
	afterDone int

	gpuErr    error
	gpuPanic  bool
	canvasErr error
	fontsGate chan struct{}
	loads     map[RendererState]int
	renderers []*fakeRenderer

	dataFns   map[int]func([]byte)
	resizeFns map[int]func(int, int)
	nextFn    int
}

func (e *fakeEngine) Open(s Surface) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.surface = s
	return nil
}

func (e *fakeEngine) FontsReady(ctx context.Context) error {
	if e.fontsGate == nil {
		return nil
	}
	select {
	case <-e.fontsGate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *fakeEngine) Fit() (int, int, bool) {
	e.mu.Lock()
	e.noteAfterDispose()
	e.fits++
	e.fitTimes = append(e.fitTimes, time.Now())
	w, h := e.surface.Dimensions()
	if w <= 0 || h <= 0 {
		e.mu.Unlock()
		return 0, 0, false
	}
	changed := h != e.rows || w != e.cols
	e.rows, e.cols = h, w
	var fns []func(int, int)
	if changed {
		for _, fn := range e.resizeFns {
			fns = append(fns, fn)
		}
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(h, w)
	}
	return h, w, true
}

func (e *fakeEngine) Size() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rows, e.cols
}

func (e *fakeEngine) Write(data []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.noteAfterDispose()
	e.writes = append(e.writes, string(data))
}

func (e *fakeEngine) LoadRenderer(kind RendererState) (Renderer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.noteAfterDispose()
	e.loads[kind]++
	switch kind {
	case RendererGPU:
		if e.gpuPanic {
			panic("gpu context creation crashed")
		}
		if e.gpuErr != nil {
			return nil, e.gpuErr
		}
	case RendererCanvas:
		if e.canvasErr != nil {
			return nil, e.canvasErr
		}
	}
	r := &fakeRenderer{kind: kind}
	e.renderers = append(e.renderers, r)
	return r, nil
}

func (e *fakeEngine) SetOptions(opts EngineOptions) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.noteAfterDispose()
	e.options = append(e.options, opts)
}

func (e *fakeEngine) OnData(fn func([]byte)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextFn
	e.nextFn++
	e.dataFns[id] = fn
	return func() {
		e.mu.Lock()
		delete(e.dataFns, id)
		e.mu.Unlock()
	}
}

func (e *fakeEngine) OnResize(fn func(int, int)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextFn
	e.nextFn++
	e.resizeFns[id] = fn
	return func() {
		e.mu.Lock()
		delete(e.resizeFns, id)
		e.mu.Unlock()
	}
}

func (e *fakeEngine) Dispose() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disposed++
	return nil
}

func (e *fakeEngine) noteAfterDispose() {
	if e.disposed > 0 {
		e.afterDone++
	}
}

func (e *fakeEngine) typeKeys(data string) {
	e.mu.Lock()
	fns := make([]func([]byte), 0, len(e.dataFns))
	for _, fn := range e.dataFns {
		fns = append(fns, fn)
	}
	e.mu.Unlock()
	for _, fn := range fns {
		fn([]byte(data))
	}
}

func (e *fakeEngine) writeLog() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.writes...)
}

func (e *fakeEngine) fitCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fits
}

func (e *fakeEngine) lastFit() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.fitTimes) == 0 {
		return time.Time{}
	}
	return e.fitTimes[len(e.fitTimes)-1]
}

func (e *fakeEngine) loadCount(kind RendererState) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loads[kind]
}

func (e *fakeEngine) loadedRenderers() []*fakeRenderer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*fakeRenderer(nil), e.renderers...)
}

func (e *fakeEngine) disposeCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disposed
}

func (e *fakeEngine) callsAfterDispose() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.afterDone
}

func (e *fakeEngine) optionLog() []EngineOptions {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]EngineOptions(nil), e.options...)
}

func (e *fakeEngine) listenerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.dataFns) + len(e.resizeFns)
}

// fakeSurface reports settable dimensions in cells.
type fakeSurface struct {
	mu     sync.Mutex
	w, h   int
	fns    map[int]func()
	nextFn int
}

func newFakeSurface(w, h int) *fakeSurface {
	return &fakeSurface{w: w, h: h, fns: make(map[int]func())}
}

func (s *fakeSurface) Dimensions() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w, s.h
}

func (s *fakeSurface) OnResize(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextFn
	s.nextFn++
	s.fns[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.fns, id)
		s.mu.Unlock()
	}
}

func (s *fakeSurface) resize(w, h int) {
	s.mu.Lock()
	s.w, s.h = w, h
	s.mu.Unlock()
	s.trigger()
}

func (s *fakeSurface) trigger() {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.fns))
	for _, fn := range s.fns {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (s *fakeSurface) listenerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fns)
}

var errGPUUnavailable = errors.New("no gpu adapter")

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func testTimings() Timings {
	return Timings{
		QuietPeriod:           200 * time.Millisecond,
		ResizeDelay:           30 * time.Millisecond,
		ReconnectWindow:       150 * time.Millisecond,
		HealthInterval:        time.Hour,
		HealthInitialDelay:    time.Hour,
		LivenessTimeout:       time.Second,
		CreateTimeout:         time.Second,
		DimensionPollInterval: 2 * time.Millisecond,
		MaxDimensionPolls:     50,
	}
}

type harness struct {
	t        *testing.T
	host     *fakeHost
	factory  *fakeFactory
	surface  *fakeSurface
	settings *LiveSettings
	ctrl     *Controller

	mu      sync.Mutex
	created []string
	ended   atomic.Int32
}

func newHarness(t *testing.T, timings Timings) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		host:     newFakeHost(),
		factory:  &fakeFactory{},
		surface:  newFakeSurface(100, 30),
		settings: NewLiveSettings(Settings{FontSize: 14, CursorBlink: true, Renderer: "auto", Shell: "/bin/sh", Cwd: "/tmp"}),
	}
	h.ctrl = NewController(Config{
		Host:     h.host,
		Engines:  h.factory,
		Settings: h.settings,
		Timings:  timings,
		Logger:   zap.NewNop(),
	})
	h.ctrl.SetCallbacks(Callbacks{
		OnSessionCreated: func(id string) {
			h.mu.Lock()
			h.created = append(h.created, id)
			h.mu.Unlock()
		},
		OnSessionEnded: func() { h.ended.Add(1) },
	})
	t.Cleanup(h.ctrl.Close)
	return h
}

func (h *harness) createdIDs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.created...)
}

// mountBound mounts and waits until the I/O bridge is attached.
func (h *harness) mountBound(existingID string) *fakeEngine {
	h.t.Helper()
	require.NoError(h.t, h.ctrl.Mount(existingID, h.surface))
	require.Eventually(h.t, func() bool {
		s := h.ctrl.Snapshot()
		return s.SessionID != "" && s.Subscriptions == 1
	}, waitFor, tick)
	return h.factory.last()
}

func (h *harness) unmount() {
	h.t.Helper()
	select {
	case <-h.ctrl.Unmount():
	case <-time.After(waitFor):
		h.t.Fatal("teardown did not complete")
	}
}
