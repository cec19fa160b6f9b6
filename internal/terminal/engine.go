package terminal

import (
	"context"
	"sync"
)

// RendererState is the backend currently drawing the character grid.
type RendererState int32

const (
	RendererNone RendererState = iota
	RendererGPU
	RendererCanvas
	RendererDefault
)

// String returns the string representation of the renderer state
func (s RendererState) String() string {
	switch s {
	case RendererNone:
		return "none"
	case RendererGPU:
		return "gpu"
	case RendererCanvas:
		return "canvas"
	case RendererDefault:
		return "default"
	default:
		return "unknown"
	}
}

// Renderer is an accelerated drawing backend loaded into an Engine.
type Renderer interface {
	// OnContextLoss registers fn to run when the backend loses its
	// drawing context. fn may be called from any goroutine.
	OnContextLoss(fn func())
	Dispose() error
}

// EngineOptions are the live display options pushed into an Engine.
type EngineOptions struct {
	FontSize    int
	CursorBlink bool
}

// Engine is a terminal-emulation engine instance. It owns the character
// grid, cursor and scrollback. Engines are created fresh for every mount.
//
// Write follows the io.Writer contract: data must not be retained after
// Write returns. Callbacks registered with OnData and OnResize may be
// invoked from any goroutine.
type Engine interface {
	Open(surface Surface) error
	FontsReady(ctx context.Context) error
	// Fit recomputes the grid from the surface. ok is false when the
	// surface has no usable dimensions. A changed grid fires OnResize.
	Fit() (rows, cols int, ok bool)
	Size() (rows, cols int)
	Write(data []byte)
	LoadRenderer(kind RendererState) (Renderer, error)
	SetOptions(opts EngineOptions)
	OnData(fn func(data []byte)) (dispose func())
	OnResize(fn func(rows, cols int)) (dispose func())
	Dispose() error
}

// EngineFactory builds engines. Register installs process-wide engine
// capabilities and runs at most once per factory value, so factories must
// be comparable (typically pointers).
type EngineFactory interface {
	Register() error
	NewEngine(opts EngineOptions) (Engine, error)
}

// Surface is the display area an engine is opened into.
type Surface interface {
	// Dimensions reports the laid-out size in cells. Zero until layout.
	Dimensions() (width, height int)
	// OnResize registers fn for container-resize signals.
	OnResize(fn func()) (dispose func())
}

type registration struct {
	once sync.Once
	err  error
}

var registrations sync.Map // EngineFactory -> *registration

// registerEngine runs f.Register once per process for each factory.
func registerEngine(f EngineFactory) error {
	v, _ := registrations.LoadOrStore(f, &registration{})
	r := v.(*registration)
	r.once.Do(func() {
		r.err = f.Register()
	})
	return r.err
}
