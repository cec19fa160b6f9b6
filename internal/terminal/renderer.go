package terminal

import (
	"fmt"

	"go.uber.org/zap"
)

// rendererChain walks gpu -> canvas -> default. Every attempt is isolated:
// a slower working renderer beats a crashed terminal, so failures are
// logged and never propagated.
type rendererChain struct {
	m       *mount
	state   RendererState
	current Renderer
}

func newRendererChain(m *mount) *rendererChain {
	return &rendererChain{m: m}
}

// attach starts the chain at the preferred backend.
func (r *rendererChain) attach(preference string) {
	switch preference {
	case "canvas":
		r.loadCanvas()
	case "default":
		r.useDefault()
	default:
		r.loadGPU()
	}
}

func (r *rendererChain) loadGPU() {
	rend, err := r.tryLoad(RendererGPU)
	if err != nil {
		r.m.logger.Debug("GPU renderer unavailable, falling back to canvas", zap.Error(err))
		r.m.c.metrics.RecordRendererFallback("gpu", "load_failed")
		r.loadCanvas()
		return
	}

	r.current = rend
	r.setState(RendererGPU)
	rend.OnContextLoss(func() {
		r.m.post(func() { r.contextLost(rend) })
	})
}

// contextLost replaces a GPU renderer that lost its context. The lost
// renderer is disposed before canvas loads so two GPU contexts are never
// held at once. Repeated or stale loss events are ignored.
func (r *rendererChain) contextLost(lost Renderer) {
	if r.state != RendererGPU || r.current != lost {
		return
	}
	r.m.logger.Info("GPU renderer lost its context, falling back to canvas")
	r.m.c.metrics.RecordRendererFallback("gpu", "context_lost")

	r.disposeCurrent()
	r.loadCanvas()
}

func (r *rendererChain) loadCanvas() {
	rend, err := r.tryLoad(RendererCanvas)
	if err != nil {
		r.m.logger.Debug("Canvas renderer unavailable, using engine default", zap.Error(err))
		r.m.c.metrics.RecordRendererFallback("canvas", "load_failed")
		r.useDefault()
		return
	}
	r.current = rend
	r.setState(RendererCanvas)
}

func (r *rendererChain) useDefault() {
	r.current = nil
	r.setState(RendererDefault)
}

// tryLoad loads one backend, converting panics into errors and disposing
// anything half-loaded.
func (r *rendererChain) tryLoad(kind RendererState) (rend Renderer, err error) {
	defer func() {
		if p := recover(); p != nil {
			rend = nil
			err = fmt.Errorf("%s renderer panicked: %v", kind, p)
		}
	}()

	rend, err = r.m.engine.LoadRenderer(kind)
	if err != nil {
		if rend != nil {
			r.disposeRenderer(rend)
		}
		return nil, fmt.Errorf("load %s renderer: %w", kind, err)
	}
	if rend == nil {
		return nil, fmt.Errorf("load %s renderer: engine returned no renderer", kind)
	}
	return rend, nil
}

func (r *rendererChain) setState(s RendererState) {
	r.state = s
	r.m.rendererState.Store(int32(s))
	r.m.c.metrics.RecordRenderer(s.String())
}

func (r *rendererChain) disposeCurrent() {
	if r.current == nil {
		return
	}
	rend := r.current
	r.current = nil
	r.disposeRenderer(rend)
}

func (r *rendererChain) disposeRenderer(rend Renderer) {
	defer func() {
		if p := recover(); p != nil {
			r.m.logger.Debug("Renderer dispose panicked", zap.Any("panic", p))
		}
	}()
	if err := rend.Dispose(); err != nil {
		r.m.logger.Debug("Renderer dispose failed", zap.Error(err))
	}
}

// dispose releases the active renderer. The published state is kept: it
// never regresses to none once a renderer has attached.
func (r *rendererChain) dispose() error {
	r.disposeCurrent()
	return nil
}
