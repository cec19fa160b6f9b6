// Package display provides the text-terminal surface the controller
// mounts into.
package display

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/GriffinCanCode/termdeck/internal/terminal"
)

// DetachKey is Ctrl-].
const DetachKey = 0x1d

// ErrNotTerminal is returned when stdin or stdout is not a terminal.
var ErrNotTerminal = errors.New("not a terminal")

// SizeFunc reports the terminal size in cells.
type SizeFunc func() (width, height int, err error)

// TTY is a terminal.Surface over the controlling terminal. Keystrokes are
// read from the input in raw mode; Ctrl-] detaches instead of being sent.
type TTY struct {
	in     io.Reader
	size   SizeFunc
	logger *zap.Logger

	mu        sync.Mutex
	width     int
	height    int
	nextKey   int
	keyFns    map[int]func([]byte)
	resizeFns map[int]func()
	windowFns map[int]func()

	detach     chan struct{}
	detachOnce sync.Once
	done       chan struct{}
	closeOnce  sync.Once
	restore    func() error
	winch      chan os.Signal
}

var _ terminal.Surface = (*TTY)(nil)

// Open puts the terminal in raw mode and starts reading keystrokes.
func Open(in, out *os.File, logger *zap.Logger) (*TTY, error) {
	inFd, outFd := int(in.Fd()), int(out.Fd())
	if !term.IsTerminal(inFd) || !term.IsTerminal(outFd) {
		return nil, ErrNotTerminal
	}
	state, err := term.MakeRaw(inFd)
	if err != nil {
		return nil, fmt.Errorf("enter raw mode: %w", err)
	}

	t := newTTY(in, func() (int, int, error) { return term.GetSize(outFd) }, logger)
	t.restore = func() error { return term.Restore(inFd, state) }

	t.winch = make(chan os.Signal, 1)
	signal.Notify(t.winch, syscall.SIGWINCH)
	go t.watchWindow()
	go t.readInput()
	return t, nil
}

// NewStream creates a surface over a plain reader. It leaves terminal
// modes alone and does not watch SIGWINCH.
func NewStream(in io.Reader, size SizeFunc, logger *zap.Logger) *TTY {
	t := newTTY(in, size, logger)
	go t.readInput()
	return t
}

func newTTY(in io.Reader, size SizeFunc, logger *zap.Logger) *TTY {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &TTY{
		in:        in,
		size:      size,
		logger:    logger,
		keyFns:    make(map[int]func([]byte)),
		resizeFns: make(map[int]func()),
		windowFns: make(map[int]func()),
		detach:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	t.refreshSize()
	return t
}

// Dimensions returns the terminal size in cells.
func (t *TTY) Dimensions() (width, height int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.width, t.height
}

// OnResize registers fn for container resizes. The whole terminal is the
// container, so these fire together with window resizes.
func (t *TTY) OnResize(fn func()) (dispose func()) {
	return t.register(t.resizeFns, fn)
}

// OnWindowResize registers fn for SIGWINCH.
func (t *TTY) OnWindowResize(fn func()) (dispose func()) {
	return t.register(t.windowFns, fn)
}

// OnKeys registers fn for keystrokes.
func (t *TTY) OnKeys(fn func(data []byte)) (dispose func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := t.nextKey
	t.nextKey++
	t.keyFns[key] = fn
	return func() {
		t.mu.Lock()
		delete(t.keyFns, key)
		t.mu.Unlock()
	}
}

func (t *TTY) register(set map[int]func(), fn func()) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := t.nextKey
	t.nextKey++
	set[key] = fn
	return func() {
		t.mu.Lock()
		delete(set, key)
		t.mu.Unlock()
	}
}

// Detached is closed when the user presses the detach key or input ends.
func (t *TTY) Detached() <-chan struct{} {
	return t.detach
}

// Close restores the terminal mode. It is idempotent.
func (t *TTY) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		if t.winch != nil {
			signal.Stop(t.winch)
		}
		if t.restore != nil {
			err = t.restore()
		}
	})
	return err
}

func (t *TTY) refreshSize() {
	w, h, err := t.size()
	if err != nil {
		t.logger.Debug("Failed to read terminal size", zap.Error(err))
		return
	}
	t.mu.Lock()
	t.width, t.height = w, h
	t.mu.Unlock()
}

func (t *TTY) watchWindow() {
	for {
		select {
		case <-t.winch:
			t.windowChanged()
		case <-t.done:
			return
		}
	}
}

// windowChanged refreshes the size and notifies listeners.
func (t *TTY) windowChanged() {
	t.refreshSize()
	t.mu.Lock()
	fns := make([]func(), 0, len(t.windowFns)+len(t.resizeFns))
	for _, fn := range t.windowFns {
		fns = append(fns, fn)
	}
	for _, fn := range t.resizeFns {
		fns = append(fns, fn)
	}
	t.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// readInput forwards keystrokes until the detach key, EOF or Close. A
// read blocked in the kernel returns with the next keystroke after Close.
func (t *TTY) readInput() {
	buf := make([]byte, 4096)
	for {
		n, err := t.in.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if i := bytes.IndexByte(chunk, DetachKey); i >= 0 {
				t.deliver(chunk[:i])
				t.signalDetach()
				return
			}
			t.deliver(chunk)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				t.logger.Debug("Terminal input failed", zap.Error(err))
			}
			t.signalDetach()
			return
		}
		select {
		case <-t.done:
			return
		default:
		}
	}
}

func (t *TTY) deliver(data []byte) {
	if len(data) == 0 {
		return
	}
	select {
	case <-t.done:
		return
	default:
	}
	cp := append([]byte(nil), data...)
	t.mu.Lock()
	fns := make([]func([]byte), 0, len(t.keyFns))
	for _, fn := range t.keyFns {
		fns = append(fns, fn)
	}
	t.mu.Unlock()
	for _, fn := range fns {
		fn(cp)
	}
}

func (t *TTY) signalDetach() {
	t.detachOnce.Do(func() { close(t.detach) })
}
