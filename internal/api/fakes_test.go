package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/GriffinCanCode/termdeck/internal/ptyhost"
	"github.com/GriffinCanCode/termdeck/internal/terminal"
)

type fakeHost struct {
	mu         sync.Mutex
	sessions   map[string]*ptyhost.SessionInfo
	scrollback map[string][]byte
	writes     []string
	resizes    []string
	outputs    map[int]terminal.OutputHandler
	exits      map[int]ptyhost.ExitHandler
	created    int
	subs       int
	createErr  error
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		sessions:   make(map[string]*ptyhost.SessionInfo),
		scrollback: make(map[string][]byte),
		outputs:    make(map[int]terminal.OutputHandler),
		exits:      make(map[int]ptyhost.ExitHandler),
	}
}

func (f *fakeHost) add(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[id] = &ptyhost.SessionInfo{ID: id, Shell: "/bin/sh", Rows: 24, Cols: 80, Active: true, StartedAt: time.Unix(0, 0).UTC()}
}

func (f *fakeHost) CreateSession(_ context.Context, opts terminal.CreateOptions) (terminal.SessionHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return terminal.SessionHandle{}, f.createErr
	}
	f.created++
	id := fmt.Sprintf("pty_%d", f.created)
	f.sessions[id] = &ptyhost.SessionInfo{ID: id, Shell: opts.Shell, Cwd: opts.Cwd, Rows: opts.Rows, Cols: opts.Cols, Active: true}
	return terminal.SessionHandle{ID: id, CreatedAt: time.Unix(100, 0).UTC()}, nil
}

func (f *fakeHost) get(id string) (*ptyhost.SessionInfo, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, ptyhost.ErrSessionNotFound
	}
	return s, nil
}

func (f *fakeHost) WriteSession(_ context.Context, id string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, err := f.get(id)
	if err != nil {
		return err
	}
	if !s.Active {
		return ptyhost.ErrSessionClosed
	}
	f.writes = append(f.writes, string(data))
	return nil
}

func (f *fakeHost) ResizeSession(_ context.Context, id string, rows, cols int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, err := f.get(id)
	if err != nil {
		return err
	}
	s.Rows, s.Cols = rows, cols
	f.resizes = append(f.resizes, id)
	return nil
}

func (f *fakeHost) CloseSession(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.get(id); err != nil {
		return err
	}
	delete(f.sessions, id)
	return nil
}

func (f *fakeHost) IsSessionActive(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	return ok && s.Active, nil
}

func (f *fakeHost) OnSessionOutput(fn terminal.OutputHandler) terminal.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := f.subs
	f.subs++
	f.outputs[key] = fn
	return terminal.SubscriptionFunc(func() {
		f.mu.Lock()
		delete(f.outputs, key)
		f.mu.Unlock()
	})
}

func (f *fakeHost) OnSessionExit(fn ptyhost.ExitHandler) terminal.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := f.subs
	f.subs++
	f.exits[key] = fn
	return terminal.SubscriptionFunc(func() {
		f.mu.Lock()
		delete(f.exits, key)
		f.mu.Unlock()
	})
}

func (f *fakeHost) emit(id string, data []byte) {
	f.mu.Lock()
	handlers := make([]terminal.OutputHandler, 0, len(f.outputs))
	for _, fn := range f.outputs {
		handlers = append(handlers, fn)
	}
	f.mu.Unlock()
	for _, fn := range handlers {
		fn(id, data)
	}
}

func (f *fakeHost) exit(id string, code int) {
	f.mu.Lock()
	handlers := make([]ptyhost.ExitHandler, 0, len(f.exits))
	for _, fn := range f.exits {
		handlers = append(handlers, fn)
	}
	f.mu.Unlock()
	for _, fn := range handlers {
		fn(id, code)
	}
}

func (f *fakeHost) listeners() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.outputs) + len(f.exits)
}

func (f *fakeHost) writeLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes...)
}

func (f *fakeHost) Scrollback(id string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.get(id); err != nil {
		return nil, err
	}
	return f.scrollback[id], nil
}

func (f *fakeHost) Info(_ context.Context, id string) (*ptyhost.SessionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, err := f.get(id)
	if err != nil {
		return nil, err
	}
	cp := *s
	return &cp, nil
}

func (f *fakeHost) List() []ptyhost.SessionInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ptyhost.SessionInfo, 0, len(f.sessions))
	for _, s := range f.sessions {
		out = append(out, *s)
	}
	return out
}
