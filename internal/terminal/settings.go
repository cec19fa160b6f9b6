package terminal

import (
	"sync"
	"sync/atomic"
	"time"
)

// Settings is the live configuration surface. Values are read at use time,
// never snapshotted at mount.
type Settings struct {
	Shell          string
	Cwd            string
	FontSize       int
	CursorBlink    bool
	SanitizeOutput bool
	// Renderer is the preferred start of the renderer chain:
	// "auto" (gpu first), "canvas" or "default".
	Renderer string
}

// DefaultSettings returns the settings used when none are supplied.
func DefaultSettings() Settings {
	return Settings{
		FontSize:    14,
		CursorBlink: true,
		Renderer:    "auto",
	}
}

// LiveSettings is a mutable reference cell for Settings. Readers always
// see the latest stored value.
type LiveSettings struct {
	current atomic.Pointer[Settings]

	mu       sync.Mutex
	watchers map[int]func(Settings)
	nextID   int
}

// NewLiveSettings creates a cell holding s.
func NewLiveSettings(s Settings) *LiveSettings {
	l := &LiveSettings{watchers: make(map[int]func(Settings))}
	l.current.Store(&s)
	return l
}

// Load returns the current settings.
func (l *LiveSettings) Load() Settings {
	return *l.current.Load()
}

// Store replaces the settings and notifies watchers.
func (l *LiveSettings) Store(s Settings) {
	l.current.Store(&s)

	l.mu.Lock()
	fns := make([]func(Settings), 0, len(l.watchers))
	for _, fn := range l.watchers {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

// Update applies fn to a copy of the current settings and stores the result.
func (l *LiveSettings) Update(fn func(*Settings)) {
	s := l.Load()
	fn(&s)
	l.Store(s)
}

// Watch registers fn for every Store. The returned func removes it.
func (l *LiveSettings) Watch(fn func(Settings)) (cancel func()) {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.watchers[id] = fn
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.watchers, id)
			l.mu.Unlock()
		})
	}
}

// Timings holds every delay the controller schedules.
type Timings struct {
	// QuietPeriod is how long output must be silent before a resize fits.
	QuietPeriod time.Duration
	// ResizeDelay is the debounce used when there was no recent output.
	ResizeDelay time.Duration
	// ReconnectWindow is how long output is buffered after a reattach.
	ReconnectWindow time.Duration
	// HealthInterval is the liveness polling period.
	HealthInterval time.Duration
	// HealthInitialDelay is the delay before the first liveness check.
	HealthInitialDelay time.Duration
	// LivenessTimeout bounds a single liveness call.
	LivenessTimeout time.Duration
	// CreateTimeout bounds session creation.
	CreateTimeout time.Duration
	// DimensionPollInterval is the wait between surface layout checks.
	DimensionPollInterval time.Duration
	// MaxDimensionPolls caps the layout wait; the engine default size is used after.
	MaxDimensionPolls int
}

// DefaultTimings returns production timings.
func DefaultTimings() Timings {
	return Timings{
		QuietPeriod:           500 * time.Millisecond,
		ResizeDelay:           150 * time.Millisecond,
		ReconnectWindow:       100 * time.Millisecond,
		HealthInterval:        30 * time.Second,
		HealthInitialDelay:    time.Second,
		LivenessTimeout:       5 * time.Second,
		CreateTimeout:         15 * time.Second,
		DimensionPollInterval: 16 * time.Millisecond,
		MaxDimensionPolls:     300,
	}
}

// withDefaults fills zero fields from DefaultTimings.
func (t Timings) withDefaults() Timings {
	d := DefaultTimings()
	if t.QuietPeriod <= 0 {
		t.QuietPeriod = d.QuietPeriod
	}
	if t.ResizeDelay <= 0 {
		t.ResizeDelay = d.ResizeDelay
	}
	if t.ReconnectWindow <= 0 {
		t.ReconnectWindow = d.ReconnectWindow
	}
	if t.HealthInterval <= 0 {
		t.HealthInterval = d.HealthInterval
	}
	if t.HealthInitialDelay <= 0 {
		t.HealthInitialDelay = d.HealthInitialDelay
	}
	if t.LivenessTimeout <= 0 {
		t.LivenessTimeout = d.LivenessTimeout
	}
	if t.CreateTimeout <= 0 {
		t.CreateTimeout = d.CreateTimeout
	}
	if t.DimensionPollInterval <= 0 {
		t.DimensionPollInterval = d.DimensionPollInterval
	}
	if t.MaxDimensionPolls <= 0 {
		t.MaxDimensionPolls = d.MaxDimensionPolls
	}
	return t
}
