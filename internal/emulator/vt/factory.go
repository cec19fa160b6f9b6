package vt

import (
	"io"
	"os"
	"sync/atomic"

	"github.com/mattn/go-runewidth"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/GriffinCanCode/termdeck/internal/terminal"
)

// FactoryConfig configures a Factory.
type FactoryConfig struct {
	// Out receives rendered frames, usually os.Stdout.
	Out io.Writer
	// TTY reports whether Out is a terminal. The damage-tracking renderer
	// needs one.
	TTY bool
	// EastAsian treats ambiguous-width runes as wide. Nil detects it from
	// the locale.
	EastAsian *bool
	// StatusLine reserves the bottom row for a status bar showing Status.
	StatusLine bool
	Status     string
	Logger     *zap.Logger
}

// Factory builds midterm-backed engines.
type Factory struct {
	cfg        FactoryConfig
	logger     *zap.Logger
	registered atomic.Int32
}

var _ terminal.EngineFactory = (*Factory)(nil)

// NewFactory creates a factory.
func NewFactory(cfg FactoryConfig) *Factory {
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{cfg: cfg, logger: logger.Named("vt")}
}

// NewStdoutFactory creates a factory drawing to stdout with status as the
// status line.
func NewStdoutFactory(status string, logger *zap.Logger) *Factory {
	return NewFactory(FactoryConfig{
		Out:        os.Stdout,
		TTY:        term.IsTerminal(int(os.Stdout.Fd())),
		StatusLine: status != "",
		Status:     status,
		Logger:     logger,
	})
}

// Register installs the process-wide rune width tables. The controller
// calls it once per factory.
func (f *Factory) Register() error {
	eastAsian := runewidth.IsEastAsian()
	if f.cfg.EastAsian != nil {
		eastAsian = *f.cfg.EastAsian
	}
	runewidth.DefaultCondition.EastAsianWidth = eastAsian
	runewidth.DefaultCondition.CreateLUT()
	f.registered.Add(1)
	f.logger.Debug("Registered rune width tables", zap.Bool("east_asian", eastAsian))
	return nil
}

// Registrations reports how many times Register ran.
func (f *Factory) Registrations() int {
	return int(f.registered.Load())
}

// NewEngine creates an unopened engine.
func (f *Factory) NewEngine(opts terminal.EngineOptions) (terminal.Engine, error) {
	return newEngine(f.cfg, f.logger, opts), nil
}
