package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/termdeck/internal/display"
	"github.com/GriffinCanCode/termdeck/internal/emulator/vt"
	"github.com/GriffinCanCode/termdeck/internal/infrastructure/config"
	"github.com/GriffinCanCode/termdeck/internal/slots"
	"github.com/GriffinCanCode/termdeck/internal/terminal"
)

const (
	connectTimeout = 5 * time.Second
	unmountTimeout = 2 * time.Second
	defaultSlot    = "main"
)

func newAttachCmd(e *env) *cobra.Command {
	var fresh bool
	cmd := &cobra.Command{
		Use:   "attach [slot]",
		Short: "Attach this terminal to a slot's session, creating one if needed",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			slot := defaultSlot
			if len(args) == 1 {
				slot = args[0]
			}
			return e.attach(cmd.Context(), slot, fresh)
		},
	}
	cmd.Flags().BoolVar(&fresh, "new", false, "start a new session even if the slot has one")
	return cmd
}

func (e *env) attach(ctx context.Context, slot string, fresh bool) error {
	logger := e.log().Named("attach").With(zap.String("slot", slot))

	store, err := e.store()
	if err != nil {
		return err
	}
	existing, _, err := store.Get(slot)
	if err != nil {
		return err
	}

	client := e.client()
	client.Start()
	defer client.Close()

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	err = client.WaitConnected(connectCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("connect to %s: %w", e.addr, err)
	}

	if existing != "" && !fresh {
		checkCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		active, err := client.IsSessionActive(checkCtx, existing)
		cancel()
		if err != nil || !active {
			logger.Info("Stored session is gone, starting a new one", zap.String("session_id", existing))
			existing = ""
		}
	}
	if fresh {
		existing = ""
	}

	tty, err := display.Open(os.Stdin, os.Stdout, logger)
	if err != nil {
		return fmt.Errorf("open display: %w", err)
	}
	defer tty.Close()

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	base := e.cfg.Settings()
	live := terminal.NewLiveSettings(base)
	if path := e.settingsPath(); path != "" {
		if err := config.WatchSettings(ctx, path, base, live, logger); err != nil {
			logger.Warn("Settings file not applied", zap.String("path", path), zap.Error(err))
		}
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(signals)

	s := &attachSession{
		slot:     slot,
		existing: existing,
		host:     client,
		engines:  vt.NewStdoutFactory(fmt.Sprintf(" termdeck [%s]  Ctrl-] detach ", slot), logger),
		store:    store,
		settings: live,
		timings:  e.cfg.Terminal.Timings(),
		signals:  signals,
		logger:   logger,
	}
	result, err := s.run(ctx, tty)
	if err != nil {
		return err
	}
	_ = tty.Close()

	sessionID := result.sessionID
	if result.ended {
		fmt.Fprintf(os.Stdout, "[session %s ended, slot %q released]\r\n", sessionID, slot)
		return nil
	}
	if sessionID != "" {
		fmt.Fprintf(os.Stdout, "[detached from %s, slot %q]\r\n", sessionID, slot)
	}
	return nil
}

// attachSurface is the display an attach session mounts into.
type attachSurface interface {
	terminal.Surface
	OnWindowResize(fn func()) (dispose func())
	Detached() <-chan struct{}
}

type attachSession struct {
	slot     string
	existing string
	host     terminal.ProcessHost
	engines  terminal.EngineFactory
	store    *slots.Store
	settings *terminal.LiveSettings
	timings  terminal.Timings
	signals  <-chan os.Signal
	logger   *zap.Logger
}

type attachResult struct {
	sessionID string
	ended     bool
}

// run mounts the slot's session and blocks until the user detaches, the
// session ends, a signal arrives or ctx is done. An ended session
// releases its slot.
func (s *attachSession) run(ctx context.Context, surface attachSurface) (attachResult, error) {
	ctrl := terminal.NewController(terminal.Config{
		Host:     s.host,
		Engines:  s.engines,
		Settings: s.settings,
		Timings:  s.timings,
		Logger:   s.logger,
	})
	defer ctrl.Close()

	ended := make(chan struct{})
	var endedOnce sync.Once
	ctrl.SetCallbacks(terminal.Callbacks{
		OnSessionCreated: func(id string) {
			if err := s.store.Set(s.slot, id); err != nil {
				s.logger.Warn("Failed to save slot", zap.String("session_id", id), zap.Error(err))
			}
		},
		OnSessionEnded: func() {
			endedOnce.Do(func() { close(ended) })
		},
	})

	disposeWinch := surface.OnWindowResize(ctrl.NotifyWindowResize)
	defer disposeWinch()

	if err := ctrl.Mount(s.existing, surface); err != nil {
		return attachResult{}, err
	}

	var result attachResult
	select {
	case <-surface.Detached():
	case <-ended:
		result.ended = true
	case <-s.signals:
	case <-ctx.Done():
	}
	if !result.ended {
		select {
		case <-ended:
			result.ended = true
		default:
		}
	}

	result.sessionID, _ = ctrl.SessionID()
	if result.ended {
		if err := s.store.Delete(s.slot); err != nil {
			s.logger.Warn("Failed to clear slot", zap.Error(err))
		}
	}

	select {
	case <-ctrl.Unmount():
	case <-time.After(unmountTimeout):
		s.logger.Warn("Unmount did not finish in time")
	}
	return result, nil
}
