package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/goccy/go-yaml"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/termdeck/internal/terminal"
)

// SettingsFile is the optional YAML file of display settings. Absent keys
// leave the current value alone.
type SettingsFile struct {
	Shell          *string `yaml:"shell"`
	Cwd            *string `yaml:"cwd"`
	FontSize       *int    `yaml:"font_size"`
	CursorBlink    *bool   `yaml:"cursor_blink"`
	SanitizeOutput *bool   `yaml:"sanitize_output"`
	Renderer       *string `yaml:"renderer"`
}

// Apply overlays the file onto s.
func (f SettingsFile) Apply(s *terminal.Settings) {
	if f.Shell != nil {
		s.Shell = *f.Shell
	}
	if f.Cwd != nil {
		s.Cwd = *f.Cwd
	}
	if f.FontSize != nil {
		s.FontSize = *f.FontSize
	}
	if f.CursorBlink != nil {
		s.CursorBlink = *f.CursorBlink
	}
	if f.SanitizeOutput != nil {
		s.SanitizeOutput = *f.SanitizeOutput
	}
	if f.Renderer != nil {
		s.Renderer = *f.Renderer
	}
}

// ReadSettingsFile parses path. A missing file is empty.
func ReadSettingsFile(path string) (SettingsFile, error) {
	var f SettingsFile
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return f, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("parse settings %s: %w", path, err)
	}
	if f.FontSize != nil && *f.FontSize <= 0 {
		return f, fmt.Errorf("parse settings %s: font_size must be positive", path)
	}
	return f, nil
}

// WatchSettings applies path to live now and again on every change until
// ctx is done. Each reload starts from base so removed keys revert.
func WatchSettings(ctx context.Context, path string, base terminal.Settings, live *terminal.LiveSettings, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	reload := func() error {
		f, err := ReadSettingsFile(path)
		if err != nil {
			return err
		}
		s := base
		f.Apply(&s)
		if s != live.Load() {
			live.Store(s)
		}
		return nil
	}
	if err := reload(); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch settings: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		watcher.Close()
		return fmt.Errorf("watch settings: %w", err)
	}
	// Editors replace files by rename, so watch the directory.
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch settings: %w", err)
	}

	go func() {
		defer watcher.Close()
		target := filepath.Clean(path)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if err := reload(); err != nil {
					logger.Warn("Ignoring invalid settings file", zap.String("path", path), zap.Error(err))
					continue
				}
				logger.Debug("Settings reloaded", zap.String("path", path))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("Settings watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
