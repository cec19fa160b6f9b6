package paths

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// AppName names the per-user directories.
const AppName = "termdeck"

const maxSlotNameLength = 64

// slotNamePattern allows alphanumeric, hyphens, underscores and dots
var slotNamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// StateDir returns $XDG_STATE_HOME/termdeck, falling back to
// ~/.local/state/termdeck.
func StateDir() (string, error) {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, AppName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve state dir: %w", err)
	}
	return filepath.Join(home, ".local", "state", AppName), nil
}

// ConfigDir returns the user config directory for termdeck.
func ConfigDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, AppName), nil
}

// SlotsFile returns the default slot store path.
func SlotsFile() (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "slots.toml"), nil
}

// SettingsFile returns the default live settings path.
func SettingsFile() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "settings.yaml"), nil
}

// LogFile returns the default client log path.
func LogFile() (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "client.log"), nil
}

// ValidateSlotName checks that a slot name is safe to store and display.
func ValidateSlotName(name string) error {
	if name == "" {
		return errors.New("slot name cannot be empty")
	}
	if len(name) > maxSlotNameLength {
		return fmt.Errorf("slot name longer than %d characters", maxSlotNameLength)
	}
	if !slotNamePattern.MatchString(name) {
		return fmt.Errorf("slot name %q may only contain letters, digits, '.', '-' and '_'", name)
	}
	return nil
}
