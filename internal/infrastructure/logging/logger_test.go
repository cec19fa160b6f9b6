package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		enabled zapcore.Level
		wantErr bool
	}{
		{name: "level defaults to info", cfg: Config{}, enabled: zapcore.InfoLevel},
		{name: "development", cfg: Config{Level: "debug", Development: true}, enabled: zapcore.DebugLevel},
		{name: "warn only", cfg: Config{Level: "warn"}, enabled: zapcore.WarnLevel},
		{name: "bad level", cfg: Config{Level: "loud"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.enabled))
			assert.False(t, logger.Core().Enabled(tt.enabled-1))
		})
	}
}

func TestFileEntriesCarryService(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "termdeck.log")
	logger, err := New(Config{Level: "info", Service: "termdeck-client", File: path})
	require.NoError(t, err)

	logger.Info("Display mounted", zap.String("session_id", "pty_1"))
	require.NoError(t, logger.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var entry map[string]any
	require.NoError(t, sonic.Unmarshal(data, &entry))
	assert.Equal(t, "termdeck-client", entry["service"])
	assert.Equal(t, "pty_1", entry["session_id"])
	assert.Equal(t, "Display mounted", entry["message"])
	assert.Equal(t, "info", entry["level"])
}

func TestNewClient(t *testing.T) {
	t.Run("no file discards", func(t *testing.T) {
		logger := NewClient(Config{Level: "debug"})
		assert.False(t, logger.Core().Enabled(zapcore.ErrorLevel))
	})

	t.Run("unopenable file discards", func(t *testing.T) {
		blocker := filepath.Join(t.TempDir(), "blocker")
		require.NoError(t, os.WriteFile(blocker, nil, 0o600))
		logger := NewClient(Config{File: filepath.Join(blocker, "termdeck.log")})
		assert.False(t, logger.Core().Enabled(zapcore.ErrorLevel))
	})

	t.Run("file logs", func(t *testing.T) {
		logger := NewClient(Config{File: filepath.Join(t.TempDir(), "termdeck.log")})
		assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
		assert.NoError(t, logger.Close())
		assert.NoError(t, logger.Close())
	})
}
