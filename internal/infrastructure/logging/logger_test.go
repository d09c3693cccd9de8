package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/GriffinCanCode/WindowArranger/backend/internal/infrastructure/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LogConfig
		wantErr bool
		level   zapcore.Level
	}{
		{"production", config.Default().Logging, false, zapcore.InfoLevel},
		{"development", config.LogConfig{Level: "debug", Development: true}, false, zapcore.DebugLevel},
		{"warn without output", config.LogConfig{Level: "warn"}, false, zapcore.WarnLevel},
		{"bad level", config.LogConfig{Level: "loud"}, true, zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.level))
			assert.False(t, logger.Core().Enabled(tt.level-1))
		})
	}
}

func TestComponentWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arranger.log")
	logger, err := New(config.LogConfig{Level: "info", Output: path})
	require.NoError(t, err)

	logger.Component("memory").Info("Snapshot saved")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var line map[string]interface{}
	require.NoError(t, sonic.Unmarshal(data, &line))
	assert.Equal(t, "memory", line["component"])
	assert.Equal(t, "Snapshot saved", line["message"])
	assert.Equal(t, "info", line["level"])
}

func TestNewNop(t *testing.T) {
	logger := NewNop()
	assert.False(t, logger.Core().Enabled(zapcore.ErrorLevel))
}
