package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/spec-kit/office-hours/internal/config"
)

func TestNewLoggerLevels(t *testing.T) {
	app := config.AppConfig{Name: "office-hours-service", Env: "production", Version: "1.2.0"}

	logger, err := NewLogger(config.LoggerConfig{Level: "DEBUG"}, app)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = NewLogger(config.LoggerConfig{Level: "chatty", Encoding: "console"}, app)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
}
