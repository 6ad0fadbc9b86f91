package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestZerologLoggerMethods(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	l := NewZerologLogger("test")
	if l == nil {
		t.Fatalf("nil logger")
	}
	l.Debugf("debug %d", 1)
	l.Debugw("debug", map[string]any{"k": 1})
	l.Infof("info %s", "test")
	l.Warnf("warn")
	l.Errorf("error")
}

func TestLevelFromEnv(t *testing.T) {
	t.Setenv("TRACKER_LOG_LEVEL", "warn")
	assert.Equal(t, zerolog.WarnLevel, levelFromEnv())

	t.Setenv("TRACKER_LOG_LEVEL", "bogus")
	assert.Equal(t, zerolog.InfoLevel, levelFromEnv())

	t.Setenv("TRACKER_LOG_LEVEL", "")
	assert.Equal(t, zerolog.InfoLevel, levelFromEnv())
}
