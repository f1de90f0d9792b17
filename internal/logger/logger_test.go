package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestAnonymize(t *testing.T) {
	cases := []struct{ in, want string }{
		{"mail bob@example.com now", "mail [REDACTED_EMAIL] now"},
		{"token eyJhbGciOi.abc.def end", "token [REDACTED_TOKEN] end"},
		{"user_id=42 posted", "user_id=[USER_ID] posted"},
		{"user_id=5f1c2a3e-0d4b-11ef-9a1b-0242ac120002 ok", "user_id=[USER_ID] ok"},
		{"nothing sensitive", "nothing sensitive"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Anonymize(c.in), c.in)
	}
}

func TestLoggerWritesModuleAndError(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := newWithCore(core)

	l.Info("feed", "fan-out done for user_id=7")
	l.Error("store", "insert failed", errors.New("timeout talking to carol@example.com"))

	entries := logs.All()
	require.Len(t, entries, 2)

	assert.Equal(t, "fan-out done for user_id=[USER_ID]", entries[0].Message)
	assert.Equal(t, "feed", entries[0].ContextMap()["module"])

	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "timeout talking to [REDACTED_EMAIL]", entries[1].ContextMap()["error"])
}

func TestSetLevel(t *testing.T) {
	defer level.SetLevel(zapcore.InfoLevel)

	require.NoError(t, SetLevel("debug"))
	assert.Equal(t, zapcore.DebugLevel, level.Level())

	assert.Error(t, SetLevel("chatty"))
}

func TestNewNopDiscards(t *testing.T) {
	l := NewNop()
	assert.NotPanics(t, func() {
		l.Info("test", "dropped")
		l.Error("test", "dropped", errors.New("boom"))
	})
	assert.NoError(t, l.Sync())
}
