package logger

import (
	"fmt"
	"os"
	"regexp"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// level is shared by every Logger so the configured level applies to the
// package-level loggers created before config is loaded.
var level = zap.NewAtomicLevelAt(zap.InfoLevel)

var (
	emailRegex  = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	tokenRegex  = regexp.MustCompile(`eyJ[^\s]+`)
	userIDRegex = regexp.MustCompile(`\buser_id\s*=\s*[0-9a-fA-F-]+`)
)

// Logger is a centralized structured logger
type Logger struct {
	out *zap.Logger
}

// New creates a new Logger writing JSON lines to stdout
func New() *Logger {
	enc := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		MessageKey:     "message",
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.Lock(os.Stdout), level)
	return &Logger{out: zap.New(core)}
}

// NewNop returns a Logger that discards everything.
func NewNop() *Logger {
	return &Logger{out: zap.NewNop()}
}

func newWithCore(core zapcore.Core) *Logger {
	return &Logger{out: zap.New(core)}
}

// SetLevel changes the level of every Logger. Accepts debug, info, warn, error.
func SetLevel(l string) error {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(l)); err != nil {
		return fmt.Errorf("unknown log level: %s", l)
	}
	level.SetLevel(lvl)
	return nil
}

// Anonymize replaces sensitive information in logs (emails, tokens, IDs)
func Anonymize(s string) string {
	s = emailRegex.ReplaceAllString(s, "[REDACTED_EMAIL]")
	s = tokenRegex.ReplaceAllString(s, "[REDACTED_TOKEN]")
	s = userIDRegex.ReplaceAllString(s, "user_id=[USER_ID]")
	return s
}

func (l *Logger) log(module string, lvl zapcore.Level, msg string, err error) {
	ce := l.out.Check(lvl, Anonymize(msg))
	if ce == nil {
		return
	}
	fields := make([]zap.Field, 0, 2)
	if module != "" {
		fields = append(fields, zap.String("module", module))
	}
	if err != nil {
		fields = append(fields, zap.String("error", Anonymize(err.Error())))
	}
	ce.Write(fields...)
}

// --- Convenient methods ---
func (l *Logger) Info(module, msg string) {
	l.log(module, zapcore.InfoLevel, msg, nil)
}

func (l *Logger) Debug(module, msg string) {
	l.log(module, zapcore.DebugLevel, msg, nil)
}

func (l *Logger) Warn(module, msg string) {
	l.log(module, zapcore.WarnLevel, msg, nil)
}

func (l *Logger) Error(module, msg string, err error) {
	l.log(module, zapcore.ErrorLevel, msg, err)
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.out.Sync()
}
