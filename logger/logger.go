// Package logger carries the process logger. Services take an injected
// *Logger so tests can silence output with NewNop.
package logger

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps the zap sugared logger so services depend on a small surface
// that tests can silence.
type Logger struct {
	z *zap.SugaredLogger
}

// New builds a production logger at the given level ("debug", "info",
// "warn", "error").
func New(level string) (*Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing log level %q", level)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, errors.Wrap(err, "building logger")
	}
	return &Logger{z: z.Sugar()}, nil
}

// NewNop returns a logger that discards everything. Used in tests.
func NewNop() *Logger {
	return &Logger{z: zap.NewNop().Sugar()}
}

func (l *Logger) Printf(format string, args ...any) {
	l.z.Infof(format, args...)
}

func (l *Logger) Debugf(format string, args ...any) {
	l.z.Debugf(format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.z.Warnf(format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.z.Errorf(format, args...)
}

func (l *Logger) Close() {
	_ = l.z.Sync()
}
