package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Package logger wraps a zap SugaredLogger behind package-level functions so
// handlers and services can log without threading a logger through every
// constructor. Call Init early during startup; before Init the functions use
// a no-op logger.

var (
	mu    sync.RWMutex
	sugar = zap.NewNop().Sugar()
	level = "info"
)

// Init configures the global logger. Level is case-insensitive: debug, info,
// warn, error. Unknown values fall back to info.
func Init(l string) {
	mu.Lock()
	defer mu.Unlock()

	cfg := zap.NewProductionConfig()
	switch l {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn", "warning":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		l = "info"
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	built, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return
	}
	sugar = built.Sugar()
	level = l
}

func get() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

func Debugf(format string, v ...interface{}) { get().Debugf(format, v...) }
func Infof(format string, v ...interface{})  { get().Infof(format, v...) }
func Warnf(format string, v ...interface{})  { get().Warnf(format, v...) }
func Errorf(format string, v ...interface{}) { get().Errorf(format, v...) }
func Fatalf(format string, v ...interface{}) { get().Fatalf(format, v...) }

// Single-string helpers kept for brief messages.
func Debug(v string) { get().Debug(v) }
func Info(v string)  { get().Info(v) }
func Warn(v string)  { get().Warn(v) }
func Error(v string) { get().Error(v) }

// LevelString returns the configured level as text.
func LevelString() string {
	mu.RLock()
	defer mu.RUnlock()
	return level
}

// Sync flushes buffered log entries. Safe to call on shutdown.
func Sync() { _ = get().Sync() }
