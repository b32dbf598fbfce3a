package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the process-wide logger. It is a no-op until Init is called so that
// packages and tests can log unconditionally.
var Log = zap.NewNop().Sugar()

// Init builds a production logger at the given level ("debug", "info", ...).
// An unknown level falls back to info.
func Init(level string) {
	cfg := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, buildErr := cfg.Build()
	if buildErr != nil {
		panic("failed to initialize zap logger: " + buildErr.Error())
	}
	Log = logger.Sugar()
	if err != nil {
		Log.Warnf("unknown log level %q, using info", level)
	}
}

// Sync flushes buffered log entries.
func Sync() {
	_ = Log.Sync()
}
