package node

import (
	"io"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// lockedWriteSyncer adapts an io.Writer into a zapcore.WriteSyncer that
// takes an externally-owned mutex on every write. Node shares this mutex
// with its stdout writes so that a log line can never interleave with a
// partially-written envelope.
type lockedWriteSyncer struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriteSyncer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func (l *lockedWriteSyncer) Sync() error {
	return nil
}

// newLogger builds a zap.Logger that writes structured log lines to w
// (stderr in production), synchronized through mu.
func newLogger(w io.Writer, mu *sync.Mutex) *zap.Logger {
	enc := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	})
	sink := &lockedWriteSyncer{mu: mu, w: w}
	core := zapcore.NewCore(enc, sink, zapcore.DebugLevel)
	return zap.New(core)
}
