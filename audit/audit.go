package audit

import (
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultPath is the audit file written next to the binary
const DefaultPath = "arbitrage-sepolia.log"

// Recorder accepts audit records
type Recorder interface {
	Record(message string)
	Recordf(format string, args ...interface{})
}

// Log is an append-only, timestamped record of every quote and action.
// Each line has the form "<ISO8601 timestamp> - <message>".
type Log struct {
	core   zapcore.Core
	close  func()
	mu     sync.Mutex
	logger *zap.Logger
	now    func() time.Time
}

// Open opens (or creates) the audit file at path in append mode and mirrors
// every record to console. console may be nil.
func Open(path string, console io.Writer, logger *zap.Logger) (*Log, error) {
	file, closeFile, err := zap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	sinks := []zapcore.WriteSyncer{file}
	if console != nil {
		sinks = append(sinks, zapcore.AddSync(console))
	}

	return &Log{
		core:   newCore(zapcore.NewMultiWriteSyncer(sinks...)),
		close:  closeFile,
		logger: logger,
		now:    time.Now,
	}, nil
}

// New builds an audit log on an arbitrary writer
func New(w io.Writer, logger *zap.Logger) *Log {
	return &Log{
		core:   newCore(zapcore.AddSync(w)),
		logger: logger,
		now:    time.Now,
	}
}

func newCore(ws zapcore.WriteSyncer) zapcore.Core {
	encoderCfg := zapcore.EncoderConfig{
		TimeKey:          "ts",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeTime:       encodeTime,
		ConsoleSeparator: " - ",
	}
	return zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), ws, zapcore.DebugLevel)
}

func encodeTime(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.UTC().Format("2006-01-02T15:04:05.000Z07:00"))
}

// Record appends message. Write failures are reported to the process logger
// and never returned.
func (l *Log) Record(message string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := zapcore.Entry{
		Level:   zapcore.InfoLevel,
		Time:    l.now(),
		Message: message,
	}
	if err := l.core.Write(entry, nil); err != nil && l.logger != nil {
		l.logger.Warn("Failed to write audit record", zap.Error(err), zap.String("message", message))
	}
}

// Recordf formats and appends a record
func (l *Log) Recordf(format string, args ...interface{}) {
	l.Record(fmt.Sprintf(format, args...))
}

// Close flushes and closes the audit file
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	// syncing a terminal can fail harmlessly
	_ = l.core.Sync()
	if l.close != nil {
		l.close()
		l.close = nil
	}
	return nil
}
