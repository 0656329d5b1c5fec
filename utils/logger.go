package utils

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvLogDir moves the log files out of the working directory
const EnvLogDir = "DEXARB_LOG_DIR"

const (
	logFile      = "dexarb.log"
	errorLogFile = "dexarb-error.log"
)

var (
	log  *zap.Logger
	once sync.Once
)

// InitLogger builds the process logger on first use. The console gets a
// readable line per entry; dexarb.log keeps JSON for every entry and
// dexarb-error.log only warnings and above.
func InitLogger(debug bool) *zap.Logger {
	once.Do(func() {
		logger, err := newLogger(debug, os.Getenv(EnvLogDir), zapcore.Lock(os.Stdout))
		if err != nil {
			// the files are optional; keep logging to the console
			logger = zap.New(consoleCore(debug, zapcore.Lock(os.Stdout)), zap.AddCaller())
			logger.Warn("Log files unavailable", zap.Error(err))
		}
		log = logger
	})
	return log
}

func newLogger(debug bool, dir string, console zapcore.WriteSyncer) (*zap.Logger, error) {
	all, closeAll, err := zap.Open(filepath.Join(dir, logFile))
	if err != nil {
		return nil, err
	}
	errs, _, err := zap.Open(filepath.Join(dir, errorLogFile))
	if err != nil {
		closeAll()
		return nil, err
	}

	fileEncoder := zapcore.NewJSONEncoder(encoderConfig())
	core := zapcore.NewTee(
		consoleCore(debug, console),
		zapcore.NewCore(fileEncoder, all, level(debug)),
		zapcore.NewCore(fileEncoder, errs, zapcore.WarnLevel),
	)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

func consoleCore(debug bool, ws zapcore.WriteSyncer) zapcore.Core {
	cfg := encoderConfig()
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), ws, level(debug))
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.StacktraceKey = "stacktrace"
	return cfg
}

func level(debug bool) zapcore.Level {
	if debug {
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}

// GetLogger returns the process logger, building a non-debug one if needed
func GetLogger() *zap.Logger {
	return InitLogger(false)
}

// CleanupLogger flushes buffered entries
func CleanupLogger() {
	if log != nil {
		_ = log.Sync()
	}
}
