package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	sugar = zap.NewNop().Sugar()

	level = zap.NewAtomicLevelAt(zap.InfoLevel)

	rotator *lumberjack.Logger
)

// InitLogging sets up console logging at levelName and, when logPath is set,
// a rotating JSON log file.
func InitLogging(levelName, logPath string) error {
	lvl, err := zapcore.ParseLevel(strings.ToLower(levelName))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", levelName, err)
	}

	level.SetLevel(lvl)

	consoleCfg := zap.NewDevelopmentEncoderConfig()
	consoleCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(os.Stderr), level),
	}

	if logPath != "" {
		err := os.MkdirAll(filepath.Dir(logPath), 0o755)
		if err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}

		rotator = &lumberjack.Logger{
			Filename:   logPath,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     7,
		}

		fileCfg := zap.NewProductionEncoderConfig()
		fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder

		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), zapcore.AddSync(rotator), level))
	}

	sugar = zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()

	return nil
}

// Close flushes buffered entries and closes the log file if open.
func Close() {
	_ = sugar.Sync()

	if rotator != nil {
		rotator.Close()
	}
}

func Infof(format string, v ...interface{}) {
	sugar.Infof(format, v...)
}

// Errorf logs an error message.
func Errorf(format string, v ...interface{}) {
	sugar.Errorf(format, v...)
}

func Debugf(format string, v ...interface{}) {
	sugar.Debugf(format, v...)
}

func Warnf(format string, v ...interface{}) {
	sugar.Warnf(format, v...)
}
