package logging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	LogFileName = "app.log"
	// MaxSizeMB is lumberjack's unit: megabytes, i.e. 10 MiB per file.
	MaxSizeMB  = 10
	MaxBackups = 5
)

type traceKey struct{}

// Loggers default to no-ops so packages can log before InitLogger runs.
var (
	AppLogger   = zap.NewNop()
	ErrorLogger = zap.NewNop()
	TimerLogger = zap.NewNop()
)

var (
	mu          sync.Mutex
	fileRotator *lumberjack.Logger
	console     zapcore.Core
)

// InitLogger attaches a rotating app.log in logDir next to a console core.
// The returned lumberjack handle exposes the rotation policy. When the file
// cannot be opened the loggers fall back to console only and the error is
// returned for the caller to report.
func InitLogger(logDir string, debug bool) (*lumberjack.Logger, error) {
	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderConfig)

	consoleConfig := zap.NewDevelopmentEncoderConfig()
	consoleConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	consoleCore := zapcore.NewCore(zapcore.NewConsoleEncoder(consoleConfig), zapcore.Lock(os.Stderr), level)

	mu.Lock()
	defer mu.Unlock()
	console = consoleCore

	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, LogFileName),
		MaxSize:    MaxSizeMB,
		MaxBackups: MaxBackups,
	}
	// lumberjack opens lazily; open now so a bad directory is reported at boot.
	if _, err := rotator.Write(nil); err != nil {
		fileRotator = nil
		setLoggers(consoleCore)
		return nil, fmt.Errorf("open log file %s: %w", rotator.Filename, err)
	}

	fileCore := zapcore.NewCore(encoder, zapcore.AddSync(rotator), level)
	fileRotator = rotator
	setLoggers(zapcore.NewTee(fileCore, consoleCore))
	return rotator, nil
}

// CloseLogger closes a file returned by InitLogger. If the loggers still
// write to it they drop back to console only, so the file is not reopened.
func CloseLogger(rotator *lumberjack.Logger) error {
	if rotator == nil {
		return nil
	}
	mu.Lock()
	if fileRotator == rotator {
		AppLogger.Sync()
		fileRotator = nil
		setLoggers(console)
	}
	mu.Unlock()
	return rotator.Close()
}

func setLoggers(core zapcore.Core) {
	AppLogger = zap.New(core, zap.AddCaller())
	ErrorLogger = zap.New(core, zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))
	TimerLogger = AppLogger.Named("timer")
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

// LogDuration lets you do: defer logging.LogDuration(ctx, "FuncName")()
func LogDuration(ctx context.Context, name string) func() {
	start := time.Now()
	traceID, _ := ctx.Value(traceKey{}).(string)

	return func() {
		fields := []zap.Field{
			zap.String("func", name),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		}
		if traceID != "" {
			fields = append(fields, zap.String("trace_id", traceID))
		}
		TimerLogger.Debug("Function timed", fields...)
	}
}
