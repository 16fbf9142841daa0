package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger handles debug logging to a JSON log file and error reporting on stderr.
type Logger struct {
	mu      sync.Mutex
	file    *os.File
	sugar   *zap.SugaredLogger
	enabled bool
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Get returns the default logger instance.
func Get() *Logger {
	once.Do(func() {
		defaultLogger = &Logger{}
		defaultLogger.init()
	})
	return defaultLogger
}

// New returns a logger that writes JSON entries to w. Used by tests and by
// tools that want the log stream somewhere other than ~/.t4n/logs.
func New(w io.Writer) *Logger {
	return &Logger{
		sugar:   newSugar(zapcore.AddSync(w)),
		enabled: true,
	}
}

func newSugar(ws zapcore.WriteSyncer) *zap.SugaredLogger {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:     "ts",
		LevelKey:    "level",
		NameKey:     "component",
		MessageKey:  "msg",
		EncodeTime:  zapcore.TimeEncoderOfLayout("15:04:05.000"),
		EncodeLevel: zapcore.CapitalLevelEncoder,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), ws, zapcore.DebugLevel)
	return zap.New(core).Named("backend").Sugar()
}

func (l *Logger) init() {
	// Debug mode is enabled via env var or a marker file
	debugEnv := os.Getenv("T4N_DEBUG")

	home, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "t4n log: failed to get home dir: %v\n", err)
		return
	}

	_, markerErr := os.Stat(filepath.Join(home, ".t4n", "debug"))
	if debugEnv != "1" && markerErr != nil {
		l.enabled = false
		return
	}

	l.enabled = true

	logsDir := filepath.Join(home, ".t4n", "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "t4n log: failed to create logs dir %s: %v\n", logsDir, err)
		return
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	logPath := filepath.Join(logsDir, fmt.Sprintf("t4n-%s.log", timestamp))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "t4n log: failed to open log file %s: %v\n", logPath, err)
		return
	}

	l.file = file
	l.sugar = newSugar(zapcore.AddSync(file))

	if debugEnv == "1" {
		l.Info("Logging started (T4N_DEBUG=1)")
	} else {
		l.Info("Logging started (~/.t4n/debug exists)")
	}
	l.Info("Log file: %s", logPath)
}

// Enabled returns whether debug logging is enabled.
func (l *Logger) Enabled() bool {
	return l.enabled
}

func (l *Logger) logf(level zapcore.Level, format string, args ...any) {
	if l.sugar == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	msg := fmt.Sprintf(format, args...)
	switch level {
	case zapcore.DebugLevel:
		l.sugar.Debug(msg)
	case zapcore.ErrorLevel:
		l.sugar.Error(msg)
	default:
		l.sugar.Info(msg)
	}
}

// Debug logs a debug message (file only).
func (l *Logger) Debug(format string, args ...any) {
	if !l.enabled {
		return
	}
	l.logf(zapcore.DebugLevel, format, args...)
}

// Info logs an info message (file only).
func (l *Logger) Info(format string, args ...any) {
	if !l.enabled {
		return
	}
	l.logf(zapcore.InfoLevel, format, args...)
}

// Error logs an error message (file and stderr).
func (l *Logger) Error(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(os.Stderr, "t4n error: %s\n", msg)
	if l.enabled {
		l.logf(zapcore.ErrorLevel, "%s", msg)
	}
}

// Request logs an incoming protocol request.
func (l *Logger) Request(action string, raw string) {
	if !l.enabled {
		return
	}
	l.logf(zapcore.DebugLevel, "REQ [%s] %s", action, truncate(raw, 500))
}

// Response logs an outgoing protocol response.
func (l *Logger) Response(msgType string, raw string) {
	if !l.enabled {
		return
	}
	l.logf(zapcore.DebugLevel, "RESP [%s] %s", msgType, truncate(raw, 500))
}

// Stream logs a decoded stream event.
func (l *Logger) Stream(eventType string, content string) {
	if !l.enabled {
		return
	}
	l.logf(zapcore.DebugLevel, "STREAM [%s] %s", eventType, truncate(content, 200))
}

// Close flushes and closes the log file.
func (l *Logger) Close() {
	if l.sugar != nil {
		_ = l.sugar.Sync()
	}
	if l.file != nil {
		l.file.Close()
	}
}

// Writer returns an io.Writer for the log file (for external use).
func (l *Logger) Writer() io.Writer {
	if l.file != nil {
		return l.file
	}
	return io.Discard
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
