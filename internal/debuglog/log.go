package debuglog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// LogLevel represents the severity level of a log message
type LogLevel int32

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelOff // Disables all logging
)

// Fields is the structured payload attached to a log line.
type Fields = logrus.Fields

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelOff:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel parses a string into a LogLevel
func ParseLogLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	case "OFF":
		return LevelOff
	default:
		return LevelInfo // Default to INFO
	}
}

func (l LogLevel) logrusLevel() logrus.Level {
	switch l {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

var (
	currentLevel atomic.Int32
	logger       atomic.Pointer[logrus.Logger]

	mu      sync.Mutex
	logFile *os.File
)

func init() {
	currentLevel.Store(int32(LevelOff))
}

// Setup configures the logging system with the specified level and optional file path.
// If filePath is empty, defaults to ~/.lensbot/lensbot.log.
func Setup(level LogLevel, filePath ...string) error {
	mu.Lock()
	defer mu.Unlock()

	currentLevel.Store(int32(level))
	closeFileLocked()

	if level == LevelOff {
		logger.Store(nil)
		return nil
	}

	var logPath string
	if len(filePath) > 0 && filePath[0] != "" {
		logPath = filePath[0]
	} else {
		home, _ := os.UserHomeDir()
		logPath = filepath.Join(home, ".lensbot", "lensbot.log")
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", logPath, err)
	}

	logFile = f
	logger.Store(newLogrus(f, level))
	return nil
}

// SetupWriter routes log output to w instead of a file. Used for headless
// runs that log to stderr.
func SetupWriter(level LogLevel, w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	currentLevel.Store(int32(level))
	closeFileLocked()

	if level == LevelOff {
		logger.Store(nil)
		return
	}
	logger.Store(newLogrus(w, level))
}

func newLogrus(w io.Writer, level LogLevel) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000000Z07:00",
	})
	l.SetLevel(level.logrusLevel())
	return l
}

// SetLevel changes the current logging level
func SetLevel(level LogLevel) {
	currentLevel.Store(int32(level))
	if l := logger.Load(); l != nil && level != LevelOff {
		l.SetLevel(level.logrusLevel())
	}
}

// GetLevel returns the current logging level
func GetLevel() LogLevel {
	return LogLevel(currentLevel.Load())
}

// Close closes the log file if open
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	logger.Store(nil)
	return closeFileLocked()
}

func closeFileLocked() error {
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

func enabled(level LogLevel) (*logrus.Logger, bool) {
	if level < GetLevel() {
		return nil, false
	}
	l := logger.Load()
	return l, l != nil
}

// logf writes a log message at the specified level
func logf(level LogLevel, fields Fields, format string, args ...any) {
	l, ok := enabled(level)
	if !ok {
		return
	}

	entry := logrus.NewEntry(l)
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}

	message := fmt.Sprintf(format, args...)
	switch level {
	case LevelDebug:
		entry.Debug(message)
	case LevelInfo:
		entry.Info(message)
	case LevelWarn:
		entry.Warn(message)
	case LevelError:
		entry.Error(message)
	}
}

func Debugf(format string, args ...any) {
	logf(LevelDebug, nil, format, args...)
}

func Infof(format string, args ...any) {
	logf(LevelInfo, nil, format, args...)
}

func Warnf(format string, args ...any) {
	logf(LevelWarn, nil, format, args...)
}

func Errorf(format string, args ...any) {
	logf(LevelError, nil, format, args...)
}

// FieldLogger carries structured fields into every line it writes.
type FieldLogger struct {
	fields Fields
}

// WithFields returns a new logger with the specified fields
func WithFields(fields map[string]interface{}) *FieldLogger {
	copied := make(Fields, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return &FieldLogger{fields: copied}
}

// With returns a copy of fl with one more field.
func (fl *FieldLogger) With(key string, value interface{}) *FieldLogger {
	next := make(Fields, len(fl.fields)+1)
	for k, v := range fl.fields {
		next[k] = v
	}
	next[key] = value
	return &FieldLogger{fields: next}
}

func (fl *FieldLogger) Debugf(format string, args ...any) {
	logf(LevelDebug, fl.fields, format, args...)
}

func (fl *FieldLogger) Infof(format string, args ...any) {
	logf(LevelInfo, fl.fields, format, args...)
}

func (fl *FieldLogger) Warnf(format string, args ...any) {
	logf(LevelWarn, fl.fields, format, args...)
}

func (fl *FieldLogger) Errorf(format string, args ...any) {
	logf(LevelError, fl.fields, format, args...)
}

// Printf lets a FieldLogger stand in for printf-style loggers such as cron's.
func (fl *FieldLogger) Printf(format string, args ...interface{}) {
	logf(LevelInfo, fl.fields, format, args...)
}
