// Package logger provides the engine's structured, multi-tier logger:
// console output for operators plus an optional rotating log file.
package logger

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// Logger is the logging interface used throughout the engine
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})

	// WithFields returns a logger with additional fields attached to every entry
	WithFields(fields map[string]interface{}) Logger

	// WithComponent returns a logger tagged with a component
	WithComponent(component Component) Logger

	// Close flushes and closes all log destinations
	Close() error
}

// LogEntry is a single structured log record
type LogEntry struct {
	Timestamp  string                 `json:"timestamp"`
	Level      LogLevel               `json:"level"`
	Message    string                 `json:"message"`
	Component  Component              `json:"component,omitempty"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
	ScheduleID string                 `json:"schedule_id,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

// MultiLogger dispatches entries to the enabled tiers
type MultiLogger struct {
	config     *Config
	console    *ConsoleLogger
	file       *FileLogger
	baseFields map[string]interface{}
	component  Component
}

// NewLogger creates a multi-tier logger from configuration.
func NewLogger(config *Config) (*MultiLogger, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logger config: %w", err)
	}

	ml := &MultiLogger{
		config:     config,
		baseFields: make(map[string]interface{}),
	}

	if config.Console.Enabled {
		ml.console = NewConsoleLogger(config)
	}

	if config.File.Enabled {
		file, err := NewFileLogger(config)
		if err != nil {
			// File logging is optional; fall back to console only
			fmt.Fprintf(os.Stderr, "Warning: failed to create file logger: %v\n", err)
		} else {
			ml.file = file
		}
	}

	return ml, nil
}

// Debug logs a debug message
func (ml *MultiLogger) Debug(msg string, args ...interface{}) {
	ml.log(LevelDebug, msg, args...)
}

// Info logs an info message
func (ml *MultiLogger) Info(msg string, args ...interface{}) {
	ml.log(LevelInfo, msg, args...)
}

// Warn logs a warning message
func (ml *MultiLogger) Warn(msg string, args ...interface{}) {
	ml.log(LevelWarn, msg, args...)
}

// Error logs an error message
func (ml *MultiLogger) Error(msg string, args ...interface{}) {
	ml.log(LevelError, msg, args...)
}

// WithFields returns a logger with additional base fields
func (ml *MultiLogger) WithFields(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(ml.baseFields)+len(fields))
	for k, v := range ml.baseFields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &MultiLogger{
		config:     ml.config,
		console:    ml.console,
		file:       ml.file,
		baseFields: merged,
		component:  ml.component,
	}
}

// WithComponent returns a logger tagged with a component
func (ml *MultiLogger) WithComponent(component Component) Logger {
	return &MultiLogger{
		config:     ml.config,
		console:    ml.console,
		file:       ml.file,
		baseFields: ml.baseFields,
		component:  component,
	}
}

// Close flushes and closes both tiers
func (ml *MultiLogger) Close() error {
	var firstErr error
	if ml.console != nil {
		if err := ml.console.Close(); err != nil {
			firstErr = err
		}
	}
	if ml.file != nil {
		if err := ml.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (ml *MultiLogger) log(level LogLevel, msg string, args ...interface{}) {
	if levelRank(level) < levelRank(ml.config.Level) {
		return
	}

	entry := &LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Message:   msg,
		Component: ml.component,
		Fields:    ml.collectFields(args...),
	}
	if id, ok := entry.Fields["schedule_id"].(string); ok {
		entry.ScheduleID = id
	}
	if err, ok := entry.Fields["error"]; ok {
		entry.Error = fmt.Sprintf("%v", err)
	}

	if ml.console != nil {
		ml.console.log(entry)
	}
	if ml.file != nil {
		ml.file.log(entry)
	}
}

// collectFields merges base fields with alternating key/value args.
func (ml *MultiLogger) collectFields(args ...interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(ml.baseFields)+len(args)/2)
	for k, v := range ml.baseFields {
		fields[k] = v
	}
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", args[i])
		}
		fields[key] = args[i+1]
	}
	return fields
}

var (
	defaultLogger Logger
	defaultMu     sync.RWMutex
)

// Default returns the process-wide logger, creating a console-only logger
// on first use.
func Default() Logger {
	defaultMu.RLock()
	l := defaultLogger
	defaultMu.RUnlock()
	if l != nil {
		return l
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		l, err := NewLogger(DefaultConfig())
		if err != nil {
			panic(fmt.Sprintf("failed to create default logger: %v", err))
		}
		defaultLogger = l
	}
	return defaultLogger
}

// SetDefault replaces the process-wide logger.
func SetDefault(l Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
}

// Package-level helpers that log through the default logger.

// Debug logs a debug message through the default logger
func Debug(msg string, args ...interface{}) { Default().Debug(msg, args...) }

// Info logs an info message through the default logger
func Info(msg string, args ...interface{}) { Default().Info(msg, args...) }

// Warn logs a warning message through the default logger
func Warn(msg string, args ...interface{}) { Default().Warn(msg, args...) }

// Error logs an error message through the default logger
func Error(msg string, args ...interface{}) { Default().Error(msg, args...) }
