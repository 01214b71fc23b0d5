package logger

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity level of a log entry
type LogLevel int

const (
	TraceLevel LogLevel = iota
	DebugLevel
	InfoLevel
	WarnLevel
	ErrorLevel
	// OffLevel disables all output
	OffLevel
)

var levelNames = map[LogLevel]string{
	TraceLevel: "TRACE",
	DebugLevel: "DEBUG",
	InfoLevel:  "INFO",
	WarnLevel:  "WARN",
	ErrorLevel: "ERROR",
}

var levelColors = map[LogLevel]string{
	TraceLevel: "\033[36m", // Cyan
	DebugLevel: "\033[35m", // Magenta
	InfoLevel:  "\033[32m", // Green
	WarnLevel:  "\033[33m", // Yellow
	ErrorLevel: "\033[31m", // Red
}

const colorReset = "\033[0m"

// LogFormat represents the output format for logs
type LogFormat int

const (
	ConsoleFormat LogFormat = iota
	JSONFormat
)

// Field represents a structured logging field
type Field struct {
	Key   string
	Value interface{}
}

// output is shared between a logger and everything derived from it, so
// entries from derived loggers never interleave mid-line.
type output struct {
	mu     sync.Mutex
	writer io.Writer
}

// Logger provides structured logging for a single invocation. Loggers are
// passed explicitly; there is no package-level instance.
type Logger struct {
	level      *levelVar
	format     LogFormat
	out        *output
	name       string
	fields     []Field
	useColors  bool
	timeFormat string
}

type levelVar struct {
	mu    sync.RWMutex
	level LogLevel
}

// Config holds logger configuration
type Config struct {
	Level      LogLevel
	Format     LogFormat
	Output     io.Writer
	UseColors  bool
	TimeFormat string
}

// New creates a new logger instance. Output defaults to stderr so that
// stdout stays reserved for command results.
func New(config Config) *Logger {
	if config.Output == nil {
		config.Output = os.Stderr
	}

	if config.TimeFormat == "" {
		config.TimeFormat = "2006-01-02 15:04:05.000"
	}

	return &Logger{
		level:      &levelVar{level: config.Level},
		format:     config.Format,
		out:        &output{writer: config.Output},
		useColors:  config.UseColors,
		timeFormat: config.TimeFormat,
	}
}

// NewConsoleLogger creates a new console logger
func NewConsoleLogger(level LogLevel) *Logger {
	return New(Config{
		Level:     level,
		Format:    ConsoleFormat,
		UseColors: true,
	})
}

// NewJSONLogger creates a new JSON logger
func NewJSONLogger(level LogLevel) *Logger {
	return New(Config{
		Level:  level,
		Format: JSONFormat,
	})
}

// Discard returns a logger that drops every entry.
func Discard() *Logger {
	return New(Config{Level: OffLevel, Output: io.Discard})
}

// With creates a new logger with additional fields
func (l *Logger) With(fields ...Field) *Logger {
	newFields := make([]Field, len(l.fields)+len(fields))
	copy(newFields, l.fields)
	copy(newFields[len(l.fields):], fields)

	newLogger := *l
	newLogger.fields = newFields
	return &newLogger
}

// WithName creates a new logger with a name. Nested names are dot-joined.
func (l *Logger) WithName(name string) *Logger {
	newLogger := *l
	if l.name != "" {
		newLogger.name = l.name + "." + name
	} else {
		newLogger.name = name
	}
	return &newLogger
}

// SetLevel sets the minimum log level for this logger and all loggers
// derived from it.
func (l *Logger) SetLevel(level LogLevel) {
	l.level.mu.Lock()
	defer l.level.mu.Unlock()
	l.level.level = level
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() LogLevel {
	l.level.mu.RLock()
	defer l.level.mu.RUnlock()
	return l.level.level
}

// IsEnabled returns true if the given level would be logged
func (l *Logger) IsEnabled(level LogLevel) bool {
	return level < OffLevel && level >= l.GetLevel()
}

// Log outputs a log entry at the specified level
func (l *Logger) Log(level LogLevel, msg string, fields ...Field) {
	if !l.IsEnabled(level) {
		return
	}

	all := make([]Field, 0, len(l.fields)+len(fields))
	all = append(all, l.fields...)
	all = append(all, fields...)

	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   msg,
		Logger:    l.name,
		Fields:    all,
	}

	if level >= ErrorLevel {
		if pc, file, line, ok := runtime.Caller(2); ok {
			entry.Caller = &CallerInfo{
				PC:       pc,
				File:     file,
				Line:     line,
				Function: runtime.FuncForPC(pc).Name(),
			}
		}
	}

	l.writeEntry(entry)
}

// Trace logs a trace message
func (l *Logger) Trace(msg string, fields ...Field) {
	l.Log(TraceLevel, msg, fields...)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, fields ...Field) {
	l.Log(DebugLevel, msg, fields...)
}

// Info logs an info message
func (l *Logger) Info(msg string, fields ...Field) {
	l.Log(InfoLevel, msg, fields...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, fields ...Field) {
	l.Log(WarnLevel, msg, fields...)
}

// Error logs an error message
func (l *Logger) Error(msg string, fields ...Field) {
	l.Log(ErrorLevel, msg, fields...)
}

// Debugf logs a debug message with printf-style formatting
func (l *Logger) Debugf(format string, args ...interface{}) {
	if l.IsEnabled(DebugLevel) {
		l.Log(DebugLevel, fmt.Sprintf(format, args...))
	}
}

// Infof logs an info message with printf-style formatting
func (l *Logger) Infof(format string, args ...interface{}) {
	if l.IsEnabled(InfoLevel) {
		l.Log(InfoLevel, fmt.Sprintf(format, args...))
	}
}

// LogEntry represents a single log entry
type LogEntry struct {
	Timestamp time.Time
	Level     LogLevel
	Message   string
	Logger    string
	Fields    []Field
	Caller    *CallerInfo
}

// CallerInfo holds information about the calling code
type CallerInfo struct {
	PC       uintptr
	File     string
	Line     int
	Function string
}

func (l *Logger) writeEntry(entry LogEntry) {
	var line string

	switch l.format {
	case JSONFormat:
		line = l.formatJSON(entry)
	default:
		line = l.formatConsole(entry)
	}

	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	fmt.Fprintln(l.out.writer, line)
}

func (l *Logger) formatConsole(entry LogEntry) string {
	var b strings.Builder

	b.WriteString(entry.Timestamp.Format(l.timeFormat))
	b.WriteString(" ")

	levelName := levelNames[entry.Level]
	if l.useColors {
		b.WriteString(levelColors[entry.Level])
		b.WriteString(fmt.Sprintf("%-5s", levelName))
		b.WriteString(colorReset)
	} else {
		b.WriteString(fmt.Sprintf("%-5s", levelName))
	}
	b.WriteString(" ")

	if entry.Logger != "" {
		b.WriteString("[")
		b.WriteString(entry.Logger)
		b.WriteString("] ")
	}

	b.WriteString(entry.Message)

	if len(entry.Fields) > 0 {
		b.WriteString(" {")
		for i, field := range entry.Fields {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(fmt.Sprintf("%s=%v", field.Key, field.Value))
		}
		b.WriteString("}")
	}

	if entry.Caller != nil {
		parts := strings.Split(entry.Caller.File, "/")
		b.WriteString(fmt.Sprintf(" (%s:%d)", parts[len(parts)-1], entry.Caller.Line))
	}

	return b.String()
}

func (l *Logger) formatJSON(entry LogEntry) string {
	var b strings.Builder
	b.WriteString("{")

	b.WriteString(fmt.Sprintf(`"timestamp":"%s"`, entry.Timestamp.Format(time.RFC3339Nano)))
	b.WriteString(fmt.Sprintf(`,"level":"%s"`, levelNames[entry.Level]))

	if entry.Logger != "" {
		b.WriteString(fmt.Sprintf(`,"logger":"%s"`, escapeJSON(entry.Logger)))
	}

	b.WriteString(fmt.Sprintf(`,"message":"%s"`, escapeJSON(entry.Message)))

	for _, field := range entry.Fields {
		b.WriteString(fmt.Sprintf(`,"%s":%s`, escapeJSON(field.Key), formatJSONValue(field.Value)))
	}

	if entry.Caller != nil {
		b.WriteString(fmt.Sprintf(`,"caller":{"file":"%s","line":%d,"function":"%s"}`,
			escapeJSON(entry.Caller.File),
			entry.Caller.Line,
			escapeJSON(entry.Caller.Function)))
	}

	b.WriteString("}")
	return b.String()
}

func escapeJSON(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	s = strings.ReplaceAll(s, "\r", "\\r")
	s = strings.ReplaceAll(s, "\t", "\\t")
	return s
}

func formatJSONValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf(`"%s"`, escapeJSON(val))
	case int, int32, int64, uint, uint32, uint64, float32, float64:
		return fmt.Sprintf("%v", val)
	case bool:
		return fmt.Sprintf("%t", val)
	default:
		return fmt.Sprintf(`"%s"`, escapeJSON(fmt.Sprintf("%v", val)))
	}
}

// Helper functions for creating fields
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

// Stringer records v's String form.
func Stringer(key string, v fmt.Stringer) Field {
	return Field{Key: key, Value: v.String()}
}

func ErrorField(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// ParseLogLevel parses a string log level
func ParseLogLevel(level string) (LogLevel, error) {
	switch strings.ToLower(level) {
	case "trace":
		return TraceLevel, nil
	case "debug":
		return DebugLevel, nil
	case "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "off", "none":
		return OffLevel, nil
	default:
		return InfoLevel, fmt.Errorf("invalid log level: %s", level)
	}
}

// ParseLogFormat parses a string log format
func ParseLogFormat(format string) (LogFormat, error) {
	switch strings.ToLower(format) {
	case "console":
		return ConsoleFormat, nil
	case "json":
		return JSONFormat, nil
	default:
		return ConsoleFormat, fmt.Errorf("invalid log format: %s", format)
	}
}

// EffectiveLevel applies the --debug and --verbose switches on top of the
// configured level. verbose implies debug.
func EffectiveLevel(configured LogLevel, debug, verbose bool) LogLevel {
	switch {
	case verbose:
		return TraceLevel
	case debug && configured > DebugLevel:
		return DebugLevel
	default:
		return configured
	}
}
