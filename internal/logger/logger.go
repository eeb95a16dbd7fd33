// Package logger provides a leveled, slog-based logger for the
// sandbox host. It never logs the content of guest memory, only
// operation names, handles, and recovered host errors.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Severity level names, matching the strings accepted by internal/config.
const (
	Off     = "OFF"
	Trace   = "TRACE"
	Debug   = "DEBUG"
	Info    = "INFO"
	Warning = "WARNING"
	Error   = "ERROR"
)

// Custom slog levels. TRACE sits below the standard LevelDebug; the
// rest line up with slog's own severities.
const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
	// levelOff is set high enough that no record passes the handler's
	// Enabled check.
	levelOff = slog.Level(12)
)

type loggerFactory struct {
	format string // "text" or "json"
	level  string
	w      io.Writer
}

var defaultLoggerFactory = &loggerFactory{format: "text", level: Info, w: os.Stderr}
var defaultLogger *slog.Logger

func init() {
	programLevel := new(slog.LevelVar)
	SetLoggingLevel(defaultLoggerFactory.level, programLevel)
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(defaultLoggerFactory.w, programLevel, ""))
}

// SetLoggingLevel maps a severity name onto the given LevelVar in
// place, so handlers already built against it pick up the change.
func SetLoggingLevel(level string, programLevel *slog.LevelVar) {
	switch level {
	case Trace:
		programLevel.Set(LevelTrace)
	case Debug:
		programLevel.Set(LevelDebug)
	case Info:
		programLevel.Set(LevelInfo)
	case Warning:
		programLevel.Set(LevelWarn)
	case Error:
		programLevel.Set(LevelError)
	default:
		programLevel.Set(levelOff)
	}
}

// createJsonOrTextHandler builds the handler for format "json" or
// "text", relabeling slog's generic "level" attribute as "severity"
// and naming the TRACE/DEBUG/... level strings this package defines.
// The json format additionally nests the timestamp as
// {"seconds":...,"nanos":...} rather than a single RFC3339 string.
func (f *loggerFactory) createJsonOrTextHandler(w io.Writer, programLevel *slog.LevelVar, prefix string) slog.Handler {
	useJSON := f.format == "json"
	replace := func(groups []string, a slog.Attr) slog.Attr {
		switch a.Key {
		case slog.TimeKey:
			if useJSON {
				return slog.Attr{Key: "timestamp", Value: slog.GroupValue(
					slog.Int64("seconds", a.Value.Time().Unix()),
					slog.Int64("nanos", int64(a.Value.Time().Nanosecond())),
				)}
			}
			a.Value = slog.StringValue(a.Value.Time().UTC().Format("2006/01/02 15:04:05.000000"))
		case slog.LevelKey:
			a.Key = "severity"
			a.Value = slog.StringValue(severityName(a.Value.Any().(slog.Level)))
		case slog.MessageKey:
			a.Value = slog.StringValue(prefix + a.Value.String())
		}
		return a
	}
	opts := &slog.HandlerOptions{Level: programLevel, ReplaceAttr: replace}
	if useJSON {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func severityName(l slog.Level) string {
	switch {
	case l < LevelDebug:
		return Trace
	case l < LevelInfo:
		return Debug
	case l < LevelWarn:
		return Info
	case l < LevelError:
		return Warning
	default:
		return Error
	}
}

// Init (re)configures the package-level logger. format is "text" or
// "json"; level is one of the Off/Trace/.../Error constants.
func Init(format, level string) {
	defaultLoggerFactory = &loggerFactory{format: format, level: level, w: os.Stderr}
	programLevel := new(slog.LevelVar)
	SetLoggingLevel(level, programLevel)
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(defaultLoggerFactory.w, programLevel, ""))
}

func Tracef(format string, v ...any) { defaultLogger.Log(context.Background(), LevelTrace, fmt.Sprintf(format, v...)) }
func Debugf(format string, v ...any) { defaultLogger.Debug(fmt.Sprintf(format, v...)) }
func Infof(format string, v ...any)  { defaultLogger.Info(fmt.Sprintf(format, v...)) }
func Warnf(format string, v ...any)  { defaultLogger.Warn(fmt.Sprintf(format, v...)) }
func Errorf(format string, v ...any) { defaultLogger.Error(fmt.Sprintf(format, v...)) }
