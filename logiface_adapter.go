package framearena

import (
	"fmt"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// logifaceLogger adapts a stumpy-backed github.com/joeycumines/logiface
// Logger to the package's [Logger] interface. It wraps only
// *logiface.Logger[*stumpy.Event], as built by [NewStumpyLogger]; other
// logiface backends are not accepted.
type logifaceLogger struct {
	log *logiface.Logger[*stumpy.Event]
}

// NewStumpyLogger builds a [Logger] backed by
// github.com/joeycumines/logiface-stumpy's zero-dependency JSON encoder,
// configured by opts (including its output writer), writing one line per
// [Diagnostic].
func NewStumpyLogger(opts ...stumpy.Option) Logger {
	return &logifaceLogger{
		log: stumpy.L.New(stumpy.L.WithStumpy(opts...)),
	}
}

func (l *logifaceLogger) IsEnabled(level LogLevel) bool {
	return l.log.Level() >= toLogifaceLevel(level)
}

func (l *logifaceLogger) Log(entry LogEntry) {
	b := l.log.Build(toLogifaceLevel(entry.Level))
	if b == nil {
		return
	}
	b = b.Str(`code`, entry.Code)
	if entry.TagPath != "" {
		b = b.Str(`tag`, entry.TagPath)
	}
	if entry.ThreadID != 0 {
		b = b.Int64(`thread`, int64(entry.ThreadID))
	}
	if entry.Frame != 0 {
		b = b.Int64(`frame`, int64(entry.Frame))
	}
	for k, v := range entry.Context {
		b = b.Str(k, toString(v))
	}
	if entry.Err != nil {
		b = b.Err(entry.Err)
	}
	b.Log(entry.Message)
}

func toLogifaceLevel(level LogLevel) logiface.Level {
	switch level {
	case LevelDebug:
		return logiface.LevelDebug
	case LevelInfo:
		return logiface.LevelInformational
	case LevelWarn:
		return logiface.LevelWarning
	case LevelError:
		return logiface.LevelError
	default:
		return logiface.LevelInformational
	}
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
