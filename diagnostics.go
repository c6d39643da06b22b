package framearena

import (
	"time"

	"github.com/joeycumines/go-catrate"
)

// Severity classifies a Diagnostic by how urgently a subscriber should
// react, and maps to a [LogLevel] via [logDiagnostic].
type Severity int

const (
	SeverityHint Severity = iota
	SeverityWarning
	SeverityError
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityHint:
		return "hint"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Diagnostic is one event in the allocator's diagnostic stream: a stable
// Code plus enough context for a subscriber (logger, metrics sink, test
// harness) to act on it without parsing a message string.
type Diagnostic struct {
	Code        string
	Severity    Severity
	TagPath     string
	FrameNumber uint64
	ThreadID    uint64
	Message     string
	Note        string
	Help        string
}

// diagnosticHub fans a Diagnostic out to the configured Logger and to every
// subscriber registered via Allocator.OnDiagnostic, rate-limiting repeated
// codes per tag path so a hot loop hitting the same soft-budget warning
// every frame doesn't flood the log.
type diagnosticHub struct {
	logger      Logger
	limiter     *catrate.Limiter
	subscribers []func(Diagnostic)
}

// diagnosticRateWindows bounds repeated identical (code, tag path) pairs to
// 5 per second and 60 per minute, matching the kind of "don't spam the same
// warning every frame" limiter the catrate package is designed for.
var diagnosticRateWindows = map[time.Duration]int{
	time.Second: 5,
	time.Minute: 60,
}

func newDiagnosticHub(logger Logger) *diagnosticHub {
	if logger == nil {
		logger = noopLogger{}
	}
	return &diagnosticHub{
		logger:  logger,
		limiter: catrate.NewLimiter(diagnosticRateWindows),
	}
}

// subscribe registers fn to be called with every Diagnostic that passes the
// rate limiter.
func (h *diagnosticHub) subscribe(fn func(Diagnostic)) {
	h.subscribers = append(h.subscribers, fn)
}

// emit rate-limits d by (Code, TagPath) and, if allowed, both logs it and
// fans it out to subscribers.
func (h *diagnosticHub) emit(d Diagnostic) {
	category := d.Code + "|" + d.TagPath
	if _, allowed := h.limiter.Allow(category); !allowed {
		return
	}
	logger := h.logger
	if _, ok := logger.(noopLogger); ok {
		logger = getGlobalLogger()
	}
	logDiagnostic(logger, d)
	for _, fn := range h.subscribers {
		fn(d)
	}
}
