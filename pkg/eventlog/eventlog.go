// Package eventlog writes structured JSON events for the refresh kernel.
//
// Each event is one JSON object:
//
//	{"ts":"...","level":"info","component":"coordinator","event":"pass_start",...}
//
// Verbosity comes from CHARTSYNC_LOG_LEVEL (none, error, warn, info, debug,
// trace; default warn). When CHARTSYNC_TRACE names a file, every event is also
// appended to it as JSONL regardless of level.
package eventlog

import (
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
)

// Level controls log verbosity.
type Level int

const (
	LevelNone Level = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarn:
		return "warn"
	case LevelInfo:
		return "info"
	case LevelDebug:
		return "debug"
	case LevelTrace:
		return "trace"
	default:
		return "none"
	}
}

// ParseLevel accepts names and their numeric forms. Unknown values map to warn.
func ParseLevel(raw string) Level {
	switch strings.TrimSpace(strings.ToLower(raw)) {
	case "none", "off", "0":
		return LevelNone
	case "error", "err", "1":
		return LevelError
	case "warn", "warning", "2":
		return LevelWarn
	case "info", "3":
		return LevelInfo
	case "debug", "4":
		return LevelDebug
	case "trace", "5":
		return LevelTrace
	default:
		return LevelWarn
	}
}

// UnmarshalText lets Level be used directly in config structs.
func (l *Level) UnmarshalText(text []byte) error {
	*l = ParseLevel(string(text))
	return nil
}

// MarshalText renders the level name.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// sink is shared between a logger and the loggers derived from it.
type sink struct {
	out      *log.Logger
	traceMu  sync.Mutex
	trace    io.WriteCloser
	hasTrace atomic.Bool // mirrors trace != nil for lock-free Enabled
}

// Logger emits events for one component.
type Logger struct {
	component string
	level     Level
	sink      *sink
	now       func() time.Time
}

// Option configures a Logger.
type Option func(*Logger)

// WithLevel sets the verbosity.
func WithLevel(l Level) Option {
	return func(lg *Logger) {
		lg.level = l
	}
}

// WithOutput sets the destination for leveled output.
func WithOutput(out *log.Logger) Option {
	return func(lg *Logger) {
		if out != nil {
			lg.sink.out = out
		}
	}
}

// WithTraceWriter appends every event to w as JSONL.
func WithTraceWriter(w io.WriteCloser) Option {
	return func(lg *Logger) {
		lg.sink.traceMu.Lock()
		lg.sink.trace = w
		lg.sink.hasTrace.Store(w != nil)
		lg.sink.traceMu.Unlock()
	}
}

// New returns a logger for component writing to the standard logger at warn.
func New(component string, opts ...Option) *Logger {
	lg := &Logger{
		component: component,
		level:     LevelWarn,
		sink:      &sink{out: log.Default()},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(lg)
	}
	return lg
}

// FromEnv builds a logger from CHARTSYNC_LOG_LEVEL and CHARTSYNC_TRACE.
func FromEnv(component string, opts ...Option) *Logger {
	base := []Option{WithLevel(ParseLevel(os.Getenv("CHARTSYNC_LOG_LEVEL")))}
	if path := strings.TrimSpace(os.Getenv("CHARTSYNC_TRACE")); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			log.Printf("eventlog: cannot open trace file %s: %v", path, err)
		} else {
			base = append(base, WithTraceWriter(f))
		}
	}
	return New(component, append(base, opts...)...)
}

// Nop returns a logger that drops everything.
func Nop() *Logger {
	return New("", WithLevel(LevelNone), WithOutput(log.New(io.Discard, "", 0)))
}

// Named returns a logger for another component sharing this logger's
// destination and level.
func (l *Logger) Named(component string) *Logger {
	if l == nil {
		return nil
	}
	cp := *l
	cp.component = component
	return &cp
}

// Level returns the configured verbosity.
func (l *Logger) Level() Level {
	if l == nil {
		return LevelNone
	}
	return l.level
}

// Enabled reports whether events at level would be written anywhere.
func (l *Logger) Enabled(level Level) bool {
	if l == nil || level == LevelNone {
		return false
	}
	return (l.level != LevelNone && level <= l.level) || l.sink.hasTrace.Load()
}

// Event writes one structured event.
func (l *Logger) Event(level Level, event string, fields map[string]any) {
	if !l.Enabled(level) {
		return
	}

	payload := map[string]any{
		"ts":        l.now().UTC().Format(time.RFC3339Nano),
		"level":     level.String(),
		"component": l.component,
		"event":     event,
	}
	for k, v := range fields {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		payload[k] = v
	}
	b, err := json.Marshal(payload)
	if err != nil {
		l.sink.out.Printf("eventlog: failed to marshal event %s: %v", event, err)
		return
	}

	if l.level != LevelNone && level <= l.level {
		l.sink.out.Printf("%s", b)
	}
	l.sink.traceMu.Lock()
	if l.sink.trace != nil {
		_, _ = l.sink.trace.Write(append(b, '\n'))
	}
	l.sink.traceMu.Unlock()
}

func (l *Logger) Error(event string, fields map[string]any) { l.Event(LevelError, event, fields) }
func (l *Logger) Warn(event string, fields map[string]any)  { l.Event(LevelWarn, event, fields) }
func (l *Logger) Info(event string, fields map[string]any)  { l.Event(LevelInfo, event, fields) }
func (l *Logger) Debug(event string, fields map[string]any) { l.Event(LevelDebug, event, fields) }
func (l *Logger) Trace(event string, fields map[string]any) { l.Event(LevelTrace, event, fields) }

// Close closes the trace file, if any.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.sink.traceMu.Lock()
	defer l.sink.traceMu.Unlock()
	if l.sink.trace == nil {
		return nil
	}
	err := l.sink.trace.Close()
	l.sink.trace = nil
	l.sink.hasTrace.Store(false)
	return err
}
