// Package logging writes one JSON object per line. Every line starts with
// timestamp, level and message, followed by inherited fields in the order they
// were attached and then the call's own fields.
package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"raygrid/internal/config"
)

// Level orders log verbosity.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

var levelNames = [...]string{"debug", "info", "warn", "error", "fatal"}

func (l Level) String() string {
	if l < DebugLevel || l > FatalLevel {
		return "info"
	}
	return levelNames[l]
}

func parseLevel(raw string) (Level, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	switch name {
	case "":
		return InfoLevel, nil
	case "warning":
		return WarnLevel, nil
	}
	for i, candidate := range levelNames {
		if candidate == name {
			return Level(i), nil
		}
	}
	return InfoLevel, fmt.Errorf("unknown log level %q", raw)
}

// Field is one structured attribute.
type Field struct {
	Key   string
	Value any
}

func String(key, value string) Field                 { return Field{Key: key, Value: value} }
func Strings(key string, values []string) Field      { return Field{Key: key, Value: values} }
func Int(key string, value int) Field                { return Field{Key: key, Value: value} }
func Int64(key string, value int64) Field            { return Field{Key: key, Value: value} }
func Uint64(key string, value uint64) Field          { return Field{Key: key, Value: value} }
func Float64(key string, value float64) Field        { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field              { return Field{Key: key, Value: value} }
func Duration(key string, value time.Duration) Field { return Field{Key: key, Value: value.String()} }

// Vec3 renders a point as a JSON array.
func Vec3(key string, v mgl64.Vec3) Field { return Field{Key: key, Value: [3]float64(v)} }

// Error stores the error text; a nil error logs as null.
func Error(err error) Field {
	if err == nil {
		return Field{Key: "error"}
	}
	return Field{Key: "error", Value: err.Error()}
}

// syncWriter is a sink that can flush to durable storage.
type syncWriter interface {
	io.Writer
	Sync() error
}

// sink serialises writes from every logger derived from the same root.
type sink struct {
	mu sync.Mutex
	w  syncWriter
}

func (s *sink) write(line []byte) {
	s.mu.Lock()
	_, _ = s.w.Write(line)
	s.mu.Unlock()
}

// Logger emits structured JSON lines. Derived loggers share the sink.
type Logger struct {
	level  Level
	out    *sink
	fields []Field
	now    func() time.Time
}

type teeWriter []syncWriter

func (t teeWriter) Write(p []byte) (int, error) {
	for _, w := range t {
		if _, err := w.Write(p); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

func (t teeWriter) Sync() error {
	var errs []error
	for _, w := range t {
		errs = append(errs, w.Sync())
	}
	return errors.Join(errs...)
}

// New writes to the rotating file described by cfg and mirrors to stdout. The
// result also becomes the global logger.
func New(cfg config.LoggingConfig) (*Logger, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("logging path must be specified")
	}
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	file, err := openFileSink(cfg)
	if err != nil {
		return nil, err
	}
	logger := newLogger(level, teeWriter{file, os.Stdout})
	ReplaceGlobals(logger)
	return logger, nil
}

// NewWithWriter logs to w without rotation. Tools and tests capture output
// this way.
func NewWithWriter(w io.Writer, rawLevel string) (*Logger, error) {
	if w == nil {
		return nil, errors.New("log writer must not be nil")
	}
	level, err := parseLevel(rawLevel)
	if err != nil {
		return nil, err
	}
	return newLogger(level, nopSync{w}), nil
}

// NewTestLogger discards everything.
func NewTestLogger() *Logger {
	return &Logger{level: FatalLevel + 1, out: &sink{w: nopSync{io.Discard}}, now: time.Now}
}

func newLogger(level Level, w syncWriter) *Logger {
	return &Logger{
		level:  level,
		out:    &sink{w: w},
		fields: []Field{String("service", "raygrid")},
		now:    time.Now,
	}
}

type nopSync struct{ io.Writer }

func (nopSync) Sync() error { return nil }

var (
	globalMu     sync.RWMutex
	globalLogger = NewTestLogger()
)

// ReplaceGlobals sets the logger returned by L.
func ReplaceGlobals(logger *Logger) {
	if logger == nil {
		return
	}
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}

// L returns the global logger. It discards output until New runs.
func L() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// With returns a logger that adds fields to every line.
func (l *Logger) With(fields ...Field) *Logger {
	if l == nil {
		l = L()
	}
	derived := *l
	derived.fields = append(append(make([]Field, 0, len(l.fields)+len(fields)), l.fields...), fields...)
	return &derived
}

// Sync flushes the sink.
func (l *Logger) Sync() error {
	if l == nil || l.out == nil {
		return nil
	}
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	return l.out.w.Sync()
}

func (l *Logger) Debug(message string, fields ...Field) { l.log(DebugLevel, message, fields) }
func (l *Logger) Info(message string, fields ...Field)  { l.log(InfoLevel, message, fields) }
func (l *Logger) Warn(message string, fields ...Field)  { l.log(WarnLevel, message, fields) }
func (l *Logger) Error(message string, fields ...Field) { l.log(ErrorLevel, message, fields) }

// Fatal logs, flushes and exits with status 1.
func (l *Logger) Fatal(message string, fields ...Field) {
	l.log(FatalLevel, message, fields)
	_ = l.Sync()
	os.Exit(1)
}

func (l *Logger) log(level Level, message string, fields []Field) {
	if l == nil {
		l = L()
	}
	if level < l.level {
		return
	}
	l.out.write(l.encode(level, message, fields))
}

var reservedKeys = map[string]struct{}{"timestamp": {}, "level": {}, "message": {}}

// encode renders one line. A later field with the same key replaces the value
// of an earlier one but keeps its position.
func (l *Logger) encode(level Level, message string, fields []Field) []byte {
	order := make([]string, 0, len(l.fields)+len(fields))
	values := make(map[string]any, cap(order))
	for _, group := range [2][]Field{l.fields, fields} {
		for _, f := range group {
			if _, reserved := reservedKeys[f.Key]; reserved {
				continue
			}
			if _, seen := values[f.Key]; !seen {
				order = append(order, f.Key)
			}
			values[f.Key] = f.Value
		}
	}

	var buf bytes.Buffer
	buf.WriteString(`{"timestamp":`)
	writeValue(&buf, l.now().UTC().Format(time.RFC3339Nano))
	buf.WriteString(`,"level":`)
	writeValue(&buf, level.String())
	buf.WriteString(`,"message":`)
	writeValue(&buf, message)
	for _, key := range order {
		buf.WriteByte(',')
		writeValue(&buf, key)
		buf.WriteByte(':')
		writeValue(&buf, values[key])
	}
	buf.WriteString("}\n")
	return buf.Bytes()
}

// writeValue falls back to the %v text for values JSON cannot encode.
func writeValue(buf *bytes.Buffer, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		data, _ = json.Marshal(fmt.Sprintf("%v", v))
	}
	buf.Write(data)
}
