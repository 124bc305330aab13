package logs

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Level string

const (
	INFO  Level = "INFO"
	WARN  Level = "WARN"
	ERROR Level = "ERROR"
	DEBUG Level = "DEBUG"
)

var zerologLevels = map[Level]zerolog.Level{
	DEBUG: zerolog.DebugLevel,
	INFO:  zerolog.InfoLevel,
	WARN:  zerolog.WarnLevel,
	ERROR: zerolog.ErrorLevel,
}

// Entry is a log line kept in the in-memory tail.
type Entry struct {
	TimeStamp time.Time `json:"timestamp"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
}

// Config controls where and how much is logged.
type Config struct {
	Level      string    // debug, info, warn, error
	Format     string    // console or json
	Output     io.Writer // defaults to stderr
	BufferSize int       // entries kept for GetLast
}

// DefaultConfig returns console logging at info level.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "console",
		BufferSize: 1000,
	}
}

// Logger is a zerolog logger that also keeps the most recent entries in
// memory so the health analyzer can inspect them.
type Logger struct {
	zerolog.Logger
	tail *tail
}

// New builds a Logger from cfg.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Format != "json" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	size := cfg.BufferSize
	if size <= 0 {
		size = DefaultConfig().BufferSize
	}

	// Warnings and errors always reach the tail for the health analyzer;
	// the writer applies the configured level to the output.
	loggerLevel := level
	if loggerLevel > zerolog.WarnLevel {
		loggerLevel = zerolog.WarnLevel
	}

	t := &tail{maxSize: size, entries: make([]Entry, 0, size)}
	zl := zerolog.New(&levelFilter{out: out, min: level}).
		Level(loggerLevel).
		Hook(t).
		With().
		Timestamp().
		Logger()

	return &Logger{Logger: zl, tail: t}
}

// NewLogger returns a Logger that discards output and only keeps the
// in-memory tail. Handy for tests and embedded use.
//
// maxSize: maximum number of entries kept in memory
func NewLogger(maxSize int, level Level) *Logger {
	zl, ok := zerologLevels[level]
	if !ok {
		zl = zerolog.InfoLevel
	}
	return New(Config{
		Level:      zl.String(),
		Format:     "json",
		Output:     io.Discard,
		BufferSize: maxSize,
	})
}

// Nop returns a logger that records nothing.
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop(), tail: &tail{}}
}

// Component returns a child logger tagged with a component field. The
// child shares the parent's in-memory tail.
func (l *Logger) Component(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With().Str("component", name).Logger(),
		tail:   l.tail,
	}
}

// GetLast returns up to n of the most recent entries, oldest first.
func (l *Logger) GetLast(n int) []Entry {
	return l.tail.last(n)
}

// levelFilter drops events below min before they reach out.
type levelFilter struct {
	out io.Writer
	min zerolog.Level
}

func (f *levelFilter) Write(p []byte) (int, error) {
	return f.out.Write(p)
}

func (f *levelFilter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < f.min {
		return len(p), nil
	}
	return f.out.Write(p)
}

// tail is a bounded FIFO of entries fed by a zerolog hook.
type tail struct {
	mu      sync.Mutex
	entries []Entry
	maxSize int
}

// Run implements zerolog.Hook. It only sees events that passed the
// logger's level filter.
func (t *tail) Run(_ *zerolog.Event, level zerolog.Level, msg string) {
	if t.maxSize <= 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.entries) >= t.maxSize {
		t.entries = t.entries[1:]
	}

	t.entries = append(t.entries, Entry{
		TimeStamp: time.Now(),
		Level:     fromZerolog(level),
		Message:   msg,
	})
}

func (t *tail) last(n int) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n > len(t.entries) {
		n = len(t.entries)
	}
	if n <= 0 {
		return []Entry{}
	}

	out := make([]Entry, n)
	copy(out, t.entries[len(t.entries)-n:])
	return out
}

func fromZerolog(level zerolog.Level) Level {
	switch {
	case level <= zerolog.DebugLevel:
		return DEBUG
	case level == zerolog.InfoLevel:
		return INFO
	case level == zerolog.WarnLevel:
		return WARN
	default:
		return ERROR
	}
}
