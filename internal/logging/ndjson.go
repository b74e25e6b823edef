package logging

import (
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger writes one JSON object per event (ts, level, event and the set
// fields) and, unless ndjson is requested, a short Japanese line per
// notable event for people watching the terminal.
type Logger struct {
	mu       sync.Mutex
	zl       *zap.Logger
	human    io.Writer
	verbose  bool
	onceKeys map[string]struct{}
}

type Event struct {
	Level      string
	Event      string
	Input      string
	Label      string
	Session    string
	Step       string
	Provider   string
	Model      string
	Attempt    int
	WaitMS     int64
	LatencyMS  int64
	Target     int
	Chars      int
	Strategy   string
	Iteration  int
	OutputFile string
	Error      string
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		MessageKey:     "event",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
	}
}

// New builds a logger. With ndjson the JSON stream goes to stdout, otherwise
// stdout gets human lines. A non-empty logFile always receives the JSON
// stream including debug events.
func New(stdout io.Writer, logFile string, ndjson bool, verbose bool) (*Logger, io.Closer, error) {
	minLevel := zapcore.InfoLevel
	if verbose {
		minLevel = zapcore.DebugLevel
	}

	var (
		cores  []zapcore.Core
		closer io.Closer
	)
	l := &Logger{verbose: verbose, onceKeys: map[string]struct{}{}}
	if ndjson {
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.Lock(zapcore.AddSync(stdout)), minLevel))
	} else {
		l.human = stdout
	}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.Lock(f), zapcore.DebugLevel))
		closer = f
	}
	if len(cores) == 0 {
		l.zl = zap.NewNop()
	} else {
		l.zl = zap.New(zapcore.NewTee(cores...))
	}
	return l, closer, nil
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{zl: zap.NewNop(), onceKeys: map[string]struct{}{}}
}

func (l *Logger) Verbose() bool {
	return l != nil && l.verbose
}

func (l *Logger) Emit(ev Event) {
	if l == nil {
		return
	}
	if ev.Level == "" {
		ev.Level = "info"
	}
	lvl := zapcore.InfoLevel
	if err := lvl.UnmarshalText([]byte(ev.Level)); err != nil {
		lvl = zapcore.InfoLevel
	}
	if l.zl != nil {
		if ce := l.zl.Check(lvl, ev.Event); ce != nil {
			ce.Write(ev.fields()...)
		}
	}
	if l.human == nil || (lvl == zapcore.DebugLevel && !l.verbose) {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if line := l.formatHuman(ev); line != "" {
		_, _ = io.WriteString(l.human, line+"\n")
	}
}

// Sync flushes buffered JSON output.
func (l *Logger) Sync() {
	if l != nil && l.zl != nil {
		_ = l.zl.Sync()
	}
}

func (ev Event) fields() []zap.Field {
	fs := make([]zap.Field, 0, 8)
	str := func(k, v string) {
		if v != "" {
			fs = append(fs, zap.String(k, v))
		}
	}
	num := func(k string, v int64) {
		if v != 0 {
			fs = append(fs, zap.Int64(k, v))
		}
	}
	str("input", ev.Input)
	str("label", ev.Label)
	str("session", ev.Session)
	str("step", ev.Step)
	str("provider", ev.Provider)
	str("model", ev.Model)
	num("attempt", int64(ev.Attempt))
	num("wait_ms", ev.WaitMS)
	num("latency_ms", ev.LatencyMS)
	num("target", int64(ev.Target))
	num("chars", int64(ev.Chars))
	str("strategy", ev.Strategy)
	num("iteration", int64(ev.Iteration))
	str("output_file", ev.OutputFile)
	str("error", ev.Error)
	return fs
}
