// Package logger provides a lightweight, centralized logging facility
// with configurable verbosity levels.
//
// The call-site API stays printf-style (Errorf, Warnf, Infof, Debugf, Tracef)
// with a single process-wide verbosity knob. Output is written through zap,
// so the same messages can be emitted as human-readable console lines or
// as JSON for log shippers.
//
// Verbosity levels (in increasing order):
//
//	Error < Info < Debug < Trace
//
// Example usage:
//
//	logger.Init(logger.Options{Verbosity: 2})
//	defer logger.Sync()
//	logger.Infof("event=run_start index=%s", idx)
//	logger.Debugf("spot=%f vol=%f", spot, vol)
package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents a logging verbosity level.
// Higher values mean more verbose logging.
type Level int

const (
	Error Level = iota // Error logs only critical failures.
	Info               // Info logs high-level application progress.
	Debug              // Debug logs detailed diagnostic information.
	Trace              // Trace logs very fine-grained execution details.
)

// Options configures the zap backend.
type Options struct {
	Verbosity int    // 0=error, 1=info, 2=debug, 3=trace
	Format    string // "console" (default) or "json"
}

var (
	mu      sync.RWMutex
	current = Info
	sugar   = build(Options{Verbosity: int(Info)})
)

// Init rebuilds the backend from opts. Safe to call more than once;
// typically called once after flags and config are parsed.
func Init(opts Options) {
	l := build(opts)

	mu.Lock()
	defer mu.Unlock()
	_ = sugar.Sync()
	sugar = l
	current = clamp(opts.Verbosity)
}

// SetVerbosity sets the global logging verbosity without touching the encoder.
func SetVerbosity(v int) {
	lvl := clamp(v)

	mu.Lock()
	defer mu.Unlock()
	current = lvl
}

// Verbosity returns the active verbosity level.
func Verbosity() Level {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Sync flushes any buffered log entries.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = sugar.Sync()
}

func clamp(v int) Level {
	switch {
	case v < int(Error):
		return Error
	case v > int(Trace):
		return Trace
	}
	return Level(v)
}

// build creates the sugared zap logger. The zap level is left at debug;
// filtering by verbosity happens in logf so Trace can sit below Debug.
func build(opts Options) *zap.SugaredLogger {
	encoding := "console"
	levelEncoder := zapcore.CapitalLevelEncoder
	if opts.Format == "json" {
		encoding = "json"
		levelEncoder = zapcore.LowercaseLevelEncoder
	}

	cfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapcore.DebugLevel),
		Development: false,
		Encoding:    encoding,
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    levelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		// Logs go to stderr so stdout stays clean for CLI output.
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	l, err := cfg.Build(zap.AddCallerSkip(2))
	if err != nil {
		// Encoder config above is static; a failure here means stderr is unusable.
		l = zap.New(zapcore.NewCore(
			zapcore.NewConsoleEncoder(cfg.EncoderConfig),
			zapcore.Lock(os.Stderr),
			zapcore.DebugLevel,
		))
	}
	return l.Sugar()
}

// logf is the internal logging helper.
// It checks verbosity and delegates formatting/output to zap.
func logf(l Level, emit func(*zap.SugaredLogger, string, ...any), format string, args ...any) {
	mu.RLock()
	s, lvl := sugar, current
	mu.RUnlock()

	if lvl >= l {
		emit(s, format, args...)
	}
}

// Errorf logs an error-level message.
// Use this for failures that require attention.
func Errorf(format string, args ...any) {
	logf(Error, (*zap.SugaredLogger).Errorf, format, args...)
}

// Warnf logs a recoverable problem. It is shown at Info verbosity.
func Warnf(format string, args ...any) {
	logf(Info, (*zap.SugaredLogger).Warnf, format, args...)
}

// Infof logs an informational message.
// Use this for major lifecycle events.
func Infof(format string, args ...any) {
	logf(Info, (*zap.SugaredLogger).Infof, format, args...)
}

// Debugf logs debugging information.
func Debugf(format string, args ...any) {
	logf(Debug, (*zap.SugaredLogger).Debugf, format, args...)
}

// Tracef logs very detailed execution traces (per-bar replay).
// Use this sparingly due to high volume.
func Tracef(format string, args ...any) {
	logf(Trace, func(s *zap.SugaredLogger, f string, a ...any) {
		s.Debugf("[trace] "+f, a...)
	}, format, args...)
}
