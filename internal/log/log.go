// Package log is the process-wide leveled logger. Call sites pass a message
// followed by key/value pairs:
//
//	appLog.Info("ics fetch success", "id", src.ID, "status", 200)
//	appLog.Error("render failed", err, "date", day)
//
// The backend is a zerolog root logger configured once via Init.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Options configures the root logger.
type Options struct {
	// Level is one of trace, debug, info, warn, error. Defaults to info.
	Level string
	// Format is "console" (human readable) or "json".
	Format string
	// Writer defaults to stderr.
	Writer io.Writer
	// Component is attached to every line when set (e.g. "server", "display").
	Component string
}

var (
	initOnce sync.Once
	root     atomic.Pointer[zerolog.Logger]
)

// Init configures the root logger. Only the first call has any effect;
// later calls are ignored so packages can log before main finishes wiring.
func Init(opt Options) {
	initOnce.Do(func() {
		zerolog.TimeFieldFormat = time.RFC3339Nano

		var w io.Writer = os.Stderr
		if opt.Writer != nil {
			w = opt.Writer
		}
		if opt.Format != "json" {
			w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
		}

		ctx := zerolog.New(w).Level(parseLevel(opt.Level)).With().Timestamp()
		if opt.Component != "" {
			ctx = ctx.Str("component", opt.Component)
		}
		l := ctx.Logger()
		root.Store(&l)
	})
}

func get() *zerolog.Logger {
	if l := root.Load(); l != nil {
		return l
	}
	Init(Options{})
	return root.Load()
}

// SetLevel changes the minimum level of the root logger.
func SetLevel(l Level) {
	cur := get().Level(parseLevel(string(l)))
	root.Store(&cur)
}

func Debug(msg string, kv ...any) {
	withKVs(get().Debug(), kv).Msg(msg)
}

func Info(msg string, kv ...any) {
	withKVs(get().Info(), kv).Msg(msg)
}

func Warn(msg string, kv ...any) {
	withKVs(get().Warn(), kv).Msg(msg)
}

func Error(msg string, err error, kv ...any) {
	withKVs(get().Error().Err(err), kv).Msg(msg)
}

// withKVs appends key/value pairs to e. Non-string keys are skipped and an
// odd trailing value is ignored.
func withKVs(e *zerolog.Event, kv []any) *zerolog.Event {
	if e == nil {
		return nil
	}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		switch v := kv[i+1].(type) {
		case string:
			e = e.Str(key, v)
		case int:
			e = e.Int(key, v)
		case int64:
			e = e.Int64(key, v)
		case bool:
			e = e.Bool(key, v)
		case float64:
			e = e.Float64(key, v)
		case time.Duration:
			e = e.Dur(key, v)
		case time.Time:
			e = e.Time(key, v)
		case error:
			e = e.AnErr(key, v)
		case fmt.Stringer:
			e = e.Str(key, v.String())
		default:
			e = e.Interface(key, v)
		}
	}
	return e
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
