package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"

	"github.com/bookwise-inc/bookwise/internal/shared/config"
)

var (
	global   *slog.Logger
	globalMu sync.RWMutex
	level    = new(slog.LevelVar)
)

// Init builds the process logger from cfg and installs it as the slog default.
func Init(cfg *config.LoggerConfig) error {
	level.Set(ParseLevel(cfg.Level))

	writer, err := openOutput(cfg.OutputPath)
	if err != nil {
		return err
	}

	sourceLevel := slog.LevelWarn
	if cfg.SourceAllLevels {
		sourceLevel = slog.LevelDebug
	}

	var base slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		base = slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: level})
	} else {
		base = newTintHandler(writer, level)
	}

	l := slog.New(NewSourceHandler(base, sourceLevel))
	globalMu.Lock()
	global = l
	globalMu.Unlock()
	slog.SetDefault(l)
	return nil
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel changes the level of the logger installed by Init.
func SetLevel(l slog.Level) {
	level.Set(l)
}

// Get returns the process logger, creating a console logger on first use.
func Get() *slog.Logger {
	globalMu.RLock()
	l := global
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = slog.New(NewSourceHandler(newTintHandler(os.Stdout, level), slog.LevelWarn))
	}
	return global
}

func Debug(msg string, args ...any) { Get().Debug(msg, args...) }
func Info(msg string, args ...any)  { Get().Info(msg, args...) }
func Warn(msg string, args ...any)  { Get().Warn(msg, args...) }
func Error(msg string, args ...any) { Get().Error(msg, args...) }

func newTintHandler(w io.Writer, lvl slog.Leveler) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		Level:      lvl,
		TimeFormat: time.DateTime,
		NoColor:    !isTerminal(w),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key != "error" || a.Value.Kind() != slog.KindAny {
				return a
			}
			if err, ok := a.Value.Any().(error); ok {
				return tint.Err(err)
			}
			return a
		},
	})
}

func openOutput(path string) (io.Writer, error) {
	switch strings.ToLower(path) {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
