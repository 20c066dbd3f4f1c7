package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSourceHandler(t *testing.T) {
	tests := []struct {
		name       string
		minLevel   slog.Level
		logAt      slog.Level
		wantSource bool
	}{
		{"info below warn threshold", slog.LevelWarn, slog.LevelInfo, false},
		{"warn at threshold", slog.LevelWarn, slog.LevelWarn, true},
		{"error above threshold", slog.LevelWarn, slog.LevelError, true},
		{"debug with all levels", slog.LevelDebug, slog.LevelDebug, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			base := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
			l := slog.New(NewSourceHandler(base, tt.minLevel))

			l.Log(t.Context(), tt.logAt, "billing tick")

			if tt.wantSource {
				assert.Contains(t, buf.String(), "source=")
				assert.Contains(t, buf.String(), "sourcehandler_test.go")
			} else {
				assert.NotContains(t, buf.String(), "source=")
			}
		})
	}
}

func TestSourceHandler_WithAttrsKeepsThreshold(t *testing.T) {
	var buf bytes.Buffer
	base := slog.NewTextHandler(&buf, nil)
	l := slog.New(NewSourceHandler(base, slog.LevelError)).With("subscription_id", 7)

	l.Warn("skipped")
	assert.Contains(t, buf.String(), "subscription_id=7")
	assert.NotContains(t, buf.String(), "source=")

	buf.Reset()
	l.Error("failed")
	assert.Contains(t, buf.String(), "source=")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNopLogger(t *testing.T) {
	l := NewNop().Named("billing").With("k", "v")
	assert.NotPanics(t, func() {
		l.Infow("ignored", "a", 1)
		l.Errorw("ignored", "error", assert.AnError)
	})
}

func TestInterfaceReportsCallerAsSource(t *testing.T) {
	var buf bytes.Buffer
	base := slog.NewTextHandler(&buf, nil)
	l := NewLoggerWithSlog(slog.New(NewSourceHandler(base, slog.LevelWarn)))

	l.Warnw("gateway timeout", "charge_id", "cs_1")

	assert.Contains(t, buf.String(), "charge_id=cs_1")
	assert.Contains(t, buf.String(), "sourcehandler_test.go")
	assert.NotContains(t, buf.String(), "interface.go")
}
