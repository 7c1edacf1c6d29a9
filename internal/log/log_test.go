package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewWithWriter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		logFunc func(l Logger)
		want    []string
		notWant []string
	}{
		{
			name:    "text format includes message and attrs",
			cfg:     Config{Level: slog.LevelInfo},
			logFunc: func(l Logger) { l.Info("quota consumed", "user", "alice", "tokens", 42) },
			want:    []string{"quota consumed", "user=alice", "tokens=42"},
		},
		{
			name:    "json format",
			cfg:     Config{Level: slog.LevelInfo, JSON: true},
			logFunc: func(l Logger) { l.Info("request admitted") },
			want:    []string{`"msg":"request admitted"`},
		},
		{
			name:    "debug suppressed at info level",
			cfg:     Config{Level: slog.LevelInfo},
			logFunc: func(l Logger) { l.Debug("hidden") },
			notWant: []string{"hidden"},
		},
		{
			name:    "debug visible at debug level",
			cfg:     Config{Level: slog.LevelDebug},
			logFunc: func(l Logger) { l.Debug("visible") },
			want:    []string{"visible"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger := NewWithWriter(&buf, tt.cfg)
			tt.logFunc(logger)

			out := buf.String()
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output missing %q, got: %s", w, out)
				}
			}
			for _, nw := range tt.notWant {
				if strings.Contains(out, nw) {
					t.Errorf("output should not contain %q, got: %s", nw, out)
				}
			}
		})
	}
}

func TestNewNopDiscards(t *testing.T) {
	t.Parallel()

	logger := NewNop()
	// Must not panic and must accept all levels.
	logger.Debug("a")
	logger.Info("b")
	logger.Warn("c")
	logger.Error("d")
}
