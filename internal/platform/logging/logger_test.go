package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func captureDefault(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(previous) })
	return &buf
}

func TestWithTenant(t *testing.T) {
	buf := captureDefault(t)

	WithTenant("100").Info("Registered new tenant", "spreadsheet_id", "sheet-1")

	out := buf.String()
	assert.Contains(t, out, "tenant_id=100")
	assert.Contains(t, out, "spreadsheet_id=sheet-1")
}

func TestWithGifter(t *testing.T) {
	buf := captureDefault(t)

	WithGifter("42").Info("Gift subscription recorded", "gifted_subs", 5)

	out := buf.String()
	assert.Contains(t, out, "user_id=42")
	assert.Contains(t, out, "gifted_subs=5")
}

func TestInitLoggerLevels(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}

	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			InitLogger(tt.level, "text")
			assert.True(t, Logger.Enabled(t.Context(), tt.want))
			if tt.want != slog.LevelDebug {
				assert.False(t, Logger.Enabled(t.Context(), tt.want-1))
			}
		})
	}
}
