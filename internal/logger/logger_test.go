package logger

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_FormatAutoDetection(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		wantJSON    bool
	}{
		{name: "production uses json", environment: "production", wantJSON: true},
		{name: "development uses pretty", environment: "development", wantJSON: false},
		{name: "empty uses pretty", environment: "", wantJSON: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := New(Config{Writer: &buf, Environment: tt.environment, Level: slog.LevelInfo})
			log.Info("pass complete")

			if tt.wantJSON {
				assert.Contains(t, buf.String(), `"msg":"pass complete"`)
			} else {
				assert.Contains(t, buf.String(), "INF")
				assert.Contains(t, buf.String(), "pass complete")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"Error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestPrettyHandler_Attributes(t *testing.T) {
	var buf bytes.Buffer
	handler := NewPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})

	slog.New(handler.WithAttrs([]slog.Attr{slog.String("component", "mutator")})).
		Info("placed cover", "entry_id", "m1", "slot", "poster.jpg")

	out := buf.String()
	assert.Contains(t, out, "component=mutator")
	assert.Contains(t, out, "entry_id=m1")
	assert.Contains(t, out, "slot=poster.jpg")
}

func TestPrettyHandler_GroupPrefixesKeys(t *testing.T) {
	var buf bytes.Buffer
	handler := NewPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})

	assert.Equal(t, handler, handler.WithGroup(""))

	slog.New(handler.WithGroup("pass")).Info("started", "trigger", "watch")
	assert.Contains(t, buf.String(), "pass.trigger=watch")
}

func TestPrettyHandler_Enabled(t *testing.T) {
	handler := NewPrettyHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})

	assert.False(t, handler.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, handler.Enabled(context.Background(), slog.LevelError))
}

func TestNewPrettyHandler_NilOptions(t *testing.T) {
	handler := NewPrettyHandler(&bytes.Buffer{}, nil)
	require.NotNil(t, handler)
	assert.True(t, handler.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, handler.Enabled(context.Background(), slog.LevelDebug))
}

func TestLogger_Component(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Writer: &buf, Format: "json", Level: slog.LevelDebug})

	log.Component("reconcile").Warn("pass degraded", "error", "catalog unavailable")

	out := buf.String()
	assert.Contains(t, out, `"component":"reconcile"`)
	assert.Contains(t, out, `"error":"catalog unavailable"`)
}

func TestNew_FileCopy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "coversync.log")

	var buf bytes.Buffer
	log := New(Config{
		Writer: &buf,
		Format: "pretty",
		Level:  slog.LevelInfo,
		File:   &FileConfig{Path: path},
	})
	log.Debug("hidden")
	log.Info("written twice")

	assert.Contains(t, buf.String(), "written twice")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"written twice"`)
	assert.NotContains(t, string(data), "hidden")
}
