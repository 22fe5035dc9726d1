package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, data []byte) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(data), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal(line, &entry), "line %q", line)
		entries = append(entries, entry)
	}
	return entries
}

func TestNew_FormatAndLevel(t *testing.T) {
	tests := []struct {
		name     string
		format   string
		level    string
		wantJSON bool
		wantMsgs []string
	}{
		{name: "json at debug", format: "json", level: "debug", wantJSON: true, wantMsgs: []string{"claim", "retry", "exhausted"}},
		{name: "json at warn", format: "json", level: "warn", wantJSON: true, wantMsgs: []string{"retry", "exhausted"}},
		{name: "unknown format falls back to json", format: "xml", level: "error", wantJSON: true, wantMsgs: []string{"exhausted"}},
		{name: "console", format: "console", level: "info", wantMsgs: []string{"retry", "exhausted"}},
		{name: "empty format is console", format: "", level: "", wantMsgs: []string{"retry", "exhausted"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			logger, err := New(&Config{Level: tt.level, Format: tt.format, writer: &out})
			require.NoError(t, err)

			logger.Debug("claim", slog.String("job_id", "j-1"))
			logger.Warn("retry", slog.String("job_id", "j-1"))
			logger.Error("exhausted", slog.String("job_id", "j-1"))

			if !tt.wantJSON {
				lines := strings.Split(strings.TrimSpace(out.String()), "\n")
				require.Len(t, lines, len(tt.wantMsgs))
				for i, msg := range tt.wantMsgs {
					assert.Contains(t, lines[i], msg)
					assert.Contains(t, lines[i], "j-1")
				}
				return
			}

			entries := decodeLines(t, out.Bytes())
			require.Len(t, entries, len(tt.wantMsgs))
			for i, msg := range tt.wantMsgs {
				assert.Equal(t, msg, entries[i]["msg"])
				assert.Equal(t, "j-1", entries[i]["job_id"])
			}
		})
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.log")

	logger, err := New(&Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)
	logger.With(slog.String("job_id", "j-1")).Info("job completed")
	require.NoError(t, logger.Close())

	// a second logger appends rather than truncating
	logger, err = New(&Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)
	logger.WithGroup("ledger").Info("refund", slog.Int64("amount", 1))
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	entries := decodeLines(t, data)
	require.Len(t, entries, 2)
	assert.Equal(t, "job completed", entries[0]["msg"])
	assert.Equal(t, "j-1", entries[0]["job_id"])
	assert.Equal(t, map[string]any{"amount": float64(1)}, entries[1]["ledger"])
}

func TestNew_ConsoleFileHasNoColor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.log")

	logger, err := New(&Config{Level: "info", Format: "console", Output: path})
	require.NoError(t, err)
	logger.Error("job failed", slog.String("job_id", "j-1"))
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "job failed")
	assert.NotContains(t, string(data), "\x1b[")
}

func TestNew_FileOutputError(t *testing.T) {
	logger, err := New(&Config{Output: filepath.Join(t.TempDir(), "missing", "worker.log")})
	require.Error(t, err)
	assert.Nil(t, logger)
}

func TestLogger_Close(t *testing.T) {
	t.Run("stdout has nothing to close", func(t *testing.T) {
		logger, err := New(&Config{Output: "stdout"})
		require.NoError(t, err)
		assert.NoError(t, logger.Close())
		assert.NoError(t, NewDefault().Close())
	})

	t.Run("derived loggers share the file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "api.log")
		logger, err := New(&Config{Format: "json", Output: path})
		require.NoError(t, err)

		derived := logger.WithAttrs(slog.String("service", "api")).With("request_id", "r-1")
		derived.Info("request served")
		require.NoError(t, derived.Close())

		// the file is closed once for all of them
		assert.Error(t, logger.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		entries := decodeLines(t, data)
		require.Len(t, entries, 1)
		assert.Equal(t, "api", entries[0]["service"])
		assert.Equal(t, "r-1", entries[0]["request_id"])
	})
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"Warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"trace":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}

	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), "level %q", in)
	}
}
