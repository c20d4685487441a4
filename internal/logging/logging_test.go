// ABOUTME: Tests for logger construction and the color handler
// ABOUTME: Checks levels, formats, attribute rendering and file output

package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/agentdesk/internal/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("info"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("chatty"))
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(config.LoggingConfig{Level: "info", Format: "text"}, &buf, false)

	logger.Debug("hidden")
	logger.With("component", "session").Info("turn completed", "agent", "ims", "events", 6)
	logger.Warn("careful")
	logger.Error("broken")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "INF turn completed component=session agent=ims events=6")
	assert.Contains(t, out, "WRN careful")
	assert.Contains(t, out, "ERR broken")
	assert.NotContains(t, out, "\x1b[", "colors are off")
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 3)
}

func TestNew_Colorized(t *testing.T) {
	var buf bytes.Buffer
	logger := New(config.LoggingConfig{Level: "debug"}, &buf, true)

	logger.Debug("dbg")
	assert.Contains(t, buf.String(), "\x1b[")
	assert.Contains(t, buf.String(), "DBG")
}

func TestNew_Groups(t *testing.T) {
	var buf bytes.Buffer
	logger := New(config.LoggingConfig{Level: "info"}, &buf, false)

	logger.WithGroup("req").With("id", "r1").Info("sent", slog.Group("http", "status", 200))

	out := buf.String()
	assert.Contains(t, out, "req.id=r1")
	assert.Contains(t, out, "req.http.status=200")
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(config.LoggingConfig{Level: "warn", Format: "json"}, &buf, true)

	logger.Info("skipped")
	logger.Warn("kept", "agent", "kb")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "kept", rec["msg"])
	assert.Equal(t, "kb", rec["agent"])
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "agentdesk.log")

	logger, closeFn, err := Open(config.LoggingConfig{Level: "info", File: path}, os.Stderr)
	require.NoError(t, err)
	logger.Info("to file", "k", "v")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "INF to file k=v")
	assert.NotContains(t, string(data), "\x1b[")
}

func TestOpen_Fallback(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn, err := Open(config.LoggingConfig{Level: "info"}, &buf)
	require.NoError(t, err)
	defer closeFn()

	logger.Info("hello")
	assert.Contains(t, buf.String(), "INF hello")
}

func TestColorHandler_ConcurrentWrites(t *testing.T) {
	var (
		mu  sync.Mutex
		buf bytes.Buffer
	)
	w := writerFunc(func(p []byte) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		return buf.Write(p)
	})
	logger := New(config.LoggingConfig{Level: "info"}, w, false)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.With("worker", i).Info("line")
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 20)
	for _, l := range lines {
		assert.Contains(t, l, "INF line worker=")
	}
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
