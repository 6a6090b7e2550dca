package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KamdynS/bedrock-agents/config"
	"github.com/KamdynS/bedrock-agents/observability"
)

func TestNewAddsServiceAndContextIDs(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, config.Logging{Level: "info", Service: "portfolio-manager"})

	ctx := observability.WithRequestID(context.Background(), "req-1")
	ctx = WithSessionID(ctx, "sess-9")
	log.InfoContext(ctx, "task completed", "task_id", "t1")
	log.Debug("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "portfolio-manager", rec["service"])
	assert.Equal(t, "req-1", rec["request_id"])
	assert.Equal(t, "sess-9", rec["session_id"])
	assert.Equal(t, "t1", rec["task_id"])
}

func TestTextFormatAndGroups(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, config.Logging{Level: "debug", Service: "svc", Format: "text"}).WithGroup("mcp")
	log.DebugContext(observability.WithRequestID(context.Background(), "r2"), "loaded", "tools", 3)
	out := buf.String()
	assert.Contains(t, out, "mcp.tools=3")
	assert.Contains(t, out, "r2")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}
