package ctxlogger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextAttrsAreLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(ContextHandler{Handler: slog.NewJSONHandler(&buf, nil)})

	ctx := AppendCtx(context.Background(), slog.String("request_id", "r1"))
	child := AppendCtx(ctx, slog.String("platform", "twitch"))

	logger.With("component", "test").InfoContext(child, "hello")
	logger.InfoContext(ctx, "parent")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var first, second map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &first))
	require.NoError(t, json.Unmarshal(lines[1], &second))

	assert.Equal(t, "r1", first["request_id"])
	assert.Equal(t, "twitch", first["platform"])
	assert.Equal(t, "test", first["component"])
	assert.Equal(t, "r1", second["request_id"])
	assert.NotContains(t, second, "platform", "a child context does not leak into its parent")
}
