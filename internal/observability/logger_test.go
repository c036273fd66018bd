package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Format: "json", Output: &buf, ServiceName: "test"})

	ctx := ContextWithTraceID(context.Background(), "trace-1")
	logger.WithContext(ctx).WithDocument("doc-1").WithOperation("toc").Info().Int("chapters", 3).Msg("done")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "test", entry["service"])
	assert.Equal(t, "trace-1", entry["trace_id"])
	assert.Equal(t, "doc-1", entry["document_id"])
	assert.Equal(t, "toc", entry["operation"])
	assert.Equal(t, float64(3), entry["chapters"])
	assert.Equal(t, "done", entry["message"])
}

func TestNewLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Output: &buf})

	logger.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	logger.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("nonsense"))
	assert.Equal(t, zerolog.Disabled, ParseLevel("off"))
}

func TestTraceIDFromContext_Missing(t *testing.T) {
	assert.Empty(t, TraceIDFromContext(context.Background()))
}
