package log

import (
	"bytes"
	"context"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	color.NoColor = true
	buf := &bytes.Buffer{}
	SetOutput(buf)
	t.Cleanup(func() { SetOutput(nil) })
	return buf
}

func TestInfoWithContext_IncludesRequestID(t *testing.T) {
	buf := capture(t)
	ctx := WithRequestID(context.Background(), "abc-123")

	InfoWithContext(ctx, "loaded %d rows", 3)

	assert.Contains(t, buf.String(), "[req_id=abc-123] loaded 3 rows")
}

func TestError_WithoutRequestID(t *testing.T) {
	buf := capture(t)

	Error("connect failed: %s", "timeout")

	assert.Contains(t, buf.String(), "connect failed: timeout")
	assert.NotContains(t, buf.String(), "req_id")
}

func TestDebug_SilentUntilEnabled(t *testing.T) {
	buf := capture(t)

	Debug("hidden")
	Dump(map[string]int{"a": 1})
	assert.Empty(t, buf.String())

	SetDebug(true)
	t.Cleanup(func() { SetDebug(false) })
	Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}
