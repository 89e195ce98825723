package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromContextFallsBackToDefault(t *testing.T) {
	assert.Same(t, slog.Default(), FromContext(context.Background()))
}

func TestIntoContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "warn")
	ctx := IntoContext(context.Background(), l)

	got := FromContext(ctx)
	got.Info("dropped")
	got.Warn("kept", "user", "alice")

	assert.Same(t, l, got)
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), `"user":"alice"`)
}
