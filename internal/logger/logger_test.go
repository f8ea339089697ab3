package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewWithWriter(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(EnvProd, &buf).Debug("hidden")
	assert.Empty(t, buf.String())

	NewWithWriter(EnvProd, &buf).Info("payment completed", slog.String("payment_id", "p1"))
	assert.Contains(t, buf.String(), `"msg":"payment completed"`)
	assert.Contains(t, buf.String(), `"payment_id":"p1"`)

	buf.Reset()
	NewWithWriter(EnvDev, &buf).Debug("visible")
	assert.Contains(t, buf.String(), "visible")

	buf.Reset()
	NewWithWriter(EnvLocal, &buf).Info("plain", Err(errors.New("boom")))
	assert.Contains(t, buf.String(), "msg=plain")
	assert.Contains(t, buf.String(), "error=boom")
}

func TestContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(EnvProd, &buf).With(slog.String("request_id", "r-1"))

	ctx := WithContext(context.Background(), l)
	FromContext(ctx).Info("hello")
	assert.Contains(t, buf.String(), `"request_id":"r-1"`)

	assert.Equal(t, slog.Default(), FromContext(context.Background()))
}
