package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap/zaptest"

	"github.com/saltfish/seatscope/go-backend/internal/config"
)

func TestSetup_DisabledKeepsGlobalProvider(t *testing.T) {
	before := otel.GetTracerProvider()

	shutdown, err := Setup(context.Background(), &config.TracingConfig{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
	assert.Equal(t, before, otel.GetTracerProvider())
}

func TestSetup_Enabled(t *testing.T) {
	before := otel.GetTracerProvider()

	cfg := &config.TracingConfig{Endpoint: "http://127.0.0.1:4318", ServiceName: "seatscope-test", SampleRatio: 1}
	shutdown, err := Setup(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.NotEqual(t, before, otel.GetTracerProvider())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Nothing was exported, so a cancelled shutdown returns promptly.
	_ = shutdown(ctx)
}
