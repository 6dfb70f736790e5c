package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"grader-proxy/api/internal/config"
	"grader-proxy/api/internal/llm"
)

func TestNewDispatcherRegistersAllProviders(t *testing.T) {
	disp := newDispatcher(config.Config{}, zap.NewNop())
	for _, r := range disp.Routes() {
		assert.True(t, r.Available, r.ID)
	}
}

func TestRenderRoutes(t *testing.T) {
	disp := newDispatcher(config.Config{}, zap.NewNop())
	var buf bytes.Buffer
	renderRoutes(&buf, disp.Routes())

	out := buf.String()
	assert.Contains(t, out, "claude-sonnet-4-5-thinking")
	assert.Contains(t, out, "reasoning,images")
	assert.Contains(t, out, "prefill,images")
	assert.Contains(t, out, "json,images")
	assert.Contains(t, out, llm.ProviderDocIntel)
}

func TestModelsCommand(t *testing.T) {
	cmd := newRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"models"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "gemini-2.5-pro")
}

func TestNewLogger(t *testing.T) {
	log, err := newLogger(config.Config{AppEnv: "development", LogLevel: "warn"})
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zap.InfoLevel))
	assert.True(t, log.Core().Enabled(zap.WarnLevel))
}
