package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithError_AttachesErrorField(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewZapAdapter(zap.New(core)).WithFields(map[string]interface{}{"component": "orchestrator"})

	log.WithError(errors.New("connection refused")).Error("failed to create job run", map[string]interface{}{"runId": "run-1"})

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "connection refused", fields["error"])
	assert.Equal(t, "orchestrator", fields["component"])
	assert.Equal(t, "run-1", fields["runId"])
}

func TestMapToZapFields_NamesErrors(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	NewZapAdapter(zap.New(core)).Warn("lock", map[string]interface{}{"cause": errors.New("timeout")})

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "timeout", logs.All()[0].ContextMap()["cause"])
}
