package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mylabook/opsflow/internal/config"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, config.LoggingConfig{Level: "info", Format: "json"})
	require.NoError(t, err)

	logger.Info("step delayed", "step_id", 7)
	logger.Debug("hidden")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "step delayed", line["msg"])
	assert.Equal(t, float64(7), line["step_id"])
}

func TestNew_RejectsUnknownLevel(t *testing.T) {
	_, err := New(&bytes.Buffer{}, config.LoggingConfig{Level: "verbose"})
	assert.Error(t, err)
}

func TestCronLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, config.LoggingConfig{Level: "debug", Format: "logfmt"})
	require.NoError(t, err)

	var cl cron.Logger = CronLogger{Logger: logger}
	cl.Info("schedule", "entry", 1)
	cl.Error(errors.New("boom"), "job failed")

	out := buf.String()
	assert.Contains(t, out, "schedule")
	assert.Contains(t, out, "job failed")
	assert.Contains(t, out, "boom")
}
