package logging

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mylabook/opsflow/internal/config"
)

const appName = "opsflow"

// New builds a logger for the given settings.
func New(w io.Writer, cfg config.LoggingConfig) (*log.Logger, error) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse logging level %q: %w", cfg.Level, err)
	}
	if w == nil {
		w = io.Discard
	}

	formatter := log.TextFormatter
	switch strings.ToLower(cfg.Format) {
	case "json":
		formatter = log.JSONFormatter
	case "logfmt":
		formatter = log.LogfmtFormatter
	}

	return log.NewWithOptions(w, log.Options{
		Level:           level,
		Prefix:          appName,
		ReportTimestamp: cfg.ReportTimestamp,
		TimeFormat:      time.RFC3339,
		Formatter:       formatter,
	}), nil
}

// Setup installs the logger as the package-level default used across the service.
func Setup(w io.Writer, cfg config.LoggingConfig) (*log.Logger, error) {
	logger, err := New(w, cfg)
	if err != nil {
		return nil, err
	}
	log.SetDefault(logger)
	return logger, nil
}

// CronLogger adapts a charm logger to robfig/cron's Logger interface.
type CronLogger struct {
	Logger *log.Logger
}

func (c CronLogger) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.Default()
}

// Info logs routine scheduler activity at debug level; cron is chatty.
func (c CronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.logger().Debug("⏰ "+msg, keysAndValues...)
}

func (c CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.logger().Error("⏰ "+msg, append(keysAndValues, "err", err)...)
}
