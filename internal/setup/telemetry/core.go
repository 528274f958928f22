package telemetry

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zapcore"
)

// Core implements zapcore.Core to record error logs as OpenTelemetry spans.
type Core struct {
	zapcore.LevelEnabler
	tracer trace.Tracer
}

// NewCore creates a new core that records error logs through the global tracer provider.
func NewCore(enab zapcore.LevelEnabler) zapcore.Core {
	return &Core{
		LevelEnabler: enab,
		tracer:       otel.Tracer("github.com/robalyx/cotd/logs"),
	}
}

func (c *Core) With(_ []zapcore.Field) zapcore.Core {
	return c
}

func (c *Core) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *Core) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	// Only forward Error and higher severity
	if ent.Level < zapcore.ErrorLevel {
		return nil
	}

	spanName := "error." + getErrorCategory(ent)
	_, span := c.tracer.Start(context.Background(), spanName)
	defer span.End()

	// Add log entry details as span attributes
	attrs := []attribute.KeyValue{
		attribute.String("error.message", ent.Message),
		attribute.String("error.level", ent.Level.String()),
		attribute.String("error.caller", ent.Caller.String()),
	}

	// Encode fields so errors and numbers survive, not just string fields
	enc := zapcore.NewMapObjectEncoder()
	for _, field := range fields {
		field.AddTo(enc)
	}

	for key, value := range enc.Fields {
		attrs = append(attrs, attribute.String(key, fmt.Sprint(value)))
	}

	span.SetAttributes(attrs...)
	return nil
}

func (c *Core) Sync() error {
	return nil
}

// getErrorCategory maps the caller package to a span name suffix.
func getErrorCategory(ent zapcore.Entry) string {
	switch {
	case strings.Contains(ent.Caller.Function, "database"):
		return "database"
	case strings.Contains(ent.Caller.Function, "redis"):
		return "redis"
	case strings.Contains(ent.Caller.Function, "upstream"):
		return "upstream"
	case strings.Contains(ent.Caller.Function, "bot"):
		return "discord"
	case strings.Contains(ent.Caller.Function, "worker"):
		return "job"
	case strings.Contains(ent.Caller.Function, "rest"):
		return "api"
	default:
		return "application"
	}
}
