package api

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "taskflow/api"

type taskRequestMetrics struct {
	logger         *log.Logger
	span           trace.Span
	start          time.Time
	authDuration   time.Duration
	fetchDuration  time.Duration
	encodeDuration time.Duration
	tasksReturned  int
	errorStage     string
}

func newTaskRequestMetrics(ctx context.Context, logger *log.Logger) (*taskRequestMetrics, context.Context) {
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, "tasks.fetch")
	return &taskRequestMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
	}, spanCtx
}

func (m *taskRequestMetrics) ObserveAuth(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.authDuration = duration
}

func (m *taskRequestMetrics) ObserveFetch(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.fetchDuration = duration
}

func (m *taskRequestMetrics) ObserveEncode(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.encodeDuration = duration
}

func (m *taskRequestMetrics) SetTasksReturned(count int) {
	if count < 0 {
		count = 0
	}
	m.tasksReturned = count
}

func (m *taskRequestMetrics) SetErrorStage(stage string) {
	if m.errorStage == "" {
		m.errorStage = stage
	}
}

// Log finalizes the span and emits a debug line with the request breakdown.
func (m *taskRequestMetrics) Log(status int, err error) {
	total := time.Since(m.start)
	m.span.SetAttributes(
		attribute.Int("http.status_code", status),
		attribute.Int("tasks.count", m.tasksReturned),
		attribute.Int64("duration.auth_us", m.authDuration.Microseconds()),
		attribute.Int64("duration.fetch_us", m.fetchDuration.Microseconds()),
		attribute.Int64("duration.encode_us", m.encodeDuration.Microseconds()),
		attribute.Int64("duration.total_us", total.Microseconds()),
	)
	if m.errorStage != "" {
		m.span.SetAttributes(attribute.String("error.stage", m.errorStage))
	}
	if err != nil {
		m.span.RecordError(err)
		m.span.SetStatus(codes.Error, err.Error())
	}
	m.span.End()

	if m.logger != nil && m.logger.IsLevelEnabled(log.DebugLevel) {
		m.logger.WithFields(log.Fields{
			"status":    status,
			"tasks":     m.tasksReturned,
			"auth_us":   m.authDuration.Microseconds(),
			"fetch_us":  m.fetchDuration.Microseconds(),
			"encode_us": m.encodeDuration.Microseconds(),
			"total_us":  total.Microseconds(),
			"stage":     m.errorStage,
		}).Debug("tasks request")
	}
}
