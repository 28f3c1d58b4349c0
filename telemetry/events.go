package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RecordRefreshCompletedEvent emits a structured span event for a finished
// refresh pass
func RecordRefreshCompletedEvent(
	span trace.Span,
	trigger string,
	severity string,
	upToDate bool,
	probeErrors int64,
	durationSeconds float64,
	message string,
) {
	if span == nil {
		return
	}

	span.AddEvent("host.refresh.completed", trace.WithAttributes(
		attribute.String("event.type", "host.refresh.completed"),
		attribute.String("refresh.trigger", trigger),
		attribute.String("severity", severity),
		attribute.Bool("up_to_date", upToDate),
		attribute.Int64("probe.errors", probeErrors),
		attribute.Float64("duration.seconds", durationSeconds),
		attribute.String("message", message),
	))
}

// RecordEnforcementDetectedEvent emits a structured span event when an
// active enforcement record is in effect
func RecordEnforcementDetectedEvent(
	span trace.Span,
	requiredVersion string,
	installedVersion string,
	daysRemaining int64,
	message string,
) {
	if span == nil {
		return
	}

	span.AddEvent("host.enforcement.detected", trace.WithAttributes(
		attribute.String("event.type", "host.enforcement.detected"),
		attribute.String("version.required", requiredVersion),
		attribute.String("version.installed", installedVersion),
		attribute.Int64("days_remaining", daysRemaining),
		attribute.String("message", message),
	))
}

// RecordSeverityChangedEvent emits a structured span event when a refresh
// moves the host to a different severity
func RecordSeverityChangedEvent(
	span trace.Span,
	from string,
	to string,
	summary string,
) {
	if span == nil {
		return
	}

	span.AddEvent("host.severity.changed", trace.WithAttributes(
		attribute.String("event.type", "host.severity.changed"),
		attribute.String("severity.from", from),
		attribute.String("severity.to", to),
		attribute.String("message", summary),
	))
}
