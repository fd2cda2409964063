package otelhelper

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SetError marks the span failed and records err on it.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.AddEvent("error_occurred", trace.WithAttributes(
		attrs...,
	))
}

// SetFailure marks the span failed for a business failure that has no error value.
func SetFailure(span trace.Span, message string, attrs ...attribute.KeyValue) {
	span.SetStatus(codes.Error, message)
	span.AddEvent("failure", trace.WithAttributes(
		append(attrs, attribute.String("message", message))...,
	))
}
