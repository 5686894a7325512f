// Package observer provides OTEL-based tracing for the request pipeline.
//
// It exports spans for the plan, execute, and handle phases via OTLP HTTP.
// Users export to any OTEL-compatible backend by setting standard OTEL env
// vars or the observer config endpoint.
package observer

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const scopeName = "github.com/mirageapi/mirage/observer"

// Init sets up the global OTEL trace provider with an OTLP HTTP exporter.
// service names the resource; endpoint overrides the standard OTEL env
// configuration when non-empty. Returns a shutdown function that must be
// called on application exit.
func Init(ctx context.Context, service, endpoint string) (func(context.Context) error, error) {
	if service == "" {
		service = "mirage"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(service)),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, err
	}

	var expOpts []otlptracehttp.Option
	if endpoint != "" {
		expOpts = append(expOpts, otlptracehttp.WithEndpointURL(endpoint))
	}
	traceExp, err := otlptracehttp.New(ctx, expOpts...)
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
