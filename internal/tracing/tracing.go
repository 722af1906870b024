// Package tracing configures the OpenTelemetry tracer used for trigger
// cycles. When tracing is disabled every tracer it hands out is a no-op.
package tracing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"wordfill/internal/config"
)

const tracerName = "wordfill"

// Span attribute keys.
var (
	AttrCycleID     = attribute.Key("wordfill.cycle.id")
	AttrApplication = attribute.Key("wordfill.app")
	AttrStrategy    = attribute.Key("wordfill.strategy")
	AttrOutcome     = attribute.Key("wordfill.outcome")
	AttrCompletions = attribute.Key("wordfill.completions")
	AttrWordLength  = attribute.Key("wordfill.word.length")
)

// Provider owns the SDK tracer provider and the exporter's output file.
// The zero value and nil are valid and trace nothing.
type Provider struct {
	provider *sdktrace.TracerProvider
	out      io.Closer
}

// New builds a provider from cfg. Spans are written as JSON lines to
// cfg.OutputPath, or to stderr when it is empty.
func New(cfg config.TracingConfig, serviceName string) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{}, nil
	}

	var (
		w   io.Writer = os.Stderr
		out io.Closer
	)
	if cfg.OutputPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.OutputPath), 0o700); err != nil {
			return nil, fmt.Errorf("create trace dir: %w", err)
		}
		f, err := os.OpenFile(cfg.OutputPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open trace output: %w", err)
		}
		w, out = f, f
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		if out != nil {
			out.Close()
		}
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	p := NewWithExporter(exporter, cfg.SampleRatio, serviceName, true)
	p.out = out
	return p, nil
}

// NewWithExporter builds a provider around exporter. With batch false
// spans are exported synchronously as they end.
func NewWithExporter(exporter sdktrace.SpanExporter, ratio float64, serviceName string, batch bool) *Provider {
	sampler := sdktrace.AlwaysSample()
	if ratio < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}

	export := sdktrace.WithSyncer(exporter)
	if batch {
		export = sdktrace.WithBatcher(exporter)
	}

	res := resource.NewSchemaless(attribute.String("service.name", serviceName))
	return &Provider{
		provider: sdktrace.NewTracerProvider(
			export,
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sampler),
		),
	}
}

// Tracer returns the cycle tracer.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil || p.provider == nil {
		return noop.NewTracerProvider().Tracer(tracerName)
	}
	return p.provider.Tracer(tracerName)
}

// Enabled reports whether spans are recorded.
func (p *Provider) Enabled() bool {
	return p != nil && p.provider != nil
}

// Shutdown flushes pending spans and closes the output file.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.provider == nil {
		return nil
	}
	err := p.provider.Shutdown(ctx)
	if p.out != nil {
		err = errors.Join(err, p.out.Close())
	}
	return err
}

// End finishes span, marking it failed when err is non-nil.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
