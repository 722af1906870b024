package tracing

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"wordfill/internal/config"
)

func TestDisabledIsNoop(t *testing.T) {
	p, err := New(config.TracingConfig{}, "wordfilld")
	require.NoError(t, err)
	assert.False(t, p.Enabled())

	_, span := p.Tracer().Start(context.Background(), "cycle")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
	assert.NoError(t, p.Shutdown(context.Background()))

	var nilProvider *Provider
	assert.False(t, nilProvider.Enabled())
	assert.NotNil(t, nilProvider.Tracer())
	assert.NoError(t, nilProvider.Shutdown(context.Background()))
}

func TestSpansAreExported(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	p := NewWithExporter(exp, 1, "wordfilld", false)
	require.True(t, p.Enabled())

	ctx, root := p.Tracer().Start(context.Background(), "trigger")
	root.SetAttributes(AttrCycleID.String("01HX"), AttrCompletions.Int(3))
	_, child := p.Tracer().Start(ctx, "extract")
	End(child, errors.New("no text"))
	End(root, nil)

	spans := exp.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "extract", spans[0].Name)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, spans[1].SpanContext.SpanID(), spans[0].Parent.SpanID())
	assert.Equal(t, "trigger", spans[1].Name)
	assert.Equal(t, codes.Unset, spans[1].Status.Code)
	assert.Contains(t, spans[1].Attributes, AttrCycleID.String("01HX"))

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestZeroRatioSamplesNothing(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	p := NewWithExporter(exp, 0, "wordfilld", false)

	_, span := p.Tracer().Start(context.Background(), "trigger")
	span.End()
	assert.Empty(t, exp.GetSpans())
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traces", "spans.json")
	p, err := New(config.TracingConfig{Enabled: true, OutputPath: path, SampleRatio: 1}, "wordfilld")
	require.NoError(t, err)

	_, span := p.Tracer().Start(context.Background(), "trigger")
	span.End()
	require.NoError(t, p.Shutdown(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"Name":"trigger"`)
}
