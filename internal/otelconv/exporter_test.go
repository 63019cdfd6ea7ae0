package otelconv

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"gofr.dev/pkg/gofr/logging"

	"gofr.dev/gofr-tracer/internal/model"
)

var (
	traceID = trace.TraceID{0x46, 0x3a, 0xc3, 0x5c, 0x9f, 0x64, 0x13, 0xad, 0x48, 0x48, 0x5a, 0x39, 0x53, 0xbb, 0x61, 0x24}
	spanID  = trace.SpanID{0, 0, 0, 0, 0, 0, 0, 0x2}
	rootID  = trace.SpanID{0, 0, 0, 0, 0, 0, 0, 0x1}
	start   = time.Date(2024, 2, 19, 10, 0, 0, 0, time.UTC)
)

func spanContext(id trace.SpanID) trace.SpanContext {
	return trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: id, TraceFlags: trace.FlagsSampled})
}

func TestConvertSpans(t *testing.T) {
	stub := tracetest.SpanStub{
		Name:        "get /orders",
		SpanContext: spanContext(spanID),
		Parent:      spanContext(rootID),
		SpanKind:    trace.SpanKindClient,
		StartTime:   start,
		EndTime:     start.Add(1500 * time.Microsecond),
		Attributes: []attribute.KeyValue{
			attribute.String("http.method", "GET"),
			attribute.String("peer.service", "orders"),
			attribute.String("net.peer.ip", "10.0.0.3"),
			attribute.Int("net.peer.port", 8080),
			attribute.StringSlice("http.flavors", []string{"1.1", "2"}),
		},
		Events:   []sdktrace.Event{{Name: "retry", Time: start.Add(time.Millisecond)}},
		Status:   sdktrace.Status{Code: codes.Error, Description: "connection refused"},
		Resource: resource.NewSchemaless(attribute.String("service.name", "frontend")),
	}

	spans := ConvertSpans([]sdktrace.ReadOnlySpan{stub.Snapshot()})
	require.Len(t, spans, 1)

	expected := model.Span{
		TraceID:        "463ac35c9f6413ad48485a3953bb6124",
		ParentID:       "0000000000000001",
		ID:             "0000000000000002",
		Kind:           model.KindClient,
		Name:           "get /orders",
		Timestamp:      start.UnixMicro(),
		Duration:       1500,
		LocalEndpoint:  &model.Endpoint{ServiceName: "frontend"},
		RemoteEndpoint: &model.Endpoint{ServiceName: "orders", IPv4: "10.0.0.3", Port: 8080},
		Annotations:    []model.Annotation{{Timestamp: start.UnixMicro() + 1000, Value: "retry"}},
		Tags: model.Tags{
			"service.name":  "frontend",
			"http.method":   "GET",
			"peer.service":  "orders",
			"net.peer.ip":   "10.0.0.3",
			"net.peer.port": "8080",
			"http.flavors":  `["1.1","2"]`,
			"error":         "connection refused",
		},
	}

	assert.Equal(t, expected, spans[0])
}

func TestConvertSpans_Fields(t *testing.T) {
	tests := []struct {
		desc  string
		stub  tracetest.SpanStub
		check func(t *testing.T, s model.Span)
	}{
		{
			desc: "root internal span",
			stub: tracetest.SpanStub{SpanContext: spanContext(rootID), SpanKind: trace.SpanKindInternal,
				StartTime: start, EndTime: start.Add(time.Second)},
			check: func(t *testing.T, s model.Span) {
				assert.Empty(t, s.ParentID)
				assert.Empty(t, s.Kind)
				assert.Nil(t, s.LocalEndpoint)
				assert.Nil(t, s.RemoteEndpoint)
				assert.Equal(t, int64(1000000), s.Duration)
			},
		},
		{
			desc: "sub-microsecond duration",
			stub: tracetest.SpanStub{SpanContext: spanContext(spanID), SpanKind: trace.SpanKindServer,
				StartTime: start, EndTime: start.Add(200 * time.Nanosecond)},
			check: func(t *testing.T, s model.Span) {
				assert.Equal(t, model.KindServer, s.Kind)
				assert.Equal(t, int64(1), s.Duration)
			},
		},
		{
			desc: "error without description",
			stub: tracetest.SpanStub{SpanContext: spanContext(spanID), SpanKind: trace.SpanKindProducer,
				StartTime: start, EndTime: start, Status: sdktrace.Status{Code: codes.Error}},
			check: func(t *testing.T, s model.Span) {
				assert.Equal(t, model.KindProducer, s.Kind)
				assert.Equal(t, "true", s.Tags["error"])
				assert.Zero(t, s.Duration)
			},
		},
		{
			desc: "ipv6 peer",
			stub: tracetest.SpanStub{SpanContext: spanContext(spanID), SpanKind: trace.SpanKindConsumer,
				Attributes: []attribute.KeyValue{attribute.String("network.peer.address", "2001:db8::c001")}},
			check: func(t *testing.T, s model.Span) {
				assert.Equal(t, model.KindConsumer, s.Kind)
				assert.Equal(t, &model.Endpoint{IPv6: "2001:db8::c001"}, s.RemoteEndpoint)
				assert.Zero(t, s.Timestamp)
			},
		},
	}

	for i, tc := range tests {
		spans := ConvertSpans([]sdktrace.ReadOnlySpan{tc.stub.Snapshot()})

		require.Len(t, spans, 1, "TEST[%d], Failed.\n%s", i, tc.desc)
		tc.check(t, spans[0])
	}
}

type recorder struct {
	mu    sync.Mutex
	spans []model.Span
	err   error
}

func (r *recorder) sink(_ context.Context, spans []model.Span) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.spans = append(r.spans, spans...)

	return r.err
}

func TestAttributeToStringPair(t *testing.T) {
	tests := []struct {
		desc  string
		kv    attribute.KeyValue
		value string
	}{
		{"string", attribute.String("k", "v"), "v"},
		{"int", attribute.Int64("k", 42), "42"},
		{"bool", attribute.Bool("k", true), "true"},
		{"bool slice", attribute.BoolSlice("k", []bool{true, false}), "[true,false]"},
		{"int slice", attribute.Int64Slice("k", []int64{1, 2}), "[1,2]"},
		{"float slice", attribute.Float64Slice("k", []float64{1.5, 2}), "[1.5,2]"},
		{"string slice", attribute.StringSlice("k", []string{"a", "b"}), `["a","b"]`},
	}

	for i, tc := range tests {
		key, value := attributeToStringPair(tc.kv)

		assert.Equal(t, "k", key, "TEST[%d], Failed.\n%s", i, tc.desc)
		assert.Equal(t, tc.value, value, "TEST[%d], Failed.\n%s", i, tc.desc)
	}
}

func TestExporter_WithTracerProvider(t *testing.T) {
	rec := &recorder{}
	exp := NewExporter(rec.sink, logging.NewLogger(logging.DEBUG))

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exp),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", "gofr-tracer"))),
	)

	ctx, parent := tp.Tracer("test").Start(context.Background(), "reconstruct", trace.WithSpanKind(trace.SpanKindServer))
	_, child := tp.Tracer("test").Start(ctx, "query", trace.WithSpanKind(trace.SpanKindClient))
	child.End()
	parent.End()

	require.NoError(t, tp.Shutdown(context.Background()))
	require.Len(t, rec.spans, 2)

	assert.Equal(t, "query", rec.spans[0].Name)
	assert.Equal(t, rec.spans[1].ID, rec.spans[0].ParentID)
	assert.Equal(t, "gofr-tracer", rec.spans[1].LocalServiceName())
	assert.Equal(t, rec.spans[0].TraceID, rec.spans[1].TraceID)
}

func TestExporter_SinkError(t *testing.T) {
	rec := &recorder{err: errors.New("store unavailable")}
	exp := NewExporter(rec.sink, nil)

	stub := tracetest.SpanStub{SpanContext: spanContext(spanID)}

	err := exp.ExportSpans(context.Background(), []sdktrace.ReadOnlySpan{stub.Snapshot()})

	assert.Equal(t, rec.err, err)
}

func TestExporter_Shutdown(t *testing.T) {
	rec := &recorder{}
	exp := NewExporter(rec.sink, nil)

	require.NoError(t, exp.Shutdown(context.Background()))

	stub := tracetest.SpanStub{SpanContext: spanContext(spanID)}

	require.NoError(t, exp.ExportSpans(context.Background(), []sdktrace.ReadOnlySpan{stub.Snapshot()}))
	assert.Empty(t, rec.spans)
	assert.NoError(t, exp.ExportSpans(context.Background(), nil))
}
