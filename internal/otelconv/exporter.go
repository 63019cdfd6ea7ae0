// Package otelconv turns spans recorded with the OpenTelemetry SDK into Zipkin-shaped spans so
// they can be stored and reconstructed like spans from any other collector.
package otelconv

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"gofr.dev/pkg/gofr/logging"

	"gofr.dev/gofr-tracer/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Sink receives converted spans, for example to persist them.
type Sink func(ctx context.Context, spans []model.Span) error

// Exporter is an sdktrace.SpanExporter handing converted spans to a Sink.
type Exporter struct {
	sink   Sink
	logger logging.Logger

	mu      sync.Mutex
	stopped bool
}

var _ sdktrace.SpanExporter = (*Exporter)(nil)

func NewExporter(sink Sink, logger logging.Logger) *Exporter {
	if logger == nil {
		logger = logging.NewLogger(logging.INFO)
	}

	return &Exporter{
		sink:   sink,
		logger: logger,
	}
}

func (e *Exporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	e.mu.Lock()
	stopped := e.stopped
	e.mu.Unlock()

	if stopped || len(spans) == 0 {
		return nil
	}

	converted := ConvertSpans(spans)

	if err := e.sink(ctx, converted); err != nil {
		e.logger.Errorf("failed to export %d spans: %v", len(converted), err)
		return err
	}

	e.logger.Debugf("exported %d spans", len(converted))

	return nil
}

// Shutdown stops the exporter. Spans exported afterwards are dropped.
func (e *Exporter) Shutdown(context.Context) error {
	e.mu.Lock()
	e.stopped = true
	e.mu.Unlock()

	return nil
}

var kinds = map[trace.SpanKind]model.Kind{
	trace.SpanKindClient:   model.KindClient,
	trace.SpanKindServer:   model.KindServer,
	trace.SpanKindProducer: model.KindProducer,
	trace.SpanKindConsumer: model.KindConsumer,
}

const serviceNameKey = "service.name"

var (
	peerServiceKeys = []attribute.Key{"peer.service"}
	peerAddressKeys = []attribute.Key{"net.peer.ip", "network.peer.address", "server.address", "net.peer.name"}
	peerPortKeys    = []attribute.Key{"net.peer.port", "network.peer.port", "server.port"}
)

func ConvertSpans(spans []sdktrace.ReadOnlySpan) []model.Span {
	converted := make([]model.Span, 0, len(spans))

	for _, s := range spans {
		converted = append(converted, convertSpan(s))
	}

	return converted
}

func convertSpan(s sdktrace.ReadOnlySpan) model.Span {
	sc := s.SpanContext()
	attrs := s.Attributes()

	span := model.Span{
		TraceID:        sc.TraceID().String(),
		ID:             sc.SpanID().String(),
		Kind:           kinds[s.SpanKind()],
		Name:           s.Name(),
		LocalEndpoint:  localEndpoint(s),
		RemoteEndpoint: remoteEndpoint(attrs),
		Tags:           make(model.Tags, len(attrs)+s.Resource().Len()),
	}

	if parent := s.Parent(); parent.HasSpanID() {
		span.ParentID = parent.SpanID().String()
	}

	if !s.StartTime().IsZero() {
		span.Timestamp = s.StartTime().UnixMicro()
		span.Duration = micros(s.EndTime().Sub(s.StartTime()))
	}

	for _, ev := range s.Events() {
		span.Annotations = append(span.Annotations, model.Annotation{Timestamp: ev.Time.UnixMicro(), Value: ev.Name})
	}

	for _, kv := range s.Resource().Attributes() {
		k, v := attributeToStringPair(kv)
		span.Tags[k] = v
	}

	for _, kv := range attrs {
		k, v := attributeToStringPair(kv)
		span.Tags[k] = v
	}

	if status := s.Status(); status.Code == codes.Error {
		span.Tags["error"] = status.Description
		if status.Description == "" {
			span.Tags["error"] = "true"
		}
	}

	return span
}

// micros rounds sub-microsecond durations up so a finished span never reports zero.
func micros(d time.Duration) int64 {
	switch {
	case d <= 0:
		return 0
	case d < time.Microsecond:
		return 1
	}

	return d.Microseconds()
}

func localEndpoint(s sdktrace.ReadOnlySpan) *model.Endpoint {
	name, ok := s.Resource().Set().Value(serviceNameKey)
	if !ok || name.AsString() == "" {
		return nil
	}

	return &model.Endpoint{ServiceName: name.AsString()}
}

func remoteEndpoint(attrs []attribute.KeyValue) *model.Endpoint {
	var e model.Endpoint

	e.ServiceName = lookup(attrs, peerServiceKeys)

	if ip := net.ParseIP(lookup(attrs, peerAddressKeys)); ip != nil {
		if ip.To4() != nil {
			e.IPv4 = ip.String()
		} else {
			e.IPv6 = ip.String()
		}
	}

	if port, err := strconv.Atoi(lookup(attrs, peerPortKeys)); err == nil {
		e.Port = port
	}

	if e.IsEmpty() {
		return nil
	}

	return &e
}

// lookup returns the value of the first key present.
func lookup(attrs []attribute.KeyValue, keys []attribute.Key) string {
	for _, key := range keys {
		for _, kv := range attrs {
			if kv.Key == key {
				return kv.Value.Emit()
			}
		}
	}

	return ""
}

func attributeToStringPair(kv attribute.KeyValue) (key, value string) {
	switch kv.Value.Type() {
	case attribute.BOOLSLICE, attribute.INT64SLICE, attribute.FLOAT64SLICE, attribute.STRINGSLICE:
		data, _ := json.Marshal(kv.Value.AsInterface())
		return string(kv.Key), string(data)
	default:
		return string(kv.Key), kv.Value.Emit()
	}
}
