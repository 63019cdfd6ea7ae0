package summary

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"gofr.dev/gofr-tracer/internal/model"
)

var (
	frontend = &model.Endpoint{ServiceName: "frontend", IPv4: "172.17.0.13"}
	backend  = &model.Endpoint{ServiceName: "backend", IPv4: "172.17.0.9"}
)

func TestFormatEndpoint(t *testing.T) {
	tests := []struct {
		desc     string
		endpoint *model.Endpoint
		expected string
	}{
		{"nil", nil, ""},
		{"service only", &model.Endpoint{ServiceName: "frontend"}, "frontend"},
		{"ipv4 only", &model.Endpoint{IPv4: "172.17.0.13"}, "172.17.0.13"},
		{"ipv4 and port", &model.Endpoint{IPv4: "172.17.0.13", Port: 8080}, "172.17.0.13:8080"},
		{"ipv4 port and service", &model.Endpoint{ServiceName: "frontend", IPv4: "172.17.0.13", Port: 8080},
			"172.17.0.13:8080 (frontend)"},
		{"prefers ipv6", &model.Endpoint{ServiceName: "there", IPv4: "10.0.0.1", IPv6: "2001:db8::c001", Port: 80},
			"[2001:db8::c001]:80 (there)"},
		{"ipv6 without port", &model.Endpoint{IPv6: "2001:db8::c001"}, "[2001:db8::c001]"},
	}

	for i, tc := range tests {
		assert.Equal(t, tc.expected, FormatEndpoint(tc.endpoint), "TEST[%d], Failed.\n%s", i, tc.desc)
	}
}

func TestErrorTypeOf(t *testing.T) {
	errorTag := model.Span{Tags: model.Tags{"error": "boom"}}
	errorAnnotation := model.Span{Annotations: []model.Annotation{{Timestamp: 1, Value: "error"}}}
	clean := model.Span{Tags: model.Tags{"http.path": "/api"}}

	tests := []struct {
		desc     string
		span     model.Span
		current  ErrorType
		expected ErrorType
	}{
		{"clean span", clean, ErrorNone, ErrorNone},
		{"error tag", errorTag, ErrorNone, ErrorCritical},
		{"error annotation", errorAnnotation, ErrorNone, ErrorTransient},
		{"empty error tag", model.Span{Tags: model.Tags{"error": ""}}, ErrorNone, ErrorNone},
		{"critical sticks", clean, ErrorCritical, ErrorCritical},
		{"transient sticks", clean, ErrorTransient, ErrorTransient},
		{"transient upgraded", errorTag, ErrorTransient, ErrorCritical},
		{"critical not downgraded", errorAnnotation, ErrorCritical, ErrorCritical},
	}

	for i, tc := range tests {
		assert.Equal(t, tc.expected, ErrorTypeOf(&tc.span, tc.current), "TEST[%d], Failed.\n%s", i, tc.desc)
	}
}

func TestNewSpanRow_MergesClientAndServer(t *testing.T) {
	client := model.Span{
		TraceID: "1", ParentID: "1", ID: "2", Kind: model.KindClient, Name: "get",
		Timestamp: 1000, Duration: 500, LocalEndpoint: frontend, RemoteEndpoint: backend,
		Tags: model.Tags{"http.path": "/api"},
	}
	server := model.Span{
		TraceID: "1", ParentID: "1", ID: "2", Kind: model.KindServer, Name: "get /api",
		Timestamp: 1100, Duration: 300, LocalEndpoint: backend, Shared: true,
		Tags: model.Tags{"http.path": "/api", "clnt/finagle.version": "6.45.0"},
	}

	expected := SpanRow{
		SpanID:       "2",
		ParentID:     "1",
		SpanName:     "get /api",
		ServiceName:  "backend",
		ServiceNames: []string{"backend", "frontend"},
		Timestamp:    1000,
		Duration:     500,
		Annotations: []AnnotationRow{
			{IsDerived: true, Value: "Client Start", Timestamp: 1000, Endpoint: "172.17.0.13 (frontend)"},
			{IsDerived: true, Value: "Server Start", Timestamp: 1100, Endpoint: "172.17.0.9 (backend)"},
			{IsDerived: true, Value: "Server Finish", Timestamp: 1400, Endpoint: "172.17.0.9 (backend)"},
			{IsDerived: true, Value: "Client Finish", Timestamp: 1500, Endpoint: "172.17.0.13 (frontend)"},
		},
		Tags: []TagRow{
			{Key: "clnt/finagle.version", Value: "6.45.0", Endpoints: []string{"172.17.0.9 (backend)"}},
			{Key: "http.path", Value: "/api", Endpoints: []string{"172.17.0.13 (frontend)", "172.17.0.9 (backend)"}},
			{Key: "Server Address", Value: "172.17.0.9 (backend)"},
		},
		ErrorType: ErrorNone,
	}

	assert.Empty(t, cmp.Diff(expected, NewSpanRow([]model.Span{client, server}, false)))

	// arrival order only changes the order of endpoints on a shared tag
	reversed := NewSpanRow([]model.Span{server, client}, false)

	assert.ElementsMatch(t, expected.Tags[1].Endpoints, reversed.Tags[1].Endpoints)

	reversed.Tags[1].Endpoints = expected.Tags[1].Endpoints

	assert.Empty(t, cmp.Diff(expected, reversed))
}

func TestNewSpanRow_ServiceName(t *testing.T) {
	clientOnly := model.Span{ID: "2", Kind: model.KindClient, LocalEndpoint: frontend, RemoteEndpoint: backend}
	remoteOnly := model.Span{ID: "2", RemoteEndpoint: backend}
	serverOnly := model.Span{ID: "2", Kind: model.KindServer, LocalEndpoint: backend, RemoteEndpoint: frontend}

	tests := []struct {
		desc     string
		span     model.Span
		isLeaf   bool
		expected string
	}{
		{"leaf client is named after the callee", clientOnly, true, "backend"},
		{"client with children is named after the caller", clientOnly, false, "frontend"},
		{"remote endpoint only", remoteOnly, false, "unknown"},
		{"server", serverOnly, true, "backend"},
		{"no endpoints", model.Span{ID: "2"}, false, "unknown"},
	}

	for i, tc := range tests {
		row := NewSpanRow([]model.Span{tc.span}, tc.isLeaf)

		assert.Equal(t, tc.expected, row.ServiceName, "TEST[%d], Failed.\n%s", i, tc.desc)
	}
}

func TestNewSpanRow_InfersKindFromCoreAnnotations(t *testing.T) {
	span := model.Span{
		ID: "1", Timestamp: 10, Duration: 5,
		Annotations: []model.Annotation{{Timestamp: 10, Value: "cs"}, {Timestamp: 12, Value: "ws"}, {Timestamp: 13, Value: "custom"}},
	}

	row := NewSpanRow([]model.Span{span}, false)

	expected := []AnnotationRow{
		{IsDerived: true, Value: "Client Start", Timestamp: 10, Endpoint: "unknown"},
		{Value: "Wire Send", Timestamp: 12, Endpoint: "unknown"},
		{Value: "custom", Timestamp: 13, Endpoint: "unknown"},
		{IsDerived: true, Value: "Client Finish", Timestamp: 15, Endpoint: "unknown"},
	}

	assert.Equal(t, expected, row.Annotations)
}

func TestNewSpanRow_LateFinishAnnotation(t *testing.T) {
	span := model.Span{ID: "1", Kind: model.KindServer, LocalEndpoint: backend,
		Annotations: []model.Annotation{{Timestamp: 40, Value: "ss"}}}

	row := NewSpanRow([]model.Span{span}, true)

	assert.Equal(t, []AnnotationRow{
		{IsDerived: true, Value: "Server Finish", Timestamp: 40, Endpoint: "172.17.0.9 (backend)"},
	}, row.Annotations)
}

func TestNewSpanRow_AddressTags(t *testing.T) {
	there := &model.Endpoint{ServiceName: "there", IPv4: "10.0.0.1", IPv6: "2001:db8::c001", Port: 80}
	broker := &model.Endpoint{ServiceName: "kafka"}

	tests := []struct {
		desc     string
		span     model.Span
		expected []TagRow
	}{
		{"local span", model.Span{ID: "1", LocalEndpoint: there},
			[]TagRow{{Key: "Local Address", Value: "[2001:db8::c001]:80 (there)"}}},
		{"local span with tags", model.Span{ID: "1", LocalEndpoint: frontend, Tags: model.Tags{"a": "b"}},
			[]TagRow{{Key: "a", Value: "b", Endpoints: []string{"172.17.0.13 (frontend)"}}}},
		{"kind-less remote", model.Span{ID: "1", RemoteEndpoint: backend},
			[]TagRow{{Key: "Server Address", Value: "172.17.0.9 (backend)"}}},
		{"kind-less local and remote", model.Span{ID: "1", LocalEndpoint: frontend, RemoteEndpoint: backend},
			[]TagRow{
				{Key: "Local Address", Value: "172.17.0.13 (frontend)"},
				{Key: "Server Address", Value: "172.17.0.9 (backend)"},
			}},
		{"server", model.Span{ID: "1", Kind: model.KindServer, LocalEndpoint: backend, RemoteEndpoint: frontend},
			[]TagRow{{Key: "Client Address", Value: "172.17.0.13 (frontend)"}}},
		{"producer", model.Span{ID: "1", Kind: model.KindProducer, LocalEndpoint: frontend, RemoteEndpoint: broker},
			[]TagRow{{Key: "Broker Address", Value: "kafka"}}},
		{"consumer", model.Span{ID: "1", Kind: model.KindConsumer, LocalEndpoint: backend, RemoteEndpoint: broker},
			[]TagRow{{Key: "Broker Address", Value: "kafka"}}},
	}

	for i, tc := range tests {
		row := NewSpanRow([]model.Span{tc.span}, false)

		assert.Equal(t, tc.expected, row.Tags, "TEST[%d], Failed.\n%s", i, tc.desc)
	}
}

func TestNewSpanRow_DedupesAnnotations(t *testing.T) {
	span := model.Span{ID: "1", LocalEndpoint: frontend,
		Annotations: []model.Annotation{{Timestamp: 5, Value: "foo"}}}

	row := NewSpanRow([]model.Span{span, span}, false)

	assert.Len(t, row.Annotations, 1)
	assert.Equal(t, []string{"frontend"}, row.ServiceNames)
}

func TestNewSpanRow_PrefersClientTiming(t *testing.T) {
	server := model.Span{ID: "2", Kind: model.KindServer, Shared: true, Timestamp: 10, Duration: 10, LocalEndpoint: backend}
	client := model.Span{ID: "2", ParentID: "1", Kind: model.KindClient, Timestamp: 20, Duration: 20, LocalEndpoint: frontend}

	row := NewSpanRow([]model.Span{server, client}, false)

	assert.Equal(t, int64(20), row.Timestamp)
	assert.Equal(t, int64(20), row.Duration)
	assert.Equal(t, "1", row.ParentID)

	row = NewSpanRow([]model.Span{server}, false)

	assert.Equal(t, int64(10), row.Timestamp)
	assert.Equal(t, int64(10), row.Duration)
}

func TestNewSpanRow_KeepsClientNameWhenServerUnnamed(t *testing.T) {
	client := model.Span{ID: "2", Kind: model.KindClient, Name: "get", LocalEndpoint: frontend}
	server := model.Span{ID: "2", Kind: model.KindServer, Shared: true, LocalEndpoint: backend}

	assert.Equal(t, "get", NewSpanRow([]model.Span{client, server}, false).SpanName)
}
