package summary

import (
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"

	"gofr.dev/gofr-tracer/internal/model"
)

type ErrorType string

const (
	ErrorNone      ErrorType = "none"
	ErrorTransient ErrorType = "transient"
	ErrorCritical  ErrorType = "critical"
)

// ErrorTypeOf folds the error state of span into current. An error tag is critical and sticks; an
// "error" annotation alone is transient.
func ErrorTypeOf(span *model.Span, current ErrorType) ErrorType {
	if current == ErrorCritical {
		return current
	}

	if span.HasErrorTag() {
		return ErrorCritical
	}

	if current == ErrorTransient {
		return current
	}

	for _, a := range span.Annotations {
		if a.Value == "error" {
			return ErrorTransient
		}
	}

	return ErrorNone
}

// FormatEndpoint renders an endpoint as "ip:port (service)". IPv6 is preferred and bracketed. With
// no address only the service name is returned.
func FormatEndpoint(e *model.Endpoint) string {
	if e == nil {
		return ""
	}

	ip := e.IPv4
	if e.IPv6 != "" {
		ip = "[" + e.IPv6 + "]"
	}

	if ip == "" {
		return e.ServiceName
	}

	if e.Port != 0 {
		ip = fmt.Sprintf("%s:%d", ip, e.Port)
	}

	if e.ServiceName != "" {
		ip = fmt.Sprintf("%s (%s)", ip, e.ServiceName)
	}

	return ip
}

type AnnotationRow struct {
	IsDerived    bool    `json:"isDerived"`
	Value        string  `json:"value"`
	Timestamp    int64   `json:"timestamp"`
	Endpoint     string  `json:"endpoint"`
	RelativeTime string  `json:"relativeTime,omitempty"`
	Left         float64 `json:"left,omitempty"`
	Width        float64 `json:"width,omitempty"`
}

type TagRow struct {
	Key       string   `json:"key"`
	Value     string   `json:"value"`
	Endpoints []string `json:"endpoints,omitempty"`
}

// SpanRow is the display form of one span id, client and server halves merged.
type SpanRow struct {
	SpanID       string          `json:"spanId"`
	ParentID     string          `json:"parentId,omitempty"`
	SpanName     string          `json:"spanName,omitempty"`
	ServiceName  string          `json:"serviceName"`
	ServiceNames []string        `json:"serviceNames"`
	Timestamp    int64           `json:"timestamp,omitempty"`
	Duration     int64           `json:"duration"`
	DurationStr  string          `json:"durationStr,omitempty"`
	Annotations  []AnnotationRow `json:"annotations"`
	Tags         []TagRow        `json:"tags"`
	ErrorType    ErrorType       `json:"errorType"`
	Depth        int             `json:"depth,omitempty"`
	ChildIDs     []string        `json:"childIds,omitempty"`
	Left         float64         `json:"left"`
	Width        float64         `json:"width,omitempty"`
}

type lifecycle struct {
	begin, end           string
	beginLabel, endLabel string
}

var (
	lifecycles = map[model.Kind]lifecycle{
		model.KindClient:   {"cs", "cr", "Client Start", "Client Finish"},
		model.KindServer:   {"sr", "ss", "Server Start", "Server Finish"},
		model.KindProducer: {"ms", "", "Producer Start", "Producer Finish"},
		model.KindConsumer: {"mr", "", "Consumer Start", "Consumer Finish"},
	}

	annotationLabels = map[string]string{
		"cs": "Client Start",
		"cr": "Client Finish",
		"sr": "Server Start",
		"ss": "Server Finish",
		"ms": "Producer Start",
		"mr": "Consumer Start",
		"ws": "Wire Send",
		"wr": "Wire Receive",
	}

	coreKinds = map[string]model.Kind{
		"cs": model.KindClient,
		"cr": model.KindClient,
		"sr": model.KindServer,
		"ss": model.KindServer,
		"ms": model.KindProducer,
		"mr": model.KindConsumer,
	}
)

// inferKind recovers the kind of spans converted from the v1 model, which only carry core
// annotations.
func inferKind(s *model.Span) model.Kind {
	if s.Kind != "" {
		return s.Kind
	}

	for _, a := range s.Annotations {
		if kind, ok := coreKinds[a.Value]; ok {
			return kind
		}
	}

	return ""
}

func endpointLabel(e *model.Endpoint) string {
	if label := FormatEndpoint(e); label != "" {
		return label
	}

	return "unknown"
}

func annotationRows(s *model.Span, kind model.Kind) []AnnotationRow {
	endpoint := endpointLabel(s.LocalEndpoint)
	lc, hasLifecycle := lifecycles[kind]

	var begin, end int64

	if s.Timestamp != 0 {
		begin = s.Timestamp
		if s.Duration != 0 {
			end = s.Timestamp + s.Duration
		}
	}

	rows := make([]AnnotationRow, 0, len(s.Annotations)+2)

	for _, a := range s.Annotations {
		if hasLifecycle && a.Value == lc.begin {
			if begin == 0 {
				begin = a.Timestamp
			}

			continue
		}

		if hasLifecycle && lc.end != "" && a.Value == lc.end {
			if end == 0 {
				end = a.Timestamp
			}

			continue
		}

		value := a.Value
		if label, ok := annotationLabels[value]; ok {
			value = label
		}

		rows = append(rows, AnnotationRow{Value: value, Timestamp: a.Timestamp, Endpoint: endpoint})
	}

	if !hasLifecycle {
		return rows
	}

	if begin != 0 {
		rows = append(rows, AnnotationRow{IsDerived: true, Value: lc.beginLabel, Timestamp: begin, Endpoint: endpoint})
	}

	if end != 0 {
		rows = append(rows, AnnotationRow{IsDerived: true, Value: lc.endLabel, Timestamp: end, Endpoint: endpoint})
	}

	return rows
}

func addressRows(s *model.Span, kind model.Kind) []TagRow {
	var rows []TagRow

	if kind == "" && len(s.Annotations) == 0 && len(s.Tags) == 0 && s.LocalEndpoint != nil {
		rows = append(rows, TagRow{Key: "Local Address", Value: FormatEndpoint(s.LocalEndpoint)})
	}

	if s.RemoteEndpoint != nil {
		key := "Server Address"

		switch kind {
		case model.KindServer:
			key = "Client Address"
		case model.KindProducer, model.KindConsumer:
			key = "Broker Address"
		}

		rows = append(rows, TagRow{Key: key, Value: FormatEndpoint(s.RemoteEndpoint)})
	}

	return rows
}

type tagKey struct {
	key, value string
}

// NewSpanRow merges the spans reported for one span id into a row. isLeaf lets a client-only
// row without children be named after the service it called.
func NewSpanRow(spans []model.Span, isLeaf bool) SpanRow {
	row := SpanRow{
		ServiceNames: []string{},
		Annotations:  []AnnotationRow{},
		Tags:         []TagRow{},
		ErrorType:    ErrorNone,
	}

	var (
		serverName, clientName  string
		serverService, anyLocal string
		clientRemote            string
		onlyClients             = len(spans) > 0
		clientTimed             bool
		services                []string
		tagIndex                = make(map[tagKey]int)
		addresses               []TagRow
	)

	for i := range spans {
		s := &spans[i]
		kind := inferKind(s)

		if row.SpanID == "" {
			row.SpanID = s.ID
		}

		if row.ParentID == "" {
			row.ParentID = s.ParentID
		}

		// the client half is authoritative for timing, the shared server half is a fallback
		if s.Timestamp != 0 {
			switch {
			case !s.Shared && !clientTimed:
				row.Timestamp, row.Duration, clientTimed = s.Timestamp, s.Duration, true
			case s.Shared && !clientTimed && row.Timestamp == 0:
				row.Timestamp, row.Duration = s.Timestamp, s.Duration
			}
		}

		if s.Name != "" {
			if kind == model.KindServer {
				serverName = s.Name
			} else if clientName == "" {
				clientName = s.Name
			}
		}

		local, remote := s.LocalServiceName(), s.RemoteServiceName()

		if kind == model.KindServer && local != "" && serverService == "" {
			serverService = local
		}

		if local != "" && anyLocal == "" {
			anyLocal = local
		}

		if kind != model.KindClient {
			onlyClients = false
		} else if clientRemote == "" {
			clientRemote = remote
		}

		services = append(services, local, remote)

		row.Annotations = append(row.Annotations, annotationRows(s, kind)...)

		endpoint := endpointLabel(s.LocalEndpoint)
		keys := lo.Keys(s.Tags)
		slices.Sort(keys)

		for _, k := range keys {
			key := tagKey{key: k, value: s.Tags[k]}

			if idx, ok := tagIndex[key]; ok {
				if !slices.Contains(row.Tags[idx].Endpoints, endpoint) {
					row.Tags[idx].Endpoints = append(row.Tags[idx].Endpoints, endpoint)
				}

				continue
			}

			tagIndex[key] = len(row.Tags)
			row.Tags = append(row.Tags, TagRow{Key: k, Value: s.Tags[k], Endpoints: []string{endpoint}})
		}

		addresses = append(addresses, addressRows(s, kind)...)

		row.ErrorType = ErrorTypeOf(s, row.ErrorType)
	}

	slices.SortStableFunc(row.Tags, func(a, b TagRow) int { return strings.Compare(a.Key, b.Key) })

	for _, a := range addresses {
		key := tagKey{key: a.Key, value: a.Value}
		if _, ok := tagIndex[key]; !ok {
			tagIndex[key] = len(row.Tags)
			row.Tags = append(row.Tags, a)
		}
	}

	row.SpanName = serverName
	if row.SpanName == "" {
		row.SpanName = clientName
	}

	switch {
	case serverService != "":
		row.ServiceName = serverService
	case isLeaf && onlyClients && clientRemote != "":
		row.ServiceName = clientRemote
	case anyLocal != "":
		row.ServiceName = anyLocal
	default:
		row.ServiceName = "unknown"
	}

	row.ServiceNames = lo.Uniq(lo.Without(services, ""))
	slices.Sort(row.ServiceNames)

	row.Annotations = lo.Uniq(row.Annotations)
	slices.SortStableFunc(row.Annotations, func(a, b AnnotationRow) int {
		switch {
		case a.Timestamp < b.Timestamp:
			return -1
		case a.Timestamp > b.Timestamp:
			return 1
		}

		return 0
	})

	return row
}
