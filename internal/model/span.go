package model

import "strings"

// Kind is the role a span played in an RPC or messaging exchange.
type Kind string

const (
	KindClient   Kind = "CLIENT"
	KindServer   Kind = "SERVER"
	KindProducer Kind = "PRODUCER"
	KindConsumer Kind = "CONSUMER"
)

// Span is a Zipkin v2 span. Zero values mean "not reported": an empty string, a zero timestamp or
// duration, and a nil endpoint are all treated as absent.
type Span struct {
	TraceID        string       `json:"traceId"`
	ParentID       string       `json:"parentId,omitempty"`
	ID             string       `json:"id"`
	Kind           Kind         `json:"kind,omitempty"`
	Name           string       `json:"name,omitempty"`
	Timestamp      int64        `json:"timestamp,omitempty"`
	Duration       int64        `json:"duration,omitempty"`
	LocalEndpoint  *Endpoint    `json:"localEndpoint,omitempty"`
	RemoteEndpoint *Endpoint    `json:"remoteEndpoint,omitempty"`
	Annotations    []Annotation `json:"annotations"`
	Tags           Tags         `json:"tags"`
	Debug          bool         `json:"debug,omitempty"`
	Shared         bool         `json:"shared,omitempty"`
}

type Annotation struct {
	Timestamp int64  `json:"timestamp"`
	Value     string `json:"value"`
}

// Clone returns a deep copy so callers can mutate the result without touching s.
func (s *Span) Clone() Span {
	c := *s
	c.LocalEndpoint = s.LocalEndpoint.Clone()
	c.RemoteEndpoint = s.RemoteEndpoint.Clone()

	if s.Annotations != nil {
		c.Annotations = make([]Annotation, len(s.Annotations))
		copy(c.Annotations, s.Annotations)
	}

	if s.Tags != nil {
		c.Tags = make(Tags, len(s.Tags))
		for k, v := range s.Tags {
			c.Tags[k] = v
		}
	}

	return c
}

// HasErrorTag reports whether the span carries a non-empty "error" tag.
func (s *Span) HasErrorTag() bool {
	return strings.TrimSpace(s.Tags["error"]) != ""
}

// LocalServiceName is nil-safe.
func (s *Span) LocalServiceName() string {
	return s.LocalEndpoint.Service()
}

func (s *Span) RemoteServiceName() string {
	return s.RemoteEndpoint.Service()
}

// DependencyLink is an aggregated caller to callee edge.
type DependencyLink struct {
	Parent     string `json:"parent"`
	Child      string `json:"child"`
	CallCount  int64  `json:"callCount"`
	ErrorCount int64  `json:"errorCount,omitempty"`
}
