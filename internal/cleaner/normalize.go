// Package cleaner canonicalizes raw spans and merges spans that were reported in several parts.
// Nothing here returns an error: dirty input is repaired on a best-effort basis.
package cleaner

import (
	"slices"
	"strings"

	"gofr.dev/gofr-tracer/internal/model"
)

const (
	shortIDLen = 16
	longIDLen  = 32
)

var zeroHigh = strings.Repeat("0", shortIDLen)

// NormalizeTraceID lower-cases and left-pads a trace id to 16 or 32 hex characters. A 128-bit id
// whose high 64 bits are all zero is reduced to its 64-bit form.
func NormalizeTraceID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))

	if len(id) > longIDLen {
		id = id[len(id)-longIDLen:]
	}

	if len(id) <= shortIDLen {
		return padLeft(id, shortIDLen)
	}

	id = padLeft(id, longIDLen)
	if strings.HasPrefix(id, zeroHigh) {
		return id[shortIDLen:]
	}

	return id
}

// LowerTraceID returns the low 64 bits of a trace id. Spans whose trace ids differ only in the
// presence of the high bits belong to the same trace.
func LowerTraceID(id string) string {
	id = NormalizeTraceID(id)

	return id[len(id)-shortIDLen:]
}

func normalizeSpanID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))

	if len(id) > shortIDLen {
		return id[len(id)-shortIDLen:]
	}

	return padLeft(id, shortIDLen)
}

func padLeft(s string, n int) string {
	if len(s) >= n {
		return s
	}

	return strings.Repeat("0", n-len(s)) + s
}

// Clean returns a normalized copy of s. The input is not modified.
func Clean(s model.Span) model.Span {
	res := model.Span{
		TraceID: NormalizeTraceID(s.TraceID),
		ID:      normalizeSpanID(s.ID),
		Kind:    model.Kind(strings.ToUpper(string(s.Kind))),
		Debug:   s.Debug,
	}

	if s.ParentID != "" {
		if parentID := normalizeSpanID(s.ParentID); parentID != res.ID {
			res.ParentID = parentID
		}
	}

	if s.Name != "" && s.Name != "unknown" {
		res.Name = s.Name
	}

	if s.Timestamp != 0 {
		res.Timestamp = s.Timestamp
	}

	if s.Duration != 0 {
		res.Duration = s.Duration
	}

	if !s.LocalEndpoint.IsEmpty() {
		res.LocalEndpoint = s.LocalEndpoint.Clone()
	}

	if !s.RemoteEndpoint.IsEmpty() {
		res.RemoteEndpoint = s.RemoteEndpoint.Clone()
	}

	res.Annotations = make([]model.Annotation, len(s.Annotations))
	copy(res.Annotations, s.Annotations)

	if len(res.Annotations) > 1 {
		res.Annotations = sortAnnotations(res.Annotations)
	}

	res.Tags = make(model.Tags, len(s.Tags))
	for k, v := range s.Tags {
		res.Tags[k] = v
	}

	// shared only describes the server side of an RPC
	res.Shared = s.Shared && res.Kind != model.KindClient

	return res
}

// sortAnnotations sorts by (timestamp, value) and drops exact duplicates in place.
func sortAnnotations(annotations []model.Annotation) []model.Annotation {
	slices.SortFunc(annotations, compareAnnotations)

	return slices.Compact(annotations)
}
