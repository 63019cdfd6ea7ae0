package cleaner

import (
	"slices"

	"gofr.dev/gofr-tracer/internal/model"
)

// Merge combines two cleaned fragments of the same span. Values present on left win for scalar
// fields; endpoint fields and tags reported on right override left.
func Merge(left, right model.Span) model.Span {
	res := model.Span{
		TraceID:  left.TraceID,
		ParentID: left.ParentID,
		ID:       left.ID,
		Kind:     left.Kind,
		Name:     left.Name,
		Debug:    left.Debug || right.Debug,
		Shared:   left.Shared || right.Shared,
	}

	if len(right.TraceID) > shortIDLen {
		res.TraceID = right.TraceID
	}

	if res.ParentID == "" {
		res.ParentID = right.ParentID
	}

	if res.Kind == "" {
		res.Kind = right.Kind
	}

	if res.Name == "" {
		res.Name = right.Name
	}

	res.Timestamp = left.Timestamp
	if res.Timestamp == 0 {
		res.Timestamp = right.Timestamp
	}

	res.Duration = left.Duration
	if res.Duration == 0 {
		res.Duration = right.Duration
	}

	res.LocalEndpoint = mergeEndpoint(left.LocalEndpoint, right.LocalEndpoint)
	res.RemoteEndpoint = mergeEndpoint(left.RemoteEndpoint, right.RemoteEndpoint)

	res.Annotations = make([]model.Annotation, 0, len(left.Annotations)+len(right.Annotations))
	res.Annotations = append(res.Annotations, left.Annotations...)
	res.Annotations = append(res.Annotations, right.Annotations...)
	res.Annotations = sortAnnotations(res.Annotations)

	res.Tags = make(model.Tags, len(left.Tags)+len(right.Tags))
	for k, v := range left.Tags {
		res.Tags[k] = v
	}

	for k, v := range right.Tags {
		res.Tags[k] = v
	}

	return res
}

func mergeEndpoint(left, right *model.Endpoint) *model.Endpoint {
	var res model.Endpoint

	if left != nil {
		res = *left
	}

	if right != nil {
		if right.ServiceName != "" {
			res.ServiceName = right.ServiceName
		}

		if right.IPv4 != "" {
			res.IPv4 = right.IPv4
		}

		if right.IPv6 != "" {
			res.IPv6 = right.IPv6
		}

		if right.Port != 0 {
			res.Port = right.Port
		}
	}

	if res.IsEmpty() {
		return nil
	}

	return &res
}

// tryMerge folds endpoint into current unless a field both sides report disagrees.
func tryMerge(current, endpoint *model.Endpoint) bool {
	if endpoint == nil {
		return true
	}

	if conflicts(current.ServiceName, endpoint.ServiceName) ||
		conflicts(current.IPv4, endpoint.IPv4) ||
		conflicts(current.IPv6, endpoint.IPv6) ||
		(current.Port != 0 && endpoint.Port != 0 && current.Port != endpoint.Port) {
		return false
	}

	if current.ServiceName == "" {
		current.ServiceName = endpoint.ServiceName
	}

	if current.IPv4 == "" {
		current.IPv4 = endpoint.IPv4
	}

	if current.IPv6 == "" {
		current.IPv6 = endpoint.IPv6
	}

	if current.Port == 0 {
		current.Port = endpoint.Port
	}

	return true
}

func conflicts(a, b string) bool {
	return a != "" && b != "" && a != b
}

// MergeByID cleans every span of one trace, merges fragments reported for the same span and returns
// the result in span order. All returned spans carry the longest trace id seen.
func MergeByID(spans []model.Span) []model.Span {
	if len(spans) == 0 {
		return []model.Span{}
	}

	cleaned := make([]model.Span, 0, len(spans))

	var traceID string

	for i := range spans {
		s := Clean(spans[i])
		if len(s.TraceID) > len(traceID) {
			traceID = s.TraceID
		}

		cleaned = append(cleaned, s)
	}

	slices.SortStableFunc(cleaned, func(a, b model.Span) int { return CompareCleanup(&a, &b) })

	result := make([]model.Span, 0, len(cleaned))
	clientSeen := false

	for i := 0; i < len(cleaned); i++ {
		span := cleaned[i]

		local := span.LocalEndpoint.Clone()
		if local == nil {
			local = &model.Endpoint{}
		}

		for i+1 < len(cleaned) {
			next := cleaned[i+1]
			if next.ID != span.ID || next.Shared != span.Shared || !tryMerge(local, next.LocalEndpoint) {
				break
			}

			span = Merge(span, next)
			i++
		}

		span.TraceID = traceID

		// client and server historically shared one id; instrumentation is inconsistent about
		// flagging the server half, and the cleanup order puts the client first. Every server
		// fragment behind that client is flagged, not only the adjacent one.
		if n := len(result); n > 0 && result[n-1].ID == span.ID {
			last := result[n-1]

			if clientSeen && span.Kind == model.KindServer && !span.Shared {
				span.Shared = true
			}

			if span.Shared && span.ParentID == "" && last.ParentID != "" {
				span.ParentID = last.ParentID
			}
		}

		if n := len(result); n == 0 || result[n-1].ID != span.ID {
			clientSeen = false
		}

		clientSeen = clientSeen || span.Kind == model.KindClient

		result = append(result, span)
	}

	slices.SortStableFunc(result, func(a, b model.Span) int { return CompareSpans(&a, &b) })

	// a lone root cannot be the server half of anything
	if result[0].ParentID == "" && result[0].Shared && (len(result) == 1 || result[1].ParentID != "") {
		result[0].Shared = false
	}

	return result
}
