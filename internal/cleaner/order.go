package cleaner

import (
	"cmp"
	"strings"

	"gofr.dev/gofr-tracer/internal/model"
)

// compareOptional orders absent ("") values first.
func compareOptional(a, b string) int {
	switch {
	case a == b:
		return 0
	case a == "":
		return -1
	case b == "":
		return 1
	}

	return strings.Compare(a, b)
}

func compareAnnotations(a, b model.Annotation) int {
	if c := cmp.Compare(a.Timestamp, b.Timestamp); c != 0 {
		return c
	}

	return strings.Compare(a.Value, b.Value)
}

// CompareEndpoints orders nil endpoints first, then by service name, IPv4 and IPv6.
func CompareEndpoints(a, b *model.Endpoint) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	if c := compareOptional(a.ServiceName, b.ServiceName); c != 0 {
		return c
	}

	if c := compareOptional(a.IPv4, b.IPv4); c != 0 {
		return c
	}

	return compareOptional(a.IPv6, b.IPv6)
}

// compareShared puts a not-shared client first, then other not-shared spans, then shared ones.
func compareShared(a, b *model.Span) int {
	return cmp.Compare(sharedRank(a), sharedRank(b))
}

func sharedRank(s *model.Span) int {
	switch {
	case s.Shared:
		return 2
	case s.Kind == model.KindClient:
		return 0
	default:
		return 1
	}
}

// CompareCleanup is the order used to find fragments to merge: by id, then shared-ness, then
// local endpoint.
func CompareCleanup(a, b *model.Span) int {
	if c := compareOptional(a.ID, b.ID); c != 0 {
		return c
	}

	if c := compareShared(a, b); c != 0 {
		return c
	}

	return CompareEndpoints(a.LocalEndpoint, b.LocalEndpoint)
}

// CompareSpans is the causal order of a merged trace: root spans first, the client half of a
// shared id before its server half, otherwise by timestamp then name.
func CompareSpans(a, b *model.Span) int {
	aRoot, bRoot := a.ParentID == "", b.ParentID == ""

	switch {
	case aRoot && !bRoot:
		return -1
	case !aRoot && bRoot:
		return 1
	}

	if a.ID == b.ID {
		return compareShared(a, b)
	}

	if c := cmp.Compare(a.Timestamp, b.Timestamp); c != 0 {
		return c
	}

	if c := compareOptional(a.Name, b.Name); c != 0 {
		return c
	}

	return strings.Compare(a.ID, b.ID)
}
