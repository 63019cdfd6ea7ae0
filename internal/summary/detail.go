package summary

import (
	"fmt"
	"math"
	"slices"

	"github.com/samber/lo"

	"gofr.dev/gofr-tracer/internal/model"
	"gofr.dev/gofr-tracer/internal/spantree"
)

type ServiceCount struct {
	ServiceName string `json:"serviceName"`
	SpanCount   int    `json:"spanCount"`
}

type TimeMarker struct {
	Index int    `json:"index"`
	Time  string `json:"time"`
}

// Detail is a trace laid out for a timeline: one row per span id in display order.
type Detail struct {
	TraceID                  string         `json:"traceId"`
	Depth                    int            `json:"depth"`
	Spans                    []SpanRow      `json:"spans"`
	RootSpan                 RootSpan       `json:"rootSpan"`
	ServiceNameAndSpanCounts []ServiceCount `json:"serviceNameAndSpanCounts"`
	TimeMarkers              []TimeMarker   `json:"timeMarkers"`
	Duration                 int64          `json:"duration"`
	DurationStr              string         `json:"durationStr"`
}

var markerFractions = []float64{0, 0.2, 0.4, 0.6, 0.8, 1}

const (
	minRowWidth     = 0.1
	annotationWidth = 8
)

// DetailedTrace walks the tree depth first and emits a row per span id. A server half sharing its
// client's id is folded into the client's row and its children are adopted by that row.
func DetailedTrace(t *spantree.Tree) (Detail, error) {
	queue, err := t.QueueRootMost()
	if err != nil {
		return Detail{}, err
	}

	detail := Detail{
		TraceID: t.Span(queue[0]).TraceID,
		Spans:   []SpanRow{},
	}

	var first, last int64

	t.PreOrder(func(_ spantree.NodeID, s *model.Span) {
		first, last = addTimestamps(s, first, last)
	})

	if first == 0 {
		return Detail{}, fmt.Errorf("%w: %s", ErrMissingTimestamp, detail.TraceID)
	}

	duration := last - first
	serviceCounts := make(map[string]int)

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		span := t.Span(current)
		merged := []model.Span{*span}

		var children []spantree.NodeID

		for _, child := range t.Children(current) {
			if c := t.Span(child); c.ID == span.ID {
				merged = append(merged, *c)
				children = append(children, t.Children(child)...)

				continue
			}

			children = append(children, child)
		}

		// adopted grandchildren need to be interleaved by time
		slices.SortStableFunc(children, t.CompareNodes)
		queue = append(children, queue...)

		depth := depthOf(t, current)
		detail.Depth = max(detail.Depth, depth)

		row := NewSpanRow(merged, len(children) == 0)
		row.Depth = depth
		row.ChildIDs = lo.Map(children, func(id spantree.NodeID, _ int) string { return t.Span(id).ID })
		layout(&row, first, duration)

		for _, name := range row.ServiceNames {
			serviceCounts[name]++
		}

		detail.Spans = append(detail.Spans, row)
	}

	detail.RootSpan = RootSpan{ServiceName: "unknown", SpanName: "unknown"}
	if rootRow := detail.Spans[0]; rootRow.ServiceName != "" {
		detail.RootSpan.ServiceName = rootRow.ServiceName
	}

	if name := detail.Spans[0].SpanName; name != "" {
		detail.RootSpan.SpanName = name
	}

	names := lo.Keys(serviceCounts)
	slices.Sort(names)

	detail.ServiceNameAndSpanCounts = lo.Map(names, func(name string, _ int) ServiceCount {
		return ServiceCount{ServiceName: name, SpanCount: serviceCounts[name]}
	})

	detail.TimeMarkers = lo.Map(markerFractions, func(f float64, i int) TimeMarker {
		return TimeMarker{Index: i, Time: DurationString(int64(math.Round(float64(duration) * f)))}
	})

	detail.Duration = duration
	detail.DurationStr = DurationString(duration)

	return detail, nil
}

// depthOf counts the distinct span ids from the root down to id, starting at 1.
func depthOf(t *spantree.Tree, id spantree.NodeID) int {
	depth := 1

	for current := id; ; {
		parent := t.Parent(current)

		p := t.Span(parent)
		if p == nil {
			return depth
		}

		if p.ID != t.Span(current).ID {
			depth++
		}

		current = parent
	}
}

// layout positions a row and its annotations as percentages of the trace duration.
func layout(row *SpanRow, traceStart, traceDuration int64) {
	row.Width = minRowWidth

	if row.Duration != 0 {
		if traceDuration != 0 {
			row.Width = max(float64(row.Duration)/float64(traceDuration)*100, minRowWidth)
		}

		row.DurationStr = DurationString(row.Duration)
	}

	if traceDuration == 0 {
		row.Left = 0

		return
	}

	row.Left = float64(row.Timestamp-traceStart) / float64(traceDuration) * 100

	for i := range row.Annotations {
		a := &row.Annotations[i]

		if row.Duration != 0 {
			a.Left = float64(a.Timestamp-row.Timestamp) / float64(row.Duration) * 100
		}

		a.RelativeTime = DurationString(a.Timestamp - traceStart)
		a.Width = annotationWidth
	}
}
