// Package summary projects a corrected span tree into the shapes a trace viewer renders: a compact
// summary for trace lists and a detailed list of span rows.
package summary

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/samber/lo"

	"gofr.dev/gofr-tracer/internal/model"
	"gofr.dev/gofr-tracer/internal/spantree"
)

var ErrMissingTimestamp = errors.New("trace is missing a timestamp")

// Interval is the timing of one span in microseconds.
type Interval struct {
	Timestamp int64 `json:"timestamp"`
	Duration  int64 `json:"duration"`
}

type RootSpan struct {
	ServiceName string `json:"serviceName"`
	SpanName    string `json:"spanName"`
}

type ServiceSummary struct {
	ServiceName        string `json:"serviceName"`
	SpanCount          int    `json:"spanCount"`
	MaxSpanDuration    int64  `json:"maxSpanDuration"`
	MaxSpanDurationStr string `json:"maxSpanDurationStr"`
}

type Summary struct {
	TraceID           string                `json:"traceId"`
	Timestamp         int64                 `json:"timestamp"`
	Duration          int64                 `json:"duration"`
	GroupedTimestamps map[string][]Interval `json:"groupedTimestamps"`
	ErrorType         ErrorType             `json:"errorType"`
	SpanCount         int                   `json:"spanCount"`
	Root              RootSpan              `json:"root"`
}

// TraceSummary summarizes a trace for list views. The duration covers every span with a
// timestamp, from the earliest start to the latest end.
func TraceSummary(t *spantree.Tree) (Summary, error) {
	sum := Summary{
		GroupedTimestamps: make(map[string][]Interval),
		ErrorType:         ErrorNone,
	}

	var first, last int64

	err := t.BreadthFirst(func(_ spantree.NodeID, s *model.Span) {
		sum.TraceID = s.TraceID
		sum.SpanCount++
		sum.ErrorType = ErrorTypeOf(s, sum.ErrorType)

		first, last = addTimestamps(s, first, last)

		// a leaf client also counts against the uninstrumented service it called
		for _, name := range []string{s.LocalServiceName(), s.RemoteServiceName()} {
			if name != "" {
				sum.GroupedTimestamps[name] = append(sum.GroupedTimestamps[name],
					Interval{Timestamp: s.Timestamp, Duration: s.Duration})
			}
		}
	})
	if err != nil {
		return Summary{}, err
	}

	if first == 0 {
		return Summary{}, fmt.Errorf("%w: %s", ErrMissingTimestamp, sum.TraceID)
	}

	sum.Timestamp = first
	sum.Duration = last - first
	sum.Root = rootSpan(t)

	return sum, nil
}

// addTimestamps widens [first, last] to cover the span. Spans without a timestamp are ignored.
func addTimestamps(s *model.Span, first, last int64) (newFirst, newLast int64) {
	if s.Timestamp == 0 {
		return first, last
	}

	if first == 0 || s.Timestamp < first {
		first = s.Timestamp
	}

	last = max(last, s.Timestamp+s.Duration)

	return first, last
}

func rootSpan(t *spantree.Tree) RootSpan {
	root := RootSpan{ServiceName: "unknown", SpanName: "unknown"}

	queue, err := t.QueueRootMost()
	if err != nil {
		return root
	}

	s := t.Span(queue[0])
	if name := s.LocalServiceName(); name != "" {
		root.ServiceName = name
	} else if name = s.RemoteServiceName(); name != "" {
		root.ServiceName = name
	}

	if s.Name != "" {
		root.SpanName = s.Name
	}

	return root
}

// TotalDuration is the wall time covered by the intervals, overlapping intervals counted once.
// Intervals without a duration are ignored.
func TotalDuration(intervals []Interval) int64 {
	sorted := lo.Filter(intervals, func(i Interval, _ int) bool { return i.Duration != 0 })
	slices.SortFunc(sorted, func(a, b Interval) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})

	var (
		total      int64
		start, end int64
		open       bool
	)

	for _, i := range sorted {
		iEnd := i.Timestamp + i.Duration

		switch {
		case !open:
			start, end, open = i.Timestamp, iEnd, true
		case i.Timestamp <= end:
			end = max(end, iEnd)
		default:
			total += end - start
			start, end = i.Timestamp, iEnd
		}
	}

	if open {
		total += end - start
	}

	return total
}

// ServiceSummaries orders services by their longest span, then by name.
func ServiceSummaries(grouped map[string][]Interval) []ServiceSummary {
	summaries := lo.MapToSlice(grouped, func(name string, intervals []Interval) ServiceSummary {
		longest := lo.MaxBy(intervals, func(a, b Interval) bool { return a.Duration > b.Duration })

		return ServiceSummary{
			ServiceName:        name,
			SpanCount:          len(intervals),
			MaxSpanDuration:    longest.Duration,
			MaxSpanDurationStr: DurationString(longest.Duration),
		}
	})

	slices.SortFunc(summaries, func(a, b ServiceSummary) int {
		if c := cmp.Compare(b.MaxSpanDuration, a.MaxSpanDuration); c != 0 {
			return c
		}

		return cmp.Compare(a.ServiceName, b.ServiceName)
	})

	return summaries
}

// ListEntry is a trace as shown in a list of search results.
type ListEntry struct {
	TraceID           string           `json:"traceId"`
	Timestamp         int64            `json:"timestamp"`
	SpanCount         int              `json:"spanCount"`
	Root              RootSpan         `json:"root"`
	Duration          int64            `json:"duration"`
	DurationStr       string           `json:"durationStr,omitempty"`
	Width             int              `json:"width,omitempty"`
	ServiceSummaries  []ServiceSummary `json:"serviceSummaries"`
	ServicePercentage int              `json:"servicePercentage,omitempty"`
	ErrorType         ErrorType        `json:"errorType"`
}

// TraceSummaries turns summaries into list entries, longest trace first. Width is relative to the
// longest trace. When service is set each entry reports the share of the trace spent in it.
func TraceSummaries(service string, summaries []Summary) []ListEntry {
	var longest int64
	for i := range summaries {
		longest = max(longest, summaries[i].Duration)
	}

	entries := make([]ListEntry, 0, len(summaries))

	for i := range summaries {
		s := &summaries[i]

		entry := ListEntry{
			TraceID:          s.TraceID,
			Timestamp:        s.Timestamp,
			SpanCount:        s.SpanCount,
			Root:             s.Root,
			Duration:         s.Duration,
			ServiceSummaries: ServiceSummaries(s.GroupedTimestamps),
			ErrorType:        s.ErrorType,
		}

		if s.Duration > 0 {
			entry.Width = int(s.Duration * 100 / longest)
			entry.DurationStr = DurationString(s.Duration)
		}

		if intervals, ok := s.GroupedTimestamps[service]; ok && service != "" && s.Duration > 0 {
			entry.ServicePercentage = int(TotalDuration(intervals) * 100 / s.Duration)
		}

		entries = append(entries, entry)
	}

	slices.SortStableFunc(entries, func(a, b ListEntry) int {
		if c := cmp.Compare(b.Duration, a.Duration); c != 0 {
			return c
		}

		return cmp.Compare(a.TraceID, b.TraceID)
	})

	return entries
}
