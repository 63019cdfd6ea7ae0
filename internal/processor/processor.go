// Package processor runs the reconstruction pipeline over whole traces: merge, build, correct
// clock skew, link dependencies and project summaries.
package processor

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"gofr.dev/pkg/gofr/logging"
	"golang.org/x/sync/errgroup"

	"gofr.dev/gofr-tracer/internal/cleaner"
	"gofr.dev/gofr-tracer/internal/dependency"
	"gofr.dev/gofr-tracer/internal/model"
	"gofr.dev/gofr-tracer/internal/skew"
	"gofr.dev/gofr-tracer/internal/spantree"
	"gofr.dev/gofr-tracer/internal/summary"
)

// Result is everything derived from one trace.
type Result struct {
	TraceID string                 `json:"traceId"`
	Summary summary.Summary        `json:"summary"`
	Detail  summary.Detail         `json:"detail"`
	Links   []model.DependencyLink `json:"links"`
}

type Processor struct {
	logger      logging.Logger
	tracer      trace.Tracer
	correctSkew bool
}

type Option func(*Processor)

func WithLogger(logger logging.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithSkewCorrection toggles clock skew correction, which is on by default.
func WithSkewCorrection(enabled bool) Option {
	return func(p *Processor) {
		p.correctSkew = enabled
	}
}

// WithTracer records a span for every batch and every trace processed in it.
func WithTracer(tracer trace.Tracer) Option {
	return func(p *Processor) {
		p.tracer = tracer
	}
}

func New(opts ...Option) *Processor {
	p := &Processor{correctSkew: true}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = logging.NewLogger(logging.INFO)
	}

	if p.tracer == nil {
		p.tracer = noop.NewTracerProvider().Tracer("")
	}

	return p
}

func (p *Processor) tree(spans []model.Span) (*spantree.Tree, error) {
	t, err := spantree.NewBuilder(p.logger).Build(spans)
	if err != nil {
		return nil, err
	}

	if p.correctSkew {
		skew.NewCorrector(p.logger).Correct(t)
	}

	return t, nil
}

// Process reconstructs a single trace. The input is not modified.
func (p *Processor) Process(spans []model.Span) (*Result, error) {
	t, err := p.tree(spans)
	if err != nil {
		return nil, err
	}

	linker := dependency.NewLinker(p.logger)
	if err = linker.PutTrace(t); err != nil {
		return nil, err
	}

	sum, err := summary.TraceSummary(t)
	if err != nil {
		return nil, err
	}

	detail, err := summary.DetailedTrace(t)
	if err != nil {
		return nil, err
	}

	res := &Result{TraceID: sum.TraceID, Summary: sum, Detail: detail, Links: linker.Link()}

	p.logger.Debugf("processed trace %s: %d spans, %d rows, %d links",
		res.TraceID, sum.SpanCount, len(detail.Spans), len(res.Links))

	return res, nil
}

// ProcessBatch processes independent traces concurrently, at most limit at a time when limit is
// positive. Results are in input order. The first failure or a cancelled ctx stops scheduling of
// the remaining traces.
func (p *Processor) ProcessBatch(ctx context.Context, traces [][]model.Span, limit int) ([]*Result, error) {
	ctx, span := p.tracer.Start(ctx, "process-batch", trace.WithAttributes(attribute.Int("traces", len(traces))))
	defer span.End()

	results := make([]*Result, len(traces))

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i := range traces {
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			_, traceSpan := p.tracer.Start(gctx, "process-trace", trace.WithAttributes(attribute.Int("spans", len(traces[i]))))
			defer traceSpan.End()

			res, err := p.Process(traces[i])
			if err != nil {
				traceSpan.SetStatus(codes.Error, err.Error())
				return fmt.Errorf("trace %d: %w", i, err)
			}

			traceSpan.SetAttributes(attribute.String("trace.id", res.TraceID), attribute.Int("links", len(res.Links)))
			results[i] = res

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

// Dependencies links every trace and returns the aggregated dependency links.
func (p *Processor) Dependencies(traces [][]model.Span) ([]model.DependencyLink, error) {
	linker := dependency.NewLinker(p.logger)

	for i, spans := range traces {
		t, err := p.tree(spans)
		if err != nil {
			return nil, fmt.Errorf("trace %d: %w", i, err)
		}

		if err := linker.PutTrace(t); err != nil {
			return nil, fmt.Errorf("trace %d: %w", i, err)
		}
	}

	return linker.Link(), nil
}

// GroupByTrace splits spans of several traces into one slice per trace, in order of first
// appearance. Spans of a trace reported with both 64-bit and 128-bit ids end up together.
func GroupByTrace(spans []model.Span) [][]model.Span {
	index := make(map[string]int)

	var traces [][]model.Span

	for i := range spans {
		key := cleaner.LowerTraceID(spans[i].TraceID)

		idx, ok := index[key]
		if !ok {
			idx = len(traces)
			index[key] = idx
			traces = append(traces, nil)
		}

		traces[idx] = append(traces[idx], spans[i])
	}

	return traces
}
