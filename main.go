package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	_ "github.com/go-sql-driver/mysql"
	jsoniter "github.com/json-iterator/go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"gofr.dev/pkg/gofr"
	"gofr.dev/pkg/gofr/config"

	"gofr.dev/gofr-tracer/internal/migrations"
	"gofr.dev/gofr-tracer/internal/model"
	"gofr.dev/gofr-tracer/internal/otelconv"
	"gofr.dev/gofr-tracer/internal/processor"
	"gofr.dev/gofr-tracer/internal/store"
	"gofr.dev/gofr-tracer/internal/summary"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	errMissingFile = errors.New("missing -file parameter")
	errMissingID   = errors.New("missing -id parameter")
	errNoDatabase  = errors.New("no database configured, set DB_HOST")
)

const defaultConcurrency = 4

func main() {
	app := gofr.NewCMD()

	h := newHandler(app.Config)

	if h.database {
		app.Migrate(migrations.All())
	}

	app.SubCommand("reconstruct", h.Reconstruct)
	app.SubCommand("dependencies", h.Dependencies)
	app.SubCommand("summaries", h.Summaries)
	app.SubCommand("import", h.Import)
	app.SubCommand("trace", h.Trace)

	app.Run()
}

type handler struct {
	appName     string
	correctSkew bool
	concurrency int
	database    bool
	selfTrace   bool
}

func newHandler(cfg config.Config) *handler {
	h := &handler{
		appName:     cfg.GetOrDefault("APP_NAME", "gofr-tracer"),
		correctSkew: cfg.GetOrDefault("SKEW_CORRECTION", "true") != "false",
		concurrency: defaultConcurrency,
		database:    cfg.Get("DB_HOST") != "",
	}

	h.selfTrace = h.database && cfg.GetOrDefault("SELF_TRACE", "false") == "true"

	if n, err := strconv.Atoi(cfg.GetOrDefault("BATCH_CONCURRENCY", strconv.Itoa(defaultConcurrency))); err == nil && n > 0 {
		h.concurrency = n
	}

	return h
}

// processor returns a pipeline for the command. With self tracing on, spans of the run itself are
// stored next to the traces they describe; the returned func flushes them.
func (h *handler) processor(c *gofr.Context) (p *processor.Processor, flush func()) {
	opts := []processor.Option{
		processor.WithLogger(c.Logger),
		processor.WithSkewCorrection(h.correctSkew),
	}

	if !h.selfTrace {
		return processor.New(opts...), func() {}
	}

	exp := otelconv.NewExporter(store.New(c.SQL, c.Logger).Insert, c.Logger)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", h.appName))),
	)

	opts = append(opts, processor.WithTracer(tp.Tracer(h.appName)))

	return processor.New(opts...), func() {
		if err := tp.Shutdown(c); err != nil {
			c.Logger.Errorf("failed to flush self traces: %v", err)
		}
	}
}

func (h *handler) Reconstruct(c *gofr.Context) (interface{}, error) {
	traces, err := tracesFromFile(c.Request.Param("file"))
	if err != nil {
		return nil, err
	}

	p, flush := h.processor(c)
	defer flush()

	results, err := p.ProcessBatch(c, traces, h.concurrency)
	if err != nil {
		c.Logger.Errorf("failed to reconstruct traces: %v", err)
		return nil, err
	}

	return render(results)
}

func (h *handler) Dependencies(c *gofr.Context) (interface{}, error) {
	traces, err := tracesFromFile(c.Request.Param("file"))
	if err != nil {
		return nil, err
	}

	p, flush := h.processor(c)
	defer flush()

	links, err := p.Dependencies(traces)
	if err != nil {
		return nil, err
	}

	return render(links)
}

func (h *handler) Summaries(c *gofr.Context) (interface{}, error) {
	traces, err := tracesFromFile(c.Request.Param("file"))
	if err != nil {
		return nil, err
	}

	p, flush := h.processor(c)
	defer flush()

	results, err := p.ProcessBatch(c, traces, h.concurrency)
	if err != nil {
		return nil, err
	}

	summaries := make([]summary.Summary, 0, len(results))
	for _, res := range results {
		summaries = append(summaries, res.Summary)
	}

	return render(summary.TraceSummaries(c.Request.Param("service"), summaries))
}

func (h *handler) Import(c *gofr.Context) (interface{}, error) {
	if !h.database {
		return nil, errNoDatabase
	}

	traces, err := tracesFromFile(c.Request.Param("file"))
	if err != nil {
		return nil, err
	}

	var spans []model.Span
	for _, t := range traces {
		spans = append(spans, t...)
	}

	if err := store.New(c.SQL, c.Logger).Insert(c, spans); err != nil {
		c.Logger.Errorf("failed to store spans: %v", err)
		return nil, err
	}

	return fmt.Sprintf("stored %d spans of %d traces", len(spans), len(traces)), nil
}

func (h *handler) Trace(c *gofr.Context) (interface{}, error) {
	if !h.database {
		return nil, errNoDatabase
	}

	traceID := c.Request.Param("id")
	if traceID == "" {
		return nil, errMissingID
	}

	spans, err := store.New(c.SQL, c.Logger).Trace(c, traceID)
	if err != nil {
		return nil, err
	}

	p, flush := h.processor(c)
	defer flush()

	res, err := p.Process(spans)
	if err != nil {
		return nil, err
	}

	return render(res)
}

// tracesFromFile decodes spans and splits them per trace. Files holding a flat list may mix
// traces.
func tracesFromFile(path string) ([][]model.Span, error) {
	if path == "" {
		return nil, errMissingFile
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	decoded, err := model.DecodeTraces(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var traces [][]model.Span
	for _, spans := range decoded {
		traces = append(traces, processor.GroupByTrace(spans)...)
	}

	return traces, nil
}

func render(v any) (string, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}

	return string(out), nil
}
