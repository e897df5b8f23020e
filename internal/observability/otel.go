package observability

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"resumatch/internal/config"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ObservabilityConfig holds configuration for observability
type ObservabilityConfig struct {
	ServiceName    string
	ServiceVersion string
	Enabled        bool
	ConsoleOutput  bool
	PrettyPrint    bool
	SampleRate     float64
	Prometheus     PrometheusConfig
}

// Metrics holds all custom metrics for resumatch
type Metrics struct {
	StreamFrames       metric.Int64Counter
	StreamErrors       metric.Int64Counter
	Submissions        metric.Int64Counter
	SubmissionDuration metric.Float64Histogram
	ActiveStreams      metric.Int64UpDownCounter

	AIProcessingTime metric.Float64Histogram
	AIRequestCount   metric.Int64Counter
	AIErrorCount     metric.Int64Counter
	AITokenUsage     metric.Int64Histogram

	RateLimitHits metric.Int64Counter
}

// ObservabilityManager owns the tracer and meter providers
type ObservabilityManager struct {
	config         ObservabilityConfig
	fullConfig     *config.Config
	resource       *resource.Resource
	tracerProvider *trace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	metrics        *Metrics
	shutdownFuncs  []func(context.Context) error
	metricsHandler http.Handler
	extraReaders   []sdkmetric.Reader
}

// Option customizes an ObservabilityManager
type Option func(*ObservabilityManager)

// WithMetricReader adds a metric reader next to the configured exporters
func WithMetricReader(reader sdkmetric.Reader) Option {
	return func(om *ObservabilityManager) {
		om.extraReaders = append(om.extraReaders, reader)
	}
}

// NewObservabilityManager sets up providers when obsConfig.Enabled. A disabled
// manager is still usable; its instruments and tracers are no-ops.
func NewObservabilityManager(obsConfig ObservabilityConfig, fullConfig *config.Config, opts ...Option) (*ObservabilityManager, error) {
	om := &ObservabilityManager{config: obsConfig, fullConfig: fullConfig}
	for _, opt := range opts {
		opt(om)
	}
	if !obsConfig.Enabled {
		return om, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(obsConfig.ServiceName),
			semconv.ServiceVersion(obsConfig.ServiceVersion),
			attribute.String("service.instance.id", om.serviceInstanceID()),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize resource: %w", err)
	}
	om.resource = res

	if err := om.initTracing(); err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	if err := om.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	return om, nil
}

func (om *ObservabilityManager) otlpEnabled() bool {
	return om.fullConfig != nil && om.fullConfig.Observability.OTLP.Enabled
}

func (om *ObservabilityManager) spanExporter() (trace.SpanExporter, error) {
	switch {
	case om.config.ConsoleOutput:
		// stdout carries command output
		opts := []stdouttrace.Option{stdouttrace.WithWriter(os.Stderr)}
		if om.config.PrettyPrint {
			opts = append(opts, stdouttrace.WithPrettyPrint())
		}
		return stdouttrace.New(opts...)
	case om.otlpEnabled():
		otlp := om.fullConfig.Observability.OTLP
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpointURL(otlp.Endpoint)}
		if otlp.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(otlp.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(otlp.Headers))
		}
		return otlptracehttp.New(context.Background(), opts...)
	default:
		return discardSpans{}, nil
	}
}

func (om *ObservabilityManager) initTracing() error {
	exporter, err := om.spanExporter()
	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(om.resource),
		trace.WithSampler(trace.ParentBased(trace.TraceIDRatioBased(om.config.SampleRate))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	om.tracerProvider = tp
	om.shutdownFuncs = append(om.shutdownFuncs, tp.Shutdown)
	return nil
}

// metricReaders returns the extra readers plus console, OTLP and Prometheus
// readers as configured, or a manual reader when none apply
func (om *ObservabilityManager) metricReaders() ([]sdkmetric.Reader, error) {
	readers := append([]sdkmetric.Reader{}, om.extraReaders...)
	interval := om.collectionInterval()

	if om.config.ConsoleOutput {
		exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stderr))
		if err != nil {
			return nil, fmt.Errorf("failed to create console metric exporter: %w", err)
		}
		readers = append(readers, sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval)))
	}

	if om.otlpEnabled() {
		otlp := om.fullConfig.Observability.OTLP
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpointURL(otlp.Endpoint)}
		if otlp.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		if len(otlp.Headers) > 0 {
			opts = append(opts, otlpmetrichttp.WithHeaders(otlp.Headers))
		}
		exporter, err := otlpmetrichttp.New(context.Background(), opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP metrics exporter: %w", err)
		}
		readers = append(readers, sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval)))
	}

	if om.config.Prometheus.Enabled {
		reader, handler, err := SetupPrometheusExporter(om.config.Prometheus)
		if err != nil {
			return nil, err
		}
		readers = append(readers, reader)
		om.metricsHandler = handler
	}

	if len(readers) == 0 {
		readers = append(readers, sdkmetric.NewManualReader())
	}
	return readers, nil
}

func (om *ObservabilityManager) initMetrics() error {
	readers, err := om.metricReaders()
	if err != nil {
		return err
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(om.resource)}
	for _, reader := range readers {
		opts = append(opts, sdkmetric.WithReader(reader))
	}
	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)
	om.meterProvider = mp
	om.shutdownFuncs = append(om.shutdownFuncs, mp.Shutdown)

	m, err := newMetrics(mp.Meter(om.config.ServiceName))
	if err != nil {
		return err
	}
	om.metrics = m
	return nil
}

// instruments creates instruments on a meter and keeps the first error
type instruments struct {
	meter metric.Meter
	err   error
}

func (in *instruments) counter(name, desc string) metric.Int64Counter {
	c, err := in.meter.Int64Counter(name, metric.WithDescription(desc))
	in.keep(name, err)
	return c
}

func (in *instruments) upDown(name, desc string) metric.Int64UpDownCounter {
	c, err := in.meter.Int64UpDownCounter(name, metric.WithDescription(desc))
	in.keep(name, err)
	return c
}

func (in *instruments) seconds(name, desc string) metric.Float64Histogram {
	h, err := in.meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("s"))
	in.keep(name, err)
	return h
}

func (in *instruments) tokens(name, desc string) metric.Int64Histogram {
	h, err := in.meter.Int64Histogram(name, metric.WithDescription(desc), metric.WithUnit("{token}"))
	in.keep(name, err)
	return h
}

func (in *instruments) keep(name string, err error) {
	if err != nil && in.err == nil {
		in.err = fmt.Errorf("failed to create metric %s: %w", name, err)
	}
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	in := &instruments{meter: meter}
	m := &Metrics{
		StreamFrames:       in.counter("resumatch_stream_frames_total", "Progress frames received, by stage"),
		StreamErrors:       in.counter("resumatch_stream_errors_total", "Streams that ended in an error, by kind"),
		Submissions:        in.counter("resumatch_submissions_total", "Analysis submissions, by mode and outcome"),
		SubmissionDuration: in.seconds("resumatch_submission_duration_seconds", "Time from submission to terminal frame"),
		ActiveStreams:      in.upDown("resumatch_active_streams", "Streams without a terminal frame yet"),

		AIProcessingTime: in.seconds("resumatch_ai_processing_duration_seconds", "Time spent in local analyzer calls"),
		AIRequestCount:   in.counter("resumatch_ai_requests_total", "Local analyzer calls"),
		AIErrorCount:     in.counter("resumatch_ai_errors_total", "Failed local analyzer calls"),
		AITokenUsage:     in.tokens("resumatch_ai_token_usage", "Token usage of local analyzer calls, by token type"),

		RateLimitHits: in.counter("resumatch_rate_limit_hits_total", "Requests rejected by a rate limiter"),
	}
	if in.err != nil {
		return nil, in.err
	}
	return m, nil
}

// GetMetrics returns the instruments, or an empty set when telemetry is off
func (om *ObservabilityManager) GetMetrics() *Metrics {
	if om == nil || om.metrics == nil {
		return &Metrics{}
	}
	return om.metrics
}

// Enabled reports whether telemetry is being collected
func (om *ObservabilityManager) Enabled() bool {
	return om != nil && om.config.Enabled
}

// MetricsHandler returns the Prometheus scrape handler, or nil when the
// Prometheus exporter is disabled
func (om *ObservabilityManager) MetricsHandler() http.Handler {
	if om == nil {
		return nil
	}
	return om.metricsHandler
}

// MetricsPath returns where MetricsHandler is mounted
func (om *ObservabilityManager) MetricsPath() string {
	if om == nil || om.config.Prometheus.Endpoint == "" {
		return "/metrics"
	}
	return om.config.Prometheus.Endpoint
}

// HTTPMiddleware wraps handlers with otelhttp when telemetry is enabled
func (om *ObservabilityManager) HTTPMiddleware() func(http.Handler) http.Handler {
	if !om.Enabled() {
		return func(h http.Handler) http.Handler { return h }
	}
	return otelhttp.NewMiddleware(
		om.config.ServiceName,
		otelhttp.WithTracerProvider(om.tracerProvider),
		otelhttp.WithMeterProvider(om.meterProvider),
	)
}

// Tracer returns a tracer for the service
func (om *ObservabilityManager) Tracer(name string) oteltrace.Tracer {
	if !om.Enabled() {
		return noop.NewTracerProvider().Tracer(name)
	}
	return om.tracerProvider.Tracer(name)
}

// Shutdown flushes and stops the providers
func (om *ObservabilityManager) Shutdown(ctx context.Context) error {
	if om == nil {
		return nil
	}
	for _, shutdown := range om.shutdownFuncs {
		if err := shutdown(ctx); err != nil {
			return err
		}
	}
	return nil
}

// AIOperationResult is what a tracked analyzer call reports back
type AIOperationResult struct {
	Error      error
	TokenUsage *TokenUsage
}

// TokenUsage counts tokens of one model call
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}

// TrackAIOperationWithTokens runs fn inside a span and records duration,
// outcome and token usage. Without instruments fn simply runs.
func (m *Metrics) TrackAIOperationWithTokens(ctx context.Context, operation string, fn func(context.Context) *AIOperationResult, om *ObservabilityManager) error {
	if m.AIProcessingTime == nil {
		if result := fn(ctx); result != nil {
			return result.Error
		}
		return nil
	}

	ctx, span := om.Tracer("resumatch.analyzer").Start(ctx, "ai."+operation)
	defer span.End()

	start := time.Now()
	result := fn(ctx)
	if result == nil {
		result = &AIOperationResult{}
	}
	err := result.Error

	attrs := []attribute.KeyValue{
		attribute.String("operation", operation),
		attribute.Bool("success", err == nil),
	}
	span.SetAttributes(attrs...)
	if err != nil {
		span.RecordError(err)
	}

	ai := om.aiMetricsConfig()
	if ai.Enabled {
		opt := metric.WithAttributes(attrs...)
		m.AIProcessingTime.Record(ctx, time.Since(start).Seconds(), opt)
		m.AIRequestCount.Add(ctx, 1, opt)
		if err != nil {
			m.AIErrorCount.Add(ctx, 1, opt)
		}
	}

	if usage := result.TokenUsage; usage != nil {
		span.SetAttributes(
			attribute.Int64("ai.tokens.input", usage.InputTokens),
			attribute.Int64("ai.tokens.output", usage.OutputTokens),
			attribute.Int64("ai.tokens.total", usage.TotalTokens),
		)
		if ai.Enabled && ai.TrackTokenUsage {
			for tokenType, n := range map[string]int64{
				"input":  usage.InputTokens,
				"output": usage.OutputTokens,
				"total":  usage.TotalTokens,
			} {
				m.AITokenUsage.Record(ctx, n, metric.WithAttributes(
					attribute.String("operation", operation),
					attribute.String("token_type", tokenType),
				))
			}
		}
	}
	return err
}

func (om *ObservabilityManager) aiMetricsConfig() config.AIOperationsMetricsConfig {
	if om == nil || om.fullConfig == nil {
		return config.AIOperationsMetricsConfig{Enabled: true, TrackTokenUsage: true}
	}
	return om.fullConfig.Observability.CustomMetrics.AIOperations
}

// RecordRateLimitHit counts a request rejected by a rate limiter
func (om *ObservabilityManager) RecordRateLimitHit(ctx context.Context, attrs ...attribute.KeyValue) {
	m := om.GetMetrics()
	if m.RateLimitHits == nil {
		return
	}
	if om.fullConfig != nil {
		infra := om.fullConfig.Observability.CustomMetrics.Infrastructure
		if !infra.Enabled || !infra.TrackRateLimits {
			return
		}
	}
	m.RateLimitHits.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// discardSpans drops spans when neither console nor OTLP export is configured
type discardSpans struct{}

func (discardSpans) ExportSpans(context.Context, []trace.ReadOnlySpan) error { return nil }
func (discardSpans) Shutdown(context.Context) error                          { return nil }

func (om *ObservabilityManager) serviceInstanceID() string {
	if om.fullConfig != nil && om.fullConfig.Observability.ServiceInstance != "" {
		return om.fullConfig.Observability.ServiceInstance
	}
	return "resumatch-1"
}

func (om *ObservabilityManager) collectionInterval() time.Duration {
	if om.fullConfig != nil && om.fullConfig.Observability.Metrics.CollectionInterval > 0 {
		return om.fullConfig.Observability.Metrics.CollectionInterval
	}
	return 15 * time.Second
}
