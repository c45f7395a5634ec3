// Package tracing manages OpenTelemetry tracing infrastructure for the
// gateway, adapted from the observability package's TracingService:
// same exporter selection (stdout/otlp/jaeger/none), same
// resource/sampler/provider wiring, generalized from GPU-scheduling and
// model-serving span categories to the gateway's own domains
// (scheduling, attestation, mesh, dispatch, session).
package tracing

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Config holds configuration for OpenTelemetry tracing.
type Config struct {
	ServiceName    string
	ServiceVersion string
	ExporterType   string // "jaeger", "otlp", "stdout", "none"
	JaegerEndpoint string
	OTLPEndpoint   string
	SampleRate     float64
	Environment    string
	Attributes     map[string]string
	EnabledSpans   map[string]bool
}

// DefaultConfig returns default tracing configuration.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "clawgatewayd",
		ServiceVersion: "0.1.0",
		ExporterType:   "stdout",
		JaegerEndpoint: "http://localhost:14268/api/traces",
		OTLPEndpoint:   "http://localhost:4318/v1/traces",
		SampleRate:     1.0,
		Environment:    "development",
		Attributes: map[string]string{
			"deployment.environment": "development",
			"service.namespace":      "clawbernetes",
		},
		EnabledSpans: map[string]bool{
			"scheduling":  true,
			"attestation": true,
			"mesh":        true,
			"dispatch":    true,
			"session":     true,
			"api_requests": true,
		},
	}
}

// Service manages OpenTelemetry tracing infrastructure.
type Service struct {
	config   *Config
	provider *trace.TracerProvider
	tracer   oteltrace.Tracer
	enabled  bool
	logger   *log.Logger
}

// NewService creates a tracing service with the given configuration.
func NewService(config *Config) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}

	ts := &Service{
		config:  config,
		enabled: config.ExporterType != "none",
		logger:  log.New(log.Writer(), "[TracingService] ", log.LstdFlags|log.Lshortfile),
	}

	if !ts.enabled {
		ts.logger.Printf("Tracing disabled (exporter_type: none)")
		return ts, nil
	}

	if err := ts.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	ts.logger.Printf("Tracing initialized with %s exporter", config.ExporterType)
	return ts, nil
}

func (ts *Service) initialize() error {
	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(ts.config.ServiceName),
			semconv.ServiceVersionKey.String(ts.config.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(ts.config.Environment),
		),
		resource.WithFromEnv(),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	attributes := make([]attribute.KeyValue, 0, len(ts.config.Attributes))
	for key, value := range ts.config.Attributes {
		attributes = append(attributes, attribute.String(key, value))
	}
	if len(attributes) > 0 {
		res, err = resource.Merge(res, resource.NewWithAttributes(semconv.SchemaURL, attributes...))
		if err != nil {
			return fmt.Errorf("failed to merge resource attributes: %w", err)
		}
	}

	var exporter trace.SpanExporter
	switch ts.config.ExporterType {
	case "jaeger":
		exporter, err = ts.createJaegerExporter()
	case "otlp":
		exporter, err = ts.createOTLPExporter()
	case "stdout":
		exporter, err = ts.createStdoutExporter()
	default:
		return fmt.Errorf("unsupported exporter type: %s", ts.config.ExporterType)
	}
	if err != nil {
		return fmt.Errorf("failed to create exporter: %w", err)
	}

	sampler := trace.TraceIDRatioBased(ts.config.SampleRate)
	ts.provider = trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(sampler),
	)

	otel.SetTracerProvider(ts.provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	ts.tracer = otel.Tracer(ts.config.ServiceName)
	return nil
}

func (ts *Service) createJaegerExporter() (trace.SpanExporter, error) {
	return jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(ts.config.JaegerEndpoint)))
}

func (ts *Service) createOTLPExporter() (trace.SpanExporter, error) {
	return otlptrace.New(
		context.Background(),
		otlptracehttp.NewClient(
			otlptracehttp.WithEndpoint(ts.config.OTLPEndpoint),
			otlptracehttp.WithInsecure(),
		),
	)
}

func (ts *Service) createStdoutExporter() (trace.SpanExporter, error) {
	return stdouttrace.New(stdouttrace.WithPrettyPrint())
}

// StartSpan starts a new span, honoring the per-category enable table.
func (ts *Service) StartSpan(ctx context.Context, spanName string, opts ...oteltrace.SpanStartOption) (context.Context, oteltrace.Span) {
	if !ts.enabled || !ts.isSpanEnabled(spanName) {
		return ctx, oteltrace.SpanFromContext(ctx)
	}
	return ts.tracer.Start(ctx, spanName, opts...)
}

func (ts *Service) isSpanEnabled(spanName string) bool {
	for category, enabled := range ts.config.EnabledSpans {
		if len(spanName) >= len(category) && spanName[:len(category)] == category {
			return enabled
		}
	}
	return true
}

// AddSpanAttributes adds attributes to span if tracing is enabled.
func (ts *Service) AddSpanAttributes(span oteltrace.Span, attrs ...attribute.KeyValue) {
	if !ts.enabled || span == nil {
		return
	}
	span.SetAttributes(attrs...)
}

// RecordError records err on span and marks it as failed.
func (ts *Service) RecordError(span oteltrace.Span, err error) {
	if !ts.enabled || span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanStatus sets a span's terminal status.
func (ts *Service) SetSpanStatus(span oteltrace.Span, code codes.Code, description string) {
	if !ts.enabled || span == nil {
		return
	}
	span.SetStatus(code, description)
}

// TraceScheduling traces a scheduling decision for one workload.
func (ts *Service) TraceScheduling(ctx context.Context, operation, workloadID string) (context.Context, oteltrace.Span) {
	return ts.StartSpan(ctx, fmt.Sprintf("scheduling.%s", operation),
		oteltrace.WithSpanKind(oteltrace.SpanKindInternal),
		oteltrace.WithAttributes(
			attribute.String("workload.id", workloadID),
			attribute.String("operation", operation),
		),
	)
}

// TraceAttestation traces a node or workload attestation check.
func (ts *Service) TraceAttestation(ctx context.Context, operation, subjectID string) (context.Context, oteltrace.Span) {
	return ts.StartSpan(ctx, fmt.Sprintf("attestation.%s", operation),
		oteltrace.WithSpanKind(oteltrace.SpanKindInternal),
		oteltrace.WithAttributes(
			attribute.String("subject.id", subjectID),
			attribute.String("operation", operation),
		),
	)
}

// TraceMesh traces a mesh pool allocation or sync operation.
func (ts *Service) TraceMesh(ctx context.Context, operation, region string) (context.Context, oteltrace.Span) {
	return ts.StartSpan(ctx, fmt.Sprintf("mesh.%s", operation),
		oteltrace.WithSpanKind(oteltrace.SpanKindInternal),
		oteltrace.WithAttributes(
			attribute.String("region", region),
			attribute.String("operation", operation),
		),
	)
}

// TraceSession traces a gateway-session protocol event.
func (ts *Service) TraceSession(ctx context.Context, event, nodeID string) (context.Context, oteltrace.Span) {
	return ts.StartSpan(ctx, fmt.Sprintf("session.%s", event),
		oteltrace.WithSpanKind(oteltrace.SpanKindServer),
		oteltrace.WithAttributes(
			attribute.String("session.event", event),
			attribute.String("node.id", nodeID),
		),
	)
}

// TraceAPIRequest traces an HTTP API request.
func (ts *Service) TraceAPIRequest(ctx context.Context, method, path string) (context.Context, oteltrace.Span) {
	return ts.StartSpan(ctx, fmt.Sprintf("api_requests.%s %s", method, path),
		oteltrace.WithSpanKind(oteltrace.SpanKindServer),
		oteltrace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", path),
		),
	)
}

// GetTracer returns the underlying OpenTelemetry tracer.
func (ts *Service) GetTracer() oteltrace.Tracer { return ts.tracer }

// IsEnabled reports whether tracing is enabled.
func (ts *Service) IsEnabled() bool { return ts.enabled }

// Shutdown flushes and tears down the tracer provider.
func (ts *Service) Shutdown(ctx context.Context) error {
	if !ts.enabled || ts.provider == nil {
		return nil
	}
	ts.logger.Printf("Shutting down tracing service")
	return ts.provider.Shutdown(ctx)
}

// Middleware returns an HTTP middleware that wraps every request in an
// api_requests span.
func (ts *Service) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !ts.enabled {
				next.ServeHTTP(w, r)
				return
			}

			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := ts.TraceAPIRequest(ctx, r.Method, r.URL.Path)
			defer span.End()

			ts.AddSpanAttributes(span,
				attribute.String("http.url", r.URL.String()),
				attribute.String("http.user_agent", r.UserAgent()),
				attribute.String("http.remote_addr", r.RemoteAddr),
			)

			rw := &statusResponseWriter{ResponseWriter: w, statusCode: 200}
			start := time.Now()
			next.ServeHTTP(rw, r.WithContext(ctx))

			ts.AddSpanAttributes(span,
				attribute.Int("http.status_code", rw.statusCode),
				attribute.Int64("http.duration_ms", time.Since(start).Milliseconds()),
			)
			if rw.statusCode >= 400 {
				ts.SetSpanStatus(span, codes.Error, fmt.Sprintf("HTTP %d", rw.statusCode))
			} else {
				ts.SetSpanStatus(span, codes.Ok, "")
			}
		})
	}
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HealthCheck reports tracing service health information.
func (ts *Service) HealthCheck() map[string]interface{} {
	health := map[string]interface{}{
		"enabled":       ts.enabled,
		"service_name":  ts.config.ServiceName,
		"exporter_type": ts.config.ExporterType,
		"sample_rate":   ts.config.SampleRate,
		"environment":   ts.config.Environment,
	}
	if ts.enabled {
		health["status"] = "active"
		health["enabled_spans"] = ts.config.EnabledSpans
	} else {
		health["status"] = "disabled"
	}
	return health
}
