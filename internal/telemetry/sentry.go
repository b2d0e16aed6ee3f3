// Package telemetry wraps sentry-go tracing for the question pipeline.
//
// Every helper is safe to call when Sentry was never initialized: spans are
// still created but nothing is sent.
package telemetry

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
)

const (
	serverName   = "policyqa"
	flushTimeout = 5 * time.Second
	healthRoute  = "GET /health"
)

// Config holds the configuration for Sentry initialization.
type Config struct {
	DSN              string
	Environment      string
	TracesSampleRate float64
	Debug            bool
}

// Init configures the global Sentry client and returns a flush func.
// An empty DSN disables reporting.
func Init(cfg Config) (func(), error) {
	noop := func() {}
	if cfg.DSN == "" {
		return noop, nil
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.TracesSampleRate <= 0 {
		cfg.TracesSampleRate = 1.0
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		EnableTracing:    true,
		TracesSampleRate: cfg.TracesSampleRate,
		TracesSampler:    sampler(cfg.TracesSampleRate),
		Debug:            cfg.Debug,
		ServerName:       serverName,
	})
	if err != nil {
		return noop, fmt.Errorf("sentry init: %w", err)
	}

	log.Printf("sentry: tracing initialized (environment: %s, sample_rate: %.2f)", cfg.Environment, cfg.TracesSampleRate)
	return func() { sentry.Flush(flushTimeout) }, nil
}

// sampler drops health probes and keeps child spans with their parent.
func sampler(rate float64) sentry.TracesSampler {
	return func(sc sentry.SamplingContext) float64 {
		if sc.Span == nil {
			return rate
		}
		if sc.Span.Name == healthRoute {
			return 0
		}
		var root sentry.SpanID
		if sc.Span.ParentSpanID != root {
			if sc.Span.Sampled.Bool() {
				return 1
			}
			return 0
		}
		return rate
	}
}

// SpanAttributes are the pipeline values recorded on a span.
type SpanAttributes struct {
	DocumentURL string
	Namespace   string
	Question    string
	Operation   string
}

func (a SpanAttributes) apply(span *sentry.Span) {
	if a.DocumentURL != "" {
		span.SetTag("document_url", a.DocumentURL)
	}
	if a.Namespace != "" {
		span.SetTag("namespace", a.Namespace)
	}
	if a.Question != "" {
		span.SetData("question", a.Question)
	}
	if a.Operation != "" {
		span.SetData("operation", a.Operation)
	}
}

// Span is a nil-safe handle on a sentry span.
type Span struct {
	inner *sentry.Span
}

// End finishes the span.
func (s *Span) End() {
	if s != nil && s.inner != nil {
		s.inner.Finish()
	}
}

// SetError marks the span failed and reports err on the request hub.
func (s *Span) SetError(err error) {
	if s == nil || s.inner == nil || err == nil {
		return
	}
	s.inner.Status = sentry.SpanStatusInternalError
	CaptureError(s.inner.Context(), err)
}

// SetTag tags the span.
func (s *Span) SetTag(key, value string) {
	if s != nil && s.inner != nil && value != "" {
		s.inner.SetTag(key, value)
	}
}

// SetRoute names the transaction after the matched route pattern.
func (s *Span) SetRoute(method, pattern string) {
	if s == nil || s.inner == nil || pattern == "" {
		return
	}
	s.inner.Name = method + " " + pattern
	s.inner.Source = sentry.SourceRoute
}

// SetHTTPStatus records the response code and the matching span status.
func (s *Span) SetHTTPStatus(status int) {
	if s == nil || s.inner == nil {
		return
	}
	s.inner.Status = SpanStatus(status)
	s.inner.SetData("http.response.status_code", status)
}

// StartSpan opens a child of the span in ctx, or a new transaction when
// ctx carries none.
func StartSpan(ctx context.Context, name string, attrs SpanAttributes) (context.Context, *Span) {
	var span *sentry.Span
	if parent := sentry.SpanFromContext(ctx); parent != nil {
		span = parent.StartChild(name)
	} else {
		span = sentry.StartSpan(ctx, name, sentry.WithTransactionName(name))
	}
	attrs.apply(span)
	return span.Context(), &Span{inner: span}
}

// StartTransaction opens the root span of an inbound request, continuing
// the caller's trace when it sent sentry-trace headers.
func StartTransaction(ctx context.Context, method, path string, header http.Header) (context.Context, *Span) {
	options := []sentry.SpanOption{
		sentry.WithOpName("http.server"),
		sentry.WithTransactionSource(sentry.SourceURL),
	}
	if trace := header.Get(sentry.SentryTraceHeader); trace != "" {
		options = append(options, sentry.ContinueFromHeaders(trace, header.Get(sentry.SentryBaggageHeader)))
	}

	span := sentry.StartTransaction(ctx, method+" "+path, options...)
	return span.Context(), &Span{inner: span}
}

// SpanStatus maps an HTTP response code onto a span status.
func SpanStatus(status int) sentry.SpanStatus {
	switch {
	case status >= 200 && status < 300:
		return sentry.SpanStatusOK
	case status == http.StatusUnauthorized:
		return sentry.SpanStatusUnauthenticated
	case status == http.StatusForbidden:
		return sentry.SpanStatusPermissionDenied
	case status == http.StatusNotFound:
		return sentry.SpanStatusNotFound
	case status == http.StatusRequestEntityTooLarge:
		return sentry.SpanStatusResourceExhausted
	case status == 499:
		return sentry.SpanStatusCanceled
	case status >= 400 && status < 500:
		return sentry.SpanStatusInvalidArgument
	case status == http.StatusBadGateway, status == http.StatusServiceUnavailable:
		return sentry.SpanStatusUnavailable
	case status == http.StatusGatewayTimeout:
		return sentry.SpanStatusDeadlineExceeded
	case status >= 500:
		return sentry.SpanStatusInternalError
	default:
		return sentry.SpanStatusUnknown
	}
}

func hubFrom(ctx context.Context) *sentry.Hub {
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		return hub
	}
	return sentry.CurrentHub()
}

// CaptureError reports err on the hub bound to ctx.
func CaptureError(ctx context.Context, err error) {
	hubFrom(ctx).CaptureException(err)
}

// CaptureMessage reports message on the hub bound to ctx.
func CaptureMessage(ctx context.Context, message string) {
	hubFrom(ctx).CaptureMessage(message)
}

// AddBreadcrumb records an info breadcrumb on the hub bound to ctx.
func AddBreadcrumb(ctx context.Context, category, message string) {
	hubFrom(ctx).AddBreadcrumb(&sentry.Breadcrumb{
		Type:      "default",
		Category:  category,
		Message:   message,
		Level:     sentry.LevelInfo,
		Timestamp: time.Now(),
	}, nil)
}
