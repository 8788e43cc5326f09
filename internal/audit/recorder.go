// Package audit records one append-only entry for every protected request.
//
// A request is observed from start to finish. The finish step runs exactly once
// whatever happens to the wrapped call (success, error, cancellation or panic), and
// the resulting Record is handed to a Sink. If the sink fails the record goes to the
// dead-letter logger; the request itself is never failed by auditing.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"phiguard/pkg/domain"
	dErrors "phiguard/pkg/domain-errors"
	"phiguard/pkg/requestcontext"
)

const (
	tracerName  = "phiguard/internal/audit"
	emitTimeout = 5 * time.Second

	// statusClientClosedRequest is used when the caller went away before a response.
	statusClientClosedRequest = 499
)

// Request is the transport-independent view of an observed call.
type Request struct {
	Method    string
	Path      string
	Query     url.Values
	Body      []byte
	ClientIP  string
	UserAgent string
}

// Outcome is what the wrapped call produced.
type Outcome struct {
	StatusCode int
	Body       []byte
}

// Recorder shapes and emits audit records.
type Recorder struct {
	sink       Sink
	policy     Policy
	logger     *slog.Logger
	deadLetter *slog.Logger
	diagnostic bool
	tracer     trace.Tracer
	now        func() time.Time
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithDeadLetter sets the logger that receives records a sink failed to persist.
func WithDeadLetter(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.deadLetter = logger
	}
}

// WithDiagnosticMode attaches panic stack traces to records. Never enable in production.
func WithDiagnosticMode(enabled bool) Option {
	return func(r *Recorder) {
		r.diagnostic = enabled
	}
}

// WithTracer overrides the global OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(r *Recorder) {
		r.tracer = t
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

// NewRecorder creates a Recorder writing to sink.
func NewRecorder(sink Sink, policy Policy, logger *slog.Logger, opts ...Option) *Recorder {
	r := &Recorder{
		sink:   sink,
		policy: policy,
		logger: logger,
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.deadLetter == nil {
		r.deadLetter = logger.With("log_type", "audit_dead_letter")
	}
	return r
}

// Observe runs fn and records its outcome. Errors are returned unchanged; a panic
// in fn is recorded and then re-raised.
func (r *Recorder) Observe(ctx context.Context, req Request, fn func(ctx context.Context) (Outcome, error)) (out Outcome, err error) {
	obs, ctx := r.begin(ctx, req)
	defer func() {
		if p := recover(); p != nil {
			obs.finishPanic(p, debug.Stack())
			panic(p)
		}
		obs.finish(out, err)
	}()

	return fn(ctx)
}

// observation is the per-request state between Started and Recorded.
type observation struct {
	rec    *Recorder
	ctx    context.Context
	span   trace.Span
	start  time.Time
	req    Request
	record Record
	once   sync.Once
}

func (r *Recorder) begin(ctx context.Context, req Request) (*observation, context.Context) {
	start := r.now()
	ctx = requestcontext.WithPrincipalSlot(ctx)
	resourceType, resourceID := ResourceFromPath(req.Path)
	action := ClassifyAction(req.Method, req.Path)
	phi := r.policy.IsPHIPath(req.Path)

	ctx, span := r.tracer.Start(ctx, "audit "+req.Method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.path", req.Path),
			attribute.String("audit.action", string(action)),
			attribute.Bool("audit.phi", phi),
		),
	)

	record := Record{
		ID:             uuid.NewString(),
		Timestamp:      start.UTC(),
		RequestID:      requestcontext.RequestID(ctx),
		ClientIP:       req.ClientIP,
		UserAgent:      req.UserAgent,
		Method:         req.Method,
		Endpoint:       req.Path,
		ResourceType:   resourceType,
		ResourceID:     resourceID,
		Action:         action,
		PHIAccessed:    phi,
		DetectedFields: []string{},
	}
	if p, ok := requestcontext.Principal(ctx); ok {
		record.setPrincipal(p)
	}
	if sc := span.SpanContext(); sc.HasTraceID() {
		record.TraceID = sc.TraceID().String()
	}
	if phi {
		if detected := r.policy.DetectSensitiveFields(req.Body); len(detected) > 0 {
			record.DetectedFields = detected
		}
	}

	return &observation{rec: r, ctx: ctx, span: span, start: start, req: req, record: record}, ctx
}

func (o *observation) finish(out Outcome, err error) {
	if err == nil && (out.StatusCode == 0 || out.StatusCode < http.StatusBadRequest) {
		o.succeed(out)
		return
	}
	o.fail(out, err)
}

func (o *observation) succeed(out Outcome) {
	o.once.Do(func() {
		status := out.StatusCode
		if status == 0 {
			status = http.StatusOK
		}
		o.record.StatusCode = status
		o.record.Success = true
		o.record.Metadata = o.baseMetadata(status)
		if n, ok := RecordCount(out.Body); ok {
			o.record.Metadata[MetaRecordCount] = n
		}
		if q := SanitizeQuery(o.req.Query); q != nil {
			o.record.Metadata[MetaQuery] = q
		}
		o.span.SetStatus(codes.Ok, "")
		o.emit()
	})
}

func (o *observation) fail(out Outcome, err error) {
	o.once.Do(func() {
		status := failureStatus(out, err)
		o.record.StatusCode = status
		o.record.Success = false
		o.record.Metadata = o.baseMetadata(status)
		if err != nil {
			o.record.ErrorCode = string(dErrors.CodeOf(err))
			o.record.ErrorMessage = dErrors.MessageOf(err)
			o.span.RecordError(err)
		}
		o.span.SetStatus(codes.Error, o.record.ErrorMessage)
		o.emit()
	})
}

func (o *observation) finishPanic(p any, stack []byte) {
	o.once.Do(func() {
		o.record.StatusCode = http.StatusInternalServerError
		o.record.Success = false
		o.record.ErrorCode = string(dErrors.CodeInternal)
		o.record.ErrorMessage = "internal server error"
		o.record.Metadata = o.baseMetadata(http.StatusInternalServerError)
		if o.rec.diagnostic {
			o.record.ErrorMessage = fmt.Sprintf("panic: %v", p)
			o.record.StackTrace = string(stack)
		}
		o.span.SetStatus(codes.Error, "panic")
		o.emit()
	})
}

func (o *observation) baseMetadata(status int) map[string]any {
	meta := map[string]any{MetaStatusCode: status}
	if o.req.UserAgent != "" {
		ua := useragent.New(o.req.UserAgent)
		browser, version := ua.Browser()
		if browser != "" {
			meta[MetaBrowser] = browser + " " + version
		}
		if osName := ua.OS(); osName != "" {
			meta[MetaOS] = osName
		}
		meta[MetaMobile] = ua.Mobile()
		meta[MetaBot] = ua.Bot()
	}
	return meta
}

// emit hands the record to the sink on a context detached from request cancellation,
// so a cancelled request is still recorded.
func (o *observation) emit() {
	defer o.span.End()

	if o.record.PrincipalID == "" {
		// Authentication may run inside the observed call.
		if p, ok := requestcontext.ResolvedPrincipal(o.ctx); ok {
			o.record.setPrincipal(p)
		}
	}
	o.record.Latency = o.rec.now().Sub(o.start)
	recordsTotal.WithLabelValues(string(o.record.Action), strconv.FormatBool(o.record.Success), strconv.FormatBool(o.record.PHIAccessed)).Inc()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(o.ctx), emitTimeout)
	defer cancel()

	start := time.Now()
	err := o.rec.sink.Emit(ctx, o.record)
	emitDuration.Observe(time.Since(start).Seconds())
	if err == nil {
		return
	}

	writeFailuresTotal.Inc()
	o.span.AddEvent("audit_write_failed")
	o.rec.deadLetter.ErrorContext(ctx, "audit record could not be persisted",
		"code", string(dErrors.CodeAuditWrite),
		"error", err,
		"request_id", o.record.RequestID,
		"record", o.record,
	)
}

func (r *Record) setPrincipal(p domain.Principal) {
	r.PrincipalID = p.ID
	r.Role = p.Role.String()
	if !p.SessionID.IsNil() {
		r.SessionID = p.SessionID.String()
	}
}

func failureStatus(out Outcome, err error) int {
	if out.StatusCode >= http.StatusBadRequest {
		return out.StatusCode
	}
	switch {
	case err == nil:
		return http.StatusInternalServerError
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return dErrors.ToHTTPStatus(de.Code)
	}
	return http.StatusInternalServerError
}
