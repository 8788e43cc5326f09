// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware sets these values; the security core (evaluator, recorder, monitor) reads
// them. Keeping the package free of net/http lets the core be exercised from tests
// and workers without the HTTP stack.
//
// Usage in middleware (set values):
//
//	ctx = requestcontext.WithPrincipal(ctx, principal)
//	ctx = requestcontext.WithRequestID(ctx, requestID)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"sync"
	"time"

	"phiguard/pkg/domain"
)

type (
	principalKey     struct{}
	principalSlotKey struct{}
	clientIPKey      struct{}
	userAgentKey   struct{}
	requestIDKey     struct{}
	requestTimeKey   struct{}
)

// principalSlot lets an outer middleware learn the principal resolved further in.
type principalSlot struct {
	mu  sync.Mutex
	p   domain.Principal
	set bool
}

// -----------------------------------------------------------------------------
// Principal
// -----------------------------------------------------------------------------

// Principal retrieves the authenticated principal. ok is false for anonymous requests.
func Principal(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(domain.Principal)
	return p, ok
}

// WithPrincipal injects the authenticated principal into the context and fills the
// enclosing principal slot, if any.
func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	if slot, ok := ctx.Value(principalSlotKey{}).(*principalSlot); ok {
		slot.mu.Lock()
		slot.p, slot.set = p, true
		slot.mu.Unlock()
	}
	return context.WithValue(ctx, principalKey{}, p)
}

// WithPrincipalSlot returns a context whose descendants report back the principal
// they authenticate. Read it with ResolvedPrincipal.
func WithPrincipalSlot(ctx context.Context) context.Context {
	return context.WithValue(ctx, principalSlotKey{}, &principalSlot{})
}

// ResolvedPrincipal returns the principal on ctx, or the one a descendant stored in
// ctx's principal slot.
func ResolvedPrincipal(ctx context.Context) (domain.Principal, bool) {
	if p, ok := Principal(ctx); ok {
		return p, true
	}
	slot, ok := ctx.Value(principalSlotKey{}).(*principalSlot)
	if !ok {
		return domain.Principal{}, false
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.p, slot.set
}

// PrincipalID returns the principal id or "" when unauthenticated.
func PrincipalID(ctx context.Context) string {
	if p, ok := Principal(ctx); ok {
		return p.ID
	}
	return ""
}

// SessionID returns the session bound to the principal, or the zero id.
func SessionID(ctx context.Context) domain.SessionID {
	if p, ok := Principal(ctx); ok {
		return p.SessionID
	}
	return domain.SessionID{}
}

// -----------------------------------------------------------------------------
// Client metadata (IP, User-Agent)
// -----------------------------------------------------------------------------

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey{}).(string); ok {
		return ip
	}
	return ""
}

// UserAgent retrieves the User-Agent from the context.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(userAgentKey{}).(string); ok {
		return ua
	}
	return ""
}

// WithClientMetadata injects client IP and User-Agent into a context.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey{}, clientIP)
	ctx = context.WithValue(ctx, userAgentKey{}, userAgent)
	return ctx
}

// -----------------------------------------------------------------------------
// Request metadata
// -----------------------------------------------------------------------------

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (workers, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
