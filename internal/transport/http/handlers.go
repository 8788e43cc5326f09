package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/asaskevich/govalidator"

	"phiguard/internal/access"
	"phiguard/internal/audit"
	"phiguard/internal/session"
	"phiguard/pkg/domain"
	dErrors "phiguard/pkg/domain-errors"
	"phiguard/pkg/platform/httputil"
	"phiguard/pkg/requestcontext"
)

const (
	defaultTokenTTL   = time.Hour
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// Handler serves the authentication, self-service and audit endpoints.
type Handler struct {
	logger    *slog.Logger
	tokens    TokenService
	directory Authenticator
	sessions  *session.Monitor
	evaluator *access.Evaluator
	auditLog  AuditReader
	tokenTTL  time.Duration
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	SessionID   string `json:"session_id"`
}

type permissionsResponse struct {
	PrincipalID string              `json:"principal_id"`
	Role        domain.Role         `json:"role"`
	Permissions []domain.Permission `json:"permissions"`
}

type auditListResponse struct {
	Items []audit.Record `json:"items"`
	Total int            `json:"total"`
}

func (h *Handler) handleHealth(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				h.logger.WarnContext(r.Context(), "health check failed", "error", err)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnavailable, "dependency unavailable"))
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// handleLogin verifies credentials, opens an idle-tracked session and issues a
// token bound to it.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid login request",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if !govalidator.StringLength(req.Username, "1", "255") || !govalidator.StringLength(req.Password, "1", "72") {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "username and password are required"))
		return
	}

	principal, err := h.directory.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeUnauthorized) {
			h.logger.WarnContext(ctx, "login rejected",
				"request_id", requestID,
				"client_ip", requestcontext.ClientIP(ctx),
			)
			httputil.WriteError(w, err)
			return
		}
		h.logger.ErrorContext(ctx, "login failed", "request_id", requestID, "error", err)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "login failed"))
		return
	}

	sess, err := h.sessions.Start(ctx, principal.ID, requestcontext.Now(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to start session", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	principal.SessionID = sess.ID

	ttl := h.tokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	token, err := h.tokens.GenerateAccessToken(principal, ttl)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to sign token", "request_id", requestID, "error", err)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "login failed"))
		return
	}

	h.logger.InfoContext(ctx, "session started",
		"request_id", requestID,
		"principal_id", principal.ID,
		"session_id", sess.ID.String(),
	)
	httputil.WriteJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(ttl.Seconds()),
		SessionID:   sess.ID.String(),
	})
}

// handleLogout ends the caller's session. It sits outside the expiry check so an
// idle-expired session can still be closed explicitly.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := requestcontext.SessionID(ctx)
	if id.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "session required"))
		return
	}
	if err := h.sessions.Logout(ctx, id, requestcontext.Now(ctx)); err != nil {
		if dErrors.Is(err, dErrors.CodeUnavailable) {
			h.logger.ErrorContext(ctx, "failed to end session",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePermissions(w http.ResponseWriter, r *http.Request) {
	principal, ok := requestcontext.Principal(r.Context())
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, permissionsResponse{
		PrincipalID: principal.ID,
		Role:        principal.Role,
		Permissions: h.evaluator.EffectivePermissions(principal),
	})
}

func (h *Handler) handleAuditList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.auditLog == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnavailable, "audit log is not queryable"))
		return
	}

	var (
		records []audit.Record
		err     error
	)
	if principalID := r.URL.Query().Get("principal_id"); principalID != "" {
		records, err = h.auditLog.ListByPrincipal(ctx, principalID)
	} else {
		records, err = h.auditLog.ListRecent(ctx, parseLimit(r.URL.Query().Get("limit")))
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list audit records",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to list audit records"))
		return
	}
	if records == nil {
		records = []audit.Record{}
	}
	httputil.WriteJSON(w, http.StatusOK, auditListResponse{Items: records, Total: len(records)})
}

func parseLimit(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultAuditLimit
	}
	return min(n, maxAuditLimit)
}
