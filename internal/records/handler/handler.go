package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"phiguard/internal/access"
	"phiguard/internal/records"
	"phiguard/pkg/domain"
	dErrors "phiguard/pkg/domain-errors"
	"phiguard/pkg/platform/httputil"
	"phiguard/pkg/requestcontext"
)

// ClientIDParam is the route parameter ownership checks resolve against.
const ClientIDParam = "clientID"

// Service defines the client record operations the handler needs.
type Service interface {
	Create(ctx context.Context, req records.CreateClientRequest) (*records.Client, error)
	Get(ctx context.Context, id string) (*records.Client, error)
	List(ctx context.Context) (*records.ListResponse, error)
}

// Handler serves the client record endpoints.
type Handler struct {
	service Service
	guard   *access.Middleware
	logger  *slog.Logger
}

func New(service Service, guard *access.Middleware, logger *slog.Logger) *Handler {
	return &Handler{service: service, guard: guard, logger: logger}
}

// Register mounts the client routes. Routes addressing a single client also
// declare the ownership parameter.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/clients", func(r chi.Router) {
		r.With(h.guard.Require(readers)).Get("/", h.handleList)
		r.With(h.guard.Require(access.Requirement{Permissions: []domain.Permission{access.PermClientsCreate}})).
			Post("/", h.handleCreate)
		r.With(h.guard.Require(readers), h.guard.RequireOwnership(ClientIDParam)).
			Get("/{"+ClientIDParam+"}", h.handleGet)
	})
}

// readers may reach the client routes; what each one sees is narrowed by ownership.
var readers = access.Requirement{Roles: []domain.Role{
	domain.RoleOfficeManager, domain.RoleScheduler, domain.RoleCaregiver, domain.RoleClient, domain.RoleFamilyMember,
}}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp, err := h.service.List(ctx)
	if err != nil {
		h.fail(ctx, w, "failed to list clients", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	client, err := h.service.Get(ctx, chi.URLParam(r, ClientIDParam))
	if err != nil {
		h.fail(ctx, w, "failed to load client", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, client)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req records.CreateClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid create client request",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	client, err := h.service.Create(ctx, req)
	if err != nil {
		h.fail(ctx, w, "failed to create client", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, client)
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
	}
	httputil.WriteError(w, err)
}
