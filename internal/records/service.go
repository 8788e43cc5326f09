// Package records is the PHI data-access layer for client records. PHI columns are
// encrypted immediately before persistence and decrypted immediately after load;
// SSNs leave the service masked unless the caller holds phi:view:ssn.
package records

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"phiguard/internal/access"
	"phiguard/internal/fieldcrypt"
	"phiguard/pkg/domain"
	dErrors "phiguard/pkg/domain-errors"
	"phiguard/pkg/platform/sentinel"
	"phiguard/pkg/requestcontext"
)

const ssnVisibleSuffix = 4

// Service reads and writes client records.
type Service struct {
	store     Store
	engine    *fieldcrypt.Engine
	evaluator *access.Evaluator
	logger    *slog.Logger
}

func NewService(store Store, engine *fieldcrypt.Engine, evaluator *access.Evaluator, logger *slog.Logger) *Service {
	return &Service{store: store, engine: engine, evaluator: evaluator, logger: logger}
}

// Create encrypts the PHI fields and stores the client. Nothing is stored if any
// field fails to encrypt.
func (s *Service) Create(ctx context.Context, req CreateClientRequest) (*Client, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "name is required")
	}

	id := uuid.NewString()
	plain := row{
		"id":             id,
		"name":           strings.TrimSpace(req.Name),
		"created_at":     requestcontext.Now(ctx).UTC(),
		FieldSSN:         req.SSN,
		FieldDiagnosis:   req.Diagnosis,
		FieldMedications: req.Medications,
		FieldPhone:       req.Phone,
		FieldEmail:       req.Email,
	}
	sealed, err := s.engine.EncryptFields(ctx, plain, EncryptedFields)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to protect client record")
	}
	if err := s.store.Save(ctx, id, sealed); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store client record")
	}

	principal, _ := requestcontext.Principal(ctx)
	return s.present(principal, plain, nil), nil
}

// Get loads one client. Ownership has already been enforced by the route.
func (s *Service) Get(ctx context.Context, id string) (*Client, error) {
	r, err := s.store.Find(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "client not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load client record")
	}
	principal, _ := requestcontext.Principal(ctx)
	return s.open(ctx, principal, r), nil
}

// List returns the clients the caller may see: everything for bypass roles, and the
// ownership-filtered subset for everyone else.
func (s *Service) List(ctx context.Context) (*ListResponse, error) {
	principal, ok := requestcontext.Principal(ctx)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	rows, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list client records")
	}

	resp := &ListResponse{Items: []Client{}}
	for _, r := range rows {
		if !s.evaluator.AuthorizeOwnership(principal, r.str("id")).Allowed {
			continue
		}
		resp.Items = append(resp.Items, *s.open(ctx, principal, r))
	}
	resp.Total = len(resp.Items)
	return resp, nil
}

// MigrateLegacy encrypts any PHI column still stored as plaintext and returns how
// many columns were rewritten.
func (s *Service) MigrateLegacy(ctx context.Context) (int, error) {
	rows, err := s.store.List(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list client records")
	}
	migrated := 0
	for _, r := range rows {
		changed := false
		for _, f := range EncryptedFields {
			v, ok := r[f].(string)
			if !ok {
				continue
			}
			out, did, err := s.engine.MigrateLegacy(v)
			if err != nil {
				return migrated, dErrors.Wrap(err, dErrors.CodeInternal, "failed to migrate client record")
			}
			if did {
				r[f] = out
				changed = true
				migrated++
			}
		}
		if changed {
			if err := s.store.Save(ctx, r.str("id"), r); err != nil {
				return migrated, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store client record")
			}
		}
	}
	return migrated, nil
}

func (s *Service) open(ctx context.Context, principal domain.Principal, r row) *Client {
	plain, failures := s.engine.DecryptFields(ctx, r, EncryptedFields)
	var unreadable []string
	for _, f := range failures {
		unreadable = append(unreadable, f.Field)
	}
	if len(failures) > 0 {
		s.logger.ErrorContext(ctx, "client record has undecryptable fields",
			"client_id", r.str("id"),
			"fields", unreadable,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return s.present(principal, plain, unreadable)
}

func (s *Service) present(principal domain.Principal, plain row, unreadable []string) *Client {
	c := &Client{
		ID:          plain.str("id"),
		Name:        plain.str("name"),
		SSN:         plain.str(FieldSSN),
		Diagnosis:   plain.str(FieldDiagnosis),
		Medications: plain.str(FieldMedications),
		Phone:       plain.str(FieldPhone),
		Email:       plain.str(FieldEmail),
		Unreadable:  unreadable,
	}
	if t, ok := plain["created_at"].(time.Time); ok {
		c.CreatedAt = t
	}
	if c.SSN != fieldcrypt.DecryptionErrorMarker && !s.evaluator.HasPermission(principal, access.PermPHIViewSSN) {
		c.SSN = fieldcrypt.MaskForDisplay(c.SSN, ssnVisibleSuffix)
	}
	if c.Diagnosis != fieldcrypt.DecryptionErrorMarker && !s.evaluator.HasPermission(principal, access.PermPHIViewDiagnosis) {
		c.Diagnosis = ""
	}
	return c
}
