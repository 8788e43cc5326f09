package handler

import (
	"context"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phiguard/internal/access"
	"phiguard/internal/fieldcrypt"
	"phiguard/internal/records"
	"phiguard/pkg/domain"
	"phiguard/pkg/requestcontext"
	"phiguard/pkg/testutil"
)

func newRouter(svc *records.Service) http.Handler {
	logger := slog.New(slog.DiscardHandler)
	r := chi.NewRouter()
	New(svc, access.NewMiddleware(access.NewEvaluator(nil), logger), logger).Register(r)
	return r
}

func newService(t *testing.T) *records.Service {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	engine, err := fieldcrypt.NewEngine(fieldcrypt.Config{MasterSecret: "0123456789abcdef0123456789abcdef-handler", Production: true}, logger)
	require.NoError(t, err)
	return records.NewService(records.NewMemoryStore(), engine, access.NewEvaluator(nil), logger)
}

func seed(t *testing.T, svc *records.Service) string {
	t.Helper()
	ctx := requestcontext.WithPrincipal(context.Background(), domain.Principal{ID: "admin", Role: domain.RoleAdministrator})
	c, err := svc.Create(ctx, records.CreateClientRequest{Name: "dana", SSN: "123-45-6789", Diagnosis: "COPD"})
	require.NoError(t, err)
	return c.ID
}

func get(path string) *http.Request {
	return testutil.NewRequestWithBody(http.MethodGet, path, "")
}

func TestGetClient(t *testing.T) {
	svc := newService(t)
	router := newRouter(svc)
	id := seed(t, svc)

	t.Run("assigned caregiver sees masked ssn", func(t *testing.T) {
		p := domain.Principal{ID: "cg-1", Role: domain.RoleCaregiver, AssignedResourceIDs: []string{id}}
		rr := testutil.DoRequest(router, testutil.WithPrincipal(get("/api/clients/"+id), p))

		require.Equal(t, http.StatusOK, rr.Code)
		assert.NotContains(t, rr.Body.String(), "COPD")
		got := testutil.UnmarshalResponse[records.Client](t, rr)
		assert.Equal(t, "*******6789", got.SSN)
	})

	t.Run("unassigned caregiver is denied", func(t *testing.T) {
		p := domain.Principal{ID: "cg-2", Role: domain.RoleCaregiver, AssignedResourceIDs: []string{"other"}}
		rr := testutil.DoRequest(router, testutil.WithPrincipal(get("/api/clients/"+id), p))
		testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "forbidden")
	})

	t.Run("client reads own record only", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.AsRole(get("/api/clients/"+id), id, domain.RoleClient))
		assert.Equal(t, http.StatusOK, rr.Code)

		rr = testutil.DoRequest(router, testutil.AsRole(get("/api/clients/"+id), "someone-else", domain.RoleClient))
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("unknown client is not found for bypass roles", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.AsRole(get("/api/clients/nope"), "om", domain.RoleOfficeManager))
		testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
	})

	t.Run("no principal is unauthorized", func(t *testing.T) {
		rr := testutil.DoRequest(router, get("/api/clients/"+id))
		testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
	})
}

func TestCreateClient(t *testing.T) {
	router := newRouter(newService(t))
	body := records.CreateClientRequest{Name: "erin", SSN: "111-22-3333"}

	t.Run("office manager creates", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/api/clients/", body)
		rr := testutil.DoRequest(router, testutil.AsRole(req, "om", domain.RoleOfficeManager))
		require.Equal(t, http.StatusCreated, rr.Code)
		assert.Equal(t, "*******3333", testutil.UnmarshalResponse[records.Client](t, rr).SSN)
	})

	t.Run("caregiver lacks clients:create", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/api/clients/", body)
		rr := testutil.DoRequest(router, testutil.AsRole(req, "cg", domain.RoleCaregiver))
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := testutil.NewRequestWithBody(http.MethodPost, "/api/clients/", "{")
		rr := testutil.DoRequest(router, testutil.AsRole(req, "admin", domain.RoleAdministrator))
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
	})
}

func TestListClients(t *testing.T) {
	svc := newService(t)
	id := seed(t, svc)
	seed(t, svc)

	p := domain.Principal{ID: "fam", Role: domain.RoleFamilyMember, AuthorizedRelationIDs: []string{id}}
	rr := testutil.DoRequest(newRouter(svc), testutil.WithPrincipal(get("/api/clients/"), p))

	require.Equal(t, http.StatusOK, rr.Code)
	got := testutil.UnmarshalResponse[records.ListResponse](t, rr)
	require.Equal(t, 1, got.Total)
	assert.Equal(t, id, got.Items[0].ID)
}
