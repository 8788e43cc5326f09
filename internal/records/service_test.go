package records_test

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"phiguard/internal/access"
	"phiguard/internal/fieldcrypt"
	"phiguard/internal/records"
	"phiguard/pkg/domain"
	dErrors "phiguard/pkg/domain-errors"
	"phiguard/pkg/requestcontext"
)

const testSecret = "0123456789abcdef0123456789abcdef-records"

type ServiceSuite struct {
	suite.Suite
	store   *records.MemoryStore
	engine  *fieldcrypt.Engine
	service *records.Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	logger := slog.New(slog.DiscardHandler)
	engine, err := fieldcrypt.NewEngine(fieldcrypt.Config{MasterSecret: testSecret, Production: true}, logger)
	s.Require().NoError(err)
	s.engine = engine
	s.store = records.NewMemoryStore()
	s.service = records.NewService(s.store, engine, access.NewEvaluator(nil), logger)
}

func as(p domain.Principal) context.Context {
	ctx := requestcontext.WithTime(context.Background(), time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	return requestcontext.WithPrincipal(ctx, p)
}

var admin = domain.Principal{ID: "admin-1", Role: domain.RoleAdministrator}

func (s *ServiceSuite) create(name string) *records.Client {
	c, err := s.service.Create(as(admin), records.CreateClientRequest{
		Name:        name,
		SSN:         "123-45-6789",
		Diagnosis:   "Type 2 diabetes",
		Medications: "metformin",
		Phone:       "555-0100",
		Email:       name + "@example.com",
	})
	s.Require().NoError(err)
	return c
}

func (s *ServiceSuite) TestCreateStoresOnlyCiphertext() {
	c := s.create("alice")

	stored, err := s.store.Find(context.Background(), c.ID)
	s.Require().NoError(err)
	for _, f := range records.EncryptedFields {
		v, _ := stored[f].(string)
		s.True(fieldcrypt.IsEncryptedFormat(v), "field %s must be encrypted at rest", f)
	}
	s.Equal("alice", stored["name"])
	s.Equal("123-45-6789", c.SSN, "administrator sees the full ssn")
}

func (s *ServiceSuite) TestCreateRequiresName() {
	_, err := s.service.Create(as(admin), records.CreateClientRequest{Name: "  "})
	s.True(dErrors.Is(err, dErrors.CodeInvalidInput))
}

func (s *ServiceSuite) TestSSNMaskedWithoutPermission() {
	c := s.create("bob")
	caregiver := domain.Principal{ID: "cg-1", Role: domain.RoleCaregiver, AssignedResourceIDs: []string{c.ID}}

	got, err := s.service.Get(as(caregiver), c.ID)
	s.Require().NoError(err)
	s.Equal("*******6789", got.SSN)
	s.Empty(got.Diagnosis)
	s.Equal("metformin", got.Medications)

	granted := caregiver
	granted.CustomPermissions = []domain.Permission{access.PermPHIViewSSN}
	got, err = s.service.Get(as(granted), c.ID)
	s.Require().NoError(err)
	s.Equal("123-45-6789", got.SSN)
}

func (s *ServiceSuite) TestGetUnknown() {
	_, err := s.service.Get(as(admin), "missing")
	s.True(dErrors.Is(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestListFiltersByOwnership() {
	a := s.create("a")
	s.create("b")
	c := s.create("c")

	caregiver := domain.Principal{ID: "cg-1", Role: domain.RoleCaregiver, AssignedResourceIDs: []string{a.ID, c.ID}}
	resp, err := s.service.List(as(caregiver))
	s.Require().NoError(err)
	s.Equal(2, resp.Total)
	for _, item := range resp.Items {
		s.Contains([]string{a.ID, c.ID}, item.ID)
	}

	resp, err = s.service.List(as(domain.Principal{ID: "om-1", Role: domain.RoleOfficeManager}))
	s.Require().NoError(err)
	s.Equal(3, resp.Total)

	resp, err = s.service.List(as(domain.Principal{ID: "sch-1", Role: domain.RoleScheduler}))
	s.Require().NoError(err)
	s.Zero(resp.Total)
	s.NotNil(resp.Items)
}

func (s *ServiceSuite) TestListRequiresPrincipal() {
	_, err := s.service.List(context.Background())
	s.True(dErrors.Is(err, dErrors.CodeUnauthorized))
}

func (s *ServiceSuite) TestTamperedFieldIsReportedNotFatal() {
	c := s.create("carol")
	stored, err := s.store.Find(context.Background(), c.ID)
	s.Require().NoError(err)

	token := stored[records.FieldPhone].(string)
	parts := strings.Split(token, ":")
	last := parts[3]
	flipped := "0"
	if last[len(last)-1] == '0' {
		flipped = "1"
	}
	parts[3] = last[:len(last)-1] + flipped
	stored[records.FieldPhone] = strings.Join(parts, ":")
	s.Require().NoError(s.store.Save(context.Background(), c.ID, stored))

	got, err := s.service.Get(as(admin), c.ID)
	s.Require().NoError(err)
	s.Equal(fieldcrypt.DecryptionErrorMarker, got.Phone)
	s.Equal([]string{records.FieldPhone}, got.Unreadable)
	s.Equal("123-45-6789", got.SSN)
}

func (s *ServiceSuite) TestMigrateLegacy() {
	ctx := context.Background()
	s.Require().NoError(s.store.Save(ctx, "legacy-1", map[string]any{
		"id":                   "legacy-1",
		"name":                 "legacy",
		records.FieldSSN:       "987-65-4321",
		records.FieldPhone:     "",
		records.FieldEmail:     "legacy@example.com",
		records.FieldDiagnosis: "asthma",
	}))
	s.create("modern")

	n, err := s.service.MigrateLegacy(ctx)
	s.Require().NoError(err)
	s.Equal(3, n)

	stored, err := s.store.Find(ctx, "legacy-1")
	s.Require().NoError(err)
	s.True(fieldcrypt.IsEncryptedFormat(stored[records.FieldSSN].(string)))
	s.Equal("", stored[records.FieldPhone])

	got, err := s.service.Get(as(admin), "legacy-1")
	s.Require().NoError(err)
	s.Equal("987-65-4321", got.SSN)
	s.Equal("asthma", got.Diagnosis)

	n, err = s.service.MigrateLegacy(ctx)
	s.Require().NoError(err)
	s.Zero(n)
}
