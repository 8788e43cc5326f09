package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"phiguard/pkg/domain"
	dErrors "phiguard/pkg/domain-errors"
	"phiguard/pkg/platform/sentinel"
)

type DirectorySuite struct {
	suite.Suite
	dir *Directory
}

func TestDirectorySuite(t *testing.T) {
	suite.Run(t, new(DirectorySuite))
}

func (s *DirectorySuite) SetupTest() {
	s.dir = NewDirectory()
	s.Require().NoError(s.dir.Add("Nurse.Joy", "correct horse", domain.Principal{
		ID: "cg-1", Role: domain.RoleCaregiver, AssignedResourceIDs: []string{"client-1"},
	}))
}

func (s *DirectorySuite) TestAuthenticate() {
	s.Run("valid credentials return the principal", func() {
		p, err := s.dir.Authenticate(context.Background(), "  nurse.joy ", "correct horse")
		s.Require().NoError(err)
		s.Equal("cg-1", p.ID)
		s.Equal([]string{"client-1"}, p.AssignedResourceIDs)
	})

	s.Run("wrong password and unknown user fail identically", func() {
		_, errWrong := s.dir.Authenticate(context.Background(), "nurse.joy", "battery staple")
		_, errUnknown := s.dir.Authenticate(context.Background(), "nobody", "correct horse")
		s.True(dErrors.Is(errWrong, dErrors.CodeUnauthorized))
		s.Equal(errWrong.Error(), errUnknown.Error())
	})
}

func (s *DirectorySuite) TestAddRejects() {
	s.Run("duplicate username", func() {
		err := s.dir.Add("NURSE.JOY", "x", domain.Principal{ID: "cg-2", Role: domain.RoleCaregiver})
		s.ErrorIs(err, sentinel.ErrConflict)
	})
	s.Run("invalid principal", func() {
		err := s.dir.Add("ghost", "x", domain.Principal{ID: "g", Role: domain.Role("superuser")})
		s.Error(err)
	})
	s.Run("empty password", func() {
		err := s.dir.Add("blank", "", domain.Principal{ID: "b", Role: domain.RoleClient})
		s.True(dErrors.Is(err, dErrors.CodeInvalidInput))
	})
}

func (s *DirectorySuite) TestLoadFile() {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	s.Require().NoError(err)

	path := filepath.Join(s.T().TempDir(), "users.json")
	content := `[{"username":"fam","password_hash":"` + string(hash) + `","principal_id":"fam-1","role":"family_member","relations":["client-9"]}]`
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o600))

	dir := NewDirectory()
	s.Require().NoError(dir.LoadFile(path))
	p, err := dir.Authenticate(context.Background(), "fam", "s3cret")
	s.Require().NoError(err)
	s.Equal(domain.RoleFamilyMember, p.Role)
	s.True(p.IsRelatedTo("client-9"))

	s.Error(dir.Load([]Account{{Username: "bad", PasswordHash: "plaintext", PrincipalID: "x", Role: "client"}}))
}
