// Package auth holds the demo credential directory behind the login endpoint.
// Real deployments authenticate against an external identity provider and only
// hand phiguard a signed token.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"phiguard/pkg/domain"
	dErrors "phiguard/pkg/domain-errors"
	"phiguard/pkg/platform/sentinel"
)

// dummyHash is compared against when the username is unknown so lookups and
// mismatches take the same time.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("phiguard-dummy-password"), bcrypt.MinCost)

// Account is one directory entry as loaded from a users file.
type Account struct {
	Username     string   `json:"username"`
	PasswordHash string   `json:"password_hash"`
	PrincipalID  string   `json:"principal_id"`
	Role         string   `json:"role"`
	Permissions  []string `json:"permissions,omitempty"`
	Assigned     []string `json:"assigned,omitempty"`
	Relations    []string `json:"relations,omitempty"`
}

type entry struct {
	hash      []byte
	principal domain.Principal
}

// Directory is an in-memory username to principal mapping with bcrypt hashes.
type Directory struct {
	mu      sync.RWMutex
	entries map[string]entry
}

func NewDirectory() *Directory {
	return &Directory{entries: make(map[string]entry)}
}

// Hash creates a bcrypt hash of password.
func Hash(password string) (string, error) {
	if password == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "password cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "password is too long")
		}
		return "", fmt.Errorf("could not hash password: %w", err)
	}
	return string(hashed), nil
}

// Add registers an account with a plaintext password.
func (d *Directory) Add(username, password string, p domain.Principal) error {
	hash, err := Hash(password)
	if err != nil {
		return err
	}
	return d.put(username, []byte(hash), p)
}

// Load registers accounts whose passwords are already hashed.
func (d *Directory) Load(accounts []Account) error {
	for _, a := range accounts {
		p, err := a.principal()
		if err != nil {
			return fmt.Errorf("account %q: %w", a.Username, err)
		}
		if _, err := bcrypt.Cost([]byte(a.PasswordHash)); err != nil {
			return fmt.Errorf("account %q: invalid password hash: %w", a.Username, err)
		}
		if err := d.put(a.Username, []byte(a.PasswordHash), p); err != nil {
			return err
		}
	}
	return nil
}

// LoadFile reads a JSON array of accounts.
func (d *Directory) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read users file: %w", err)
	}
	var accounts []Account
	if err := json.Unmarshal(raw, &accounts); err != nil {
		return fmt.Errorf("parse users file: %w", err)
	}
	return d.Load(accounts)
}

func (d *Directory) put(username string, hash []byte, p domain.Principal) error {
	key := normalize(username)
	if key == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "username cannot be empty")
	}
	if err := p.Validate(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.entries[key]; exists {
		return fmt.Errorf("username %q: %w", key, sentinel.ErrConflict)
	}
	d.entries[key] = entry{hash: hash, principal: p}
	return nil
}

// Authenticate verifies the password and returns the account's principal. Unknown
// users and wrong passwords produce the same error.
func (d *Directory) Authenticate(_ context.Context, username, password string) (domain.Principal, error) {
	d.mu.RLock()
	e, ok := d.entries[normalize(username)]
	d.mu.RUnlock()

	hash := dummyHash
	if ok {
		hash = e.hash
	}
	err := bcrypt.CompareHashAndPassword(hash, []byte(password))
	if !ok || errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return domain.Principal{}, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
	}
	if err != nil {
		return domain.Principal{}, fmt.Errorf("could not verify password: %w", err)
	}
	return e.principal, nil
}

func (a Account) principal() (domain.Principal, error) {
	role, err := domain.ParseRole(a.Role)
	if err != nil {
		return domain.Principal{}, err
	}
	perms := make([]domain.Permission, 0, len(a.Permissions))
	for _, raw := range a.Permissions {
		perm, err := domain.ParsePermission(raw)
		if err != nil {
			return domain.Principal{}, err
		}
		perms = append(perms, perm)
	}
	return domain.Principal{
		ID:                    a.PrincipalID,
		Role:                  role,
		CustomPermissions:     perms,
		AssignedResourceIDs:   a.Assigned,
		AuthorizedRelationIDs: a.Relations,
	}, nil
}

func normalize(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
