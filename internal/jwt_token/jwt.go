package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"phiguard/pkg/domain"
	dErrors "phiguard/pkg/domain-errors"
)

// Claims represents the JWT claims carried by access tokens issued by the
// upstream identity provider.
type Claims struct {
	UserID      string   `json:"user_id"`
	SessionID   string   `json:"session_id"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions,omitempty"`
	Assigned    []string `json:"assigned,omitempty"`
	Relations   []string `json:"relations,omitempty"`
	jwt.RegisteredClaims
}

// JWTService handles JWT creation and validation
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
}

func NewJWTService(signingKey string, issuer string, audience string) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
	}
}

// GenerateAccessToken signs a token for the principal. Used by the demo login
// endpoint and by tests; production tokens come from the identity provider.
func (s *JWTService) GenerateAccessToken(p domain.Principal, expiresIn time.Duration) (string, error) {
	perms := make([]string, 0, len(p.CustomPermissions))
	for _, perm := range p.CustomPermissions {
		perms = append(perms, perm.String())
	}
	now := time.Now()
	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:      p.ID,
		SessionID:   p.SessionID.String(),
		Role:        p.Role.String(),
		Permissions: perms,
		Assigned:    p.AssignedResourceIDs,
		Relations:   p.AuthorizedRelationIDs,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	})

	return newToken.SignedString(s.signingKey)
}

func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithAudience(s.audience))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// ValidatePrincipal validates the token and converts its claims into a Principal,
// rejecting unknown roles and malformed custom grants at the boundary.
func (s *JWTService) ValidatePrincipal(tokenString string) (domain.Principal, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return domain.Principal{}, err
	}
	return claims.Principal()
}

// Principal converts validated claims into the typed principal used by the core.
func (c *Claims) Principal() (domain.Principal, error) {
	role, err := domain.ParseRole(c.Role)
	if err != nil {
		return domain.Principal{}, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid role claim")
	}
	sessionID, err := domain.ParseSessionID(c.SessionID)
	if err != nil {
		return domain.Principal{}, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid session claim")
	}
	perms := make([]domain.Permission, 0, len(c.Permissions))
	for _, raw := range c.Permissions {
		perm, err := domain.ParsePermission(raw)
		if err != nil {
			return domain.Principal{}, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid permission claim")
		}
		perms = append(perms, perm)
	}
	p := domain.Principal{
		ID:                    c.UserID,
		Role:                  role,
		CustomPermissions:     perms,
		AssignedResourceIDs:   c.Assigned,
		AuthorizedRelationIDs: c.Relations,
		SessionID:             sessionID,
	}
	if err := p.Validate(); err != nil {
		return domain.Principal{}, err
	}
	return p, nil
}
