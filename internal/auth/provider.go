package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/quick-elections/backend/internal/models"
)

var (
	ErrEmptyName         = errors.New("name is required")
	ErrInvalidCredential = errors.New("invalid admin credential")
)

// Provider resolves a display name into an identity and verifies admin
// credentials presented on privileged requests. Isolating this behind an
// interface lets the shared-keyword scheme be swapped for real credential
// issuance without touching poll logic.
type Provider interface {
	// Login resolves the trimmed name into a session. An admin session
	// carries the credential in AdminKey; a participant session carries none.
	Login(name string) (models.Session, error)
	// Verify reports whether the credential grants the admin role.
	Verify(credential string) bool
}

// KeywordProvider grants the admin role when the login name equals the
// configured keyword, compared exactly and case-sensitively. The credential
// is the keyword itself, echoed back to the client.
type KeywordProvider struct {
	keyword string
}

// NewKeywordProvider creates a keyword provider.
func NewKeywordProvider(keyword string) *KeywordProvider {
	return &KeywordProvider{keyword: keyword}
}

// Login resolves the name; the keyword match is exact.
func (p *KeywordProvider) Login(name string) (models.Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Session{}, ErrEmptyName
	}
	if name == p.keyword {
		return models.Session{Name: name, Role: models.RoleAdmin, AdminKey: p.keyword}, nil
	}
	return models.Session{Name: name, Role: models.RoleParticipant}, nil
}

// Verify checks the presented credential against the keyword.
func (p *KeywordProvider) Verify(credential string) bool {
	return credential != "" && credential == p.keyword
}

// TokenProvider uses the same keyword match but issues a signed HS256 token
// as the admin credential instead of echoing the keyword, so the shared
// secret never travels back to clients.
type TokenProvider struct {
	keyword string
	secret  []byte
	expire  time.Duration
}

type adminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// NewTokenProvider creates a token-issuing provider.
func NewTokenProvider(keyword, secret string, expire time.Duration) *TokenProvider {
	return &TokenProvider{keyword: keyword, secret: []byte(secret), expire: expire}
}

// Login resolves the name and, for the admin, signs a token.
func (p *TokenProvider) Login(name string) (models.Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Session{}, ErrEmptyName
	}
	if name != p.keyword {
		return models.Session{Name: name, Role: models.RoleParticipant}, nil
	}

	claims := adminClaims{
		Role: string(models.RoleAdmin),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(p.expire)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ID:        uuid.New().String(),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return models.Session{}, err
	}
	return models.Session{Name: name, Role: models.RoleAdmin, AdminKey: token}, nil
}

// Verify parses and validates the token and its role claim.
func (p *TokenProvider) Verify(credential string) bool {
	token, err := jwt.ParseWithClaims(credential, &adminClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidCredential
		}
		return p.secret, nil
	})
	if err != nil || !token.Valid {
		return false
	}
	claims, ok := token.Claims.(*adminClaims)
	return ok && claims.Role == string(models.RoleAdmin)
}
