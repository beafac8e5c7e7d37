package jwt

import (
	stderrors "errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/psyprofile/psyprofile-backend/pkg/config"
	"github.com/psyprofile/psyprofile-backend/pkg/errors"
)

// SessionClaims represents the claims of a session token
type SessionClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"session_id"`
}

// Manager handles session token operations
type Manager struct {
	config *config.JWTConfig
	ttl    time.Duration
	now    func() time.Time
}

// NewManager creates a new JWT manager. Tokens live as long as an idle session.
func NewManager(cfg *config.JWTConfig, ttl time.Duration) *Manager {
	return &Manager{config: cfg, ttl: ttl, now: time.Now}
}

// SessionToken is a signed token and its expiry
type SessionToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	TokenType string    `json:"token_type"`
}

// Issue signs a token naming sessionID
func (m *Manager) Issue(sessionID string) (*SessionToken, error) {
	now := m.now()
	expiry := now.Add(m.ttl)

	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			Subject:   sessionID,
			ExpiresAt: jwt.NewNumericDate(expiry),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
		SessionID: sessionID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(m.config.Secret))
	if err != nil {
		return nil, err
	}

	return &SessionToken{
		Token:     signed,
		ExpiresAt: expiry,
		TokenType: "Bearer",
	}, nil
}

// Validate checks a session token and returns its claims
func (m *Manager) Validate(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.TokenInvalid()
		}
		return []byte(m.config.Secret), nil
	},
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithTimeFunc(m.now),
	)

	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.TokenExpired()
		}
		return nil, errors.TokenInvalid()
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.SessionID == "" {
		return nil, errors.TokenInvalid()
	}

	return claims, nil
}

// NeedsRefresh reports whether less than half of the token lifetime is left
func (m *Manager) NeedsRefresh(claims *SessionClaims) bool {
	if claims.ExpiresAt == nil {
		return true
	}
	return claims.ExpiresAt.Sub(m.now()) < m.ttl/2
}

// TTL returns the token lifetime
func (m *Manager) TTL() time.Duration {
	return m.ttl
}
