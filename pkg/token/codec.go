// Package token signs and verifies the bearer tokens exchanged with clients.
// Access tokens are stateless; refresh tokens additionally carry the id of
// the server-side session they are bound to.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token type tags. Decode enforces these explicitly so an access token can
// never be replayed where a refresh token is expected, or vice versa.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// ErrInvalidToken covers every decode failure: bad signature, malformed
// payload, expired token or wrong type tag. Callers must not distinguish.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the payload carried by both token kinds. SessionID is set on
// refresh tokens only.
type Claims struct {
	Type      string `json:"type"`
	SessionID string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// Codec issues and verifies tokens with a shared HMAC secret.
type Codec struct {
	secret     []byte
	method     jwt.SigningMethod
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewCodec builds a Codec. algorithm must name an HMAC method (HS256, HS384
// or HS512); an empty string selects HS256.
func NewCodec(secret, algorithm string, accessTTL, refreshTTL time.Duration) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("token: signing secret is empty")
	}
	if algorithm == "" {
		algorithm = "HS256"
	}
	method := jwt.GetSigningMethod(algorithm)
	if method == nil {
		return nil, fmt.Errorf("token: unknown signing algorithm %q", algorithm)
	}
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("token: algorithm %q is not symmetric", algorithm)
	}
	return &Codec{
		secret:     []byte(secret),
		method:     method,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

// IssueAccess signs a short-lived access token for the subject.
func (c *Codec) IssueAccess(subject string) (string, error) {
	return c.sign(subject, TypeAccess, "", c.accessTTL)
}

// IssueRefresh signs a long-lived refresh token bound to sessionID.
func (c *Codec) IssueRefresh(subject, sessionID string) (string, error) {
	return c.sign(subject, TypeRefresh, sessionID, c.refreshTTL)
}

func (c *Codec) sign(subject, typ, sessionID string, ttl time.Duration) (string, error) {
	now := c.now()
	claims := Claims{
		Type:      typ,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
}

// Decode verifies signature and expiry and checks the type tag against
// expectedType. Every failure maps to ErrInvalidToken.
func (c *Codec) Decode(tokenString, expectedType string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrInvalidKeyType
		}
		return c.secret, nil
	}, jwt.WithValidMethods([]string{c.method.Alg()}), jwt.WithTimeFunc(c.now), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Type != expectedType {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
