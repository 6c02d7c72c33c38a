package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles carried in device credentials.
const (
	RoleFieldAgent     = "field_agent"
	RoleRepresentative = "representative"
	RoleAdmin          = "admin"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	jwt.RegisteredClaims
	NationalID string `json:"national_id,omitempty"`
	Region     string `json:"region,omitempty"`
	Role       string `json:"role"`
}

// Subject is who a credential is issued to.
type Subject struct {
	ID         string
	NationalID string
	Region     string
	Role       string
}

// TokenIssuer signs and verifies HS256 credentials. Devices sign with the
// same static key the collection server verifies with.
type TokenIssuer struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(key []byte, issuer string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{key: key, issuer: issuer, ttl: ttl, now: time.Now}
}

func (i *TokenIssuer) Issue(s Subject) (string, error) {
	if len(i.key) == 0 {
		return "", fmt.Errorf("token issuer: no signing key configured")
	}
	if s.ID == "" {
		return "", fmt.Errorf("token issuer: subject id is required")
	}
	now := i.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  s.ID,
			Issuer:   i.issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
		NationalID: s.NationalID,
		Region:     s.Region,
		Role:       s.Role,
	}
	if i.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(i.ttl))
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// Parse verifies a credential and returns its claims.
func (i *TokenIssuer) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(i.now),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return i.key, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}
