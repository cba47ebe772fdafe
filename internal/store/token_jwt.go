package store

import (
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// JWTTokenStore issues stateless HS256 tokens whose subject is the session
// id. Revoke is a no-op; expiry is the only invalidation.
type JWTTokenStore struct {
	secret []byte
	ttl    time.Duration
}

// NewJWTTokenStore builds a stateless token store.
func NewJWTTokenStore(secret string, ttl time.Duration) *JWTTokenStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTTokenStore{secret: []byte(secret), ttl: ttl}
}

// Issue signs a token for the session id.
func (s *JWTTokenStore) Issue(sessionID string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   sessionID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// SessionID validates a token and returns its subject.
func (s *JWTTokenStore) SessionID(token string) (string, bool, error) {
	claims := jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return "", false, nil
	}
	return claims.Subject, true, nil
}

// Revoke is a no-op for stateless tokens; provided for interface parity.
func (s *JWTTokenStore) Revoke(_ string) error {
	return nil
}
