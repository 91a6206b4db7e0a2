package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carries the tenant and role of a staff token.
type Claims struct {
	BusinessID string `json:"business_id"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 tokens against a shared secret and RS256 tokens
// against a JWKS. Either source may be absent.
type Verifier struct {
	secret []byte
	jwks   *keyfunc.JWKS
}

func NewVerifier(secret string, jwks *keyfunc.JWKS) *Verifier {
	return &Verifier{secret: []byte(secret), jwks: jwks}
}

// Enabled reports whether any key source is configured.
func (v *Verifier) Enabled() bool {
	return v != nil && (len(v.secret) > 0 || v.jwks != nil)
}

func (v *Verifier) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, v.keyFunc, jwt.WithValidMethods([]string{"HS256", "RS256"}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (v *Verifier) keyFunc(t *jwt.Token) (interface{}, error) {
	switch t.Method.Alg() {
	case "HS256":
		if len(v.secret) == 0 {
			return nil, errors.New("hs256 tokens not accepted")
		}
		return v.secret, nil
	case "RS256":
		if v.jwks == nil {
			return nil, errors.New("rs256 tokens not accepted")
		}
		return v.jwks.Keyfunc(t)
	default:
		return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
	}
}

func (v *Verifier) Close() {
	if v != nil && v.jwks != nil {
		v.jwks.EndBackground()
	}
}

// SignHS256 mints a token for local tooling and tests.
func SignHS256(claims Claims, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	if claims.IssuedAt == nil {
		claims.IssuedAt = jwt.NewNumericDate(now)
	}
	if claims.ExpiresAt == nil && ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
