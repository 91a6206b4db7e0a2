package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

func TestHS256RoundTrip(t *testing.T) {
	claims := Claims{BusinessID: "biz-1", Role: "owner"}
	claims.Subject = "user-1"

	token, err := SignHS256(claims, "test-secret", time.Hour)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	parsed, err := NewVerifier("test-secret", nil).Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if parsed.Subject != "user-1" || parsed.BusinessID != "biz-1" || parsed.Role != "owner" {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}
	if _, err := NewVerifier("wrong-secret", nil).Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken with wrong secret, got %v", err)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	claims := Claims{BusinessID: "biz-1"}
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	token, err := SignHS256(claims, "s", 0)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	if _, err := NewVerifier("s", nil).Verify(token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestRS256ViaJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}
	set := map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": "k1",
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}},
	}
	raw, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}
	jwks, err := keyfunc.NewJSON(raw)
	if err != nil {
		t.Fatalf("keyfunc.NewJSON failed: %v", err)
	}

	claims := Claims{BusinessID: "biz-2", Role: "staff"}
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = "k1"
	signed, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("sign rs256: %v", err)
	}

	v := NewVerifier("", jwks)
	parsed, err := v.Verify(signed)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if parsed.BusinessID != "biz-2" {
		t.Fatalf("unexpected business id %q", parsed.BusinessID)
	}

	hs, _ := SignHS256(Claims{BusinessID: "biz-2"}, "s", time.Hour)
	if _, err := v.Verify(hs); err == nil {
		t.Fatal("expected hs256 token to be rejected when no secret is configured")
	}
}
