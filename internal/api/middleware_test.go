package api

import (
	"context"
	"encoding/base64"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func TestVerifierCachesJWKS(t *testing.T) {
	h := newAPIHarness(t)
	verifier := NewTokenVerifier(h.jwksServer.URL, testIssuer, testAudience)
	token := h.token(t, "user@example.com", nil)

	for i := 0; i < 3; i++ {
		identity, err := verifier.Verify(context.Background(), token)
		if err != nil {
			t.Fatalf("verify %d: %v", i, err)
		}
		if identity.Email != "user@example.com" || identity.DisplayName != "Pat User" {
			t.Fatalf("unexpected identity %+v", identity)
		}
	}
	if hits := atomic.LoadInt64(h.jwksHits); hits != 1 {
		t.Fatalf("expected one JWKS fetch, got %d", hits)
	}
}

func TestVerifierRejectsUnknownKID(t *testing.T) {
	h := newAPIHarness(t)
	verifier := NewTokenVerifier(h.jwksServer.URL, "", "")

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{"email": "user@example.com"})
	token.Header["kid"] = "rotated-away"
	signed, err := token.SignedString(h.key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	if _, err := verifier.Verify(context.Background(), signed); err == nil {
		t.Fatal("expected an unknown kid to be rejected")
	}
}

func TestVerifierRejectsHMACTokens(t *testing.T) {
	h := newAPIHarness(t)
	verifier := NewTokenVerifier(h.jwksServer.URL, "", "")

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"email": "user@example.com"})
	token.Header["kid"] = testKID
	signed, err := token.SignedString([]byte("shared-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	if _, err := verifier.Verify(context.Background(), signed); err == nil {
		t.Fatal("expected an HMAC token to be rejected")
	}
}

func TestParseRSAPublicKey(t *testing.T) {
	n := base64.RawURLEncoding.EncodeToString(big.NewInt(3233).Bytes())
	e := base64.RawURLEncoding.EncodeToString(big.NewInt(65537).Bytes())

	key, err := parseRSAPublicKey(n, e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key.E != 65537 || key.N.Int64() != 3233 {
		t.Fatalf("unexpected key N=%s E=%d", key.N, key.E)
	}

	if _, err := parseRSAPublicKey("!!", e); err == nil {
		t.Fatal("expected an invalid modulus to fail")
	}
	if _, err := parseRSAPublicKey(n, ""); err == nil {
		t.Fatal("expected an empty exponent to fail")
	}
}

func TestParseRSAPublicKeyRejectsBadExponents(t *testing.T) {
	n := base64.RawURLEncoding.EncodeToString(big.NewInt(3233).Bytes())
	tests := []struct {
		name     string
		exponent []byte
	}{
		{name: "wider than four bytes", exponent: []byte{0x01, 0x00, 0x00, 0x00, 0x00, 0x01}},
		{name: "one", exponent: []byte{0x01}},
		{name: "even", exponent: []byte{0x04}},
		{name: "above int32", exponent: []byte{0xff, 0xff, 0xff, 0xff}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseRSAPublicKey(n, base64.RawURLEncoding.EncodeToString(tt.exponent)); err == nil {
				t.Fatalf("expected exponent %x to be rejected", tt.exponent)
			}
		})
	}

	key, err := parseRSAPublicKey(n, base64.RawURLEncoding.EncodeToString([]byte{0x03}))
	if err != nil || key.E != 3 {
		t.Fatalf("expected exponent 3 to be accepted, got %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{header: "Bearer abc", want: "abc"},
		{header: "", wantErr: true},
		{header: "Basic abc", wantErr: true},
		{header: "Bearer   ", wantErr: true},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		got, err := bearerToken(req)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error", tt.header)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("%q: expected %q, got %q (%v)", tt.header, tt.want, got, err)
		}
	}
}

func TestOptionalAuthRejectsInvalidToken(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(http.MethodGet, "/payments/success?session_id=x", "bogus", "", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a present but invalid token, got %d", rec.Code)
	}
	if calls := h.backend.Calls(); len(calls) != 0 {
		t.Fatalf("expected no backend calls, got %d", len(calls))
	}
}
