package auth

import (
	"errors"
	"testing"
	"time"
)

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer := newTestIssuer()
	token, err := issuer.Issue(Subject{ID: "rep_42", NationalID: "987654321098", Region: "North", Role: RoleRepresentative})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "rep_42" || claims.NationalID != "987654321098" || claims.Region != "North" {
		t.Errorf("unexpected claims %+v", claims)
	}
	if claims.Issuer != "chr-test" {
		t.Errorf("expected issuer chr-test, got %q", claims.Issuer)
	}
	if claims.ExpiresAt == nil {
		t.Error("expected an expiry when ttl is set")
	}
}

func TestTokenIssuer_Errors(t *testing.T) {
	if _, err := NewTokenIssuer(nil, "x", time.Hour).Issue(Subject{ID: "a"}); err == nil {
		t.Error("expected error without signing key")
	}
	if _, err := newTestIssuer().Issue(Subject{}); err == nil {
		t.Error("expected error without subject id")
	}

	foreign := NewTokenIssuer(testSigningKey, "someone-else", time.Hour)
	token, _ := foreign.Issue(Subject{ID: "a"})
	if _, err := newTestIssuer().Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for wrong issuer, got %v", err)
	}
}

func TestTokenIssuer_NoTTL(t *testing.T) {
	issuer := NewTokenIssuer(testSigningKey, "", 0)
	token, _ := issuer.Issue(Subject{ID: "agent"})
	claims, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.ExpiresAt != nil {
		t.Error("expected no expiry when ttl is zero")
	}
}
