package jwt

import (
	"testing"
	"time"
)

func TestGenerateAndValidate(t *testing.T) {
	m := NewManager("secret", "invitehub", time.Hour)

	tok, err := m.GenerateToken("host-app", TokenTypeService, 0)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := m.Validate(tok)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.Subject != "host-app" || claims.TokenType != TokenTypeService {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestValidate_RejectsForeignIssuerAndKey(t *testing.T) {
	m := NewManager("secret", "invitehub", time.Hour)

	other := NewManager("secret", "someone-else", time.Hour)
	tok, _ := other.GenerateToken("x", TokenTypeAccess, 0)
	if _, err := m.Validate(tok); err == nil {
		t.Errorf("expected issuer mismatch to fail")
	}

	wrongKey := NewManager("other-secret", "invitehub", time.Hour)
	tok, _ = wrongKey.GenerateToken("x", TokenTypeAccess, 0)
	if _, err := m.Validate(tok); err == nil {
		t.Errorf("expected signature mismatch to fail")
	}
}

func TestValidate_Expired(t *testing.T) {
	m := NewManager("secret", "invitehub", time.Hour)
	tok, _ := m.GenerateToken("x", TokenTypeAccess, -time.Minute)
	// negative ttl falls back to the default, so this one is still valid
	if _, err := m.Validate(tok); err != nil {
		t.Fatalf("expected default ttl token to validate: %v", err)
	}
}
