package httpapi

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signClaims(t *testing.T, secret string, claims SessionClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func TestSessionVerify(t *testing.T) {
	v := NewSessionVerifier("secret", "issuer-a")

	token := signClaims(t, "secret", SessionClaims{
		OrganizationID: "org-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u-1",
			Issuer:    "issuer-a",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	userID, orgID, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if userID != "u-1" || orgID != "org-1" {
		t.Fatalf("unexpected identity: %s/%s", userID, orgID)
	}
}

func TestSessionVerifyRejections(t *testing.T) {
	v := NewSessionVerifier("secret", "issuer-a")
	base := SessionClaims{
		OrganizationID: "org-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u-1",
			Issuer:    "issuer-a",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}

	t.Run("wrong secret", func(t *testing.T) {
		token := signClaims(t, "other-secret", base)
		if _, _, err := v.Verify(token); err == nil {
			t.Fatalf("expected error for wrong secret")
		}
	})

	t.Run("expired", func(t *testing.T) {
		claims := base
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
		token := signClaims(t, "secret", claims)
		if _, _, err := v.Verify(token); err == nil {
			t.Fatalf("expected error for expired token")
		}
	})

	t.Run("missing expiration", func(t *testing.T) {
		claims := base
		claims.ExpiresAt = nil
		token := signClaims(t, "secret", claims)
		if _, _, err := v.Verify(token); err == nil {
			t.Fatalf("expected error without exp claim")
		}
	})

	t.Run("wrong issuer", func(t *testing.T) {
		claims := base
		claims.Issuer = "issuer-b"
		token := signClaims(t, "secret", claims)
		if _, _, err := v.Verify(token); err == nil {
			t.Fatalf("expected error for issuer mismatch")
		}
	})

	t.Run("missing org claim", func(t *testing.T) {
		claims := base
		claims.OrganizationID = ""
		token := signClaims(t, "secret", claims)
		if _, _, err := v.Verify(token); err == nil {
			t.Fatalf("expected error without org claim")
		}
	})

	t.Run("unsigned algorithm", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, base).SignedString(jwt.UnsafeAllowNoneSignatureType)
		if err != nil {
			t.Fatalf("sign none: %v", err)
		}
		if _, _, err := v.Verify(token); err == nil {
			t.Fatalf("expected error for alg none")
		}
	})
}

func TestNewSessionVerifierEmptySecret(t *testing.T) {
	if v := NewSessionVerifier("   ", "issuer"); v != nil {
		t.Fatalf("expected nil verifier for blank secret")
	}
}
