// ABOUTME: Unit tests for session token issuance and cookie binding
// ABOUTME: Tests valid tokens, invalid tokens, expired tokens, and cookie round-trips

package session

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIssuer_ValidToken(t *testing.T) {
	issuer := NewIssuer([]byte("test-secret-key-for-jwt-signing"), time.Hour)

	token, err := issuer.Issue("alice")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	got, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	if got != "alice" {
		t.Errorf("Verify() = %q, want %q", got, "alice")
	}
}

func TestIssuer_InvalidToken(t *testing.T) {
	issuer := NewIssuer([]byte("test-secret-key-for-jwt-signing"), time.Hour)

	tests := []struct {
		name  string
		token string
	}{
		{
			name:  "empty token",
			token: "",
		},
		{
			name:  "garbage token",
			token: "not-a-jwt-token",
		},
		{
			name:  "malformed JWT",
			token: "header.payload.signature",
		},
		{
			name: "wrong secret",
			token: func() string {
				other := NewIssuer([]byte("different-secret"), time.Hour)
				token, _ := other.Issue("alice")
				return token
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := issuer.Verify(tt.token)
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestIssuer_ExpiredToken(t *testing.T) {
	// Built directly so the lifetime is not clamped to the default.
	issuer := &Issuer{secret: []byte("test-secret-key-for-jwt-signing"), lifetime: -time.Hour}

	token, err := issuer.Issue("alice")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	_, err = issuer.Verify(token)
	if !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Verify() error = %v, want ErrExpiredToken", err)
	}
}

func TestIssuer_DefaultLifetime(t *testing.T) {
	issuer := NewIssuer([]byte("secret"), 0)
	if issuer.Lifetime() != DefaultLifetime {
		t.Errorf("Lifetime() = %v, want %v", issuer.Lifetime(), DefaultLifetime)
	}
}

func TestIssuer_CookieRoundTrip(t *testing.T) {
	issuer := NewIssuer([]byte("test-secret-key-for-jwt-signing"), time.Hour)

	rec := httptest.NewRecorder()
	if err := issuer.BindSession(rec, "alice"); err != nil {
		t.Fatalf("BindSession() error = %v", err)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("got %d cookies, want 1", len(cookies))
	}
	if cookies[0].Name != CookieName {
		t.Errorf("cookie name = %q, want %q", cookies[0].Name, CookieName)
	}
	if !cookies[0].HttpOnly {
		t.Error("session cookie must be HttpOnly")
	}

	req := httptest.NewRequest(http.MethodGet, "/session", nil)
	req.AddCookie(cookies[0])

	got, err := issuer.Username(req)
	if err != nil {
		t.Fatalf("Username() error = %v", err)
	}
	if got != "alice" {
		t.Errorf("Username() = %q, want %q", got, "alice")
	}
}

func TestIssuer_NoCookie(t *testing.T) {
	issuer := NewIssuer([]byte("secret"), time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/session", nil)
	_, err := issuer.Username(req)
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Username() error = %v, want ErrInvalidToken", err)
	}
}

func TestClearSession(t *testing.T) {
	rec := httptest.NewRecorder()
	ClearSession(rec)

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("got %d cookies, want 1", len(cookies))
	}
	if cookies[0].MaxAge >= 0 {
		t.Errorf("cookie MaxAge = %d, want negative", cookies[0].MaxAge)
	}
}
