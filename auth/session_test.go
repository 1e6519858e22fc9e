package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func issueCookie(t *testing.T, s *Sessions) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	if err := s.Issue(rec); err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("got %d cookies, want 1", len(cookies))
	}
	return cookies[0]
}

func TestIssueAndAuthenticate(t *testing.T) {
	s := NewSessions("test-secret", time.Hour)
	cookie := issueCookie(t, s)

	if cookie.Name != sessionCookie {
		t.Errorf("cookie name = %q, want %q", cookie.Name, sessionCookie)
	}
	if !cookie.HttpOnly {
		t.Error("cookie not HttpOnly")
	}
	if cookie.Path != "/" {
		t.Errorf("cookie path = %q, want /", cookie.Path)
	}

	r := httptest.NewRequest(http.MethodGet, "/api/auth/check", nil)
	r.AddCookie(cookie)
	if !s.Authenticated(r) {
		t.Error("Authenticated() = false for a freshly issued cookie")
	}
}

func TestAuthenticatedRejectsMissingCookie(t *testing.T) {
	s := NewSessions("test-secret", time.Hour)
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if s.Authenticated(r) {
		t.Error("Authenticated() = true without a cookie")
	}
}

func TestAuthenticatedRejectsTamperedToken(t *testing.T) {
	s := NewSessions("test-secret", time.Hour)
	cookie := issueCookie(t, s)
	cookie.Value += "x"

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(cookie)
	if s.Authenticated(r) {
		t.Error("Authenticated() = true for a tampered token")
	}
}

func TestAuthenticatedRejectsWrongSecret(t *testing.T) {
	issuer := NewSessions("secret-a", time.Hour)
	verifier := NewSessions("secret-b", time.Hour)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(issueCookie(t, issuer))
	if verifier.Authenticated(r) {
		t.Error("Authenticated() = true across different secrets")
	}
}

func TestAuthenticatedRejectsExpiredToken(t *testing.T) {
	s := NewSessions("test-secret", -time.Minute)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(issueCookie(t, s))
	if s.Authenticated(r) {
		t.Error("Authenticated() = true for an expired token")
	}
}

func TestGate(t *testing.T) {
	s := NewSessions("test-secret", time.Hour)
	var called bool
	gated := s.Gate(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	gated(rec, httptest.NewRequest(http.MethodPost, "/api/upload", nil))
	if called {
		t.Error("gated handler invoked without a session")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if got := rec.Body.String(); got != `{"error":"Unauthorized"}` {
		t.Errorf("body = %q", got)
	}

	r := httptest.NewRequest(http.MethodPost, "/api/upload", nil)
	r.AddCookie(issueCookie(t, s))
	rec = httptest.NewRecorder()
	gated(rec, r)
	if !called {
		t.Error("gated handler not invoked with a valid session")
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
}

func TestRandomSecretWhenUnset(t *testing.T) {
	a := NewSessions("", time.Hour)
	b := NewSessions("", time.Hour)

	// Each instance gets its own random secret.
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(issueCookie(t, a))
	if !a.Authenticated(r) {
		t.Error("issuer cannot validate its own token")
	}
	if b.Authenticated(r) {
		t.Error("token validated across independent random secrets")
	}
}
