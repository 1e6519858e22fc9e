package auth

import (
	"crypto/rand"
	"log"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const sessionCookie = "homechat_session"

// Sessions issues and validates the signed session cookie.
type Sessions struct {
	secret   []byte
	lifetime time.Duration
}

// NewSessions builds the session manager. An empty secret gets a random
// one, which means sessions do not survive a restart; set a secret in
// config or SESSION_SECRET to keep them.
func NewSessions(secret string, lifetime time.Duration) *Sessions {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			log.Fatalf("[AUTH] Failed to generate session secret: %v", err)
		}
		log.Printf("[AUTH] No session secret configured; sessions will not survive restarts")
	}
	return &Sessions{secret: key, lifetime: lifetime}
}

// Issue sets a fresh session cookie on the response.
func (s *Sessions) Issue(w http.ResponseWriter) error {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "session",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.lifetime)),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(s.lifetime / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Authenticated reports whether the request carries a valid session.
func (s *Sessions) Authenticated(r *http.Request) bool {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return false
	}

	token, err := jwt.ParseWithClaims(cookie.Value, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	return err == nil && token.Valid
}

// Gate wraps a handler and rejects unauthenticated callers with 401.
func (s *Sessions) Gate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.Authenticated(r) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"Unauthorized"}`))
			return
		}
		next(w, r)
	}
}
