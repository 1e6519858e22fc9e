package auth

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/homellm/homechat/config"
)

const maxPasswordLength = 100

// Handler serves the login and session-check endpoints.
type Handler struct {
	cfg      *config.Config
	sessions *Sessions
	store    SecurityStore
	mu       sync.RWMutex

	// sleepFn lets tests skip the real banned-IP delay.
	sleepFn func(time.Duration)
}

func NewHandler(cfg *config.Config, sessions *Sessions, store SecurityStore) *Handler {
	return &Handler{
		cfg:      cfg,
		sessions: sessions,
		store:    store,
		sleepFn:  time.Sleep,
	}
}

// UpdateConfig swaps in a new configuration (thread-safe).
func (h *Handler) UpdateConfig(cfg *config.Config) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cfg = cfg
}

func (h *Handler) getConfig() *config.Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// Sessions exposes the session manager for route gating.
func (h *Handler) Sessions() *Sessions { return h.sessions }

type loginResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// HandleLogin checks the site password, tracking failures per client IP
// and banning after repeated attempts.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	cfg := h.getConfig()
	ip := ClientIP(r)

	if h.store.IsBanned(ip) {
		// Slow down banned callers a little.
		h.sleepFn(time.Second)
		writeLogin(w, http.StatusForbidden, loginResponse{Error: "Access denied. IP banned."})
		return
	}

	var req struct {
		Password *string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password == nil {
		writeLogin(w, http.StatusBadRequest, loginResponse{Error: "Invalid request"})
		return
	}

	password := *req.Password
	if len(password) > maxPasswordLength {
		writeLogin(w, http.StatusBadRequest, loginResponse{Error: "Input too long"})
		return
	}

	if password == cfg.Auth.Password && cfg.Auth.Password != "" {
		h.store.ClearFailures(ip)
		if err := h.sessions.Issue(w); err != nil {
			log.Printf("[AUTH] Failed to issue session: %v", err)
			writeLogin(w, http.StatusInternalServerError, loginResponse{Error: "Session error"})
			return
		}
		writeLogin(w, http.StatusOK, loginResponse{Success: true})
		return
	}

	if h.store.RecordFailure(ip) {
		log.Printf("[AUTH] Banned IP %s after repeated failures", ip)
		writeLogin(w, http.StatusForbidden, loginResponse{Error: "Too many failed attempts. Banned."})
		return
	}
	writeLogin(w, http.StatusUnauthorized, loginResponse{Error: "Incorrect password."})
}

// HandleCheck reports whether the caller holds a valid session.
func (h *Handler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{
		"authenticated": h.sessions.Authenticated(r),
	})
}

func writeLogin(w http.ResponseWriter, status int, resp loginResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// ClientIP returns the caller's IP, honoring the first X-Forwarded-For
// entry when present (the proxy in front terminates TLS).
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
