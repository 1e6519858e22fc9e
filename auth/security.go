// Package auth implements the session gate in front of the chat and
// image endpoints: password login with a file-backed IP blacklist, and
// JWT-cookie sessions.
package auth

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// SecurityStore tracks failed login attempts and banned IPs. Implemented
// as a narrow interface so the handler never reaches for ambient file
// I/O directly.
type SecurityStore interface {
	IsBanned(ip string) bool
	// RecordFailure increments the failure count for ip and reports
	// whether this failure crossed the ban threshold.
	RecordFailure(ip string) bool
	ClearFailures(ip string)
}

type securityData struct {
	Blacklist []string       `json:"blacklist"`
	Attempts  map[string]int `json:"attempts"`
}

// FileSecurityStore persists blacklist and attempt counters to a single
// JSON file through read-modify-write. Contention is rare and a lost
// counter update is low-severity, so last-writer-wins is acceptable.
type FileSecurityStore struct {
	path        string
	maxAttempts int
	mu          sync.Mutex
}

// NewFileSecurityStore creates the store and its parent directory.
func NewFileSecurityStore(path string, maxAttempts int) (*FileSecurityStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &FileSecurityStore{path: path, maxAttempts: maxAttempts}, nil
}

func (s *FileSecurityStore) load() securityData {
	data := securityData{Attempts: map[string]int{}}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return data
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		log.Printf("[AUTH] Corrupt security file, starting fresh: %v", err)
		return securityData{Attempts: map[string]int{}}
	}
	if data.Attempts == nil {
		data.Attempts = map[string]int{}
	}
	return data
}

func (s *FileSecurityStore) save(data securityData) {
	raw, err := json.MarshalIndent(data, "", "    ")
	if err == nil {
		err = os.WriteFile(s.path, raw, 0o644)
	}
	if err != nil {
		log.Printf("[AUTH] Failed to save security data: %v", err)
	}
}

func (s *FileSecurityStore) IsBanned(ip string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := s.load()
	for _, banned := range data.Blacklist {
		if banned == ip {
			return true
		}
	}
	return false
}

func (s *FileSecurityStore) RecordFailure(ip string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := s.load()

	data.Attempts[ip]++
	if data.Attempts[ip] < s.maxAttempts {
		s.save(data)
		return false
	}

	delete(data.Attempts, ip)
	for _, banned := range data.Blacklist {
		if banned == ip {
			s.save(data)
			return true
		}
	}
	data.Blacklist = append(data.Blacklist, ip)
	s.save(data)
	return true
}

func (s *FileSecurityStore) ClearFailures(ip string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := s.load()
	if _, ok := data.Attempts[ip]; !ok {
		return
	}
	delete(data.Attempts, ip)
	s.save(data)
}
