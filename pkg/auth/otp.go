// Package auth keeps pending one-time verification codes in memory. Codes
// are keyed by lowercased email, expire after a TTL, and are consumed on
// successful verification.
package auth

import (
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Verification failure modes, mapped to client-facing messages by the
// HTTP layer.
var (
	ErrNoPending = errors.New("no pending verification for this email")
	ErrExpired   = errors.New("code expired")
	ErrBadCode   = errors.New("incorrect code")
)

// Identity is what a successful verification hands back to the client.
type Identity struct {
	DisplayName string `json:"displayName"`
	Username    string `json:"username"`
}

type pendingCode struct {
	code     string
	identity Identity
	expires  time.Time
}

// OTPStore is a TTL map of pending verification codes.
type OTPStore struct {
	mu      sync.Mutex
	pending map[string]*pendingCode
	ttl     time.Duration
}

// NewOTPStore creates a store whose codes expire after ttl.
func NewOTPStore(ttl time.Duration) *OTPStore {
	return &OTPStore{
		pending: make(map[string]*pendingCode),
		ttl:     ttl,
	}
}

// Put registers a pending code for an email, replacing any earlier one.
func (s *OTPStore) Put(email, code string, identity Identity) {
	s.mu.Lock()
	s.pending[normalizeEmail(email)] = &pendingCode{
		code:     code,
		identity: identity,
		expires:  time.Now().Add(s.ttl),
	}
	s.mu.Unlock()
}

// Verify checks a submitted code. A correct code is single-use; expired
// entries are removed so the client has to start over.
func (s *OTPStore) Verify(email, code string) (Identity, error) {
	key := normalizeEmail(email)

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.pending[key]
	if !ok {
		return Identity{}, ErrNoPending
	}
	if time.Now().After(entry.expires) {
		delete(s.pending, key)
		return Identity{}, ErrExpired
	}
	if entry.code != strings.TrimSpace(code) {
		return Identity{}, ErrBadCode
	}

	delete(s.pending, key)
	return entry.identity, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
