package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// UnlockTokens hands out one-shot tokens that unlock the private log view.
// A token is issued immediately before navigation and consumed (read and
// cleared) exactly once on arrival; this replaces ambient cross-screen
// signalling with an explicit create/consume lifecycle.
type UnlockTokens struct {
	mu     sync.Mutex
	ttl    time.Duration
	tokens map[string]time.Time
}

// NewUnlockTokens creates a token registry with the given token lifetime.
func NewUnlockTokens(ttl time.Duration) *UnlockTokens {
	return &UnlockTokens{
		ttl:    ttl,
		tokens: make(map[string]time.Time),
	}
}

// Issue creates a fresh single-use token.
func (u *UnlockTokens) Issue() string {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.pruneLocked()
	token := uuid.NewString()
	u.tokens[token] = time.Now().Add(u.ttl)
	return token
}

// Consume redeems a token. It succeeds at most once per token and deletes
// the token regardless of expiry.
func (u *UnlockTokens) Consume(token string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	expiry, ok := u.tokens[token]
	if !ok {
		return false
	}
	delete(u.tokens, token)
	return time.Now().Before(expiry)
}

func (u *UnlockTokens) pruneLocked() {
	now := time.Now()
	for token, expiry := range u.tokens {
		if now.After(expiry) {
			delete(u.tokens, token)
		}
	}
}
