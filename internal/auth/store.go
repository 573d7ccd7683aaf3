package auth

import (
	"context"
	"sync"
)

// Store persists the broker credential so a refreshed token survives
// process restarts.
type Store interface {
	// Load returns the stored credential, or nil when none exists.
	Load(ctx context.Context) (*Credential, error)
	// Save stores the credential, replacing any previous record.
	Save(ctx context.Context, cred *Credential) error
}

// MemoryStore is an in-memory Store. Used in tests and when no database
// is configured; tokens then live only as long as the process.
type MemoryStore struct {
	mu   sync.Mutex
	cred *Credential
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns a copy of the stored credential.
func (s *MemoryStore) Load(ctx context.Context) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cred == nil {
		return nil, nil
	}
	copied := *s.cred
	return &copied, nil
}

// Save stores a copy of the credential.
func (s *MemoryStore) Save(ctx context.Context, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *cred
	s.cred = &copied
	return nil
}
