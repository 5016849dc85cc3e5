package roles

import (
	"context"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/finhub/internal/errors"
)

// MemoryStore keeps role records in process. It backs the offline identity
// provider and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

type seedFile struct {
	Roles []Record `yaml:"roles"`
}

// LoadMemoryStore creates a store from a YAML seed file:
//
//	roles:
//	  - uid: 5b0c...
//	    role: admin
func LoadMemoryStore(path string) (*MemoryStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFoundError(path)
		}
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "failed to read role seed file", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, errors.NewFileUnmarshalError(path, "YAML", err)
	}

	s := NewMemoryStore()
	for _, rec := range seed.Roles {
		if rec.UserID == "" {
			return nil, errors.New(errors.ErrCodeStoreSeed, "role seed entry without uid").
				WithSuggestion("Every entry under roles: needs a uid")
		}
		s.Set(rec.UserID, rec.Role)
	}
	return s, nil
}

// Set stores a raw role for userID.
func (s *MemoryStore) Set(userID, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[userID] = Record{UserID: userID, Role: role}
}

// Delete removes the record for userID.
func (s *MemoryStore) Delete(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, userID)
}

// Len returns the number of records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Name implements Store.
func (s *MemoryStore) Name() string { return "memory" }

// GetRoleRecord implements Store.
func (s *MemoryStore) GetRoleRecord(ctx context.Context, userID string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[userID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
