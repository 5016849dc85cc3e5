package auth

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// SessionStore persists the signed-in session between runs so a restart
// replays it as the first event, the way a browser keeps a user signed in.
//
// Implementations must be safe for concurrent use.
type SessionStore interface {
	// Load returns the persisted session, or nil if there is none.
	Load(ctx context.Context) (*Session, error)

	// Save replaces the persisted session.
	Save(ctx context.Context, session *Session) error

	// Clear removes the persisted session. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}

// MemoryStore keeps the session for the lifetime of the process.
type MemoryStore struct {
	mu      sync.Mutex
	session *Session
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Clone(), nil
}

func (m *MemoryStore) Save(ctx context.Context, session *Session) error {
	if session == nil || session.UserID == "" {
		return NewError(ErrSessionInvalid, "session must have a user ID", nil)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = session.Clone()
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	return nil
}

// FileStore keeps the session in a JSON file readable only by the owner.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by path. The file is created on first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Load(ctx context.Context) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, WrapError(ErrSessionNotFound, "failed to read session file", err, map[string]interface{}{
			"path": f.path,
		})
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, WrapError(ErrSessionInvalid, "corrupt session file", err, map[string]interface{}{
			"path": f.path,
		})
	}
	if s.UserID == "" {
		return nil, nil
	}
	return &s, nil
}

func (f *FileStore) Save(ctx context.Context, session *Session) error {
	if session == nil || session.UserID == "" {
		return NewError(ErrSessionInvalid, "session must have a user ID", nil)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.Marshal(session)
	if err != nil {
		return WrapError(ErrSessionInvalid, "failed to encode session", err, nil)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return WrapError(ErrSessionInvalid, "failed to create session directory", err, nil)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return WrapError(ErrSessionInvalid, "failed to write session file", err, nil)
	}
	return os.Rename(tmp, f.path)
}

func (f *FileStore) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return WrapError(ErrSessionInvalid, "failed to remove session file", err, nil)
	}
	return nil
}
