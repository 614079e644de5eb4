package stores

import (
	"context"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// SessionStore keeps flags for the lifetime of the process. It backs the
// session half of the fix gate: flags vanish on restart, which is exactly
// the semantics the in-memory marker needs. Safe for concurrent use by the
// watch loop and the HTTP report handler.
type SessionStore struct {
	flags cmap.ConcurrentMap[string, string]
}

// NewSessionStore creates an empty in-process flag store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		flags: cmap.New[string](),
	}
}

// GetFlag returns the flag value and whether it is set.
func (s *SessionStore) GetFlag(_ context.Context, key string) (string, bool, error) {
	value, ok := s.flags.Get(key)
	return value, ok, nil
}

// SetFlag sets a flag, replacing any previous value.
func (s *SessionStore) SetFlag(_ context.Context, key, value string) error {
	s.flags.Set(key, value)
	return nil
}

// RemoveFlag deletes a flag. Removing an absent flag is not an error.
func (s *SessionStore) RemoveFlag(_ context.Context, key string) error {
	s.flags.Remove(key)
	return nil
}

// Flags returns a point-in-time copy of all session flags.
func (s *SessionStore) Flags() map[string]string {
	return s.flags.Items()
}

// Clear removes every session flag.
func (s *SessionStore) Clear() {
	s.flags.Clear()
}
