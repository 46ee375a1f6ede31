package profile

// Store exposes profile lookup for the conversation path. Profile editing
// happens elsewhere; the session manager only reads.
type Store interface {
	FindByAccount(accountID string) (Profile, bool)
}

// MemoryStore implements Store with an in-memory slice, suitable for tests
// and store-less development.
type MemoryStore struct {
	items []Profile
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied profiles.
func NewMemoryStore(items []Profile) *MemoryStore {
	return &MemoryStore{items: append([]Profile(nil), items...)}
}

// FindByAccount looks up the profile attached to an account.
func (s *MemoryStore) FindByAccount(accountID string) (Profile, bool) {
	for _, item := range s.items {
		if item.AccountID == accountID {
			return item, true
		}
	}
	return Profile{}, false
}
