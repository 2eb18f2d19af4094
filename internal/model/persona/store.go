package persona

// Store exposes persona retrieval for HTTP handlers.
type Store interface {
	List() []Persona
	FindByIndex(index int) (Persona, bool)
	FindByName(name string) (Persona, bool)
	LoadErr() error
}

// MemoryStore implements Store with the slice loaded at startup.
type MemoryStore struct {
	items   []Persona
	loadErr error
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied personas.
func NewMemoryStore(items []Persona) *MemoryStore {
	return &MemoryStore{items: append([]Persona(nil), items...)}
}

// LoadStore reads the persona document at path into a MemoryStore. The store is
// always usable: when loading fails it is empty and remembers the error.
func LoadStore(path string) (*MemoryStore, error) {
	items, err := Load(path)
	store := NewMemoryStore(items)
	store.loadErr = err
	return store, err
}

// List returns the loaded personas in document order.
func (s *MemoryStore) List() []Persona {
	return append([]Persona(nil), s.items...)
}

// FindByIndex looks up a persona by its position in the document.
func (s *MemoryStore) FindByIndex(index int) (Persona, bool) {
	if index < 0 || index >= len(s.items) {
		return Persona{}, false
	}
	return s.items[index], true
}

// FindByName returns the first persona whose display name matches.
func (s *MemoryStore) FindByName(name string) (Persona, bool) {
	for _, item := range s.items {
		if item.DisplayName == name {
			return item, true
		}
	}
	return Persona{}, false
}

// LoadErr reports why the store is empty, if loading failed.
func (s *MemoryStore) LoadErr() error {
	return s.loadErr
}
