package capture

import (
	"sort"
	"sync"
)

// Store maps an exact captured URL to its resource.
type Store struct {
	mu sync.RWMutex
	m  map[string]*Resource
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{m: make(map[string]*Resource)}
}

// Put inserts r, replacing any earlier capture of the same URL.
func (s *Store) Put(r *Resource) {
	s.mu.Lock()
	s.m[r.URL] = r
	s.mu.Unlock()
}

// Get returns the resource captured for url.
func (s *Store) Get(url string) (*Resource, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.m[url]
	return r, ok
}

// Len returns the number of captured resources.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// URLs returns the captured URLs in lexical order.
func (s *Store) URLs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.m))
	for u := range s.m {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// All returns the captured resources ordered by URL.
func (s *Store) All() []*Resource {
	urls := s.URLs()
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Resource, 0, len(urls))
	for _, u := range urls {
		if r, ok := s.m[u]; ok {
			out = append(out, r)
		}
	}
	return out
}

// Stores is the set of per-kind stores owned by one capture session.
type Stores struct {
	byKind [numKinds]*Store
}

// NewStores creates an empty set of stores.
func NewStores() *Stores {
	s := &Stores{}
	for i := range s.byKind {
		s.byKind[i] = NewStore()
	}
	return s
}

// Of returns the store for kind.
func (s *Stores) Of(kind Kind) *Store {
	return s.byKind[kind]
}

// Counts returns the number of captured resources per kind name.
func (s *Stores) Counts() map[string]int {
	out := make(map[string]int, numKinds)
	for _, k := range Kinds {
		if n := s.byKind[k].Len(); n > 0 {
			out[k.String()] = n
		}
	}
	return out
}
