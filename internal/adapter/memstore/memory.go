package memstore

import (
	"sort"
	"sync"

	"kbsearch/internal/domain"
)

// MemoryStore is an in-memory IndexStore for tests and ephemeral runs.
type MemoryStore struct {
	mu    sync.RWMutex
	docs  map[string]domain.Document
	stats domain.Stats
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]domain.Document),
	}
}

func (s *MemoryStore) PutDocs(docs []domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range docs {
		s.docs[doc.ID] = doc
	}
	return nil
}

func (s *MemoryStore) LoadDocs() ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]domain.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].ID < docs[j].ID
	})
	return docs, nil
}

func (s *MemoryStore) DeleteDoc(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	return nil
}

func (s *MemoryStore) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs), nil
}

func (s *MemoryStore) PutStats(stats domain.Stats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = stats
	return nil
}

func (s *MemoryStore) GetStats() (domain.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
