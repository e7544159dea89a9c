package port

import "kbsearch/internal/domain"

type IndexStore interface {
	PutDocs(docs []domain.Document) error

	LoadDocs() ([]domain.Document, error)

	DeleteDoc(id string) error

	Count() (int, error)

	PutStats(stats domain.Stats) error

	GetStats() (domain.Stats, error)

	Close() error
}
