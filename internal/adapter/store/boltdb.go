package store

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"kbsearch/internal/domain"
)

var (
	bucketDocs       = []byte("docs")
	bucketEmbeddings = []byte("embeddings")
	bucketStats      = []byte("stats")
	keyStats         = []byte("corpus_stats")
)

// BoltStore persists the document corpus in a single BoltDB file.
// Embeddings live in their own bucket so metadata scans stay cheap.
type BoltStore struct {
	db *bbolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		buckets := [][]byte{bucketDocs, bucketEmbeddings, bucketStats}
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

type storedVector struct {
	Vector []float32 `json:"v"`
}

func (s *BoltStore) PutDocs(docs []domain.Document) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		docBucket := tx.Bucket(bucketDocs)
		embBucket := tx.Bucket(bucketEmbeddings)

		for _, doc := range docs {
			embedding := doc.Embedding
			doc.Embedding = nil

			data, err := json.Marshal(doc)
			if err != nil {
				return err
			}
			if err := docBucket.Put([]byte(doc.ID), data); err != nil {
				return err
			}

			if len(embedding) == 0 {
				if err := embBucket.Delete([]byte(doc.ID)); err != nil {
					return err
				}
				continue
			}

			vecData, err := json.Marshal(storedVector{Vector: embedding})
			if err != nil {
				return err
			}
			if err := embBucket.Put([]byte(doc.ID), vecData); err != nil {
				return err
			}
		}

		return nil
	})
}

func (s *BoltStore) LoadDocs() ([]domain.Document, error) {
	var docs []domain.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		docBucket := tx.Bucket(bucketDocs)
		embBucket := tx.Bucket(bucketEmbeddings)

		return docBucket.ForEach(func(k, v []byte) error {
			var doc domain.Document
			if err := json.Unmarshal(v, &doc); err != nil {
				return nil // skip corrupted entries
			}

			if vecData := embBucket.Get(k); vecData != nil {
				var stored storedVector
				if err := json.Unmarshal(vecData, &stored); err == nil {
					doc.Embedding = stored.Vector
				}
			}

			docs = append(docs, doc)
			return nil
		})
	})
	return docs, err
}

func (s *BoltStore) DeleteDoc(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketDocs).Delete([]byte(id)); err != nil {
			return err
		}
		return tx.Bucket(bucketEmbeddings).Delete([]byte(id))
	})
}

func (s *BoltStore) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketDocs).Stats().KeyN
		return nil
	})
	return n, err
}

func (s *BoltStore) PutStats(stats domain.Stats) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(stats)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketStats).Put(keyStats, data)
	})
}

func (s *BoltStore) GetStats() (domain.Stats, error) {
	var stats domain.Stats
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketStats).Get(keyStats)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &stats)
	})
	return stats, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
