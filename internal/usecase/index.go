package usecase

import (
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"kbsearch/internal/adapter/crawl"
	"kbsearch/internal/domain"
	"kbsearch/internal/port"
)

// ProgressFunc reports indexing progress to the caller.
type ProgressFunc func(processed, total int, stage string)

// IndexUseCase builds the searchable corpus from crawl output.
type IndexUseCase struct {
	loader    *crawl.Loader
	tokenizer port.Tokenizer
	embedder  port.Embedder // nil disables embeddings
	store     port.IndexStore
	corpus    *domain.CorpusRef
	workers   int
	batchSize int
	log       *zap.Logger
}

func NewIndexUseCase(
	loader *crawl.Loader,
	tokenizer port.Tokenizer,
	embedder port.Embedder,
	store port.IndexStore,
	corpus *domain.CorpusRef,
	workers, batchSize int,
	log *zap.Logger,
) *IndexUseCase {
	if workers <= 0 {
		workers = 4
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &IndexUseCase{
		loader:    loader,
		tokenizer: tokenizer,
		embedder:  embedder,
		store:     store,
		corpus:    corpus,
		workers:   workers,
		batchSize: batchSize,
		log:       log,
	}
}

// IndexResult contains the results of an indexing run.
type IndexResult struct {
	DocsIndexed  int
	DocsEmbedded int
	Errors       []string
}

// Index loads crawl output under root, embeds it, persists it and
// swaps the in-memory corpus snapshot. A document whose embedding
// fails is indexed without one and still participates lexically.
func (u *IndexUseCase) Index(root string, progress ProgressFunc) (*IndexResult, error) {
	docs, err := u.loader.Load(root)
	if err != nil {
		return nil, fmt.Errorf("failed to load crawl output: %w", err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no indexable documents under %s", root)
	}

	result := &IndexResult{DocsIndexed: len(docs)}

	if u.embedder != nil {
		u.embedDocs(docs, result, progress)
	}

	docTokens := make([][]string, len(docs))
	for i, doc := range docs {
		docTokens[i] = u.tokenizer.Tokenize(doc.Text)
	}
	corpus := domain.NewCorpus(docs, docTokens)

	if err := u.store.PutDocs(docs); err != nil {
		return nil, fmt.Errorf("failed to persist documents: %w", err)
	}
	if err := u.store.PutStats(corpus.Stats()); err != nil {
		return nil, fmt.Errorf("failed to persist corpus stats: %w", err)
	}

	u.corpus.Swap(corpus)

	u.log.Info("index built",
		zap.Int("docs", result.DocsIndexed),
		zap.Int("embedded", result.DocsEmbedded),
		zap.Int("errors", len(result.Errors)))

	return result, nil
}

// embedDocs fills doc embeddings in bounded parallel batches.
func (u *IndexUseCase) embedDocs(docs []domain.Document, result *IndexResult, progress ProgressFunc) {
	pool, err := ants.NewPool(u.workers)
	if err != nil {
		u.log.Warn("embedding pool unavailable, skipping embeddings", zap.Error(err))
		return
	}
	defer pool.Release()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		processed int
	)

	for start := 0; start < len(docs); start += u.batchSize {
		start := start
		end := start + u.batchSize
		if end > len(docs) {
			end = len(docs)
		}

		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()

			texts := make([]string, end-start)
			for i := start; i < end; i++ {
				texts[i-start] = docs[i].Text
			}

			vecs, err := u.embedder.Embed(texts)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("embedding batch %d-%d: %v", start, end, err))
			} else {
				for i := range vecs {
					if len(vecs[i]) > 0 {
						docs[start+i].Embedding = vecs[i]
						result.DocsEmbedded++
					}
				}
			}

			processed += end - start
			if progress != nil {
				progress(processed, len(docs), "embedding")
			}
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			result.Errors = append(result.Errors, fmt.Sprintf("embedding batch %d-%d: %v", start, end, submitErr))
			mu.Unlock()
		}
	}

	wg.Wait()
}

// LoadCorpus restores the corpus snapshot from the store. A load
// failure yields an empty corpus so search degrades to literal
// matching instead of becoming unavailable.
func LoadCorpus(store port.IndexStore, tokenizer port.Tokenizer, ref *domain.CorpusRef, log *zap.Logger) {
	docs, err := store.LoadDocs()
	if err != nil {
		if log != nil {
			log.Warn("corpus load failed, starting empty", zap.Error(err))
		}
		ref.Swap(domain.NewCorpus(nil, nil))
		return
	}

	docTokens := make([][]string, len(docs))
	for i, doc := range docs {
		docTokens[i] = tokenizer.Tokenize(doc.Text)
	}
	ref.Swap(domain.NewCorpus(docs, docTokens))
}
