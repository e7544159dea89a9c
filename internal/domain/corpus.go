package domain

import "sync/atomic"

// Corpus is an immutable snapshot of the indexed documents together
// with the statistics the lexical scorer needs. It is built once and
// safe for concurrent reads; rebuilds construct a new Corpus and swap
// it in through a CorpusRef.
type Corpus struct {
	docs     []Document
	byID     map[string]int
	termFreq []map[string]int
	docLen   []int
	stats    Stats
}

// NewCorpus builds a snapshot from documents and their token streams.
// docTokens[i] holds the tokens of docs[i]; a short or nil docTokens
// leaves the missing documents with empty term maps. Documents with a
// duplicate ID after the first occurrence are dropped.
func NewCorpus(docs []Document, docTokens [][]string) *Corpus {
	c := &Corpus{
		byID: make(map[string]int, len(docs)),
	}

	docFreq := make(map[string]int)
	var totalLen int

	for i, doc := range docs {
		if _, dup := c.byID[doc.ID]; dup {
			continue
		}

		var tokens []string
		if i < len(docTokens) {
			tokens = docTokens[i]
		}

		tf := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		for term := range tf {
			docFreq[term]++
		}

		c.byID[doc.ID] = len(c.docs)
		c.docs = append(c.docs, doc)
		c.termFreq = append(c.termFreq, tf)
		c.docLen = append(c.docLen, len(tokens))
		totalLen += len(tokens)
	}

	c.stats = Stats{
		DocFreq:  docFreq,
		DocCount: len(c.docs),
	}
	if len(c.docs) > 0 {
		c.stats.AvgDocLen = float64(totalLen) / float64(len(c.docs))
	}

	return c
}

func (c *Corpus) Len() int {
	return len(c.docs)
}

func (c *Corpus) Doc(i int) Document {
	return c.docs[i]
}

func (c *Corpus) ByID(id string) (Document, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Document{}, false
	}
	return c.docs[i], true
}

func (c *Corpus) Stats() Stats {
	return c.stats
}

// TermFreq returns the term-frequency map of document i. Callers must
// treat the returned map as read-only.
func (c *Corpus) TermFreq(i int) map[string]int {
	return c.termFreq[i]
}

func (c *Corpus) DocLen(i int) int {
	return c.docLen[i]
}

// CorpusRef holds the currently active corpus snapshot. Swapping in a
// rebuilt corpus is atomic; readers never observe a partial corpus.
type CorpusRef struct {
	ptr atomic.Pointer[Corpus]
}

func NewCorpusRef(c *Corpus) *CorpusRef {
	r := &CorpusRef{}
	if c == nil {
		c = NewCorpus(nil, nil)
	}
	r.ptr.Store(c)
	return r
}

func (r *CorpusRef) Load() *Corpus {
	return r.ptr.Load()
}

func (r *CorpusRef) Swap(c *Corpus) {
	if c == nil {
		c = NewCorpus(nil, nil)
	}
	r.ptr.Store(c)
}
