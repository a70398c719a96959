package embedding

import (
	"container/list"
	"context"
	"sync"
)

// vectorCache is an LRU of vectors keyed by text. Vectors are copied in and out,
// since index builds normalize vectors in place.
type vectorCache struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List
	hits     uint64
	misses   uint64
}

type cached struct {
	text   string
	vector []float32
}

func newVectorCache(capacity int) *vectorCache {
	return &vectorCache{
		capacity: capacity,
		items:    make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

func (c *vectorCache) get(text string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.items[text]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.order.MoveToFront(elem)
	return append([]float32(nil), elem.Value.(*cached).vector...), true
}

func (c *vectorCache) put(text string, vector []float32) {
	vector = append([]float32(nil), vector...)
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[text]; ok {
		elem.Value.(*cached).vector = vector
		c.order.MoveToFront(elem)
		return
	}
	c.items[text] = c.order.PushFront(&cached{text: text, vector: vector})
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cached).text)
	}
}

// CacheStats counts cache lookups since the embedder was created.
type CacheStats struct {
	Entries int
	Hits    uint64
	Misses  uint64
}

// CachedEmbedder memoizes another embedder's vectors by text. Only cache misses reach the inner embedder,
// and a text repeated within one batch is embedded once.
type CachedEmbedder struct {
	inner Embedder
	cache *vectorCache
}

// NewCachedEmbedder wraps inner with an LRU cache holding up to capacity vectors.
func NewCachedEmbedder(inner Embedder, capacity int) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: newVectorCache(capacity)}
}

// Embed returns the cached vector for text or computes it.
func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.cache.get(text); ok {
		return v, nil
	}
	v, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.put(text, v)
	return v, nil
}

// EmbedBatch embeds the distinct uncached texts in one inner call and fills the results in input order.
func (e *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	pending := make(map[string][]int)
	var misses []string
	for i, text := range texts {
		if v, ok := e.cache.get(text); ok {
			out[i] = v
			continue
		}
		if _, seen := pending[text]; !seen {
			misses = append(misses, text)
		}
		pending[text] = append(pending[text], i)
	}
	if len(misses) == 0 {
		return out, nil
	}
	vectors, err := e.inner.EmbedBatch(ctx, misses)
	if err != nil {
		return nil, err
	}
	if err := checkBatch(vectors, len(misses), e.inner.Dimensions()); err != nil {
		return nil, err
	}
	for j, text := range misses {
		e.cache.put(text, vectors[j])
		for n, i := range pending[text] {
			if n == 0 {
				out[i] = vectors[j]
			} else {
				out[i] = append([]float32(nil), vectors[j]...)
			}
		}
	}
	return out, nil
}

// Stats reports the cache size and lookup counts.
func (e *CachedEmbedder) Stats() CacheStats {
	e.cache.mu.Lock()
	defer e.cache.mu.Unlock()
	return CacheStats{Entries: e.cache.order.Len(), Hits: e.cache.hits, Misses: e.cache.misses}
}

// Dimensions returns the inner embedder's dimension.
func (e *CachedEmbedder) Dimensions() int { return e.inner.Dimensions() }

// Model returns the inner embedder's model id.
func (e *CachedEmbedder) Model() string { return e.inner.Model() }

// Close closes the inner embedder.
func (e *CachedEmbedder) Close() error { return e.inner.Close() }
