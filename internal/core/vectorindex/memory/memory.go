package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/samber/mo"

	"github.com/jinford/codebase-rag/internal/core/apperr"
	"github.com/jinford/codebase-rag/internal/core/vectorindex"
)

type collection struct {
	info    vectorindex.CollectionInfo
	records []vectorindex.Record
	ids     map[string]struct{}
}

// Backend は総当たりのコサイン距離で検索するインメモリ実装
type Backend struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

// New は新しい Backend を作成する
func New() *Backend {
	return &Backend{collections: make(map[string]*collection)}
}

func (b *Backend) EnsureCollection(_ context.Context, info vectorindex.CollectionInfo) (vectorindex.CollectionInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c, ok := b.collections[info.Name]; ok {
		return c.info, nil
	}
	b.collections[info.Name] = &collection{info: info, ids: make(map[string]struct{})}
	return info, nil
}

func (b *Backend) Collection(_ context.Context, name string) (mo.Option[vectorindex.CollectionInfo], error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if c, ok := b.collections[name]; ok {
		return mo.Some(c.info), nil
	}
	return mo.None[vectorindex.CollectionInfo](), nil
}

func (b *Backend) Add(_ context.Context, name string, records []vectorindex.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.collections[name]
	if !ok {
		return vectorindex.ErrCollectionNotFound
	}

	for _, r := range records {
		if _, dup := c.ids[r.ID]; dup {
			return apperr.Precondition(fmt.Sprintf("duplicate id %q in collection %s", r.ID, name), nil)
		}
		if len(r.Embedding) != c.info.Dimension {
			return fmt.Errorf("vector dimension mismatch: got %d, want %d", len(r.Embedding), c.info.Dimension)
		}
	}

	for _, r := range records {
		c.ids[r.ID] = struct{}{}
		c.records = append(c.records, r)
	}
	return nil
}

func (b *Backend) Query(_ context.Context, name string, vector []float32, k int) ([]vectorindex.Hit, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	c, ok := b.collections[name]
	if !ok {
		return nil, vectorindex.ErrCollectionNotFound
	}

	hits := make([]vectorindex.Hit, 0, len(c.records))
	for _, r := range c.records {
		hits = append(hits, vectorindex.Hit{
			ID:       r.ID,
			Text:     r.Text,
			Metadata: r.Metadata,
			Distance: vectorindex.CosineDistance(r.Embedding, vector),
		})
	}
	return vectorindex.SortHits(hits, k), nil
}

func (b *Backend) DeleteCollection(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.collections[name]; !ok {
		return vectorindex.ErrCollectionNotFound
	}
	delete(b.collections, name)
	return nil
}

func (b *Backend) Count(_ context.Context, name string) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	c, ok := b.collections[name]
	if !ok {
		return 0, vectorindex.ErrCollectionNotFound
	}
	return len(c.records), nil
}

func (b *Backend) Close() error {
	return nil
}

var _ vectorindex.Backend = (*Backend)(nil)
