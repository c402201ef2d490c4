// Package vectorindextest はテスト用の決定的な Embedder を提供する
package vectorindextest

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"
)

// HashEmbedder は単語のハッシュを次元に割り当てる Bag-of-Words 埋め込み。
// 同じテキストには常に同じベクトルを返す。
type HashEmbedder struct {
	Model     string
	Dimension int
	BatchSize int
	Err       error

	mu    sync.Mutex
	calls [][]string
}

// NewHashEmbedder は 64 次元の HashEmbedder を作成する
func NewHashEmbedder() *HashEmbedder {
	return &HashEmbedder{Model: "hash-embedding", Dimension: 64}
}

func (e *HashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls = append(e.calls, append([]string(nil), texts...))
	e.mu.Unlock()

	if e.Err != nil {
		return nil, e.Err
	}
	if len(texts) == 0 {
		return nil, errors.New("no texts provided")
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *HashEmbedder) ModelName() string { return e.Model }

func (e *HashEmbedder) MaxBatchSize() int { return e.BatchSize }

// Calls は Embed に渡されたバッチを返す
func (e *HashEmbedder) Calls() [][]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]string(nil), e.calls...)
}

func (e *HashEmbedder) vector(text string) []float32 {
	v := make([]float32, e.Dimension)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%uint32(e.Dimension)]++
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		v[0] = 1
		return v
	}
	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}
	return v
}
