package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/codebase-rag/internal/core/apperr"
	"github.com/jinford/codebase-rag/internal/core/ingestion"
	"github.com/jinford/codebase-rag/internal/core/vectorindex"
)

const testAPIKey = "test-api-key"

type fakeCollection struct {
	size   int
	points map[string]point
}

// fakeQdrant は REST API の必要最小限を再現するテスト用サーバー
type fakeQdrant struct {
	mu          sync.Mutex
	collections map[string]*fakeCollection
	// scoreScale は検索結果の score に掛ける係数（0 は無効）
	scoreScale float64
}

func newFakeQdrant(t *testing.T, opts ...func(*fakeQdrant)) *httptest.Server {
	t.Helper()
	f := &fakeQdrant{collections: make(map[string]*fakeCollection)}
	for _, opt := range opts {
		opt(f)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("PUT /collections/{name}", f.createCollection)
	mux.HandleFunc("DELETE /collections/{name}", f.deleteCollection)
	mux.HandleFunc("PUT /collections/{name}/points", f.upsert)
	mux.HandleFunc("POST /collections/{name}/points", f.retrieve)
	mux.HandleFunc("POST /collections/{name}/points/search", f.search)
	mux.HandleFunc("POST /collections/{name}/points/count", f.count)
	mux.HandleFunc("POST /collections/{name}/points/delete", f.deletePoints)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("api-key") != testAPIKey {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeResult(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"result": result, "status": "ok"})
}

func (f *fakeQdrant) collection(w http.ResponseWriter, r *http.Request) (*fakeCollection, bool) {
	c, ok := f.collections[r.PathValue("name")]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
	}
	return c, ok
}

func (f *fakeQdrant) createCollection(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if _, ok := f.collections[name]; ok {
		w.WriteHeader(http.StatusConflict)
		return
	}
	var body struct {
		Vectors struct {
			Size     int    `json:"size"`
			Distance string `json:"distance"`
		} `json:"vectors"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.Vectors.Distance != "Cosine" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.collections[name] = &fakeCollection{size: body.Vectors.Size, points: make(map[string]point)}
	writeResult(w, true)
}

func (f *fakeQdrant) deleteCollection(w http.ResponseWriter, r *http.Request) {
	delete(f.collections, r.PathValue("name"))
	writeResult(w, true)
}

func (f *fakeQdrant) upsert(w http.ResponseWriter, r *http.Request) {
	c, ok := f.collection(w, r)
	if !ok {
		return
	}
	var body struct {
		Points []point `json:"points"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	for _, p := range body.Points {
		if len(p.Vector) != c.size {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
	}
	for _, p := range body.Points {
		c.points[p.ID] = p
	}
	writeResult(w, map[string]any{"status": "completed"})
}

func (f *fakeQdrant) retrieve(w http.ResponseWriter, r *http.Request) {
	c, ok := f.collection(w, r)
	if !ok {
		return
	}
	var body struct {
		IDs []string `json:"ids"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	found := make([]point, 0)
	for _, id := range body.IDs {
		if p, ok := c.points[id]; ok {
			found = append(found, point{ID: p.ID, Payload: p.Payload})
		}
	}
	writeResult(w, found)
}

func (f *fakeQdrant) search(w http.ResponseWriter, r *http.Request) {
	c, ok := f.collection(w, r)
	if !ok {
		return
	}
	var body struct {
		Vector []float32 `json:"vector"`
		Limit  int       `json:"limit"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	results := make([]scoredPoint, 0, len(c.points))
	for _, p := range c.points {
		score := 1 - vectorindex.CosineDistance(p.Vector, body.Vector)
		if f.scoreScale != 0 {
			score *= f.scoreScale
		}
		results = append(results, scoredPoint{
			ID:      p.ID,
			Score:   score,
			Payload: p.Payload,
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > body.Limit {
		results = results[:body.Limit]
	}
	writeResult(w, results)
}

func (f *fakeQdrant) count(w http.ResponseWriter, r *http.Request) {
	c, ok := f.collection(w, r)
	if !ok {
		return
	}
	writeResult(w, map[string]any{"count": len(c.points)})
}

func (f *fakeQdrant) deletePoints(w http.ResponseWriter, r *http.Request) {
	c, ok := f.collection(w, r)
	if !ok {
		return
	}
	var body struct {
		Points []string `json:"points"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	for _, id := range body.Points {
		delete(c.points, id)
	}
	writeResult(w, map[string]any{"status": "completed"})
}

func testRecords() []vectorindex.Record {
	return []vectorindex.Record{
		{ID: "chunk_0", Text: "package main", Embedding: []float32{1, 0}, Metadata: ingestion.ChunkMetadata{FilePath: "main.go", FileName: "main.go", FileExtension: ".go", ChunkIndex: 0, TotalChunks: 2}},
		{ID: "chunk_1", Text: "func main() {}", Embedding: []float32{0, 1}, Metadata: ingestion.ChunkMetadata{FilePath: "main.go", FileName: "main.go", FileExtension: ".go", ChunkIndex: 1, TotalChunks: 2}},
	}
}

func TestStore(t *testing.T) {
	srv := newFakeQdrant(t)
	store := New(Config{URL: srv.URL + "/", APIKey: testAPIKey})
	defer store.Close()
	ctx := context.Background()

	const name = "user1_app_deadbeef"

	found, err := store.Collection(ctx, name)
	require.NoError(t, err)
	assert.True(t, found.IsAbsent(), "管理用コレクションが無い場合も未作成として扱う")

	_, err = store.Query(ctx, name, []float32{1, 0}, 1)
	assert.ErrorIs(t, err, vectorindex.ErrCollectionNotFound)

	info, err := store.EnsureCollection(ctx, vectorindex.CollectionInfo{Name: name, EmbeddingModel: "text-embedding-3-small", Dimension: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, info.Dimension)

	// 2 回目は格納済みの情報が返る
	info, err = store.EnsureCollection(ctx, vectorindex.CollectionInfo{Name: name, EmbeddingModel: "other", Dimension: 2})
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-3-small", info.EmbeddingModel)

	require.NoError(t, store.Add(ctx, name, testRecords()))

	count, err := store.Count(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	hits, err := store.Query(ctx, name, []float32{0.2, 1}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "chunk_1", hits[0].ID)
	assert.Equal(t, "func main() {}", hits[0].Text)
	assert.Equal(t, ingestion.ChunkMetadata{FilePath: "main.go", FileName: "main.go", FileExtension: ".go", ChunkIndex: 1, TotalChunks: 2}, hits[0].Metadata)
	assert.InDelta(t, vectorindex.CosineDistance([]float32{0, 1}, []float32{0.2, 1}), hits[0].Distance, 1e-6)

	err = store.Add(ctx, name, []vectorindex.Record{{ID: "chunk_1", Text: "dup", Embedding: []float32{1, 1}}})
	assert.True(t, apperr.IsPrecondition(err))

	require.NoError(t, store.DeleteCollection(ctx, name))
	assert.ErrorIs(t, store.DeleteCollection(ctx, name), vectorindex.ErrCollectionNotFound)

	found, err = store.Collection(ctx, name)
	require.NoError(t, err)
	assert.True(t, found.IsAbsent())
}

func TestStore_QueryClampsDistance(t *testing.T) {
	// 丸め誤差で score が [-1, 1] をわずかに超える場合を再現する
	srv := newFakeQdrant(t, func(f *fakeQdrant) { f.scoreScale = 1.0001 })
	store := New(Config{URL: srv.URL, APIKey: testAPIKey})
	defer store.Close()
	ctx := context.Background()

	const name = "user1_app_cafebabe"
	_, err := store.EnsureCollection(ctx, vectorindex.CollectionInfo{Name: name, EmbeddingModel: "m", Dimension: 2})
	require.NoError(t, err)
	require.NoError(t, store.Add(ctx, name, []vectorindex.Record{
		{ID: "same", Text: "a", Embedding: []float32{1, 0}},
		{ID: "opposite", Text: "b", Embedding: []float32{-1, 0}},
	}))

	hits, err := store.Query(ctx, name, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "same", hits[0].ID)
	assert.Equal(t, 0.0, hits[0].Distance)
	assert.Equal(t, "opposite", hits[1].ID)
	assert.Equal(t, 2.0, hits[1].Distance)
}

func TestStore_RejectsWrongAPIKey(t *testing.T) {
	srv := newFakeQdrant(t)
	store := New(Config{URL: srv.URL, APIKey: "wrong"})

	_, err := store.EnsureCollection(context.Background(), vectorindex.CollectionInfo{Name: "c", EmbeddingModel: "m", Dimension: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}

func TestPointID(t *testing.T) {
	assert.Equal(t, PointID("a", "chunk_0"), PointID("a", "chunk_0"))
	assert.NotEqual(t, PointID("a", "chunk_0"), PointID("b", "chunk_0"))
	assert.NotEqual(t, registryPointID("a"), PointID("a", ""))
}
