package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/codebase-rag/internal/core/apperr"
	"github.com/jinford/codebase-rag/internal/core/ingestion"
	"github.com/jinford/codebase-rag/internal/core/project"
	"github.com/jinford/codebase-rag/internal/core/vectorindex"
)

func openTestDB(t *testing.T) (*sql.DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "rag.db")
	db, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, path
}

func TestEncodeDecodeVector(t *testing.T) {
	vec := []float32{0.5, -1.25, 3}
	blob := EncodeVector(vec)
	assert.Len(t, blob, 12)

	got, err := DecodeVector(blob)
	require.NoError(t, err)
	assert.Equal(t, vec, got)

	_, err = DecodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestProjectRepository(t *testing.T) {
	db, _ := openTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	url := "https://github.com/acme/app.git"
	first := &project.Project{
		ID:             uuid.New(),
		OwnerID:        "42",
		Name:           "first",
		SourceKind:     project.SourceGitHubClone,
		SourceURL:      &url,
		CollectionName: "user42_first_aaaaaaaa",
		FileCount:      3,
		TotalChunks:    7,
		CreatedAt:      base,
		UpdatedAt:      base,
	}
	desc := "二つ目"
	second := &project.Project{
		ID:             uuid.New(),
		OwnerID:        "42",
		Name:           "second",
		Description:    &desc,
		SourceKind:     project.SourceUpload,
		CollectionName: "user42_second_bbbbbbbb",
		FileCount:      1,
		TotalChunks:    1,
		CreatedAt:      base.Add(time.Minute),
		UpdatedAt:      base.Add(time.Minute),
	}
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))

	found, err := repo.FindByID(ctx, "42", first.ID)
	require.NoError(t, err)
	got, ok := found.Get()
	require.True(t, ok)
	assert.Equal(t, first.ID, got.ID)
	assert.Nil(t, got.Description)
	require.NotNil(t, got.SourceURL)
	assert.Equal(t, url, *got.SourceURL)
	assert.Equal(t, 7, got.TotalChunks)
	assert.True(t, base.Equal(got.CreatedAt))

	found, err = repo.FindByID(ctx, "7", first.ID)
	require.NoError(t, err)
	assert.True(t, found.IsAbsent())

	list, err := repo.ListByOwner(ctx, "42")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "second", list[0].Name)
	assert.Equal(t, "first", list[1].Name)

	list, err = repo.ListByOwner(ctx, "7")
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.ErrorIs(t, repo.Delete(ctx, "7", first.ID), apperr.ErrProjectNotFound)
	require.NoError(t, repo.Delete(ctx, "42", first.ID))
	assert.ErrorIs(t, repo.Delete(ctx, "42", first.ID), apperr.ErrProjectNotFound)
}

func testRecords() []vectorindex.Record {
	meta := func(path string) ingestion.ChunkMetadata {
		return ingestion.ChunkMetadata{FilePath: path, FileName: filepath.Base(path), FileExtension: filepath.Ext(path), ChunkIndex: 0, TotalChunks: 1}
	}
	return []vectorindex.Record{
		{ID: "chunk_0", Text: "func main() {}", Metadata: meta("cmd/main.go"), Embedding: []float32{1, 0, 0}},
		{ID: "chunk_1", Text: "def handler(): pass", Metadata: meta("app/handler.py"), Embedding: []float32{0, 1, 0}},
		{ID: "chunk_2", Text: "SELECT 1", Metadata: meta("db/query.sql"), Embedding: []float32{0, 0, 1}},
	}
}

func TestVectorStore(t *testing.T) {
	db, _ := openTestDB(t)
	store := NewVectorStore(db, false)
	ctx := context.Background()

	const name = "user42_app_12345678"

	t.Run("存在しないコレクション", func(t *testing.T) {
		found, err := store.Collection(ctx, name)
		require.NoError(t, err)
		assert.True(t, found.IsAbsent())

		_, err = store.Query(ctx, name, []float32{1, 0, 0}, 3)
		assert.ErrorIs(t, err, vectorindex.ErrCollectionNotFound)

		_, err = store.Count(ctx, name)
		assert.ErrorIs(t, err, vectorindex.ErrCollectionNotFound)

		assert.ErrorIs(t, store.Add(ctx, name, testRecords()), vectorindex.ErrCollectionNotFound)
	})

	info, err := store.EnsureCollection(ctx, vectorindex.CollectionInfo{Name: name, EmbeddingModel: "hash-embedding", Dimension: 3})
	require.NoError(t, err)
	assert.Equal(t, "hash-embedding", info.EmbeddingModel)

	require.NoError(t, store.Add(ctx, name, testRecords()))

	t.Run("近い順に検索できる", func(t *testing.T) {
		hits, err := store.Query(ctx, name, []float32{0.1, 0.9, 0}, 2)
		require.NoError(t, err)
		require.Len(t, hits, 2)
		assert.Equal(t, "chunk_1", hits[0].ID)
		assert.Equal(t, "app/handler.py", hits[0].Metadata.FilePath)
		assert.Equal(t, ".py", hits[0].Metadata.FileExtension)
		assert.LessOrEqual(t, hits[0].Distance, hits[1].Distance)
	})

	t.Run("重複IDは書き込まれない", func(t *testing.T) {
		err := store.Add(ctx, name, []vectorindex.Record{
			{ID: "chunk_9", Text: "x", Embedding: []float32{1, 1, 0}},
			{ID: "chunk_0", Text: "dup", Embedding: []float32{1, 1, 0}},
		})
		assert.True(t, apperr.IsPrecondition(err))

		count, err := store.Count(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, 3, count)
	})

	t.Run("次元が異なるベクトルは拒否される", func(t *testing.T) {
		err := store.Add(ctx, name, []vectorindex.Record{{ID: "chunk_10", Text: "x", Embedding: []float32{1, 0}}})
		assert.Error(t, err)
	})

	t.Run("削除するとレコードも消える", func(t *testing.T) {
		require.NoError(t, store.DeleteCollection(ctx, name))
		assert.ErrorIs(t, store.DeleteCollection(ctx, name), vectorindex.ErrCollectionNotFound)

		var n int
		require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vector_records`).Scan(&n))
		assert.Zero(t, n)
	})
}

func TestVectorStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.db")
	ctx := context.Background()

	db, err := Open(ctx, path)
	require.NoError(t, err)
	store := NewVectorStore(db, true)
	_, err = store.EnsureCollection(ctx, vectorindex.CollectionInfo{Name: "c", EmbeddingModel: "m", Dimension: 3})
	require.NoError(t, err)
	require.NoError(t, store.Add(ctx, "c", testRecords()))
	require.NoError(t, store.Close())

	db, err = Open(ctx, path)
	require.NoError(t, err)
	store = NewVectorStore(db, true)
	defer store.Close()

	count, err := store.Count(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
