package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/samber/mo"

	"github.com/jinford/codebase-rag/internal/core/apperr"
	"github.com/jinford/codebase-rag/internal/core/vectorindex"
	"github.com/jinford/codebase-rag/internal/platform/database"
)

// uniqueViolation は PostgreSQL の一意制約違反コード
const uniqueViolation = "23505"

// VectorStore は pgvector を使用する vectorindex.Backend 実装
// 距離計算は embedding <=> $1 のコサイン距離演算子に任せる
type VectorStore struct {
	pool   *pgxpool.Pool
	owned  bool
	logger *slog.Logger
}

// VectorStoreOption は VectorStore のオプション設定
type VectorStoreOption func(*VectorStore)

// WithVectorStoreLogger はロガーを設定する
func WithVectorStoreLogger(logger *slog.Logger) VectorStoreOption {
	return func(s *VectorStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithOwnedPool は Close 時に接続プールも閉じるようにする
func WithOwnedPool() VectorStoreOption {
	return func(s *VectorStore) {
		s.owned = true
	}
}

// NewVectorStore はスキーマを用意したうえで VectorStore を作成する
func NewVectorStore(ctx context.Context, pool *pgxpool.Pool, opts ...VectorStoreOption) (*VectorStore, error) {
	s := &VectorStore{pool: pool, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	if err := EnsureVectorSchema(ctx, pool); err != nil {
		return nil, err
	}
	return s, nil
}

var _ vectorindex.Backend = (*VectorStore)(nil)

func (s *VectorStore) EnsureCollection(ctx context.Context, info vectorindex.CollectionInfo) (vectorindex.CollectionInfo, error) {
	_, err := s.pool.Exec(ctx, `
INSERT INTO vector_collections (name, embedding_model, dimension)
VALUES ($1, $2, $3)
ON CONFLICT (name) DO NOTHING`, info.Name, info.EmbeddingModel, int32(info.Dimension))
	if err != nil {
		return vectorindex.CollectionInfo{}, fmt.Errorf("failed to create collection: %w", err)
	}

	stored, err := s.Collection(ctx, info.Name)
	if err != nil {
		return vectorindex.CollectionInfo{}, err
	}
	got, ok := stored.Get()
	if !ok {
		return vectorindex.CollectionInfo{}, vectorindex.ErrCollectionNotFound
	}
	return got, nil
}

func (s *VectorStore) Collection(ctx context.Context, name string) (mo.Option[vectorindex.CollectionInfo], error) {
	var (
		info      vectorindex.CollectionInfo
		dimension int32
	)
	err := s.pool.QueryRow(ctx, `
SELECT name, embedding_model, dimension
FROM vector_collections
WHERE name = $1`, name).Scan(&info.Name, &info.EmbeddingModel, &dimension)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mo.None[vectorindex.CollectionInfo](), nil
		}
		return mo.None[vectorindex.CollectionInfo](), fmt.Errorf("failed to get collection: %w", err)
	}
	info.Dimension = int(dimension)
	return mo.Some(info), nil
}

func (s *VectorStore) Add(ctx context.Context, collection string, records []vectorindex.Record) error {
	if len(records) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if _, dup := seen[r.ID]; dup {
			return apperr.Precondition(fmt.Sprintf("duplicate id %q in collection %s", r.ID, collection), nil)
		}
		seen[r.ID] = struct{}{}
	}

	_, err := database.Transact(ctx, s.pool, func(tx pgx.Tx) (struct{}, error) {
		var dimension int32
		err := tx.QueryRow(ctx, `SELECT dimension FROM vector_collections WHERE name = $1 FOR SHARE`, collection).Scan(&dimension)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return struct{}{}, vectorindex.ErrCollectionNotFound
			}
			return struct{}{}, fmt.Errorf("failed to lock collection: %w", err)
		}

		batch := &pgx.Batch{}
		for _, r := range records {
			if len(r.Embedding) != int(dimension) {
				return struct{}{}, fmt.Errorf("vector dimension mismatch: got %d, want %d", len(r.Embedding), dimension)
			}
			metadata, err := json.Marshal(r.Metadata)
			if err != nil {
				return struct{}{}, fmt.Errorf("failed to marshal metadata: %w", err)
			}
			batch.Queue(`
INSERT INTO vector_records (collection, id, document, metadata, embedding)
VALUES ($1, $2, $3, $4, $5::vector)`, collection, r.ID, r.Text, metadata, pgvector.NewVector(r.Embedding))
		}

		results := tx.SendBatch(ctx, batch)
		for range records {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
					return struct{}{}, apperr.Precondition(fmt.Sprintf("duplicate id in collection %s", collection), err)
				}
				return struct{}{}, fmt.Errorf("failed to insert record: %w", err)
			}
		}
		if err := results.Close(); err != nil {
			return struct{}{}, fmt.Errorf("failed to close batch: %w", err)
		}
		return struct{}{}, nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug("ベクトルを追加しました", "collection", collection, "count", len(records))
	return nil
}

func (s *VectorStore) Query(ctx context.Context, collection string, vector []float32, k int) ([]vectorindex.Hit, error) {
	found, err := s.Collection(ctx, collection)
	if err != nil {
		return nil, err
	}
	if found.IsAbsent() {
		return nil, vectorindex.ErrCollectionNotFound
	}
	if k <= 0 {
		return []vectorindex.Hit{}, nil
	}

	rows, err := s.pool.Query(ctx, `
SELECT id, document, metadata, embedding <=> $2::vector AS distance
FROM vector_records
WHERE collection = $1
ORDER BY distance, id
LIMIT $3`, collection, pgvector.NewVector(vector), int32(k))
	if err != nil {
		return nil, fmt.Errorf("failed to search vectors: %w", err)
	}
	defer rows.Close()

	hits := make([]vectorindex.Hit, 0, k)
	for rows.Next() {
		var (
			hit      vectorindex.Hit
			metadata []byte
		)
		if err := rows.Scan(&hit.ID, &hit.Text, &metadata, &hit.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan hit: %w", err)
		}
		if err := json.Unmarshal(metadata, &hit.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate hits: %w", err)
	}
	return hits, nil
}

func (s *VectorStore) DeleteCollection(ctx context.Context, collection string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM vector_collections WHERE name = $1`, collection)
	if err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return vectorindex.ErrCollectionNotFound
	}
	return nil
}

func (s *VectorStore) Count(ctx context.Context, collection string) (int, error) {
	found, err := s.Collection(ctx, collection)
	if err != nil {
		return 0, err
	}
	if found.IsAbsent() {
		return 0, vectorindex.ErrCollectionNotFound
	}

	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM vector_records WHERE collection = $1`, collection).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return int(count), nil
}

func (s *VectorStore) Close() error {
	if s.owned {
		s.pool.Close()
	}
	return nil
}
