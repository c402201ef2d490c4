package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/samber/mo"

	"github.com/jinford/codebase-rag/internal/core/apperr"
	"github.com/jinford/codebase-rag/internal/core/vectorindex"
)

// VectorStore はローカルの SQLite ファイルに永続化する vectorindex.Backend 実装
// ベクトルは little-endian の float32 BLOB として保存し、距離は総当たりで計算する
type VectorStore struct {
	db    *sql.DB
	owned bool
}

// NewVectorStore は新しい VectorStore を作成する
// owned が true の場合は Close で DB も閉じる
func NewVectorStore(db *sql.DB, owned bool) *VectorStore {
	return &VectorStore{db: db, owned: owned}
}

var _ vectorindex.Backend = (*VectorStore)(nil)

func (s *VectorStore) EnsureCollection(ctx context.Context, info vectorindex.CollectionInfo) (vectorindex.CollectionInfo, error) {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO vector_collections (name, embedding_model, dimension)
VALUES (?, ?, ?)
ON CONFLICT (name) DO NOTHING`, info.Name, info.EmbeddingModel, info.Dimension)
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
	var info vectorindex.CollectionInfo
	err := s.db.QueryRowContext(ctx, `
SELECT name, embedding_model, dimension
FROM vector_collections
WHERE name = ?`, name).Scan(&info.Name, &info.EmbeddingModel, &info.Dimension)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return mo.None[vectorindex.CollectionInfo](), nil
		}
		return mo.None[vectorindex.CollectionInfo](), fmt.Errorf("failed to get collection: %w", err)
	}
	return mo.Some(info), nil
}

func (s *VectorStore) Add(ctx context.Context, collection string, records []vectorindex.Record) (err error) {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var dimension int
	if err := tx.QueryRowContext(ctx, `SELECT dimension FROM vector_collections WHERE name = ?`, collection).Scan(&dimension); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return vectorindex.ErrCollectionNotFound
		}
		return fmt.Errorf("failed to get collection: %w", err)
	}

	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if _, dup := seen[r.ID]; dup {
			return apperr.Precondition(fmt.Sprintf("duplicate id %q in collection %s", r.ID, collection), nil)
		}
		seen[r.ID] = struct{}{}

		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM vector_records WHERE collection = ? AND id = ?`, collection, r.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check record id: %w", err)
		}
		if exists > 0 {
			return apperr.Precondition(fmt.Sprintf("duplicate id %q in collection %s", r.ID, collection), nil)
		}
		if len(r.Embedding) != dimension {
			return fmt.Errorf("vector dimension mismatch: got %d, want %d", len(r.Embedding), dimension)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO vector_records (collection, id, document, metadata, embedding)
VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		metadata, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, collection, r.ID, r.Text, string(metadata), EncodeVector(r.Embedding)); err != nil {
			return fmt.Errorf("failed to insert record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
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

	rows, err := s.db.QueryContext(ctx, `
SELECT id, document, metadata, embedding
FROM vector_records
WHERE collection = ?`, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to load vectors: %w", err)
	}
	defer rows.Close()

	hits := make([]vectorindex.Hit, 0)
	for rows.Next() {
		var (
			hit      vectorindex.Hit
			metadata string
			blob     []byte
		)
		if err := rows.Scan(&hit.ID, &hit.Text, &metadata, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		if err := json.Unmarshal([]byte(metadata), &hit.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
		embedding, err := DecodeVector(blob)
		if err != nil {
			return nil, err
		}
		hit.Distance = vectorindex.CosineDistance(embedding, vector)
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}

	return vectorindex.SortHits(hits, k), nil
}

func (s *VectorStore) DeleteCollection(ctx context.Context, collection string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM vector_collections WHERE name = ?`, collection)
	if err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
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

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vector_records WHERE collection = ?`, collection).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}

func (s *VectorStore) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}

// EncodeVector は float32 スライスを little-endian の BLOB に変換する
func EncodeVector(vec []float32) []byte {
	buf := &bytes.Buffer{}
	buf.Grow(len(vec) * 4)
	_ = binary.Write(buf, binary.LittleEndian, vec)
	return buf.Bytes()
}

// DecodeVector は BLOB を float32 スライスに戻す
func DecodeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("invalid vector blob length: %d", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	if err := binary.Read(bytes.NewReader(blob), binary.LittleEndian, vec); err != nil {
		return nil, fmt.Errorf("failed to decode vector: %w", err)
	}
	return vec, nil
}
