package qdrant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/jinford/codebase-rag/internal/core/apperr"
	"github.com/jinford/codebase-rag/internal/core/ingestion"
	"github.com/jinford/codebase-rag/internal/core/vectorindex"
)

// RegistryCollection はコレクションごとの埋め込みモデルを記録する管理用コレクション
const RegistryCollection = "codebase_rag_registry"

// pointNamespace はチャンク ID から Qdrant のポイント ID（UUID）を導出する名前空間
var pointNamespace = uuid.MustParse("6f1d7c53-4a0e-4c8e-9a57-0b8f1d2a9e41")

// Config は Qdrant 接続設定
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Store は Qdrant をマネージドクラウドのベクトルストアとして使う vectorindex.Backend 実装
type Store struct {
	client *client
	logger *slog.Logger

	mu            sync.Mutex
	registryReady bool
}

// Option は Store のオプション設定
type Option func(*Store)

// WithLogger はロガーを設定する
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New は新しい Store を作成する
func New(cfg Config, opts ...Option) *Store {
	s := &Store{
		client: newClient(cfg.URL, cfg.APIKey, cfg.Timeout),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ vectorindex.Backend = (*Store)(nil)

type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

type scoredPoint struct {
	ID      string         `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

func collectionPath(name string) string {
	return "/collections/" + url.PathEscape(name)
}

func registryPointID(name string) string {
	return uuid.NewSHA1(pointNamespace, []byte("collection/"+name)).String()
}

// PointID はコレクション内のチャンク ID を Qdrant のポイント ID に変換する
func PointID(collection, id string) string {
	return uuid.NewSHA1(pointNamespace, []byte(collection+"/"+id)).String()
}

func (s *Store) createCollection(ctx context.Context, name string, dimension int) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	err := s.client.do(ctx, "PUT", collectionPath(name), body, nil)
	if err != nil && !isConflict(err) {
		return fmt.Errorf("failed to create qdrant collection %s: %w", name, err)
	}
	return nil
}

func (s *Store) ensureRegistry(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.registryReady {
		return nil
	}
	// 管理用コレクションはペイロードのみを使うため 1 次元で作る
	if err := s.createCollection(ctx, RegistryCollection, 1); err != nil {
		return err
	}
	s.registryReady = true
	return nil
}

func (s *Store) EnsureCollection(ctx context.Context, info vectorindex.CollectionInfo) (vectorindex.CollectionInfo, error) {
	existing, err := s.Collection(ctx, info.Name)
	if err != nil {
		return vectorindex.CollectionInfo{}, err
	}
	if stored, ok := existing.Get(); ok {
		return stored, nil
	}

	if err := s.ensureRegistry(ctx); err != nil {
		return vectorindex.CollectionInfo{}, err
	}
	if err := s.createCollection(ctx, info.Name, info.Dimension); err != nil {
		return vectorindex.CollectionInfo{}, err
	}

	entry := map[string]any{
		"points": []point{{
			ID:     registryPointID(info.Name),
			Vector: []float32{1},
			Payload: map[string]any{
				"name":            info.Name,
				"embedding_model": info.EmbeddingModel,
				"dimension":       info.Dimension,
			},
		}},
	}
	if err := s.client.do(ctx, "PUT", collectionPath(RegistryCollection)+"/points?wait=true", entry, nil); err != nil {
		return vectorindex.CollectionInfo{}, fmt.Errorf("failed to register collection: %w", err)
	}

	s.logger.Info("Qdrantコレクションを作成しました", "collection", info.Name, "dimension", info.Dimension)
	return info, nil
}

func (s *Store) Collection(ctx context.Context, name string) (mo.Option[vectorindex.CollectionInfo], error) {
	var resp response[[]point]
	body := map[string]any{
		"ids":          []string{registryPointID(name)},
		"with_payload": true,
	}
	err := s.client.do(ctx, "POST", collectionPath(RegistryCollection)+"/points", body, &resp)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return mo.None[vectorindex.CollectionInfo](), nil
		}
		return mo.None[vectorindex.CollectionInfo](), fmt.Errorf("failed to get collection: %w", err)
	}
	if len(resp.Result) == 0 {
		return mo.None[vectorindex.CollectionInfo](), nil
	}

	payload := resp.Result[0].Payload
	info := vectorindex.CollectionInfo{
		Name:           name,
		EmbeddingModel: stringValue(payload["embedding_model"]),
		Dimension:      intValue(payload["dimension"]),
	}
	return mo.Some(info), nil
}

func (s *Store) requireCollection(ctx context.Context, name string) (vectorindex.CollectionInfo, error) {
	found, err := s.Collection(ctx, name)
	if err != nil {
		return vectorindex.CollectionInfo{}, err
	}
	info, ok := found.Get()
	if !ok {
		return vectorindex.CollectionInfo{}, vectorindex.ErrCollectionNotFound
	}
	return info, nil
}

func (s *Store) Add(ctx context.Context, collection string, records []vectorindex.Record) error {
	if len(records) == 0 {
		return nil
	}

	info, err := s.requireCollection(ctx, collection)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if _, dup := seen[r.ID]; dup {
			return apperr.Precondition(fmt.Sprintf("duplicate id %q in collection %s", r.ID, collection), nil)
		}
		seen[r.ID] = struct{}{}
		if len(r.Embedding) != info.Dimension {
			return fmt.Errorf("vector dimension mismatch: got %d, want %d", len(r.Embedding), info.Dimension)
		}
		ids = append(ids, PointID(collection, r.ID))
	}

	var existing response[[]point]
	if err := s.client.do(ctx, "POST", collectionPath(collection)+"/points", map[string]any{"ids": ids}, &existing); err != nil {
		return fmt.Errorf("failed to check existing points: %w", err)
	}
	if len(existing.Result) > 0 {
		return apperr.Precondition(fmt.Sprintf("duplicate id in collection %s", collection), nil)
	}

	points := make([]point, len(records))
	for i, r := range records {
		points[i] = point{
			ID:      ids[i],
			Vector:  r.Embedding,
			Payload: toPayload(r),
		}
	}
	if err := s.client.do(ctx, "PUT", collectionPath(collection)+"/points?wait=true", map[string]any{"points": points}, nil); err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, collection string, vector []float32, k int) ([]vectorindex.Hit, error) {
	if _, err := s.requireCollection(ctx, collection); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []vectorindex.Hit{}, nil
	}

	var resp response[[]scoredPoint]
	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	if err := s.client.do(ctx, "POST", collectionPath(collection)+"/points/search", req, &resp); err != nil {
		return nil, fmt.Errorf("failed to search points: %w", err)
	}

	hits := make([]vectorindex.Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		hit := fromPayload(r.Payload)
		// Cosine の score は類似度なので距離に変換する
		hit.Distance = vectorindex.DistanceFromSimilarity(r.Score)
		hits = append(hits, hit)
	}
	return hits, nil
}

func (s *Store) DeleteCollection(ctx context.Context, collection string) error {
	if _, err := s.requireCollection(ctx, collection); err != nil {
		return err
	}

	if err := s.client.do(ctx, "DELETE", collectionPath(collection), nil, nil); err != nil && !errors.Is(err, errNotFound) {
		return fmt.Errorf("failed to delete qdrant collection: %w", err)
	}

	body := map[string]any{"points": []string{registryPointID(collection)}}
	if err := s.client.do(ctx, "POST", collectionPath(RegistryCollection)+"/points/delete?wait=true", body, nil); err != nil {
		return fmt.Errorf("failed to unregister collection: %w", err)
	}
	return nil
}

func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	if _, err := s.requireCollection(ctx, collection); err != nil {
		return 0, err
	}

	var resp response[struct {
		Count int `json:"count"`
	}]
	if err := s.client.do(ctx, "POST", collectionPath(collection)+"/points/count", map[string]any{"exact": true}, &resp); err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return resp.Result.Count, nil
}

func (s *Store) Close() error {
	s.client.http.CloseIdleConnections()
	return nil
}

func toPayload(r vectorindex.Record) map[string]any {
	return map[string]any{
		"chunk_id":       r.ID,
		"document":       r.Text,
		"file_path":      r.Metadata.FilePath,
		"file_name":      r.Metadata.FileName,
		"file_extension": r.Metadata.FileExtension,
		"chunk_index":    r.Metadata.ChunkIndex,
		"total_chunks":   r.Metadata.TotalChunks,
	}
}

func fromPayload(payload map[string]any) vectorindex.Hit {
	return vectorindex.Hit{
		ID:   stringValue(payload["chunk_id"]),
		Text: stringValue(payload["document"]),
		Metadata: ingestion.ChunkMetadata{
			FilePath:      stringValue(payload["file_path"]),
			FileName:      stringValue(payload["file_name"]),
			FileExtension: stringValue(payload["file_extension"]),
			ChunkIndex:    intValue(payload["chunk_index"]),
			TotalChunks:   intValue(payload["total_chunks"]),
		},
	}
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func intValue(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}
