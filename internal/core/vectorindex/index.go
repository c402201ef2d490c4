package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jinford/codebase-rag/internal/core/apperr"
	"github.com/jinford/codebase-rag/internal/core/ingestion"
)

// Store はバックエンドと埋め込みモデルを束ね、コレクション単位の Index を払い出す
type Store struct {
	backend  Backend
	embedder Embedder
	logger   *slog.Logger
}

// StoreOption は Store のオプション
type StoreOption func(*Store)

// WithStoreLogger はロガーを設定する
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore は新しい Store を作成する
func NewStore(backend Backend, embedder Embedder, opts ...StoreOption) *Store {
	s := &Store{
		backend:  backend,
		embedder: embedder,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Index はコレクションに束縛された Index を返す
func (s *Store) Index(collection string) *Index {
	return &Index{
		backend:    s.backend,
		embedder:   s.embedder,
		collection: collection,
		logger:     s.logger.With("collection", collection),
	}
}

// Close はバックエンドを閉じる
func (s *Store) Close() error {
	return s.backend.Close()
}

// Index は 1 つのコレクションに対する追加・検索・削除を提供する
type Index struct {
	backend    Backend
	embedder   Embedder
	collection string
	logger     *slog.Logger
}

// Collection はコレクション名を返す
func (ix *Index) Collection() string {
	return ix.collection
}

// AddResult は取り込み結果をそのまま追加する
func (ix *Index) AddResult(ctx context.Context, result *ingestion.Result) error {
	return ix.AddDocuments(ctx, result.Chunks, result.Metadatas, result.IDs)
}

// AddDocuments は全テキストを埋め込んだ後、1 回のバッチとして書き込む。
// ids はコレクション内で一意でなければならない（違反は PreconditionError）。
func (ix *Index) AddDocuments(ctx context.Context, texts []string, metadatas []ingestion.ChunkMetadata, ids []string) error {
	if len(texts) != len(metadatas) || len(texts) != len(ids) {
		return apperr.Precondition(
			fmt.Sprintf("texts, metadatas and ids must have the same length (%d, %d, %d)", len(texts), len(metadatas), len(ids)),
			nil,
		)
	}
	if len(texts) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return apperr.Precondition(fmt.Sprintf("duplicate id %q in collection %s", id, ix.collection), nil)
		}
		seen[id] = struct{}{}
	}

	vectors, err := ix.embedAll(ctx, texts)
	if err != nil {
		return err
	}

	info, err := ix.backend.EnsureCollection(ctx, CollectionInfo{
		Name:           ix.collection,
		EmbeddingModel: ix.embedder.ModelName(),
		Dimension:      len(vectors[0]),
	})
	if err != nil {
		return fmt.Errorf("failed to ensure collection: %w", err)
	}
	if err := ix.checkModel(info); err != nil {
		return err
	}

	records := make([]Record, len(texts))
	for i := range texts {
		records[i] = Record{
			ID:        ids[i],
			Text:      texts[i],
			Metadata:  metadatas[i],
			Embedding: vectors[i],
		}
	}

	if err := ix.backend.Add(ctx, ix.collection, records); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}

	ix.logger.Info("ドキュメントを追加しました", "documents", len(records), "dimension", info.Dimension)
	return nil
}

// Search はクエリを埋め込み、コサイン距離の近い順に最大 k 件を返す。
// コレクションが存在しない場合は空の結果を返す。
func (ix *Index) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	if k <= 0 {
		k = 5
	}

	infoOpt, err := ix.backend.Collection(ctx, ix.collection)
	if err != nil {
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}
	info, ok := infoOpt.Get()
	if !ok {
		ix.logger.Debug("コレクションが存在しないため検索結果は空です")
		return []Hit{}, nil
	}
	if err := ix.checkModel(info); err != nil {
		return nil, err
	}

	vectors, err := ix.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, apperr.Provider("embedding", err)
	}
	if len(vectors) != 1 {
		return nil, apperr.Provider("embedding", fmt.Errorf("expected 1 embedding, got %d", len(vectors)))
	}

	hits, err := ix.backend.Query(ctx, ix.collection, vectors[0], k)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}
	return hits, nil
}

// DeleteCollection はコレクションを削除する。
// 存在しない場合やバックエンドの失敗はログに残すだけで、エラーにはしない。
func (ix *Index) DeleteCollection(ctx context.Context) {
	err := ix.backend.DeleteCollection(ctx, ix.collection)
	switch {
	case err == nil:
		ix.logger.Info("コレクションを削除しました")
	case errors.Is(err, ErrCollectionNotFound):
		ix.logger.Info("コレクションは既に存在しません")
	default:
		ix.logger.Warn("コレクションの削除に失敗しました", "error", err)
	}
}

// Exists はコレクションが既に存在するかを返す
func (ix *Index) Exists(ctx context.Context) (bool, error) {
	infoOpt, err := ix.backend.Collection(ctx, ix.collection)
	if err != nil {
		return false, fmt.Errorf("failed to get collection: %w", err)
	}
	return infoOpt.IsPresent(), nil
}

// Count はコレクション内のレコード数を返す（存在しない場合は 0）
func (ix *Index) Count(ctx context.Context) (int, error) {
	n, err := ix.backend.Count(ctx, ix.collection)
	if errors.Is(err, ErrCollectionNotFound) {
		return 0, nil
	}
	return n, err
}

func (ix *Index) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	batchSize := ix.embedder.MaxBatchSize()
	if batchSize <= 0 {
		batchSize = len(texts)
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		batch, err := ix.embedder.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, apperr.Provider("embedding", err)
		}
		if len(batch) != end-start {
			return nil, apperr.Provider("embedding", fmt.Errorf("expected %d embeddings, got %d", end-start, len(batch)))
		}
		vectors = append(vectors, batch...)
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim || dim == 0 {
			return nil, apperr.Precondition(fmt.Sprintf("embedding %d has dimension %d, expected %d", i, len(v), dim), nil)
		}
	}

	ix.logger.Debug("埋め込みを生成しました", "texts", len(texts), "batchSize", batchSize)
	return vectors, nil
}

func (ix *Index) checkModel(info CollectionInfo) error {
	if info.EmbeddingModel != "" && info.EmbeddingModel != ix.embedder.ModelName() {
		return apperr.Precondition(
			fmt.Sprintf("collection %s was indexed with embedding model %q, but %q is configured",
				ix.collection, info.EmbeddingModel, ix.embedder.ModelName()),
			nil,
		)
	}
	return nil
}
