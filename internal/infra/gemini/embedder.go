package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/jinford/codebase-rag/internal/core/vectorindex"
)

const (
	// maxEmbeddingBatch は batchEmbedContents の 1 リクエストあたりの上限
	maxEmbeddingBatch = 100

	taskSemanticSimilarity = "SEMANTIC_SIMILARITY"
)

// Embedder は Gemini API を使用してテキストをベクトルに変換する
type Embedder struct {
	client    *genai.Client
	model     string
	dimension int
}

// EmbedderOption は Embedder のオプション設定
type EmbedderOption func(*Embedder)

// WithEmbeddingModel はモデル名を上書きする
func WithEmbeddingModel(model string) EmbedderOption {
	return func(e *Embedder) {
		if model != "" {
			e.model = model
		}
	}
}

// WithEmbeddingDimension は出力次元を指定する（0 はモデル既定）
func WithEmbeddingDimension(dimension int) EmbedderOption {
	return func(e *Embedder) {
		if dimension > 0 {
			e.dimension = dimension
		}
	}
}

// NewEmbedder は新しい Embedder を作成する
func NewEmbedder(client *genai.Client, opts ...EmbedderOption) *Embedder {
	e := &Embedder{
		client: client,
		model:  DefaultEmbeddingModel,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Embed はバッチで Embedding を生成する
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts provided")
	}
	if len(texts) > maxEmbeddingBatch {
		return nil, fmt.Errorf("batch size exceeds maximum of %d", maxEmbeddingBatch)
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	config := &genai.EmbedContentConfig{TaskType: taskSemanticSimilarity}
	if e.dimension > 0 {
		dim := int32(e.dimension)
		config.OutputDimensionality = &dim
	}

	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("GenAI batch embed failed: %w", err)
	}

	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(result.Embeddings))
	}

	embeddings := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		embeddings[i] = emb.Values
	}
	return embeddings, nil
}

// ModelName はモデル名を返す
func (e *Embedder) ModelName() string {
	return e.model
}

// MaxBatchSize はバッチ処理の最大サイズを返す
func (e *Embedder) MaxBatchSize() int {
	return maxEmbeddingBatch
}

var _ vectorindex.Embedder = (*Embedder)(nil)
