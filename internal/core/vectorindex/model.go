package vectorindex

import (
	"context"
	"errors"

	"github.com/samber/mo"

	"github.com/jinford/codebase-rag/internal/core/ingestion"
)

// ErrCollectionNotFound はコレクションが存在しない場合のエラー
var ErrCollectionNotFound = errors.New("collection not found")

// Record はベクトルストアに格納する 1 チャンク分のレコード
type Record struct {
	ID        string
	Text      string
	Metadata  ingestion.ChunkMetadata
	Embedding []float32
}

// Hit は近傍検索の 1 件分の結果
// Distance はコサイン距離（0〜2、0 が同一方向）
type Hit struct {
	ID       string
	Text     string
	Metadata ingestion.ChunkMetadata
	Distance float64
}

// CollectionInfo はコレクションの暗黙スキーマ（埋め込みモデルと次元数）
type CollectionInfo struct {
	Name           string
	EmbeddingModel string
	Dimension      int
}

// Backend はベクトルストアの実装（local / server / cloud / memory）
// プロセス全体で 1 つのインスタンスを共有し、並行利用に安全でなければならない
type Backend interface {
	// EnsureCollection はコレクションが無ければ作成し、既存・新規いずれの場合も格納済みの情報を返す
	EnsureCollection(ctx context.Context, info CollectionInfo) (CollectionInfo, error)
	// Collection はコレクション情報を取得する
	Collection(ctx context.Context, name string) (mo.Option[CollectionInfo], error)
	// Add はレコードを一括で追加する。既存 ID と重複する場合は PreconditionError を返す
	Add(ctx context.Context, collection string, records []Record) error
	// Query はコサイン距離の昇順で最大 k 件を返す
	Query(ctx context.Context, collection string, vector []float32, k int) ([]Hit, error)
	// DeleteCollection はコレクションを削除する。存在しない場合は ErrCollectionNotFound を返す
	DeleteCollection(ctx context.Context, collection string) error
	// Count はコレクション内のレコード数を返す
	Count(ctx context.Context, collection string) (int, error)
	Close() error
}

// Embedder はテキストを固定次元のベクトルへ変換する
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
	MaxBatchSize() int
}
