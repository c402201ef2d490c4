package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strings"

	"github.com/go-enry/go-enry/v2"

	"github.com/jinford/codebase-rag/internal/core/vectorindex"
)

// DefaultK は検索で取得するチャンク数の既定値
const DefaultK = 8

// NoRelevantCode は検索結果が空の場合のコンテキスト
const NoRelevantCode = "No relevant code found in the codebase."

// Searcher はコレクションに対する近傍検索
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]vectorindex.Hit, error)
}

// Context は検索結果を整形したもの
type Context struct {
	Block         string
	RelevantFiles []string
	Hits          []vectorindex.Hit
}

// Retriever はクエリに関連するコードを検索し、プロンプト用のコンテキストへ整形する
type Retriever struct {
	searcher Searcher
	logger   *slog.Logger
}

// RetrieverOption は Retriever のオプション
type RetrieverOption func(*Retriever)

// WithRetrieverLogger はロガーを設定する
func WithRetrieverLogger(logger *slog.Logger) RetrieverOption {
	return func(r *Retriever) {
		r.logger = logger
	}
}

// NewRetriever は新しい Retriever を作成する
func NewRetriever(searcher Searcher, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		searcher: searcher,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Retrieve は上位 k 件を検索してコンテキストブロックと関連ファイル一覧を返す。
// 結果が空の場合は NoRelevantCode を返す（エラーではない）。
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) (*Context, error) {
	if k <= 0 {
		k = DefaultK
	}

	hits, err := r.searcher.Search(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("failed to search codebase: %w", err)
	}

	if len(hits) == 0 {
		r.logger.Info("関連するコードが見つかりませんでした", "k", k)
		return &Context{Block: NoRelevantCode, RelevantFiles: []string{}}, nil
	}

	sections := make([]string, 0, len(hits))
	files := make([]string, 0, len(hits))
	seen := make(map[string]struct{}, len(hits))

	for _, hit := range hits {
		path := hit.Metadata.FilePath
		if path == "" {
			path = "unknown"
		}
		if _, ok := seen[path]; !ok {
			seen[path] = struct{}{}
			files = append(files, path)
		}
		sections = append(sections, formatHit(path, hit))
	}

	r.logger.Info("関連するコードを取得しました", "hits", len(hits), "files", len(files))

	return &Context{
		Block:         strings.Join(sections, "\n"),
		RelevantFiles: files,
		Hits:          hits,
	}, nil
}

func formatHit(path string, hit vectorindex.Hit) string {
	return fmt.Sprintf("\n### File: `%s`\n**Relevance Score**: %.2f\n\n```%s\n%s\n```\n",
		path, RelevanceScore(hit.Distance), FenceLanguage(path, hit.Metadata.FileExtension), hit.Text)
}

// RelevanceScore は 1 - 距離を [0, 1] に収めて返す
func RelevanceScore(distance float64) float64 {
	return math.Max(0, math.Min(1, 1-distance))
}

var fenceAliases = map[string]string{
	"c++":   "cpp",
	"c#":    "csharp",
	"shell": "bash",
}

// FenceLanguage はコードフェンスに付ける言語タグを返す。
// 言語が判定できない場合は拡張子（先頭の . を除く）を使う。
func FenceLanguage(path, extension string) string {
	lang, _ := enry.GetLanguageByExtension(path)
	if lang == "" {
		lang, _ = enry.GetLanguageByFilename(path)
	}
	if lang != "" {
		tag := strings.ReplaceAll(strings.ToLower(lang), " ", "-")
		if alias, ok := fenceAliases[tag]; ok {
			return alias
		}
		return tag
	}

	if extension == "" {
		extension = filepath.Ext(path)
	}
	return strings.TrimPrefix(extension, ".")
}
