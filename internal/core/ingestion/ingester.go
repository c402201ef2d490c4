package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jinford/codebase-rag/internal/core/apperr"
	"github.com/jinford/codebase-rag/internal/core/ingestion/chunk"
)

// Cloner はリポジトリの浅いクローン（depth 1）を行う
type Cloner interface {
	ShallowClone(ctx context.Context, repoURL, destDir string) error
}

// Ingester はソースツリーを走査し、チャンク・メタデータ・ID の組を生成する
type Ingester struct {
	filter           *Filter
	loader           *Loader
	splitter         *chunk.Splitter
	cloner           Cloner
	tempDir          string
	respectGitignore bool
	logger           *slog.Logger
}

// IngesterOption は Ingester のオプション
type IngesterOption func(*Ingester)

// WithIngesterLogger はロガーを設定する
func WithIngesterLogger(logger *slog.Logger) IngesterOption {
	return func(i *Ingester) {
		i.logger = logger
	}
}

// WithFilter は Filter を差し替える
func WithFilter(filter *Filter) IngesterOption {
	return func(i *Ingester) {
		i.filter = filter
	}
}

// WithLoader は Loader を差し替える
func WithLoader(loader *Loader) IngesterOption {
	return func(i *Ingester) {
		i.loader = loader
	}
}

// WithCloner はリポジトリのクローン実装を設定する
func WithCloner(cloner Cloner) IngesterOption {
	return func(i *Ingester) {
		i.cloner = cloner
	}
}

// WithTempDir は一時ディレクトリの作成先を設定する（空の場合は OS 既定）
func WithTempDir(dir string) IngesterOption {
	return func(i *Ingester) {
		i.tempDir = dir
	}
}

// WithRespectGitignore はソースルートの .gitignore を尊重するかを設定する
func WithRespectGitignore(enabled bool) IngesterOption {
	return func(i *Ingester) {
		i.respectGitignore = enabled
	}
}

// NewIngester は新しい Ingester を作成する
func NewIngester(splitter *chunk.Splitter, opts ...IngesterOption) *Ingester {
	i := &Ingester{
		splitter: splitter,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}

	if i.logger == nil {
		i.logger = slog.Default()
	}
	if i.filter == nil {
		i.filter = NewFilter()
	}
	if i.loader == nil {
		i.loader = NewLoader(WithLoaderLogger(i.logger))
	}

	return i
}

// ProcessCodebase は root 配下の全ファイルを処理する。
// 対象ファイルが無い場合は空の結果を返す（エラーにはしない）。
func (i *Ingester) ProcessCodebase(ctx context.Context, root string) (*Result, error) {
	var ignore *ignoreMatcher
	if i.respectGitignore {
		m, err := loadIgnoreMatcher(root)
		if err != nil {
			i.logger.Warn(".gitignore を読み込めないため無視します", "root", root, "error", err)
		} else {
			ignore = m
		}
	}

	result := &Result{}
	chunkID := 0

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			// 読めないディレクトリ・ファイルは走査を止めずにスキップする
			i.logger.Debug("走査できないパスをスキップします", "path", path, "error", walkErr)
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return nil
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = filepath.Base(path)
		}

		if d.IsDir() {
			if path != root && (IsIgnoredDir(d.Name()) || ignore.Matches(rel+"/")) {
				return fs.SkipDir
			}
			return nil
		}

		// リンク先がツリー外を指す可能性があるためシンボリックリンクは辿らない
		if d.Type()&fs.ModeSymlink != 0 || !d.Type().IsRegular() {
			return nil
		}

		if ignore.Matches(rel) || !i.filter.ShouldProcessUnder(root, path) {
			return nil
		}

		content := i.loader.Load(path)
		chunks := i.splitter.Split(content)
		if len(chunks) == 0 {
			result.SkippedFiles++
			return nil
		}

		result.FileCount++
		filePath := filepath.ToSlash(rel)
		for idx, text := range chunks {
			result.add(text, ChunkMetadata{
				FilePath:      filePath,
				FileName:      d.Name(),
				FileExtension: filepath.Ext(d.Name()),
				ChunkIndex:    idx,
				TotalChunks:   len(chunks),
			}, fmt.Sprintf("chunk_%d", chunkID))
			chunkID++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk source tree: %w", err)
	}

	i.logger.Info("ソースツリーの処理が完了しました",
		"root", root,
		"files", result.FileCount,
		"chunks", result.Len(),
		"skippedFiles", result.SkippedFiles,
	)

	return result, nil
}

// IngestArchive は ZIP アーカイブを一時ディレクトリへ展開して処理する。
// 一時ディレクトリはどの経路でも削除される。
func (i *Ingester) IngestArchive(ctx context.Context, archivePath string) (*Result, error) {
	return i.withTempDir(func(dir string) (*Result, error) {
		root, err := ExtractZip(archivePath, dir, i.filter.MaxFileSize())
		if err != nil {
			return nil, err
		}
		return i.ProcessCodebase(ctx, root)
	})
}

// IngestRepository はリポジトリを浅くクローンして処理する。
// クローンの失敗は ValidationError として返す。
func (i *Ingester) IngestRepository(ctx context.Context, repoURL string) (*Result, error) {
	if i.cloner == nil {
		return nil, errors.New("repository cloner is not configured")
	}

	return i.withTempDir(func(dir string) (*Result, error) {
		root := filepath.Join(dir, "repo")
		if err := i.cloner.ShallowClone(ctx, repoURL, root); err != nil {
			if apperr.IsValidation(err) {
				return nil, err
			}
			return nil, apperr.Validation("Failed to clone repository", err)
		}
		return i.ProcessCodebase(ctx, root)
	})
}

func (i *Ingester) withTempDir(fn func(dir string) (*Result, error)) (*Result, error) {
	dir, err := os.MkdirTemp(i.tempDir, "codebase-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			i.logger.Warn("一時ディレクトリの削除に失敗しました", "dir", dir, "error", err)
		}
	}()

	return fn(dir)
}
