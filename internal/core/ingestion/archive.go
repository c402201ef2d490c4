package ingestion

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jinford/codebase-rag/internal/core/apperr"
)

// ExtractZip は ZIP アーカイブを destDir に展開し、取り込みの起点となるディレクトリを返す。
// 展開結果の直下がディレクトリ 1 つだけの場合はそのディレクトリを起点とする。
// maxFileSize バイトを超えるエントリは展開しない（0 以下は DefaultMaxFileSize）。
func ExtractZip(archivePath, destDir string, maxFileSize int64) (string, error) {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}

	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", apperr.Validation("Invalid ZIP archive", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if err := extractEntry(f, destDir, maxFileSize); err != nil {
			return "", err
		}
	}

	return unwrapSingleRoot(destDir)
}

func extractEntry(f *zip.File, destDir string, maxFileSize int64) error {
	target := filepath.Join(destDir, filepath.FromSlash(f.Name))
	if !isWithin(destDir, target) {
		return apperr.Validation(fmt.Sprintf("ZIP entry escapes extraction directory: %s", f.Name), nil)
	}

	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}

	// シンボリックリンク等の特殊ファイルは展開しない
	if !f.Mode().IsRegular() {
		return nil
	}
	if f.UncompressedSize64 > uint64(maxFileSize) {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	src, err := f.Open()
	if err != nil {
		return apperr.Validation(fmt.Sprintf("Invalid ZIP entry: %s", f.Name), err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	// ヘッダのサイズは信用せず、上限 + 1 バイトまでしか読まない
	n, err := io.Copy(dst, io.LimitReader(src, maxFileSize+1))
	if err != nil {
		dst.Close()
		return apperr.Validation(fmt.Sprintf("Invalid ZIP entry: %s", f.Name), err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if n > maxFileSize {
		return os.Remove(target)
	}
	return nil
}

func unwrapSingleRoot(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read extracted directory: %w", err)
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(dir, entries[0].Name()), nil
	}
	return dir, nil
}

func isWithin(base, target string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
