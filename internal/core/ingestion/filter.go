package ingestion

import (
	"os"
	"path/filepath"
	"strings"
)

// DefaultMaxFileSize はこのサイズ（バイト）を超えるファイルを取り込まない
const DefaultMaxFileSize int64 = 1_000_000

var allowedExtensions = toSet(
	".py", ".js", ".jsx", ".ts", ".tsx", ".java", ".cpp", ".c", ".h", ".hpp",
	".cs", ".go", ".rs", ".rb", ".php", ".swift", ".kt", ".scala", ".r",
	".html", ".css", ".scss", ".sass", ".vue", ".svelte",
	".json", ".yaml", ".yml", ".toml", ".xml", ".md", ".txt",
	".sql", ".sh", ".bash", ".ps1", ".dockerfile",
)

var ignoredDirs = toSet(
	"node_modules", "__pycache__", ".git", ".venv", "venv", "env",
	"dist", "build", "target", ".next", ".nuxt", "out",
	"coverage", ".pytest_cache", ".mypy_cache", ".tox",
	"vendor", "packages", "bin", "obj",
)

var ignoredFiles = toSet(
	".DS_Store", "package-lock.json", "yarn.lock", "poetry.lock",
	"Pipfile.lock", ".gitignore", ".env", ".env.local",
)

// Filter は取り込み対象ファイルを判定する
type Filter struct {
	maxFileSize int64
}

// FilterOption は Filter のオプション
type FilterOption func(*Filter)

// WithMaxFileSize はファイルサイズ上限を上書きする
func WithMaxFileSize(size int64) FilterOption {
	return func(f *Filter) {
		if size > 0 {
			f.maxFileSize = size
		}
	}
}

// NewFilter は新しい Filter を作成する
func NewFilter(opts ...FilterOption) *Filter {
	f := &Filter{maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// MaxFileSize はファイルサイズ上限（バイト）を返す
func (f *Filter) MaxFileSize() int64 {
	return f.maxFileSize
}

// ShouldProcess は path が取り込み対象かを判定する。
// path に含まれる全てのディレクトリ名を除外リストと照合する。
func (f *Filter) ShouldProcess(path string) bool {
	return f.shouldProcess(path, path)
}

// ShouldProcessUnder は root 配下の path が取り込み対象かを判定する。
// ディレクトリ名の照合は root からの相対部分のみを対象にする。
func (f *Filter) ShouldProcessUnder(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(path)
	}
	return f.shouldProcess(path, rel)
}

func (f *Filter) shouldProcess(path, rel string) bool {
	if !allowedExtensions[strings.ToLower(filepath.Ext(path))] {
		return false
	}

	if ignoredFiles[filepath.Base(path)] {
		return false
	}

	for _, part := range strings.Split(filepath.ToSlash(filepath.Dir(rel)), "/") {
		if IsIgnoredDir(part) {
			return false
		}
	}

	// サイズが取得できないファイルは対象外
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Size() <= f.maxFileSize
}

// IsIgnoredDir はディレクトリ名が除外対象かを返す
func IsIgnoredDir(name string) bool {
	return ignoredDirs[name]
}

func toSet(values ...string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
