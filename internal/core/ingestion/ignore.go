package ingestion

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// ignoreMatcher はソースルート直下の .gitignore のパターンマッチングを提供する
type ignoreMatcher struct {
	patterns *gitignore.GitIgnore
}

// loadIgnoreMatcher は root/.gitignore を読み込む。ファイルが無い場合は何も除外しない。
func loadIgnoreMatcher(root string) (*ignoreMatcher, error) {
	content, err := os.ReadFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		if os.IsNotExist(err) {
			return &ignoreMatcher{}, nil
		}
		return nil, fmt.Errorf("failed to read .gitignore: %w", err)
	}

	var patterns []string
	for _, line := range strings.Split(strings.ReplaceAll(string(content), "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}

	if len(patterns) == 0 {
		return &ignoreMatcher{}, nil
	}
	return &ignoreMatcher{patterns: gitignore.CompileIgnoreLines(patterns...)}, nil
}

// Matches は root からの相対パスが除外対象かを返す
func (m *ignoreMatcher) Matches(rel string) bool {
	if m == nil || m.patterns == nil {
		return false
	}
	return m.patterns.MatchesPath(filepath.ToSlash(rel))
}
