package chunk

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultChunkSize はチャンクの目標サイズ（文字数）
	DefaultChunkSize = 1500
	// DefaultChunkOverlap は隣接チャンク間の重なり（文字数）
	DefaultChunkOverlap = 200
)

// DefaultSeparators は境界探索の優先順位
// クラス定義前の空行 > 関数定義前の空行 > 空行 > 改行 > 空白 > 文字単位
var DefaultSeparators = []string{"\n\nclass ", "\n\ndef ", "\n\nfunction ", "\n\n", "\n", " ", ""}

// Splitter は区切り文字を優先順に試しながらテキストを重なり付きのチャンクへ分割する。
// 状態を持たないため並行利用できる。
type Splitter struct {
	chunkSize  int
	overlap    int
	separators []string
}

// SplitterOption は Splitter のオプション
type SplitterOption func(*Splitter)

// WithChunkSize はチャンクサイズを上書きする
func WithChunkSize(size int) SplitterOption {
	return func(s *Splitter) {
		s.chunkSize = size
	}
}

// WithChunkOverlap はオーバーラップ幅を上書きする
func WithChunkOverlap(overlap int) SplitterOption {
	return func(s *Splitter) {
		s.overlap = overlap
	}
}

// WithSeparators は区切り文字の優先順を差し替える（末尾は "" を推奨）
func WithSeparators(separators []string) SplitterOption {
	return func(s *Splitter) {
		s.separators = separators
	}
}

// NewSplitter は新しい Splitter を作成する
func NewSplitter(opts ...SplitterOption) (*Splitter, error) {
	s := &Splitter{
		chunkSize:  DefaultChunkSize,
		overlap:    DefaultChunkOverlap,
		separators: DefaultSeparators,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive: %d", s.chunkSize)
	}
	if s.overlap < 0 || s.overlap >= s.chunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d): %d", s.chunkSize, s.overlap)
	}
	if len(s.separators) == 0 {
		return nil, fmt.Errorf("at least one separator is required")
	}

	return s, nil
}

// ChunkSize はチャンクサイズを返す
func (s *Splitter) ChunkSize() int {
	return s.chunkSize
}

// Split はテキストをチャンクへ分割する。結合したチャンクは前後の空白を取り除くが、
// 区切り文字を使い切っても chunkSize 以上の片はそのまま返す。
func (s *Splitter) Split(text string) []string {
	return s.split(text, s.separators)
}

func (s *Splitter) split(text string, separators []string) []string {
	// text に現れる最初の区切り文字を選ぶ
	separator := separators[len(separators)-1]
	var rest []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			rest = separators[i+1:]
			break
		}
	}

	var chunks []string
	var good []string
	for _, piece := range splitKeepingSeparator(text, separator) {
		if length(piece) < s.chunkSize {
			good = append(good, piece)
			continue
		}

		if len(good) > 0 {
			chunks = append(chunks, s.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			chunks = append(chunks, piece)
		} else {
			chunks = append(chunks, s.split(piece, rest)...)
		}
	}
	if len(good) > 0 {
		chunks = append(chunks, s.merge(good)...)
	}

	return chunks
}

// merge は小片を chunkSize 以内に詰め、直前チャンク末尾の overlap 分を次のチャンクへ持ち越す
func (s *Splitter) merge(pieces []string) []string {
	var docs []string
	var current []string
	total := 0

	for _, piece := range pieces {
		n := length(piece)
		if total+n > s.chunkSize && len(current) > 0 {
			docs = appendNonEmpty(docs, strings.Join(current, ""))
			for len(current) > 0 && (total > s.overlap || total+n > s.chunkSize) {
				total -= length(current[0])
				current = current[1:]
			}
		}
		current = append(current, piece)
		total += n
	}

	return appendNonEmpty(docs, strings.Join(current, ""))
}

// splitKeepingSeparator は区切り文字を後続片の先頭に残したまま分割する
func splitKeepingSeparator(text, separator string) []string {
	if separator == "" {
		pieces := make([]string, 0, len(text))
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
		return pieces
	}

	parts := strings.Split(text, separator)
	pieces := make([]string, 0, len(parts))
	if parts[0] != "" {
		pieces = append(pieces, parts[0])
	}
	for _, p := range parts[1:] {
		pieces = append(pieces, separator+p)
	}
	return pieces
}

func appendNonEmpty(docs []string, doc string) []string {
	doc = strings.TrimSpace(doc)
	if doc == "" {
		return docs
	}
	return append(docs, doc)
}

func length(s string) int {
	return utf8.RuneCountInString(s)
}
