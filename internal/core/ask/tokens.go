package ask

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter はプロンプトのトークン数を数える
type TokenCounter interface {
	CountTokens(text string) int
}

// TiktokenCounter は cl100k_base エンコーディングでトークン数を数える
type TiktokenCounter struct {
	encoder *tiktoken.Tiktoken
}

// NewTiktokenCounter は新しい TiktokenCounter を作成する
func NewTiktokenCounter() (*TiktokenCounter, error) {
	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoder: %w", err)
	}
	return &TiktokenCounter{encoder: encoder}, nil
}

// CountTokens はトークン数を返す
func (c *TiktokenCounter) CountTokens(text string) int {
	return len(c.encoder.Encode(text, nil, nil))
}
