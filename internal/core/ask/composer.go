package ask

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jinford/codebase-rag/internal/core/apperr"
	"github.com/jinford/codebase-rag/internal/core/generation"
	"github.com/jinford/codebase-rag/internal/core/retrieval"
)

// apologyFormat は両方の生成経路が失敗した場合の回答
const apologyFormat = "I apologize, but I encountered an error analyzing the codebase: %v"

// Composer は検索コンテキストと会話履歴からプロンプトを組み立てて回答を生成する。
// 主経路が失敗した場合は予備経路を同じプロンプトで 1 回だけ試す。
type Composer struct {
	retriever *retrieval.Retriever
	primary   generation.Generator
	fallback  generation.Generator
	tokens    TokenCounter
	k         int
	logger    *slog.Logger
}

// ComposerOption は Composer のオプション
type ComposerOption func(*Composer)

// WithComposerLogger はロガーを設定する
func WithComposerLogger(logger *slog.Logger) ComposerOption {
	return func(c *Composer) {
		c.logger = logger
	}
}

// WithFallback は予備の生成経路を設定する
func WithFallback(fallback generation.Generator) ComposerOption {
	return func(c *Composer) {
		c.fallback = fallback
	}
}

// WithTokenCounter はプロンプトのトークン計測を設定する
func WithTokenCounter(counter TokenCounter) ComposerOption {
	return func(c *Composer) {
		c.tokens = counter
	}
}

// WithTopK は検索件数を上書きする
func WithTopK(k int) ComposerOption {
	return func(c *Composer) {
		c.k = k
	}
}

// NewComposer は新しい Composer を作成する。
// 生成モデルが未設定の場合は apperr.ErrMissingAPIKey を返す。
func NewComposer(retriever *retrieval.Retriever, primary generation.Generator, opts ...ComposerOption) (*Composer, error) {
	if primary == nil {
		return nil, apperr.Precondition("cannot build codebase analyzer", apperr.ErrMissingAPIKey)
	}

	c := &Composer{
		retriever: retriever,
		primary:   primary,
		k:         retrieval.DefaultK,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// Analyze は質問に回答する。
// 生成モデルのエラーは返さず、お詫び文を回答として返す。検索自体の失敗のみエラーになる。
func (c *Composer) Analyze(ctx context.Context, question string, history []HistoryEntry) (*Result, error) {
	retrieved, err := c.retriever.Retrieve(ctx, question, c.k)
	if err != nil {
		return nil, err
	}

	prompt := BuildAnalyzePrompt(question, retrieved.Block, history)
	req := generation.Request{
		History:           []generation.Message{generation.UserText(prompt)},
		SystemInstruction: SystemInstruction,
	}

	result := &Result{RelevantFiles: retrieved.RelevantFiles}
	if c.tokens != nil {
		result.PromptTokens = c.tokens.CountTokens(prompt)
	}

	c.logger.Info("回答を生成します",
		"generator", c.primary.Name(),
		"hits", len(retrieved.Hits),
		"historyEntries", len(history),
		"promptTokens", result.PromptTokens,
	)

	reply, err := c.primary.Generate(ctx, req)
	if err == nil {
		result.Reply = reply
		return result, nil
	}

	c.logger.Warn("主経路での生成に失敗したため予備経路で再試行します",
		"generator", c.primary.Name(),
		"error", err,
	)

	if c.fallback == nil {
		return c.apologize(result, err), nil
	}

	reply, err = c.fallback.Generate(ctx, req)
	if err != nil {
		c.logger.Error("予備経路での生成にも失敗しました", "generator", c.fallback.Name(), "error", err)
		return c.apologize(result, err), nil
	}

	result.Reply = reply
	result.UsedFallback = true
	return result, nil
}

func (c *Composer) apologize(result *Result, err error) *Result {
	result.Reply = fmt.Sprintf(apologyFormat, err)
	result.Failed = true
	return result
}
