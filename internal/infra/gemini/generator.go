package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"

	"github.com/jinford/codebase-rag/internal/core/generation"
)

// DefaultTimeout は 1 回の生成のデフォルトタイムアウト
const DefaultTimeout = 120 * time.Second

type generatorOptions struct {
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// GeneratorOption は Agent / Direct のオプション設定
type GeneratorOption func(*generatorOptions)

// WithModel はモデル名を上書きする
func WithModel(model string) GeneratorOption {
	return func(o *generatorOptions) {
		if model != "" {
			o.model = model
		}
	}
}

// WithTimeout は 1 回の生成に掛けるタイムアウトを設定する
func WithTimeout(timeout time.Duration) GeneratorOption {
	return func(o *generatorOptions) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithGeneratorLogger はロガーを設定する
func WithGeneratorLogger(logger *slog.Logger) GeneratorOption {
	return func(o *generatorOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func newGeneratorOptions(opts []GeneratorOption) generatorOptions {
	options := generatorOptions{
		model:   DefaultModel,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// Agent はチャットセッションを介して応答を生成する（一次経路）
// 履歴をセッションに積み、最後のメッセージを送信する
type Agent struct {
	client *genai.Client
	opts   generatorOptions
}

// NewAgent は新しい Agent を作成する
func NewAgent(client *genai.Client, opts ...GeneratorOption) *Agent {
	return &Agent{client: client, opts: newGeneratorOptions(opts)}
}

// Name は識別名を返す
func (a *Agent) Name() string {
	return "gemini-agent:" + a.opts.model
}

// Generate は応答を生成する
func (a *Agent) Generate(ctx context.Context, req generation.Request) (string, error) {
	contents := ToContents(req.History)
	if len(contents) == 0 {
		return "", fmt.Errorf("empty conversation history")
	}

	ctx, cancel := context.WithTimeout(ctx, a.opts.timeout)
	defer cancel()

	history, last := contents[:len(contents)-1], contents[len(contents)-1]

	chat, err := a.client.Chats.Create(ctx, a.opts.model, buildConfig(req.SystemInstruction), history)
	if err != nil {
		return "", fmt.Errorf("failed to create chat session: %w", err)
	}

	parts := make([]genai.Part, 0, len(last.Parts))
	for _, p := range last.Parts {
		parts = append(parts, *p)
	}

	a.opts.logger.Debug("チャットセッションに送信します",
		"model", a.opts.model,
		"historyLength", len(history),
	)

	result, err := chat.SendMessage(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("GenAI chat failed: %w", err)
	}
	return result.Text(), nil
}

// Direct は単発の GenerateContent 呼び出しで応答を生成する（代替経路）
type Direct struct {
	client *genai.Client
	opts   generatorOptions
}

// NewDirect は新しい Direct を作成する
func NewDirect(client *genai.Client, opts ...GeneratorOption) *Direct {
	return &Direct{client: client, opts: newGeneratorOptions(opts)}
}

// Name は識別名を返す
func (d *Direct) Name() string {
	return "gemini-direct:" + d.opts.model
}

// Generate は応答を生成する
func (d *Direct) Generate(ctx context.Context, req generation.Request) (string, error) {
	contents := ToContents(req.History)
	if len(contents) == 0 {
		return "", fmt.Errorf("empty conversation history")
	}

	ctx, cancel := context.WithTimeout(ctx, d.opts.timeout)
	defer cancel()

	result, err := d.client.Models.GenerateContent(ctx, d.opts.model, contents, buildConfig(req.SystemInstruction))
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}
	return result.Text(), nil
}

// インターフェース実装の確認
var (
	_ generation.Generator = (*Agent)(nil)
	_ generation.Generator = (*Direct)(nil)
)
