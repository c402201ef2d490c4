package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/jinford/codebase-rag/internal/core/generation"
)

const (
	// DefaultModel はデフォルトで使用するOpenAIモデル
	DefaultModel = "gpt-4o-mini"

	// DefaultTimeout はAPI呼び出しのデフォルトタイムアウト
	DefaultTimeout = 60 * time.Second

	// MaxRetries はレート制限エラー時の最大リトライ回数
	MaxRetries = 3

	// BaseBackoff はExponential Backoffの基底時間
	BaseBackoff = 2 * time.Second

	// MaxBackoff はExponential Backoffの最大待機時間
	MaxBackoff = 32 * time.Second
)

var (
	// ErrAPIKeyNotSet はAPIキーが設定されていない場合のエラー
	ErrAPIKeyNotSet = errors.New("OpenAI API key not set: please set OPENAI_API_KEY environment variable")

	// ErrMaxRetriesExceeded は最大リトライ回数を超過した場合のエラー
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// Generator は Chat Completions API を使用した応答生成の実装
type Generator struct {
	client      openai.Client
	model       string
	timeout     time.Duration
	baseBackoff time.Duration
	logger      *slog.Logger
}

type generatorOptions struct {
	model          string
	timeout        time.Duration
	baseBackoff    time.Duration
	logger         *slog.Logger
	requestOptions []option.RequestOption
}

// GeneratorOption は Generator のオプション設定
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

// WithBackoff はレート制限時のリトライ待機の基底時間を設定する
func WithBackoff(base time.Duration) GeneratorOption {
	return func(o *generatorOptions) {
		o.baseBackoff = base
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

// WithRequestOptions は SDK のリクエストオプションを追加する
func WithRequestOptions(opts ...option.RequestOption) GeneratorOption {
	return func(o *generatorOptions) {
		o.requestOptions = append(o.requestOptions, opts...)
	}
}

// NewGenerator は新しい Generator を作成する
func NewGenerator(apiKey string, opts ...GeneratorOption) (*Generator, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	options := generatorOptions{
		model:       DefaultModel,
		timeout:     DefaultTimeout,
		baseBackoff: BaseBackoff,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	requestOptions := append([]option.RequestOption{option.WithAPIKey(apiKey)}, options.requestOptions...)

	return &Generator{
		client:      openai.NewClient(requestOptions...),
		model:       options.model,
		timeout:     options.timeout,
		baseBackoff: options.baseBackoff,
		logger:      options.logger,
	}, nil
}

// Name はモデル名を返す
func (g *Generator) Name() string {
	return "openai:" + g.model
}

// Generate は会話履歴とシステム指示から応答を生成する
func (g *Generator) Generate(ctx context.Context, req generation.Request) (string, error) {
	if len(req.History) == 0 {
		return "", fmt.Errorf("empty conversation history")
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(g.model),
		Messages: ToChatMessages(req),
	}

	var lastErr error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			backoffDuration := time.Duration(math.Pow(2, float64(attempt-1))) * g.baseBackoff
			if backoffDuration > MaxBackoff {
				backoffDuration = MaxBackoff
			}

			g.logger.Warn("レート制限のため再試行します",
				"model", g.model,
				"attempt", attempt,
				"backoff", backoffDuration,
			)

			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoffDuration):
			}
		}

		completion, err := g.client.Chat.Completions.New(ctx, params)
		if err != nil {
			lastErr = err

			if isRateLimitError(err) {
				continue
			}

			return "", fmt.Errorf("OpenAI API call failed: %w", err)
		}

		if len(completion.Choices) == 0 {
			return "", fmt.Errorf("no completion choices returned")
		}

		return completion.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}

// ToChatMessages は汎用メッセージを Chat Completions のメッセージ列に変換する
// 添付はユーザー発話のときのみ data URL 画像として送る
func ToChatMessages(req generation.Request) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+1)
	if strings.TrimSpace(req.SystemInstruction) != "" {
		messages = append(messages, openai.SystemMessage(req.SystemInstruction))
	}

	for _, msg := range req.History {
		switch msg.Role {
		case generation.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Text()))
		case generation.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Text()))
		default:
			messages = append(messages, userMessage(msg))
		}
	}

	return messages
}

func userMessage(msg generation.Message) openai.ChatCompletionMessageParamUnion {
	hasAttachment := false
	for _, p := range msg.Parts {
		if !p.IsText() {
			hasAttachment = true
			break
		}
	}
	if !hasAttachment {
		return openai.UserMessage(msg.Text())
	}

	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(msg.Parts))
	for _, p := range msg.Parts {
		if p.IsText() {
			if p.Text != "" {
				parts = append(parts, openai.TextContentPart(p.Text))
			}
			continue
		}
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: DataURL(p.MIMEType, p.Data),
		}))
	}
	return openai.UserMessage(parts)
}

// DataURL はバイナリを data URL 形式にエンコードする
func DataURL(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}

	return false
}

// インターフェース実装の確認
var _ generation.Generator = (*Generator)(nil)
