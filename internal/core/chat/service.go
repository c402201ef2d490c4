package chat

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strings"

	"github.com/jinford/codebase-rag/internal/core/apperr"
	"github.com/jinford/codebase-rag/internal/core/generation"
)

const (
	// MissingKeyReply は生成モデルが未設定の場合の回答
	MissingKeyReply = "I am ready to chat, but the server is missing the Gemini API key. " +
		"Please add it to the .env file as GEMINI_API_KEY=YOUR_KEY and restart the server."

	// EmptyReply は生成結果が空だった場合の回答
	EmptyReply = "I'm sorry, I couldn't generate a response just now. Please try again."
)

// SystemInstruction は汎用チャットアシスタントの応答方針
const SystemInstruction = "You are a capable, humble and helpful AI assistant with full memory of this conversation. " +
	"When the user refers to earlier topics, acknowledge them and bring back the relevant context. " +
	"Make sure every question gets an answer: if you cannot answer directly, use reasoning, general knowledge " +
	"or related insights to still give a useful response. " +
	"If a question is unclear, ask a clarifying question and still attempt a partial answer. " +
	"If information is missing, state the limitation and give your best guidance. " +
	"Stay polite and supportive, keep explanations clear, and use step-by-step breakdowns or examples when they help. " +
	"When asked to summarize the conversation, cover every topic discussed. " +
	"Refuse only when the request is harmful or disallowed."

// Attachment は base64 エンコードされた添付ファイル
type Attachment struct {
	Filename string `json:"filename"`
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

// Message はチャットの 1 メッセージ
type Message struct {
	Role        generation.Role `json:"role"`
	Content     string          `json:"content"`
	Attachments []Attachment    `json:"attachments,omitempty"`
}

// Service は検索を伴わないモデル単体のチャット
type Service struct {
	generator generation.Generator
	logger    *slog.Logger
}

// ServiceOption は Service のオプション
type ServiceOption func(*Service)

// WithChatLogger はロガーを設定する
func WithChatLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService は新しい Service を作成する。generator が nil の場合は説明文を返すだけになる。
func NewService(generator generation.Generator, opts ...ServiceOption) *Service {
	s := &Service{
		generator: generator,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Reply は会話全体を生成モデルに渡して回答を返す。
// 生成モデルのエラーは ProviderError として返す。
func (s *Service) Reply(ctx context.Context, messages []Message) (string, error) {
	if s.generator == nil {
		s.logger.Warn("生成モデルが設定されていないため固定の回答を返します")
		return MissingKeyReply, nil
	}

	history := s.toHistory(messages)
	reply, err := s.generator.Generate(ctx, generation.Request{
		History:           history,
		SystemInstruction: SystemInstruction,
	})
	if err != nil {
		s.logger.Error("チャット応答の生成に失敗しました", "generator", s.generator.Name(), "error", err)
		return "", apperr.Provider(s.generator.Name(), err)
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		return EmptyReply, nil
	}
	return reply, nil
}

func (s *Service) toHistory(messages []Message) []generation.Message {
	history := make([]generation.Message, 0, len(messages))
	for _, m := range messages {
		var parts []generation.Part
		if m.Content != "" {
			parts = append(parts, generation.Part{Text: m.Content})
		}
		for _, a := range m.Attachments {
			data, err := base64.StdEncoding.DecodeString(a.Data)
			if err != nil {
				s.logger.Warn("添付ファイルをデコードできないためスキップします", "filename", a.Filename, "error", err)
				continue
			}
			parts = append(parts, generation.Part{Data: data, MIMEType: a.MIMEType})
		}
		if len(parts) == 0 {
			continue
		}
		history = append(history, generation.Message{Role: m.Role, Parts: parts})
	}
	return history
}
