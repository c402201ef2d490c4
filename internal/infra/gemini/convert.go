package gemini

import (
	"strings"

	"google.golang.org/genai"

	"github.com/jinford/codebase-rag/internal/core/generation"
)

// ToRole は汎用ロールを Gemini のロールに変換する
// Gemini は user と model しか受け付けないため system は user として扱う
func ToRole(role generation.Role) genai.Role {
	if role == generation.RoleAssistant {
		return genai.RoleModel
	}
	return genai.RoleUser
}

// ToParts はメッセージのパートを Gemini のパートに変換する
func ToParts(msg generation.Message) []*genai.Part {
	parts := make([]*genai.Part, 0, len(msg.Parts))
	for _, p := range msg.Parts {
		if p.IsText() {
			if p.Text == "" {
				continue
			}
			parts = append(parts, genai.NewPartFromText(p.Text))
			continue
		}
		parts = append(parts, genai.NewPartFromBytes(p.Data, p.MIMEType))
	}
	return parts
}

// ToContents は会話履歴を Gemini の Content 列に変換する
// パートを持たないメッセージは除外する
func ToContents(history []generation.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, msg := range history {
		parts := ToParts(msg)
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, genai.NewContentFromParts(parts, ToRole(msg.Role)))
	}
	return contents
}

func buildConfig(systemInstruction string) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if strings.TrimSpace(systemInstruction) != "" {
		config.SystemInstruction = genai.NewContentFromText(systemInstruction, genai.RoleUser)
	}
	return config
}
