package generation

import "context"

// Role は会話メッセージの発話者
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Part はメッセージの構成要素（テキストまたはバイナリ添付）
type Part struct {
	Text     string
	Data     []byte
	MIMEType string
}

// IsText はテキストパートかを返す
func (p Part) IsText() bool {
	return len(p.Data) == 0
}

// Message は 1 発話分のメッセージ
type Message struct {
	Role  Role
	Parts []Part
}

// Text はテキストパートを連結して返す
func (m Message) Text() string {
	var text string
	for _, p := range m.Parts {
		if p.IsText() {
			text += p.Text
		}
	}
	return text
}

// UserText はテキストのみのユーザーメッセージを作成する
func UserText(text string) Message {
	return Message{Role: RoleUser, Parts: []Part{{Text: text}}}
}

// Request は生成リクエスト
// History の末尾が今回の入力になる
type Request struct {
	History           []Message
	SystemInstruction string
}

// Generator はテキスト生成モデル
// ストリーミングは行わず、1 回の呼び出しで応答全体を返す
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	Name() string
}
