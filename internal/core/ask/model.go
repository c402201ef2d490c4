package ask

import "github.com/jinford/codebase-rag/internal/core/generation"

// HistoryEntry は会話履歴の 1 件
type HistoryEntry struct {
	Role    generation.Role `json:"role"`
	Content string          `json:"content"`
}

// Result は質問応答の結果
type Result struct {
	Reply         string   // 生成された回答（失敗時はお詫び文）
	RelevantFiles []string // 参照したファイル（出現順、重複なし）

	UsedFallback bool // 予備の生成経路で回答したか
	Failed       bool // 両方の経路が失敗し、お詫び文を返したか
	PromptTokens int  // プロンプトのトークン数（計測できない場合は 0）
}
