package ask

import (
	"fmt"
	"strings"

	"github.com/jinford/codebase-rag/internal/core/generation"
)

const (
	// historyWindow はプロンプトに含める直近の履歴件数
	historyWindow = 6
	// historyTruncate は履歴 1 件あたりの最大文字数
	historyTruncate = 200
)

// SystemInstruction はコードベース解析アシスタントのペルソナと応答ルール
const SystemInstruction = `# CODEBASE ARCHITECT & SENIOR DEVELOPER

## Purpose
You are an expert codebase architect and senior developer. You help developers understand, debug and extend their codebases.

## Principles
1. Ground every answer in the code provided in the context.
2. Consider the architecture, data flow and dependencies as a whole.
3. Give specific, actionable guidance with code examples where useful.
4. Follow the patterns already used in the project when suggesting changes.

## Response rules
- Cite the files and functions you rely on.
- Explain complex topics step by step.
- Show before/after code when proposing changes.
- If the context is insufficient, say what additional information would help.
- Use fenced code blocks with language tags.
- Be concise but thorough.`

// BuildAnalyzePrompt は検索コンテキスト・会話履歴・質問から 1 つのプロンプトを構築する
func BuildAnalyzePrompt(question, contextBlock string, history []HistoryEntry) string {
	var sb strings.Builder

	sb.WriteString("## RELEVANT CODE CONTEXT\n\n")
	sb.WriteString(contextBlock)
	sb.WriteString("\n\n---\n\n")

	if len(history) > 0 {
		sb.WriteString("\n## CONVERSATION HISTORY\n\n")
		start := max(0, len(history)-historyWindow)
		for _, h := range history[start:] {
			label := "Assistant"
			if h.Role == generation.RoleUser {
				label = "User"
			}
			sb.WriteString(fmt.Sprintf("**%s**: %s...\n\n", label, truncateRunes(h.Content, historyTruncate)))
		}
		sb.WriteString("---\n\n")
	}

	sb.WriteString("## USER QUESTION\n")
	sb.WriteString(question)
	sb.WriteString("\n\n---\n\n")
	sb.WriteString(answerInstructions)

	return sb.String()
}

const answerInstructions = `Analyze the code context above and answer the question.

**Response length**
- Greetings, thanks and other simple conversational inputs: reply briefly in one or two friendly sentences.
- Technical questions: give a detailed analysis with code examples.

**Structure for technical answers**
1. Open with a short summary of the answer.
2. Organize sections with headings (##, ###).
3. Reference files with backticks, e.g. ` + "`main.go`" + `.
4. Put code in fenced blocks with language tags.
5. Use bullet or numbered lists where they help.

**Content**
- Match the length of the answer to the complexity of the question.
- Be precise, actionable and easy to follow.

Now provide your analysis:`

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
