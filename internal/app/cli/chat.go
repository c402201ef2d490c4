package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/jinford/codebase-rag/internal/core/chat"
	"github.com/jinford/codebase-rag/internal/core/generation"
)

// replier は会話全体から次の応答を返す
type replier interface {
	Reply(ctx context.Context, messages []chat.Message) (string, error)
}

// ChatAction はモデル単体の対話を行う
// 引数があれば 1 回だけ応答し、無ければ標準入力から対話する
func ChatAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if cmd.Args().Len() > 0 {
		message := strings.Join(cmd.Args().Slice(), " ")
		reply, err := appCtx.Container.Chat.Reply(ctx, []chat.Message{{Role: generation.RoleUser, Content: message}})
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, reply)
		return nil
	}

	return RunChatLoop(ctx, appCtx.Container.Chat, os.Stdin, os.Stdout)
}

// RunChatLoop は 1 行を 1 メッセージとして読み、履歴を積みながら応答を書き出す
// 空行は無視し、"exit" または EOF で終了する
func RunChatLoop(ctx context.Context, r replier, in io.Reader, out io.Writer) error {
	var history []chat.Message
	scanner := bufio.NewScanner(in)

	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			fmt.Fprint(out, "> ")
			continue
		case "exit", "quit":
			return nil
		}

		history = append(history, chat.Message{Role: generation.RoleUser, Content: line})
		reply, err := r.Reply(ctx, history)
		if err != nil {
			return err
		}
		history = append(history, chat.Message{Role: generation.RoleAssistant, Content: reply})

		fmt.Fprintf(out, "%s\n> ", reply)
	}
	return scanner.Err()
}
