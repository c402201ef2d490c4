package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
)

// AskAction はプロジェクトのコードベースに対して質問する
func AskAction(ctx context.Context, cmd *cli.Command) error {
	id, err := uuid.Parse(cmd.String("project"))
	if err != nil {
		return fmt.Errorf("プロジェクトIDが不正です: %w", err)
	}
	question := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if question == "" {
		return fmt.Errorf("質問文を指定してください")
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	logger := appCtx.Logger()
	logger.Info("質問応答を開始", "project", id, "question", question)

	result, err := appCtx.Container.Projects.Analyze(ctx, cmd.String("user"), id, question, nil)
	if err != nil {
		return err
	}

	WriteAnswer(os.Stdout, result.Reply, result.RelevantFiles)
	logger.Info("質問応答が完了しました",
		"usedFallback", result.UsedFallback,
		"failed", result.Failed,
		"promptTokens", result.PromptTokens,
	)
	return nil
}
