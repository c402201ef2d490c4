package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
)

// ProjectListAction はプロジェクト一覧を表示する
func ProjectListAction(ctx context.Context, cmd *cli.Command) error {
	format, err := ParseOutputFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	projects, err := appCtx.Container.Projects.List(ctx, cmd.String("user"))
	if err != nil {
		return fmt.Errorf("プロジェクト一覧の取得に失敗: %w", err)
	}
	return WriteProjects(os.Stdout, format, projects)
}

// ProjectDeleteAction はプロジェクトとそのインデックスを削除する
func ProjectDeleteAction(ctx context.Context, cmd *cli.Command) error {
	id, err := uuid.Parse(cmd.String("id"))
	if err != nil {
		return fmt.Errorf("プロジェクトIDが不正です: %w", err)
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.Container.Projects.Delete(ctx, cmd.String("user"), id); err != nil {
		return fmt.Errorf("プロジェクトの削除に失敗: %w", err)
	}
	fmt.Fprintln(os.Stdout, "Project deleted successfully")
	return nil
}
