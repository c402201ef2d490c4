package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/jinford/codebase-rag/internal/core/project"
)

// IngestZipAction は ZIP アーカイブを取り込んでプロジェクトを作成する
func IngestZipAction(ctx context.Context, cmd *cli.Command) error {
	archivePath := cmd.Args().First()
	if archivePath == "" {
		return fmt.Errorf("ZIPファイルのパスを指定してください")
	}
	format, err := ParseOutputFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	summary, err := appCtx.Container.Projects.CreateFromArchive(ctx, createParams(cmd), filepath.Base(archivePath), archivePath)
	if err != nil {
		appCtx.Logger().Warn("ZIPの取り込みに失敗しました", "path", archivePath, "error", err)
		return err
	}
	return WriteSummary(os.Stdout, format, summary)
}

// IngestGitAction はリポジトリをクローンして取り込む
func IngestGitAction(ctx context.Context, cmd *cli.Command) error {
	repoURL := cmd.String("url")
	format, err := ParseOutputFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	summary, err := appCtx.Container.Projects.CreateFromRepository(ctx, createParams(cmd), repoURL)
	if err != nil {
		appCtx.Logger().Warn("リポジトリの取り込みに失敗しました", "url", repoURL, "error", err)
		return err
	}
	return WriteSummary(os.Stdout, format, summary)
}

func createParams(cmd *cli.Command) project.CreateParams {
	return project.CreateParams{
		OwnerID:     cmd.String("user"),
		Name:        cmd.String("name"),
		Description: cmd.String("description"),
	}
}
