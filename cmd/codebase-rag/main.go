package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	appcli "github.com/jinford/codebase-rag/internal/app/cli"
)

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
	}
}

func userFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "user",
		Usage: "プロジェクトの所有者ID（HTTP API では JWT の sub に相当）",
		Value: "local",
	}
}

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "format",
		Usage: "出力形式（table, json, yaml）",
		Value: "table",
	}
}

// projectFlags は取り込みコマンド共通のフラグを返す。
// nameRequired が false の場合、名前の省略時はリポジトリ URL から導出する。
func projectFlags(nameRequired bool) []cli.Flag {
	usage := "プロジェクト名"
	if !nameRequired {
		usage = "プロジェクト名（省略時はリポジトリURLから導出）"
	}
	return []cli.Flag{
		envFlag(),
		userFlag(),
		formatFlag(),
		&cli.StringFlag{
			Name:     "name",
			Usage:    usage,
			Required: nameRequired,
		},
		&cli.StringFlag{
			Name:  "description",
			Usage: "プロジェクトの説明",
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 構造化ログの設定（設定読み込み後に各コマンドで上書きされる）
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	app := &cli.Command{
		Name:  "codebase-rag",
		Usage: "コードベースを取り込み、質問に答える RAG サーバ",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "HTTP APIサーバを起動",
				Flags: []cli.Flag{
					envFlag(),
					&cli.IntFlag{
						Name:  "port",
						Usage: "HTTPポート（省略時は環境変数PORTまたは8000）",
					},
				},
				Action: appcli.ServeAction,
			},
			{
				Name:  "ingest",
				Usage: "コードベース取り込みコマンド",
				Commands: []*cli.Command{
					{
						Name:      "zip",
						Usage:     "ZIPアーカイブを取り込む",
						ArgsUsage: "<archive.zip>",
						Flags:     projectFlags(true),
						Action:    appcli.IngestZipAction,
					},
					{
						Name:  "git",
						Usage: "Gitリポジトリをクローンして取り込む",
						Flags: append(projectFlags(false), &cli.StringFlag{
							Name:     "url",
							Usage:    "リポジトリURL",
							Required: true,
						}),
						Action: appcli.IngestGitAction,
					},
				},
			},
			{
				Name:      "ask",
				Usage:     "プロジェクトのコードベースに質問する",
				ArgsUsage: "<question>",
				Flags: []cli.Flag{
					envFlag(),
					userFlag(),
					&cli.StringFlag{
						Name:     "project",
						Usage:    "プロジェクトID",
						Required: true,
					},
				},
				Action: appcli.AskAction,
			},
			{
				Name:  "project",
				Usage: "プロジェクト管理コマンド",
				Commands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "プロジェクト一覧を表示",
						Flags:  []cli.Flag{envFlag(), userFlag(), formatFlag()},
						Action: appcli.ProjectListAction,
					},
					{
						Name:  "delete",
						Usage: "プロジェクトとインデックスを削除",
						Flags: []cli.Flag{
							envFlag(),
							userFlag(),
							&cli.StringFlag{
								Name:     "id",
								Usage:    "プロジェクトID",
								Required: true,
							},
						},
						Action: appcli.ProjectDeleteAction,
					},
				},
			},
			{
				Name:      "chat",
				Usage:     "検索を伴わないモデル単体のチャット",
				ArgsUsage: "[message]",
				Flags:     []cli.Flag{envFlag()},
				Action:    appcli.ChatAction,
			},
			{
				Name:  "token",
				Usage: "開発用のアクセストークンを発行",
				Flags: []cli.Flag{
					envFlag(),
					userFlag(),
					&cli.DurationFlag{
						Name:  "ttl",
						Usage: "有効期間",
						Value: 24 * time.Hour,
					},
				},
				Action: appcli.TokenAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
