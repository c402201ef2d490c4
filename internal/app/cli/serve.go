package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/jinford/codebase-rag/internal/interface/httpapi"
)

// ServeAction は HTTP API サーバを起動する
// シグナルでコンテキストがキャンセルされるとグレースフルに停止する
func ServeAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	cfg := appCtx.Config
	logger := appCtx.Logger()

	secret, err := cfg.Server.RequireJWTSecret()
	if err != nil {
		return fmt.Errorf("サーバを起動できません: %w", err)
	}

	port := cfg.Server.Port
	if cmd.IsSet("port") {
		port = int(cmd.Int("port"))
	}

	server := httpapi.NewServer(port, httpapi.RouterConfig{
		CodebaseHandler: httpapi.NewCodebaseHandler(appCtx.Container.Projects, cfg.Ingestion.TempDir, logger),
		ChatHandler:     httpapi.NewChatHandler(appCtx.Container.Chat, logger),
		AuthMiddleware:  httpapi.NewAuthMiddleware(secret, logger),
		CORSOrigins:     cfg.Server.CORSOrigins,
		Logger:          logger,
	})

	logger.Info("HTTPサーバを起動します", "port", port, "vectorStore", cfg.VectorStore.Kind)
	return server.Run(ctx)
}
