package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/jinford/codebase-rag/internal/interface/httpapi"
	"github.com/jinford/codebase-rag/internal/platform/config"
)

// TokenAction は開発用のアクセストークンを発行する
func TokenAction(_ context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("env"))
	if err != nil {
		return fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	secret, err := cfg.Server.RequireJWTSecret()
	if err != nil {
		return fmt.Errorf("トークンを発行できません: %w", err)
	}

	token, err := httpapi.SignToken(secret, cmd.String("user"), cmd.Duration("ttl"))
	if err != nil {
		return fmt.Errorf("トークンの発行に失敗: %w", err)
	}
	fmt.Fprintln(os.Stdout, token)
	return nil
}
