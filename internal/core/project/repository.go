package project

import (
	"context"

	"github.com/google/uuid"
	"github.com/samber/mo"
)

// Repository はプロジェクト情報の永続化を担う
// 所有者が一致しないプロジェクトは存在しないものとして扱う
type Repository interface {
	Create(ctx context.Context, p *Project) error
	FindByID(ctx context.Context, ownerID string, id uuid.UUID) (mo.Option[*Project], error)
	ListByOwner(ctx context.Context, ownerID string) ([]*Project, error)
	Delete(ctx context.Context, ownerID string, id uuid.UUID) error
}
