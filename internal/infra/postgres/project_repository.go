package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/mo"

	"github.com/jinford/codebase-rag/internal/core/apperr"
	"github.com/jinford/codebase-rag/internal/core/project"
)

// ProjectRepository は project.Repository インターフェースを実装する PostgreSQL リポジトリです
type ProjectRepository struct {
	pool *pgxpool.Pool
}

// NewProjectRepository は新しい ProjectRepository を作成します
func NewProjectRepository(pool *pgxpool.Pool) *ProjectRepository {
	return &ProjectRepository{pool: pool}
}

// コンパイル時の型チェック
var _ project.Repository = (*ProjectRepository)(nil)

const projectColumns = `id, owner_id, name, description, source_kind, source_url, collection_name, file_count, total_chunks, created_at, updated_at`

func (r *ProjectRepository) Create(ctx context.Context, p *project.Project) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO codebase_projects (`+projectColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		UUIDToPgtype(p.ID),
		p.OwnerID,
		p.Name,
		StringPtrToPgtext(p.Description),
		string(p.SourceKind),
		StringPtrToPgtext(p.SourceURL),
		p.CollectionName,
		int32(p.FileCount),
		int32(p.TotalChunks),
		TimeToPgtype(p.CreatedAt),
		TimeToPgtype(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

func (r *ProjectRepository) FindByID(ctx context.Context, ownerID string, id uuid.UUID) (mo.Option[*project.Project], error) {
	row := r.pool.QueryRow(ctx, `
SELECT `+projectColumns+`
FROM codebase_projects
WHERE id = $1 AND owner_id = $2`, UUIDToPgtype(id), ownerID)

	p, err := scanProject(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mo.None[*project.Project](), nil
		}
		return mo.None[*project.Project](), fmt.Errorf("failed to get project: %w", err)
	}
	return mo.Some(p), nil
}

func (r *ProjectRepository) ListByOwner(ctx context.Context, ownerID string) ([]*project.Project, error) {
	rows, err := r.pool.Query(ctx, `
SELECT `+projectColumns+`
FROM codebase_projects
WHERE owner_id = $1
ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	result := make([]*project.Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate projects: %w", err)
	}
	return result, nil
}

func (r *ProjectRepository) Delete(ctx context.Context, ownerID string, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM codebase_projects WHERE id = $1 AND owner_id = $2`, UUIDToPgtype(id), ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrProjectNotFound
	}
	return nil
}

func scanProject(row pgx.Row) (*project.Project, error) {
	var (
		id          pgtype.UUID
		description pgtype.Text
		sourceURL   pgtype.Text
		sourceKind  string
		fileCount   int32
		totalChunks int32
		createdAt   pgtype.Timestamptz
		updatedAt   pgtype.Timestamptz
		p           project.Project
	)

	if err := row.Scan(
		&id,
		&p.OwnerID,
		&p.Name,
		&description,
		&sourceKind,
		&sourceURL,
		&p.CollectionName,
		&fileCount,
		&totalChunks,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	p.ID = PgtypeToUUID(id)
	p.Description = PgtextToStringPtr(description)
	p.SourceKind = project.SourceKind(sourceKind)
	p.SourceURL = PgtextToStringPtr(sourceURL)
	p.FileCount = int(fileCount)
	p.TotalChunks = int(totalChunks)
	p.CreatedAt = PgtypeToTime(createdAt)
	p.UpdatedAt = PgtypeToTime(updatedAt)
	return &p, nil
}
