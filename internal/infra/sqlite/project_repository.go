package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/jinford/codebase-rag/internal/core/apperr"
	"github.com/jinford/codebase-rag/internal/core/project"
)

// ProjectRepository は project.Repository の SQLite 実装
type ProjectRepository struct {
	db *sql.DB
}

// NewProjectRepository は新しい ProjectRepository を作成する
func NewProjectRepository(db *sql.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

var _ project.Repository = (*ProjectRepository)(nil)

const projectColumns = `id, owner_id, name, description, source_kind, source_url, collection_name, file_count, total_chunks, created_at, updated_at`

func (r *ProjectRepository) Create(ctx context.Context, p *project.Project) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO codebase_projects (`+projectColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID.String(),
		p.OwnerID,
		p.Name,
		nullString(p.Description),
		string(p.SourceKind),
		nullString(p.SourceURL),
		p.CollectionName,
		p.FileCount,
		p.TotalChunks,
		p.CreatedAt.UnixNano(),
		p.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

func (r *ProjectRepository) FindByID(ctx context.Context, ownerID string, id uuid.UUID) (mo.Option[*project.Project], error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+projectColumns+`
FROM codebase_projects
WHERE id = ? AND owner_id = ?`, id.String(), ownerID)

	p, err := scanProject(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return mo.None[*project.Project](), nil
		}
		return mo.None[*project.Project](), fmt.Errorf("failed to get project: %w", err)
	}
	return mo.Some(p), nil
}

func (r *ProjectRepository) ListByOwner(ctx context.Context, ownerID string) ([]*project.Project, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+projectColumns+`
FROM codebase_projects
WHERE owner_id = ?
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
	res, err := r.db.ExecContext(ctx, `DELETE FROM codebase_projects WHERE id = ? AND owner_id = ?`, id.String(), ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return apperr.ErrProjectNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*project.Project, error) {
	var (
		id          string
		description sql.NullString
		sourceURL   sql.NullString
		sourceKind  string
		createdAt   int64
		updatedAt   int64
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
		&p.FileCount,
		&p.TotalChunks,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid project id %q: %w", id, err)
	}

	p.ID = parsed
	p.Description = stringPtr(description)
	p.SourceKind = project.SourceKind(sourceKind)
	p.SourceURL = stringPtr(sourceURL)
	p.CreatedAt = time.Unix(0, createdAt).UTC()
	p.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &p, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}
