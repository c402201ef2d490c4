package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jinford/codebase-rag/internal/platform/database"
)

const projectSchema = `
CREATE TABLE IF NOT EXISTS codebase_projects (
    id              UUID PRIMARY KEY,
    owner_id        TEXT NOT NULL,
    name            TEXT NOT NULL,
    description     TEXT,
    source_kind     TEXT NOT NULL,
    source_url      TEXT,
    collection_name TEXT NOT NULL UNIQUE,
    file_count      INTEGER NOT NULL DEFAULT 0,
    total_chunks    INTEGER NOT NULL DEFAULT 0,
    created_at      TIMESTAMPTZ NOT NULL,
    updated_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_codebase_projects_owner ON codebase_projects (owner_id, created_at DESC);
`

const vectorSchema = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS vector_collections (
    name            TEXT PRIMARY KEY,
    embedding_model TEXT NOT NULL,
    dimension       INTEGER NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS vector_records (
    collection TEXT NOT NULL REFERENCES vector_collections (name) ON DELETE CASCADE,
    id         TEXT NOT NULL,
    document   TEXT NOT NULL,
    metadata   JSONB NOT NULL,
    embedding  vector NOT NULL,
    PRIMARY KEY (collection, id)
);
`

// EnsureProjectSchema はプロジェクトテーブルを作成する
func EnsureProjectSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if err := ensureSchema(ctx, pool, "project", projectSchema); err != nil {
		return fmt.Errorf("failed to create project schema: %w", err)
	}
	return nil
}

// EnsureVectorSchema は pgvector 拡張とベクトルテーブルを作成する
func EnsureVectorSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if err := ensureSchema(ctx, pool, "vector", vectorSchema); err != nil {
		return fmt.Errorf("failed to create vector schema: %w", err)
	}
	return nil
}

// ensureSchema は DDL をアドバイザリロック下で実行する
// 複数プロセスが同時に起動しても CREATE ... IF NOT EXISTS が競合しない
func ensureSchema(ctx context.Context, pool *pgxpool.Pool, name, ddl string) error {
	_, err := database.Transact(ctx, pool, func(tx pgx.Tx) (struct{}, error) {
		if err := database.AcquireXactLock(ctx, tx, database.LockID("codebase-rag", "schema", name)); err != nil {
			return struct{}{}, err
		}
		_, err := tx.Exec(ctx, ddl)
		return struct{}{}, err
	})
	return err
}
