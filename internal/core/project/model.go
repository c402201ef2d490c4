package project

import (
	"time"

	"github.com/google/uuid"
)

// SourceKind はプロジェクトの取り込み元
type SourceKind string

const (
	SourceUpload      SourceKind = "upload"
	SourceGitHubClone SourceKind = "github-clone"
)

// Project は取り込み済みのコードベース 1 件
// CollectionName は作成後に変更されず、対応するベクトルストアのコレクションと 1 対 1 で結び付く
type Project struct {
	ID             uuid.UUID
	OwnerID        string
	Name           string
	Description    *string
	SourceKind     SourceKind
	SourceURL      *string
	CollectionName string
	FileCount      int
	TotalChunks    int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CreateParams はプロジェクト作成のパラメータ
type CreateParams struct {
	OwnerID     string
	Name        string
	Description string
}

// IngestSummary は取り込み完了時の結果
type IngestSummary struct {
	ProjectID   uuid.UUID `json:"project_id"`
	Name        string    `json:"name"`
	FileCount   int       `json:"file_count"`
	TotalChunks int       `json:"total_chunks"`
	Message     string    `json:"message"`
}
