package project

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jinford/codebase-rag/internal/core/apperr"
	"github.com/jinford/codebase-rag/internal/core/ask"
	"github.com/jinford/codebase-rag/internal/core/generation"
	"github.com/jinford/codebase-rag/internal/core/ingestion"
	"github.com/jinford/codebase-rag/internal/core/retrieval"
	"github.com/jinford/codebase-rag/internal/core/vectorindex"
)

// Ingester はアーカイブ・リポジトリからチャンクを生成する
type Ingester interface {
	IngestArchive(ctx context.Context, archivePath string) (*ingestion.Result, error)
	IngestRepository(ctx context.Context, repoURL string) (*ingestion.Result, error)
}

// Service はプロジェクトの作成・一覧・削除・質問応答を提供する
type Service struct {
	repo     Repository
	ingester Ingester
	store    *vectorindex.Store
	primary  generation.Generator
	fallback generation.Generator
	tokens   ask.TokenCounter
	now      func() time.Time
	newID    func() uuid.UUID
	namer    RepositoryNamer
	logger   *slog.Logger
}

// RepositoryNamer はリポジトリ URL から既定のプロジェクト名を導出する
type RepositoryNamer func(repoURL string) (string, error)

// ServiceOption は Service のオプション
type ServiceOption func(*Service)

// WithProjectLogger はロガーを設定する
func WithProjectLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithGenerators は質問応答に使う主経路と予備経路の生成モデルを設定する
func WithGenerators(primary, fallback generation.Generator) ServiceOption {
	return func(s *Service) {
		s.primary = primary
		s.fallback = fallback
	}
}

// WithProjectTokenCounter はプロンプトのトークン計測を設定する
func WithProjectTokenCounter(counter ask.TokenCounter) ServiceOption {
	return func(s *Service) {
		s.tokens = counter
	}
}

// WithClock は現在時刻の取得方法を差し替える
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// WithIDGenerator はプロジェクト ID の生成方法を差し替える
func WithIDGenerator(newID func() uuid.UUID) ServiceOption {
	return func(s *Service) {
		s.newID = newID
	}
}

// WithRepositoryNamer はプロジェクト名が省略されたときの命名方法を設定する
func WithRepositoryNamer(namer RepositoryNamer) ServiceOption {
	return func(s *Service) {
		s.namer = namer
	}
}

// NewService は新しい Service を作成する
func NewService(repo Repository, ingester Ingester, store *vectorindex.Store, opts ...ServiceOption) *Service {
	s := &Service{
		repo:     repo,
		ingester: ingester,
		store:    store,
		now:      time.Now,
		newID:    uuid.New,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// CreateFromArchive は ZIP アーカイブからプロジェクトを作成する
func (s *Service) CreateFromArchive(ctx context.Context, params CreateParams, filename, archivePath string) (*IngestSummary, error) {
	if !strings.HasSuffix(strings.ToLower(filename), ".zip") {
		return nil, apperr.Validation("Only ZIP files are supported", nil)
	}
	if err := validateParams(params); err != nil {
		return nil, err
	}

	s.logger.Info("アーカイブの取り込みを開始します", "owner", params.OwnerID, "name", params.Name, "filename", filename)

	result, err := s.ingester.IngestArchive(ctx, archivePath)
	if err != nil {
		return nil, err
	}
	if result.IsEmpty() {
		return nil, apperr.Validation("No processable code files found in the ZIP", apperr.ErrNoProcessableFiles)
	}

	p, err := s.persist(ctx, params, SourceUpload, nil, result)
	if err != nil {
		return nil, err
	}

	return &IngestSummary{
		ProjectID:   p.ID,
		Name:        p.Name,
		FileCount:   p.FileCount,
		TotalChunks: p.TotalChunks,
		Message:     fmt.Sprintf("Successfully processed %d files into %d chunks", p.FileCount, p.TotalChunks),
	}, nil
}

// CreateFromRepository はリポジトリを浅くクローンしてプロジェクトを作成する
func (s *Service) CreateFromRepository(ctx context.Context, params CreateParams, repoURL string) (*IngestSummary, error) {
	repoURL = strings.TrimSpace(repoURL)
	if repoURL == "" {
		return nil, apperr.Validation("Repository URL is required", nil)
	}
	if strings.TrimSpace(params.Name) == "" && s.namer != nil {
		name, err := s.namer(repoURL)
		if err != nil {
			return nil, apperr.Validation(fmt.Sprintf("Failed to derive project name from %q", repoURL), err)
		}
		params.Name = name
	}
	if err := validateParams(params); err != nil {
		return nil, err
	}

	s.logger.Info("リポジトリの取り込みを開始します", "owner", params.OwnerID, "name", params.Name, "repoURL", repoURL)

	result, err := s.ingester.IngestRepository(ctx, repoURL)
	if err != nil {
		return nil, err
	}
	if result.IsEmpty() {
		return nil, apperr.Validation("No processable code files found in the repository", apperr.ErrNoProcessableFiles)
	}

	p, err := s.persist(ctx, params, SourceGitHubClone, &repoURL, result)
	if err != nil {
		return nil, err
	}

	return &IngestSummary{
		ProjectID:   p.ID,
		Name:        p.Name,
		FileCount:   p.FileCount,
		TotalChunks: p.TotalChunks,
		Message:     fmt.Sprintf("Successfully cloned and processed %d files into %d chunks", p.FileCount, p.TotalChunks),
	}, nil
}

// persist はインデックスを書き込み、プロジェクトを保存する。
// 途中で失敗した場合はこの呼び出しで作成したコレクションだけを削除する。
func (s *Service) persist(ctx context.Context, params CreateParams, kind SourceKind, sourceURL *string, result *ingestion.Result) (*Project, error) {
	now := s.now()
	id := s.newID()
	collection := vectorindex.CollectionName(params.OwnerID, params.Name, now, id.String())
	ix := s.store.Index(collection)

	exists, err := ix.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		// 既存のコレクションは他のプロジェクトのものなので削除しない
		return nil, apperr.Precondition(fmt.Sprintf("collection %s already exists", collection), nil)
	}

	if err := ix.AddResult(ctx, result); err != nil {
		ix.DeleteCollection(ctx)
		return nil, fmt.Errorf("failed to index codebase: %w", err)
	}

	p := &Project{
		ID:             id,
		OwnerID:        params.OwnerID,
		Name:           params.Name,
		SourceKind:     kind,
		SourceURL:      sourceURL,
		CollectionName: collection,
		FileCount:      len(result.DistinctFiles()),
		TotalChunks:    result.Len(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if params.Description != "" {
		desc := params.Description
		p.Description = &desc
	}

	if err := s.repo.Create(ctx, p); err != nil {
		ix.DeleteCollection(ctx)
		return nil, fmt.Errorf("failed to save project: %w", err)
	}

	s.logger.Info("プロジェクトを作成しました",
		"projectID", p.ID,
		"collection", collection,
		"files", p.FileCount,
		"chunks", p.TotalChunks,
	)
	return p, nil
}

// List は所有者のプロジェクトを作成日時の新しい順に返す
func (s *Service) List(ctx context.Context, ownerID string) ([]*Project, error) {
	projects, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, nil
}

// Get はプロジェクトを取得する。存在しない場合は apperr.ErrProjectNotFound を返す。
func (s *Service) Get(ctx context.Context, ownerID string, id uuid.UUID) (*Project, error) {
	found, err := s.repo.FindByID(ctx, ownerID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	p, ok := found.Get()
	if !ok {
		return nil, apperr.ErrProjectNotFound
	}
	return p, nil
}

// Delete はコレクションを削除してからプロジェクトを削除する
func (s *Service) Delete(ctx context.Context, ownerID string, id uuid.UUID) error {
	p, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}

	s.store.Index(p.CollectionName).DeleteCollection(ctx)

	if err := s.repo.Delete(ctx, ownerID, id); err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}

	s.logger.Info("プロジェクトを削除しました", "projectID", id, "collection", p.CollectionName)
	return nil
}

// Analyze はプロジェクトのインデックスを使って質問に回答する
func (s *Service) Analyze(ctx context.Context, ownerID string, id uuid.UUID, question string, history []ask.HistoryEntry) (*ask.Result, error) {
	if strings.TrimSpace(question) == "" {
		return nil, apperr.Validation("Question is required", nil)
	}

	p, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	ix := s.store.Index(p.CollectionName)
	opts := []ask.ComposerOption{
		ask.WithComposerLogger(s.logger),
		ask.WithFallback(s.fallback),
	}
	if s.tokens != nil {
		opts = append(opts, ask.WithTokenCounter(s.tokens))
	}

	composer, err := ask.NewComposer(retrieval.NewRetriever(ix, retrieval.WithRetrieverLogger(s.logger)), s.primary, opts...)
	if err != nil {
		return nil, err
	}

	return composer.Analyze(ctx, question, history)
}

func validateParams(params CreateParams) error {
	if strings.TrimSpace(params.OwnerID) == "" {
		return apperr.Validation("Owner is required", nil)
	}
	if strings.TrimSpace(params.Name) == "" {
		return apperr.Validation("Project name is required", nil)
	}
	return nil
}
