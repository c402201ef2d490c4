package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jinford/codebase-rag/internal/core/apperr"
	"github.com/jinford/codebase-rag/internal/core/ask"
	"github.com/jinford/codebase-rag/internal/core/chat"
	"github.com/jinford/codebase-rag/internal/core/project"
)

// ProjectService はハンドラが利用するプロジェクト操作
type ProjectService interface {
	CreateFromArchive(ctx context.Context, params project.CreateParams, filename, archivePath string) (*project.IngestSummary, error)
	CreateFromRepository(ctx context.Context, params project.CreateParams, repoURL string) (*project.IngestSummary, error)
	List(ctx context.Context, ownerID string) ([]*project.Project, error)
	Delete(ctx context.Context, ownerID string, id uuid.UUID) error
	Analyze(ctx context.Context, ownerID string, id uuid.UUID, question string, history []ask.HistoryEntry) (*ask.Result, error)
}

// ChatService はハンドラが利用するチャット操作
type ChatService interface {
	Reply(ctx context.Context, messages []chat.Message) (string, error)
}

// CodebaseHandler はコードベース関連のエンドポイント
type CodebaseHandler struct {
	projects ProjectService
	tempDir  string
	logger   *slog.Logger
}

// NewCodebaseHandler は新しい CodebaseHandler を作成する
// tempDir はアップロードされた ZIP の一時保存先（空の場合は OS の既定）
func NewCodebaseHandler(projects ProjectService, tempDir string, logger *slog.Logger) *CodebaseHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CodebaseHandler{projects: projects, tempDir: tempDir, logger: logger}
}

// ProjectResponse はプロジェクト一覧の 1 件
type ProjectResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	SourceType  string    `json:"source_type"`
	SourceURL   *string   `json:"source_url"`
	FileCount   int       `json:"file_count"`
	TotalChunks int       `json:"total_chunks"`
	CreatedAt   string    `json:"created_at"`
}

// AnalyzeRequest は質問応答のリクエスト
type AnalyzeRequest struct {
	ProjectID   string             `json:"project_id" binding:"required"`
	Question    string             `json:"question" binding:"required"`
	ChatHistory []ask.HistoryEntry `json:"chat_history"`
}

// AnalyzeResponse は質問応答のレスポンス
type AnalyzeResponse struct {
	Reply         string   `json:"reply"`
	RelevantFiles []string `json:"relevant_files"`
}

func (h *CodebaseHandler) createParams(c *gin.Context) project.CreateParams {
	return project.CreateParams{
		OwnerID:     UserID(c),
		Name:        strings.TrimSpace(c.PostForm("name")),
		Description: strings.TrimSpace(c.PostForm("description")),
	}
}

// Upload は ZIP アーカイブを受け取り取り込む
func (h *CodebaseHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		respondError(c, h.logger, apperr.Validation("File is required", err))
		return
	}
	if !strings.HasSuffix(strings.ToLower(file.Filename), ".zip") {
		respondError(c, h.logger, apperr.Validation("Only ZIP files are supported", nil))
		return
	}

	tmp, err := os.CreateTemp(h.tempDir, "upload-*.zip")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(tmpPath)

	if err := c.SaveUploadedFile(file, tmpPath); err != nil {
		respondError(c, h.logger, err)
		return
	}

	summary, err := h.projects.CreateFromArchive(c.Request.Context(), h.createParams(c), filepath.Base(file.Filename), tmpPath)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// CloneRepository は Git リポジトリを浅くクローンして取り込む
func (h *CodebaseHandler) CloneRepository(c *gin.Context) {
	repoURL := strings.TrimSpace(c.PostForm("repo_url"))
	if repoURL == "" {
		respondError(c, h.logger, apperr.Validation("repo_url is required", nil))
		return
	}

	summary, err := h.projects.CreateFromRepository(c.Request.Context(), h.createParams(c), repoURL)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// ListProjects は利用者のプロジェクトを新しい順に返す
func (h *CodebaseHandler) ListProjects(c *gin.Context) {
	projects, err := h.projects.List(c.Request.Context(), UserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	resp := make([]ProjectResponse, 0, len(projects))
	for _, p := range projects {
		resp = append(resp, ProjectResponse{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			SourceType:  string(p.SourceKind),
			SourceURL:   p.SourceURL,
			FileCount:   p.FileCount,
			TotalChunks: p.TotalChunks,
			CreatedAt:   p.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, resp)
}

// DeleteProject はプロジェクトとそのインデックスを削除する
func (h *CodebaseHandler) DeleteProject(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		// 形式の誤った ID は存在しないものとして扱う
		respondError(c, h.logger, apperr.ErrProjectNotFound)
		return
	}

	if err := h.projects.Delete(c.Request.Context(), UserID(c), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Project deleted successfully"})
}

// Analyze はプロジェクトのコードベースについての質問に回答する
func (h *CodebaseHandler) Analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, apperr.Validation("Invalid request body", err))
		return
	}

	id, err := uuid.Parse(req.ProjectID)
	if err != nil {
		respondError(c, h.logger, apperr.ErrProjectNotFound)
		return
	}

	result, err := h.projects.Analyze(c.Request.Context(), UserID(c), id, req.Question, req.ChatHistory)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	files := result.RelevantFiles
	if files == nil {
		files = []string{}
	}
	c.JSON(http.StatusOK, AnalyzeResponse{Reply: result.Reply, RelevantFiles: files})
}

// ChatHandler はモデル単体のチャットエンドポイント
type ChatHandler struct {
	chat   ChatService
	logger *slog.Logger
}

// NewChatHandler は新しい ChatHandler を作成する
func NewChatHandler(chat ChatService, logger *slog.Logger) *ChatHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatHandler{chat: chat, logger: logger}
}

// ChatRequest はチャットのリクエスト
type ChatRequest struct {
	Messages []chat.Message `json:"messages" binding:"required"`
}

// Chat は会話に対する応答を返す
func (h *ChatHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, apperr.Validation("Invalid request body", err))
		return
	}

	reply, err := h.chat.Reply(c.Request.Context(), req.Messages)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reply": reply})
}

// Health は死活監視用
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
