package container

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"google.golang.org/genai"

	"github.com/jinford/codebase-rag/internal/core/apperr"
	"github.com/jinford/codebase-rag/internal/core/ask"
	"github.com/jinford/codebase-rag/internal/core/chat"
	"github.com/jinford/codebase-rag/internal/core/generation"
	"github.com/jinford/codebase-rag/internal/core/ingestion"
	"github.com/jinford/codebase-rag/internal/core/ingestion/chunk"
	"github.com/jinford/codebase-rag/internal/core/project"
	"github.com/jinford/codebase-rag/internal/core/vectorindex"
	"github.com/jinford/codebase-rag/internal/core/vectorindex/memory"
	"github.com/jinford/codebase-rag/internal/infra/gemini"
	"github.com/jinford/codebase-rag/internal/infra/git"
	"github.com/jinford/codebase-rag/internal/infra/openai"
	"github.com/jinford/codebase-rag/internal/infra/postgres"
	"github.com/jinford/codebase-rag/internal/infra/qdrant"
	"github.com/jinford/codebase-rag/internal/infra/sqlite"
	"github.com/jinford/codebase-rag/internal/platform/config"
	"github.com/jinford/codebase-rag/internal/platform/database"
)

// ServiceContainer はアプリケーションの依存関係を保持する
// ベクトルストアはプロセス全体で 1 つを共有する
type ServiceContainer struct {
	Config   *config.Config
	Projects *project.Service
	Chat     *chat.Service
	Store    *vectorindex.Store

	logger  *slog.Logger
	closers []func() error
}

type containerOptions struct {
	logger    *slog.Logger
	backend   vectorindex.Backend
	embedder  vectorindex.Embedder
	repo      project.Repository
	primary   generation.Generator
	fallback  generation.Generator
	overrides bool
	counter   ask.TokenCounter
}

// ContainerOption は ServiceContainer 構築時のオプション
type ContainerOption func(*containerOptions)

// WithContainerLogger はロガーを差し替える
func WithContainerLogger(logger *slog.Logger) ContainerOption {
	return func(opts *containerOptions) {
		opts.logger = logger
	}
}

// WithContainerBackend はベクトルストアを差し替える
func WithContainerBackend(backend vectorindex.Backend) ContainerOption {
	return func(opts *containerOptions) {
		opts.backend = backend
	}
}

// WithContainerEmbedder はカスタム Embedder を注入する
func WithContainerEmbedder(embedder vectorindex.Embedder) ContainerOption {
	return func(opts *containerOptions) {
		opts.embedder = embedder
	}
}

// WithContainerRepository はプロジェクトリポジトリを差し替える
func WithContainerRepository(repo project.Repository) ContainerOption {
	return func(opts *containerOptions) {
		opts.repo = repo
	}
}

// WithContainerGenerators は生成モデルを差し替える（nil は未設定扱い）
func WithContainerGenerators(primary, fallback generation.Generator) ContainerOption {
	return func(opts *containerOptions) {
		opts.primary = primary
		opts.fallback = fallback
		opts.overrides = true
	}
}

// WithContainerTokenCounter はトークンカウンタを差し替える
func WithContainerTokenCounter(counter ask.TokenCounter) ContainerOption {
	return func(opts *containerOptions) {
		opts.counter = counter
	}
}

// NewContainer は設定からコンテナを生成する
func NewContainer(ctx context.Context, cfg *config.Config, opts ...ContainerOption) (*ServiceContainer, error) {
	options := containerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	logger := options.logger

	c := &ServiceContainer{Config: cfg, logger: logger}

	repo := options.repo
	if repo == nil {
		r, err := c.openProjectRepository(ctx)
		if err != nil {
			c.Close()
			return nil, err
		}
		repo = r
	}

	backend := options.backend
	if backend == nil {
		b, err := c.openBackend(ctx)
		if err != nil {
			c.Close()
			return nil, err
		}
		backend = b
	}

	geminiClient := c.newGeminiClient(ctx)

	embedder := options.embedder
	if embedder == nil {
		embedder = c.newEmbedder(geminiClient)
	}

	c.Store = vectorindex.NewStore(backend, embedder, vectorindex.WithStoreLogger(logger))
	c.closers = append(c.closers, c.Store.Close)

	primary, fallback := options.primary, options.fallback
	if !options.overrides {
		primary, fallback = c.newGenerators(geminiClient)
	}

	splitter, err := chunk.NewSplitter(
		chunk.WithChunkSize(cfg.Ingestion.ChunkSize),
		chunk.WithChunkOverlap(cfg.Ingestion.ChunkOverlap),
	)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("チャンク分割器の初期化に失敗しました: %w", err)
	}

	gitOpts := []git.ClientOption{git.WithClientLogger(logger)}
	if cfg.Git.SSHKeyPath != "" {
		gitOpts = append(gitOpts, git.WithSSHKey(cfg.Git.SSHKeyPath, cfg.Git.SSHPassword))
	}

	gitClient := git.NewClient(gitOpts...)
	ingester := ingestion.NewIngester(splitter,
		ingestion.WithIngesterLogger(logger),
		ingestion.WithFilter(ingestion.NewFilter(ingestion.WithMaxFileSize(cfg.Ingestion.MaxFileSize))),
		ingestion.WithLoader(ingestion.NewLoader(ingestion.WithLoaderLogger(logger))),
		ingestion.WithCloner(gitClient),
		ingestion.WithTempDir(cfg.Ingestion.TempDir),
		ingestion.WithRespectGitignore(cfg.Ingestion.RespectGitignore),
	)

	projectOpts := []project.ServiceOption{
		project.WithProjectLogger(logger),
		project.WithGenerators(primary, fallback),
		project.WithRepositoryNamer(gitClient.URLToDirectoryName),
	}
	if options.counter != nil {
		projectOpts = append(projectOpts, project.WithProjectTokenCounter(options.counter))
	} else if counter, err := ask.NewTiktokenCounter(); err != nil {
		logger.Warn("トークンカウンタを初期化できないためトークン数の計測を省略します", "error", err)
	} else {
		projectOpts = append(projectOpts, project.WithProjectTokenCounter(counter))
	}

	c.Projects = project.NewService(repo, ingester, c.Store, projectOpts...)
	c.Chat = chat.NewService(c.chatGenerator(primary, fallback), chat.WithChatLogger(logger))

	return c, nil
}

func (c *ServiceContainer) openProjectRepository(ctx context.Context) (project.Repository, error) {
	if c.Config.Database.URL != "" {
		pool, err := database.Connect(ctx, c.Config.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("データベース初期化に失敗しました: %w", err)
		}
		c.closers = append(c.closers, func() error {
			pool.Close()
			return nil
		})
		if err := postgres.EnsureProjectSchema(ctx, pool); err != nil {
			return nil, err
		}
		c.logger.Info("プロジェクト情報を PostgreSQL に保存します")
		return postgres.NewProjectRepository(pool), nil
	}

	path := filepath.Join(c.Config.DataDir, "projects.db")
	db, err := sqlite.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("データベース初期化に失敗しました: %w", err)
	}
	c.closers = append(c.closers, db.Close)
	c.logger.Info("プロジェクト情報を SQLite に保存します", "path", path)
	return sqlite.NewProjectRepository(db), nil
}

func (c *ServiceContainer) openBackend(ctx context.Context) (vectorindex.Backend, error) {
	vs := c.Config.VectorStore
	c.logger.Info("ベクトルストアを初期化します", "kind", vs.Kind)

	switch vs.Kind {
	case config.VectorStoreCloud:
		return qdrant.New(qdrant.Config{
			URL:     vs.CloudURL,
			APIKey:  vs.CloudAPIKey,
			Timeout: vs.Timeout,
		}, qdrant.WithLogger(c.logger)), nil

	case config.VectorStoreServer:
		pool, err := database.Connect(ctx, vs.DSN)
		if err != nil {
			return nil, fmt.Errorf("ベクトルストアへの接続に失敗しました: %w", err)
		}
		store, err := postgres.NewVectorStore(ctx, pool, postgres.WithOwnedPool(), postgres.WithVectorStoreLogger(c.logger))
		if err != nil {
			pool.Close()
			return nil, err
		}
		return store, nil

	case config.VectorStoreMemory:
		return memory.New(), nil

	case config.VectorStoreLocal:
		db, err := sqlite.Open(ctx, vs.LocalPath)
		if err != nil {
			return nil, fmt.Errorf("ベクトルストアの初期化に失敗しました: %w", err)
		}
		return sqlite.NewVectorStore(db, true), nil

	default:
		return nil, fmt.Errorf("unknown vector store kind: %q", vs.Kind)
	}
}

// newGeminiClient は GEMINI_API_KEY が設定されている場合のみクライアントを返す
func (c *ServiceContainer) newGeminiClient(ctx context.Context) *genai.Client {
	if c.Config.Generation.GeminiAPIKey == "" {
		return nil
	}
	client, err := gemini.NewClient(ctx, c.Config.Generation.GeminiAPIKey)
	if err != nil {
		c.logger.Warn("Gemini クライアントを初期化できませんでした", "error", err)
		return nil
	}
	return client
}

func (c *ServiceContainer) newEmbedder(gc *genai.Client) vectorindex.Embedder {
	ec := c.Config.Embedding
	switch ec.Provider {
	case "gemini":
		if gc == nil {
			c.logger.Warn("GEMINI_API_KEY が未設定のため Embedding を利用できません")
			return missingKeyEmbedder{model: ec.Model}
		}
		return gemini.NewEmbedder(gc,
			gemini.WithEmbeddingModel(ec.Model),
			gemini.WithEmbeddingDimension(ec.Dimension),
		)
	default:
		if c.Config.Generation.OpenAIAPIKey == "" {
			c.logger.Warn("OPENAI_API_KEY が未設定のため Embedding を利用できません")
			return missingKeyEmbedder{model: ec.Model}
		}
		return openai.NewEmbedder(c.Config.Generation.OpenAIAPIKey,
			openai.WithEmbeddingModel(ec.Model),
			openai.WithEmbeddingDimension(ec.Dimension),
		)
	}
}

// newGenerators は一次経路と代替経路の生成モデルを構成する
// 未設定の経路は型付き nil ではなく nil インターフェースで返す
func (c *ServiceContainer) newGenerators(gc *genai.Client) (generation.Generator, generation.Generator) {
	gen := c.Config.Generation

	var openaiGen generation.Generator
	if gen.OpenAIAPIKey != "" {
		g, err := openai.NewGenerator(gen.OpenAIAPIKey,
			openai.WithGeneratorLogger(c.logger),
			openai.WithTimeout(gen.Timeout),
			openai.WithModel(modelFor(gen, "openai")),
		)
		if err != nil {
			c.logger.Warn("OpenAI の生成モデルを初期化できませんでした", "error", err)
		} else {
			openaiGen = g
		}
	}

	var agent, direct generation.Generator
	if gc != nil {
		geminiOpts := []gemini.GeneratorOption{
			gemini.WithGeneratorLogger(c.logger),
			gemini.WithTimeout(gen.Timeout),
			gemini.WithModel(modelFor(gen, "gemini")),
		}
		agent = gemini.NewAgent(gc, geminiOpts...)
		direct = gemini.NewDirect(gc, geminiOpts...)
	}

	// OpenAI しか無い場合は同じ生成モデルへの単発呼び出しを代替経路とする
	switch {
	case gen.Provider == "openai" && openaiGen != nil:
		if direct == nil {
			return openaiGen, openaiGen
		}
		return openaiGen, direct
	case agent != nil:
		return agent, direct
	case openaiGen != nil:
		return openaiGen, openaiGen
	default:
		return direct, nil
	}
}

// chatGenerator はモデル単体のチャットに使う生成モデルを選ぶ
// 履歴をそのまま渡せる単発呼び出しの経路を優先する
func (c *ServiceContainer) chatGenerator(primary, fallback generation.Generator) generation.Generator {
	if fallback != nil {
		return fallback
	}
	return primary
}

func modelFor(gen config.GenerationConfig, provider string) string {
	if gen.Provider == provider {
		return gen.Model
	}
	return ""
}

// Close は内部リソースを解放する
func (c *ServiceContainer) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			c.logger.Warn("リソースの解放に失敗しました", "error", err)
		}
	}
	c.closers = nil
}

// Logger はコンテナのロガーを返す
func (c *ServiceContainer) Logger() *slog.Logger {
	if c == nil || c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

// missingKeyEmbedder は API キー未設定時に使う Embedder
// 呼び出されると PreconditionError を返す
type missingKeyEmbedder struct {
	model string
}

func (e missingKeyEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, apperr.Precondition("embedding API key is not configured", apperr.ErrMissingAPIKey)
}

func (e missingKeyEmbedder) ModelName() string {
	if e.model == "" {
		return "unconfigured"
	}
	return e.model
}

func (e missingKeyEmbedder) MaxBatchSize() int { return 1 }

var _ vectorindex.Embedder = missingKeyEmbedder{}
