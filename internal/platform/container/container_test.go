package container

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/codebase-rag/internal/core/apperr"
	"github.com/jinford/codebase-rag/internal/core/chat"
	"github.com/jinford/codebase-rag/internal/core/generation"
	"github.com/jinford/codebase-rag/internal/core/ingestion"
	"github.com/jinford/codebase-rag/internal/core/vectorindex/memory"
	"github.com/jinford/codebase-rag/internal/infra/gemini"
	"github.com/jinford/codebase-rag/internal/platform/config"
)

type lenCounter struct{}

func (lenCounter) CountTokens(text string) int { return len(text) }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir:     t.TempDir(),
		VectorStore: config.VectorStoreConfig{Kind: config.VectorStoreMemory},
		Embedding:   config.EmbeddingConfig{Provider: "openai"},
		Generation:  config.GenerationConfig{Provider: "gemini"},
		Ingestion: config.IngestionConfig{
			MaxFileSize:  ingestion.DefaultMaxFileSize,
			ChunkSize:    1500,
			ChunkOverlap: 200,
		},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewContainer_WithoutAPIKeys(t *testing.T) {
	ctx := context.Background()
	c, err := NewContainer(ctx, testConfig(t),
		WithContainerLogger(discardLogger()),
		WithContainerTokenCounter(lenCounter{}),
	)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	t.Run("チャットは固定の回答を返す", func(t *testing.T) {
		reply, err := c.Chat.Reply(ctx, []chat.Message{{Role: generation.RoleUser, Content: "hello"}})
		require.NoError(t, err)
		assert.Equal(t, chat.MissingKeyReply, reply)
	})

	t.Run("埋め込みはAPIキー未設定エラー", func(t *testing.T) {
		err := c.Store.Index("collection").AddDocuments(ctx,
			[]string{"func main() {}"},
			[]ingestion.ChunkMetadata{{FilePath: "main.go", FileName: "main.go", FileExtension: ".go", ChunkIndex: 0, TotalChunks: 1}},
			[]string{"main.go_0"},
		)
		require.Error(t, err)
		assert.ErrorIs(t, err, apperr.ErrMissingAPIKey)
	})

	t.Run("プロジェクト一覧は空", func(t *testing.T) {
		projects, err := c.Projects.List(ctx, "user-1")
		require.NoError(t, err)
		assert.Empty(t, projects)
	})
}

func TestNewContainer_UnknownVectorStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.VectorStore.Kind = "unknown"

	_, err := NewContainer(context.Background(), cfg,
		WithContainerLogger(discardLogger()),
		WithContainerTokenCounter(lenCounter{}),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown vector store kind")
}

func TestNewContainer_InjectedBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.VectorStore.Kind = "unknown"

	c, err := NewContainer(context.Background(), cfg,
		WithContainerLogger(discardLogger()),
		WithContainerTokenCounter(lenCounter{}),
		WithContainerBackend(memory.New()),
	)
	require.NoError(t, err)
	c.Close()
}

func TestNewGenerators(t *testing.T) {
	ctx := context.Background()

	t.Run("キーが無ければ両方nil", func(t *testing.T) {
		c := &ServiceContainer{Config: testConfig(t), logger: discardLogger()}
		primary, fallback := c.newGenerators(nil)
		assert.Nil(t, primary)
		assert.Nil(t, fallback)
		assert.Nil(t, c.chatGenerator(primary, fallback))
	})

	t.Run("OpenAIのみ", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Generation.OpenAIAPIKey = "sk-test"
		c := &ServiceContainer{Config: cfg, logger: discardLogger()}

		primary, fallback := c.newGenerators(nil)
		require.NotNil(t, primary)
		assert.Equal(t, "openai:gpt-4o-mini", primary.Name())
		assert.Same(t, primary, fallback)
		assert.Equal(t, primary, c.chatGenerator(primary, fallback))
	})

	t.Run("Geminiはエージェントと単発呼び出し", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Generation.GeminiAPIKey = "test-key"
		cfg.Generation.Model = "gemini-2.0-flash"
		c := &ServiceContainer{Config: cfg, logger: discardLogger()}

		client, err := gemini.NewClient(ctx, cfg.Generation.GeminiAPIKey)
		require.NoError(t, err)

		primary, fallback := c.newGenerators(client)
		require.NotNil(t, primary)
		require.NotNil(t, fallback)
		assert.Equal(t, "gemini-agent:gemini-2.0-flash", primary.Name())
		assert.Equal(t, "gemini-direct:gemini-2.0-flash", fallback.Name())
		assert.Equal(t, fallback, c.chatGenerator(primary, fallback))
	})

	t.Run("OpenAI優先時はGeminiを代替に使う", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Generation.Provider = "openai"
		cfg.Generation.Model = "gpt-4o"
		cfg.Generation.OpenAIAPIKey = "sk-test"
		cfg.Generation.GeminiAPIKey = "test-key"
		c := &ServiceContainer{Config: cfg, logger: discardLogger()}

		client, err := gemini.NewClient(ctx, cfg.Generation.GeminiAPIKey)
		require.NoError(t, err)

		primary, fallback := c.newGenerators(client)
		assert.Equal(t, "openai:gpt-4o", primary.Name())
		assert.Equal(t, "gemini-direct:"+gemini.DefaultModel, fallback.Name())
	})
}

func TestMissingKeyEmbedder(t *testing.T) {
	e := missingKeyEmbedder{}
	_, err := e.Embed(context.Background(), []string{"x"})
	assert.True(t, apperr.IsPrecondition(err))
	assert.ErrorIs(t, err, apperr.ErrMissingAPIKey)
	assert.Equal(t, "unconfigured", e.ModelName())
	assert.Equal(t, "text-embedding-3-small", missingKeyEmbedder{model: "text-embedding-3-small"}.ModelName())
}
