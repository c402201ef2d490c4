package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// ログ設定
	Log LogConfig

	// HTTPサーバ設定
	Server ServerConfig

	// プロジェクト管理DB設定
	Database DatabaseConfig

	// ベクトルストア設定
	VectorStore VectorStoreConfig

	// Embedding設定
	Embedding EmbeddingConfig

	// 回答生成用LLM設定
	Generation GenerationConfig

	// 取り込み設定
	Ingestion IngestionConfig

	// Git クローン設定
	Git GitConfig

	// ローカルデータ格納ディレクトリ
	DataDir string
}

// LogConfig はロガー設定
type LogConfig struct {
	Level  string // "debug" / "info" / "warn" / "error"
	Format string // "json" or "text"
}

// ServerConfig はHTTPサーバ設定
type ServerConfig struct {
	Port        int
	JWTSecret   string
	CORSOrigins []string
}

// ErrMissingJWTSecret は JWT_SECRET_KEY が未設定の場合のエラー
var ErrMissingJWTSecret = errors.New("JWT_SECRET_KEY is not set")

// RequireJWTSecret はトークンの署名・検証に使う秘密鍵を返す。
// 未設定の場合は ErrMissingJWTSecret を返す。
func (c ServerConfig) RequireJWTSecret() (string, error) {
	if c.JWTSecret == "" {
		return "", ErrMissingJWTSecret
	}
	return c.JWTSecret, nil
}

// DatabaseConfig はプロジェクト情報を保存するDBの設定
// URL が空の場合は DataDir 配下の SQLite を使用する
type DatabaseConfig struct {
	URL string
}

// VectorStoreKind はベクトルストアの種別
type VectorStoreKind string

const (
	VectorStoreLocal  VectorStoreKind = "local"
	VectorStoreServer VectorStoreKind = "server"
	VectorStoreCloud  VectorStoreKind = "cloud"
	VectorStoreMemory VectorStoreKind = "memory"
)

// VectorStoreConfig はベクトルストア設定
type VectorStoreConfig struct {
	Kind        VectorStoreKind
	LocalPath   string // local: SQLite ファイルパス
	DSN         string // server: PostgreSQL + pgvector の接続文字列
	CloudURL    string // cloud: Qdrant のエンドポイント
	CloudAPIKey string // cloud: Qdrant の API キー
	Timeout     time.Duration
}

// EmbeddingConfig はEmbeddingモデル設定
type EmbeddingConfig struct {
	Provider  string // "openai" or "gemini"
	Model     string
	Dimension int
}

// GenerationConfig は回答生成モデル設定
type GenerationConfig struct {
	Provider     string // "gemini" or "openai"
	Model        string
	GeminiAPIKey string
	OpenAIAPIKey string
	Timeout      time.Duration
}

// IngestionConfig はコードベース取り込み設定
type IngestionConfig struct {
	MaxFileSize      int64
	ChunkSize        int
	ChunkOverlap     int
	RespectGitignore bool
	TempDir          string
}

// GitConfig はリポジトリのクローン設定
type GitConfig struct {
	SSHKeyPath  string
	SSHPassword string
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	dataDir := getEnv("DATA_DIR", "data")

	cfg := &Config{
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Server: ServerConfig{
			Port:      getEnvAsInt("PORT", 8000),
			JWTSecret: strings.TrimSpace(getEnv("JWT_SECRET_KEY", "")),
			CORSOrigins: getEnvAsList("CORS_ORIGINS", []string{
				"http://localhost:5173",
				"http://127.0.0.1:5173",
				"http://localhost:3000",
				"http://127.0.0.1:3000",
			}),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		VectorStore: VectorStoreConfig{
			Kind:        VectorStoreKind(getEnv("VECTOR_STORE_KIND", "")),
			LocalPath:   getEnv("VECTOR_STORE_PATH", filepath.Join(dataDir, "vectors.db")),
			DSN:         getEnv("VECTOR_STORE_DSN", ""),
			CloudURL:    getEnv("VECTOR_STORE_CLOUD_URL", ""),
			CloudAPIKey: getEnv("VECTOR_STORE_CLOUD_API_KEY", ""),
			Timeout:     getEnvAsDuration("VECTOR_STORE_TIMEOUT", 30*time.Second),
		},
		Embedding: EmbeddingConfig{
			Provider:  getEnv("EMBEDDING_PROVIDER", "openai"),
			Model:     getEnv("EMBEDDING_MODEL", ""),
			Dimension: getEnvAsInt("EMBEDDING_DIMENSION", 0),
		},
		Generation: GenerationConfig{
			Provider:     getEnv("GENERATION_PROVIDER", "gemini"),
			Model:        getEnv("GENERATION_MODEL", ""),
			GeminiAPIKey: strings.TrimSpace(getEnv("GEMINI_API_KEY", "")),
			OpenAIAPIKey: strings.TrimSpace(getEnv("OPENAI_API_KEY", "")),
			Timeout:      getEnvAsDuration("GENERATION_TIMEOUT", 120*time.Second),
		},
		Ingestion: IngestionConfig{
			MaxFileSize:      int64(getEnvAsInt("INGEST_MAX_FILE_SIZE", 1_000_000)),
			ChunkSize:        getEnvAsInt("INGEST_CHUNK_SIZE", 1500),
			ChunkOverlap:     getEnvAsInt("INGEST_CHUNK_OVERLAP", 200),
			RespectGitignore: getEnvAsBool("INGEST_RESPECT_GITIGNORE", false),
			TempDir:          getEnv("INGEST_TEMP_DIR", ""),
		},
		Git: GitConfig{
			SSHKeyPath:  getEnv("GIT_SSH_KEY_PATH", ""),
			SSHPassword: getEnv("GIT_SSH_PASSWORD", ""),
		},
		DataDir: dataDir,
	}

	cfg.VectorStore.Kind = cfg.VectorStore.resolveKind()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// resolveKind は明示指定が無い場合に設定値の有無からベクトルストア種別を決定する
// 優先順位: cloud（URL + APIキー） > server（DSN） > local
func (c VectorStoreConfig) resolveKind() VectorStoreKind {
	if c.Kind != "" {
		return c.Kind
	}
	if c.CloudURL != "" && c.CloudAPIKey != "" {
		return VectorStoreCloud
	}
	if c.DSN != "" {
		return VectorStoreServer
	}
	return VectorStoreLocal
}

func (c *Config) validate() error {
	switch c.VectorStore.Kind {
	case VectorStoreLocal, VectorStoreMemory:
	case VectorStoreServer:
		if c.VectorStore.DSN == "" {
			return fmt.Errorf("VECTOR_STORE_DSN is required for vector store kind %q", c.VectorStore.Kind)
		}
	case VectorStoreCloud:
		if c.VectorStore.CloudURL == "" {
			return fmt.Errorf("VECTOR_STORE_CLOUD_URL is required for vector store kind %q", c.VectorStore.Kind)
		}
	default:
		return fmt.Errorf("unknown vector store kind: %q", c.VectorStore.Kind)
	}

	if c.Ingestion.ChunkSize <= 0 {
		return fmt.Errorf("INGEST_CHUNK_SIZE must be positive: %d", c.Ingestion.ChunkSize)
	}
	if c.Ingestion.ChunkOverlap < 0 || c.Ingestion.ChunkOverlap >= c.Ingestion.ChunkSize {
		return fmt.Errorf("INGEST_CHUNK_OVERLAP must be in [0, %d): %d", c.Ingestion.ChunkSize, c.Ingestion.ChunkOverlap)
	}
	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool は環境変数を真偽値として取得します
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration は環境変数を time.Duration として取得します
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList はカンマ区切りの環境変数をスライスとして取得します
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}
