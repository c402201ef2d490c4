package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATA_DIR", "/tmp/codebase-rag")
	t.Setenv("VECTOR_STORE_KIND", "")
	t.Setenv("VECTOR_STORE_DSN", "")
	t.Setenv("VECTOR_STORE_CLOUD_URL", "")
	t.Setenv("VECTOR_STORE_CLOUD_API_KEY", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, VectorStoreLocal, cfg.VectorStore.Kind)
	assert.Equal(t, filepath.Join("/tmp/codebase-rag", "vectors.db"), cfg.VectorStore.LocalPath)
	assert.Equal(t, int64(1_000_000), cfg.Ingestion.MaxFileSize)
	assert.Equal(t, 1500, cfg.Ingestion.ChunkSize)
	assert.Equal(t, 200, cfg.Ingestion.ChunkOverlap)
	assert.Equal(t, 120*time.Second, cfg.Generation.Timeout)
	assert.Len(t, cfg.Server.CORSOrigins, 4)
}

func TestLoad_VectorStoreKindSelection(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		expected VectorStoreKind
	}{
		{
			name: "URLとAPIキーがあればcloud",
			env: map[string]string{
				"VECTOR_STORE_CLOUD_URL":     "https://xyz.cloud.qdrant.io",
				"VECTOR_STORE_CLOUD_API_KEY": "secret",
				"VECTOR_STORE_DSN":           "postgres://localhost/vectors",
			},
			expected: VectorStoreCloud,
		},
		{
			name: "APIキーが無ければDSNのserverを優先",
			env: map[string]string{
				"VECTOR_STORE_CLOUD_URL": "https://xyz.cloud.qdrant.io",
				"VECTOR_STORE_DSN":       "postgres://localhost/vectors",
			},
			expected: VectorStoreServer,
		},
		{
			name:     "何も無ければlocal",
			env:      map[string]string{},
			expected: VectorStoreLocal,
		},
		{
			name: "明示指定が優先される",
			env: map[string]string{
				"VECTOR_STORE_KIND": "memory",
				"VECTOR_STORE_DSN":  "postgres://localhost/vectors",
			},
			expected: VectorStoreMemory,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"VECTOR_STORE_KIND", "VECTOR_STORE_DSN", "VECTOR_STORE_CLOUD_URL", "VECTOR_STORE_CLOUD_API_KEY"} {
				t.Setenv(key, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load("")
			require.NoError(t, err)
			assert.Equal(t, tt.expected, cfg.VectorStore.Kind)
		})
	}
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("INGEST_CHUNK_SIZE=800\nINGEST_CHUNK_OVERLAP=100\n"), 0o644))
	t.Cleanup(func() {
		os.Unsetenv("INGEST_CHUNK_SIZE")
		os.Unsetenv("INGEST_CHUNK_OVERLAP")
	})

	cfg, err := Load(envFile)
	require.NoError(t, err)
	assert.Equal(t, 800, cfg.Ingestion.ChunkSize)
	assert.Equal(t, 100, cfg.Ingestion.ChunkOverlap)
}

func TestLoad_MissingEnvFileIsNotAnError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
}

func TestServerConfig_RequireJWTSecret(t *testing.T) {
	t.Run("未設定なら既定値を使わずエラー", func(t *testing.T) {
		t.Setenv("JWT_SECRET_KEY", "")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Empty(t, cfg.Server.JWTSecret)

		_, err = cfg.Server.RequireJWTSecret()
		assert.ErrorIs(t, err, ErrMissingJWTSecret)
	})

	t.Run("空白だけの値は未設定として扱う", func(t *testing.T) {
		t.Setenv("JWT_SECRET_KEY", "   ")

		cfg, err := Load("")
		require.NoError(t, err)
		_, err = cfg.Server.RequireJWTSecret()
		assert.ErrorIs(t, err, ErrMissingJWTSecret)
	})

	t.Run("設定済みならその値を返す", func(t *testing.T) {
		t.Setenv("JWT_SECRET_KEY", "s3cret")

		cfg, err := Load("")
		require.NoError(t, err)
		secret, err := cfg.Server.RequireJWTSecret()
		require.NoError(t, err)
		assert.Equal(t, "s3cret", secret)
	})
}

func TestLoad_InvalidOverlap(t *testing.T) {
	t.Setenv("INGEST_CHUNK_SIZE", "100")
	t.Setenv("INGEST_CHUNK_OVERLAP", "100")

	_, err := Load("")
	require.Error(t, err)
}
