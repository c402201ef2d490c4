package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/codebase-rag/internal/core/generation"
)

func testRequestOptions(srv *httptest.Server) []option.RequestOption {
	return []option.RequestOption{
		option.WithBaseURL(srv.URL + "/"),
		option.WithMaxRetries(0),
	}
}

func TestNewEmbedderOptionsOverrideDefaults(t *testing.T) {
	e := NewEmbedder("test-key")
	assert.Equal(t, DefaultEmbeddingModel, e.ModelName())
	assert.Equal(t, DefaultEmbeddingDimension, e.Dimension())
	assert.Equal(t, 100, e.MaxBatchSize())

	e = NewEmbedder("test-key", WithEmbeddingModel("text-embedding-3-large"), WithEmbeddingDimension(3072))
	assert.Equal(t, "text-embedding-3-large", e.ModelName())
	assert.Equal(t, 3072, e.Dimension())

	// 空値は無視される
	e = NewEmbedder("test-key", WithEmbeddingModel(""), WithEmbeddingDimension(0))
	assert.Equal(t, DefaultEmbeddingModel, e.ModelName())
	assert.Equal(t, DefaultEmbeddingDimension, e.Dimension())
}

func TestEmbedder_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)

		var body struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, DefaultEmbeddingModel, body.Model)

		// index の逆順で返す
		data := make([]map[string]any, 0, len(body.Input))
		for i := len(body.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float64{float64(i), 0.5},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  body.Model,
			"usage":  map[string]any{"prompt_tokens": 3, "total_tokens": 3},
		})
	}))
	defer srv.Close()

	e := NewEmbedder("test-key", WithEmbeddingRequestOptions(testRequestOptions(srv)...))

	vectors, err := e.Embed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for i, v := range vectors {
		assert.Equal(t, []float32{float32(i), 0.5}, v)
	}
}

func TestEmbedder_EmbedRejectsInvalidBatch(t *testing.T) {
	e := NewEmbedder("test-key")

	_, err := e.Embed(context.Background(), nil)
	assert.Error(t, err)

	texts := make([]string, 101)
	_, err = e.Embed(context.Background(), texts)
	assert.ErrorContains(t, err, "batch size exceeds maximum")
}

func TestNewGenerator_RequiresAPIKey(t *testing.T) {
	_, err := NewGenerator("")
	assert.ErrorIs(t, err, ErrAPIKeyNotSet)
}

func chatCompletionBody(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1,
		"model":   DefaultModel,
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
		"usage": map[string]any{"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2},
	}
}

func TestGenerator_Generate(t *testing.T) {
	var roles []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)

		var body struct {
			Messages []struct {
				Role string `json:"role"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		for _, m := range body.Messages {
			roles = append(roles, m.Role)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatCompletionBody("回答です"))
	}))
	defer srv.Close()

	g, err := NewGenerator("test-key", WithRequestOptions(testRequestOptions(srv)...))
	require.NoError(t, err)
	assert.Equal(t, "openai:"+DefaultModel, g.Name())

	reply, err := g.Generate(context.Background(), generation.Request{
		SystemInstruction: "You are helpful.",
		History: []generation.Message{
			generation.UserText("こんにちは"),
			{Role: generation.RoleAssistant, Parts: []generation.Part{{Text: "どうも"}}},
			generation.UserText("質問です"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "回答です", reply)
	assert.Equal(t, []string{"system", "user", "assistant", "user"}, roles)
}

func TestGenerator_RetriesOnRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = fmt.Fprint(w, `{"error":{"message":"rate limited","type":"rate_limit_error"}}`)
			return
		}
		_ = json.NewEncoder(w).Encode(chatCompletionBody("ok"))
	}))
	defer srv.Close()

	g, err := NewGenerator("test-key",
		WithRequestOptions(testRequestOptions(srv)...),
		WithBackoff(time.Millisecond),
	)
	require.NoError(t, err)

	reply, err := g.Generate(context.Background(), generation.Request{History: []generation.Message{generation.UserText("hi")}})
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGenerator_DoesNotRetryOtherErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = fmt.Fprint(w, `{"error":{"message":"bad request","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	g, err := NewGenerator("test-key",
		WithRequestOptions(testRequestOptions(srv)...),
		WithBackoff(time.Millisecond),
	)
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), generation.Request{History: []generation.Message{generation.UserText("hi")}})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGenerator_EmptyHistory(t *testing.T) {
	g, err := NewGenerator("test-key")
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), generation.Request{})
	assert.Error(t, err)
}

func TestToChatMessages_Attachments(t *testing.T) {
	msgs := ToChatMessages(generation.Request{
		History: []generation.Message{{
			Role: generation.RoleUser,
			Parts: []generation.Part{
				{Text: "この画像は？"},
				{Data: []byte("png"), MIMEType: "image/png"},
			},
		}},
	})
	require.Len(t, msgs, 1)

	raw, err := json.Marshal(msgs[0])
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"role":"user"`)
	assert.Contains(t, string(raw), "data:image/png;base64,cG5n")
	assert.Contains(t, string(raw), "この画像は？")
}

func TestDataURL(t *testing.T) {
	assert.Equal(t, "data:image/jpeg;base64,YWJj", DataURL("image/jpeg", []byte("abc")))
	assert.Equal(t, "data:application/octet-stream;base64,", DataURL("", nil))
}
