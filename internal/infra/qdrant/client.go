package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// errNotFound は Qdrant が 404 を返した場合のエラー
var errNotFound = errors.New("qdrant: not found")

// client は Qdrant REST API の最小限のクライアント
type client struct {
	url    string
	apiKey string
	http   *http.Client
}

func newClient(url, apiKey string, timeout time.Duration) *client {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &client{
		url:    strings.TrimRight(url, "/"),
		apiKey: apiKey,
		http:   &http.Client{Timeout: timeout},
	}
}

// response は Qdrant の共通レスポンス形式
type response[T any] struct {
	Result T `json:"result"`
}

func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &statusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode qdrant response: %w", err)
		}
	}
	return nil
}

// statusError は 2xx 以外のレスポンス
type statusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant %s %s failed: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

func isConflict(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.StatusCode == http.StatusConflict
}
