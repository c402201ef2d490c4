package git

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
	giturls "github.com/whilp/git-urls"

	"github.com/jinford/codebase-rag/internal/core/apperr"
)

var remoteSchemes = map[string]bool{
	"https": true,
	"http":  true,
	"ssh":   true,
	"git":   true,
}

// Client はリポジトリの浅いクローンを提供する
type Client struct {
	sshKeyPath  string
	sshPassword string
	allowLocal  bool
	logger      *slog.Logger
}

// ClientOption は Client のオプション
type ClientOption func(*Client)

// WithSSHKey は SSH 接続に使う秘密鍵を設定する
func WithSSHKey(path, password string) ClientOption {
	return func(c *Client) {
		c.sshKeyPath = path
		c.sshPassword = password
	}
}

// WithAllowLocal は file:// やローカルパスからのクローンを許可する
func WithAllowLocal(allow bool) ClientOption {
	return func(c *Client) {
		c.allowLocal = allow
	}
}

// WithClientLogger はロガーを設定する
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient は新しい Client を作成する
func NewClient(opts ...ClientOption) *Client {
	c := &Client{logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// ValidateURL はクローン可能な URL かを検証する
func (c *Client) ValidateURL(repoURL string) error {
	if strings.TrimSpace(repoURL) == "" {
		return apperr.Validation("Failed to clone repository: repository URL is empty", nil)
	}

	u, err := giturls.Parse(repoURL)
	if err != nil {
		return apperr.Validation("Failed to clone repository: invalid repository URL", err)
	}

	if remoteSchemes[u.Scheme] {
		if u.Hostname() == "" {
			return apperr.Validation(fmt.Sprintf("Failed to clone repository: missing host in %q", repoURL), nil)
		}
		return nil
	}
	if u.Scheme == "file" && c.allowLocal {
		return nil
	}
	return apperr.Validation(fmt.Sprintf("Failed to clone repository: unsupported URL scheme %q", u.Scheme), nil)
}

// URLToDirectoryName は Git URL をディレクトリ名に変換する
// 例: git@github.com:user/repo.git -> github.com/user/repo
func (c *Client) URLToDirectoryName(repoURL string) (string, error) {
	u, err := giturls.Parse(repoURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse git URL: %w", err)
	}

	hostname := u.Hostname()
	if hostname == "" {
		hostname = u.Host
	}

	path := strings.TrimPrefix(u.Path, "/")
	path = strings.TrimSuffix(path, ".git")

	return filepath.Join(hostname, path), nil
}

// ShallowClone は depth 1 でリポジトリをクローンする。
// URL の不備やクローン失敗は ValidationError として返す。
func (c *Client) ShallowClone(ctx context.Context, repoURL, destDir string) error {
	if err := c.ValidateURL(repoURL); err != nil {
		return err
	}

	auth, err := c.sshAuth(repoURL)
	if err != nil {
		return fmt.Errorf("failed to setup SSH auth: %w", err)
	}

	c.logger.Info("リポジトリをクローンします", "url", repoURL, "depth", 1)

	_, err = git.PlainCloneContext(ctx, destDir, false, &git.CloneOptions{
		URL:          repoURL,
		Auth:         auth,
		Depth:        1,
		SingleBranch: true,
		Tags:         git.NoTags,
	})
	if err != nil {
		return apperr.Validation("Failed to clone repository", err)
	}

	return nil
}

// sshAuth は SSH の URL かつ鍵が設定されている場合のみ認証情報を返す
func (c *Client) sshAuth(repoURL string) (transport.AuthMethod, error) {
	if c.sshKeyPath == "" {
		return nil, nil
	}

	u, err := giturls.Parse(repoURL)
	if err != nil || u.Scheme != "ssh" {
		return nil, nil
	}

	if _, err := os.Stat(c.sshKeyPath); os.IsNotExist(err) {
		c.logger.Warn("SSH 鍵が見つからないため認証なしでクローンします", "path", c.sshKeyPath)
		return nil, nil
	}

	auth, err := ssh.NewPublicKeysFromFile("git", c.sshKeyPath, c.sshPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to load SSH key: %w", err)
	}

	return auth, nil
}
