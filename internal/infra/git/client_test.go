package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/codebase-rag/internal/core/apperr"
)

func TestValidateURL(t *testing.T) {
	c := NewClient()

	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{name: "HTTPS", url: "https://github.com/org/repo.git", wantErr: false},
		{name: "SCP形式", url: "git@github.com:org/repo.git", wantErr: false},
		{name: "SSH", url: "ssh://git@github.com/org/repo.git", wantErr: false},
		{name: "空文字", url: "", wantErr: true},
		{name: "未対応のスキーム", url: "ftp://example.com/repo.git", wantErr: true},
		{name: "ローカルパスは既定で拒否", url: "/tmp/repo", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.ValidateURL(tt.url)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperr.IsValidation(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestURLToDirectoryName(t *testing.T) {
	c := NewClient()

	name, err := c.URLToDirectoryName("git@github.com:user/repo.git")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("github.com", "user/repo"), name)

	name, err = c.URLToDirectoryName("https://github.com:8080/user/repo.git")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("github.com", "user/repo"), name)
}

func TestShallowClone_InvalidURL(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "repo")
	err := NewClient().ShallowClone(context.Background(), "ftp://example.com/repo.git", dest)
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))
}

func TestShallowClone_LocalRepository(t *testing.T) {
	if _, err := exec.LookPath("git-upload-pack"); err != nil {
		t.Skip("git-upload-pack が見つからないためスキップします")
	}

	src := t.TempDir()
	repo, err := git.PlainInit(src, false)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(src, "main.go"), []byte("package main\n"), 0o644))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("main.go")
	require.NoError(t, err)
	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "repo")
	err = NewClient(WithAllowLocal(true)).ShallowClone(context.Background(), "file://"+src, dest)
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(dest, "main.go"))
	require.NoError(t, err)
	assert.Equal(t, "package main\n", string(content))
}
