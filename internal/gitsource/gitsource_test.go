package gitsource

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
)

func TestIsRemote(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"https://github.com/user/notes.git", true},
		{"ssh://git@github.com/user/notes.git", true},
		{"git@github.com:user/notes.git", true},
		{"/home/user/notes", false},
		{"notes", false},
		{"./cards/spanish", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRemote(tt.path))
		})
	}
}

func TestLocalPath(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{"https://github.com/user/notes.git", filepath.Join("repos", "github.com", "user", "notes"), false},
		{"git@gitlab.com:team/cards.git", filepath.Join("repos", "gitlab.com", "team", "cards"), false},
		{"not a url", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := LocalPath("repos", tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func commitFile(t *testing.T, repo *git.Repository, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add(name)
	require.NoError(t, err)
	_, err = wt.Commit("add "+name, &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
}

func TestSyncClonesThenPulls(t *testing.T) {
	// go-git serves local clones through git-upload-pack.
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git is not installed")
	}
	ctx := context.Background()
	origin := t.TempDir()
	repo, err := git.PlainInit(origin, false)
	require.NoError(t, err)
	commitFile(t, repo, origin, "spanish.md", "Q: hola\nA: hello\n")

	clone := filepath.Join(t.TempDir(), "clone")
	require.NoError(t, Sync(ctx, origin, clone, nil))
	assert.FileExists(t, filepath.Join(clone, "spanish.md"))

	commitFile(t, repo, origin, "french.md", "Q: bonjour\nA: hello\n")
	require.NoError(t, Sync(ctx, origin, clone, nil))
	assert.FileExists(t, filepath.Join(clone, "french.md"))

	// nothing new to pull is not an error
	require.NoError(t, Sync(ctx, origin, clone, nil))
}
