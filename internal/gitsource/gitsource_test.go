package gitsource

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalPath(t *testing.T) {
	testCases := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{url: "https://github.com/owner/notes.git", want: filepath.Join("repos", "github.com", "owner", "notes")},
		{url: "http://git.local/team/deck", want: filepath.Join("repos", "git.local", "team", "deck")},
		{url: "git@github.com:owner/notes.git", want: filepath.Join("repos", "github.com", "owner", "notes")},
		{url: "not a url", wantErr: true},
		{url: "https://github.com", wantErr: true},
		{url: "git@github.com", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.url, func(t *testing.T) {
			got, err := LocalPath("repos", tc.url)
			if tc.wantErr {
				assert.Error(t, err, "got path %q", got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestIsURL(t *testing.T) {
	for path, want := range map[string]bool{
		"https://github.com/a/b": true,
		"git@github.com:a/b.git": true,
		"/home/me/decks.git":     true,
		"/home/me/decks":         false,
		"./notes":                false,
	} {
		assert.Equal(t, want, IsURL(path), path)
	}
}

func TestSyncExistingNonRepo(t *testing.T) {
	err := Sync(context.Background(), slog.Default(), "https://example.com/a.git", t.TempDir())
	assert.Error(t, err, "the checkout directory is not a git repository")
}
