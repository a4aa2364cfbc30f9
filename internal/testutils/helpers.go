// Package testutils holds fixtures shared by adapter tests.
package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/loam"
	"github.com/aretw0/loam/pkg/core"
	"github.com/stretchr/testify/require"
)

// SetupTestRepo creates a temporary directory and initializes an unversioned
// Loam repository in it. Extra options are applied after the defaults.
// It fails the test immediately on error.
func SetupTestRepo(t *testing.T, opts ...loam.Option) (string, core.Repository) {
	t.Helper()

	absPath, err := filepath.Abs(t.TempDir())
	require.NoError(t, err, "Failed to get absolute path for temp dir")

	opts = append([]loam.Option{loam.WithVersioning(false)}, opts...)
	repo, err := loam.Init(absPath, opts...)
	require.NoError(t, err, "Failed to init loam repo")

	return absPath, repo
}

// WriteUserFile writes a profile document the way a person editing the
// repository by hand would: YAML frontmatter followed by a free-form body.
func WriteUserFile(t *testing.T, dir, subjectID, frontmatter, body string) string {
	t.Helper()

	path := filepath.Join(dir, subjectID+".md")
	content := "---\n" + frontmatter + "\n---\n" + body
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644), "Failed to write %s", path)
	return path
}
