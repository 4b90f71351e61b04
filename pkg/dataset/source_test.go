package dataset

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "first.yaml"), []byte(testDefinitionYAML), 0644))

	second := `name: second
filename: Second_LATEST.xlsx
dataflow:
  id: 999_1_DF_TEST_1
dimensions:
  - id: REF_AREA
    column: TERRITORY
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "second.yaml"), []byte(second), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a definition"), 0644))

	defs, err := LoadDir(dir, "*.yaml")
	require.NoError(t, err)
	require.Len(t, defs, 2)

	// Walk order is lexical.
	assert.Equal(t, "ppi_industry", defs[0].Name)
	assert.Equal(t, "second", defs[1].Name)
}

func TestLoadDir_DefaultGlob(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "def.yaml"), []byte(testDefinitionYAML), 0644))

	defs, err := LoadDir(dir, "")
	require.NoError(t, err)
	assert.Len(t, defs, 1)
}

func TestLoadDir_ParseErrorFailsLoad(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("name: [broken"), 0644))

	_, err := LoadDir(dir, "*.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.yaml")
}

func TestLoadDir_MissingDir(t *testing.T) {
	_, err := LoadDir(filepath.Join(t.TempDir(), "nope"), "*.yaml")
	require.Error(t, err)
}

// createDefinitionRepo creates a local git repo holding one definition file
// under defs/, to clone from in tests.
func createDefinitionRepo(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	repo, err := gogit.PlainInitWithOptions(dir, &gogit.PlainInitOptions{
		InitOptions: gogit.InitOptions{
			DefaultBranch: "refs/heads/main",
		},
	})
	require.NoError(t, err)

	defsDir := filepath.Join(dir, "defs")
	require.NoError(t, os.MkdirAll(defsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(defsDir, "ppi.yaml"), []byte(testDefinitionYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# defs"), 0o644))

	w, err := repo.Worktree()
	require.NoError(t, err)
	_, err = w.Add(".")
	require.NoError(t, err)
	_, err = w.Commit("add definitions", &gogit.CommitOptions{
		Author: &object.Signature{
			Name:  "Test",
			Email: "test@example.com",
			When:  time.Now(),
		},
	})
	require.NoError(t, err)

	return dir
}

func TestGitSource_Load(t *testing.T) {
	repoDir := createDefinitionRepo(t)

	src := NewGitSource(repoDir, "main", "", "defs/*.yaml")
	// Local-path clones do not support depth.
	src.Shallow = false

	defs, commit, err := src.Load(context.Background())
	require.NoError(t, err)

	require.Len(t, defs, 1)
	assert.Equal(t, "ppi_industry", defs[0].Name)
	assert.NotEmpty(t, commit)
}

func TestGitSource_SkipsUnparsableFiles(t *testing.T) {
	repoDir := createDefinitionRepo(t)

	// Add an unparsable YAML next to the good one and commit it.
	repo, err := gogit.PlainOpen(repoDir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(repoDir, "defs", "junk.yaml"), []byte("name: [broken"), 0o644))
	w, err := repo.Worktree()
	require.NoError(t, err)
	_, err = w.Add(".")
	require.NoError(t, err)
	_, err = w.Commit("add junk", &gogit.CommitOptions{
		Author: &object.Signature{Name: "Test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	src := NewGitSource(repoDir, "main", "", "defs/*.yaml")
	src.Shallow = false

	defs, _, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, defs, 1, "the junk file should be skipped, not fail the load")
}

func TestGitSource_CloneError(t *testing.T) {
	src := NewGitSource(filepath.Join(t.TempDir(), "missing-repo"), "main", "", "*.yaml")
	src.Shallow = false

	_, _, err := src.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "git clone failed")
}

func TestNewGitSourceDefaults(t *testing.T) {
	src := NewGitSource("https://example.com/defs.git", "", "", "")
	assert.Equal(t, "main", src.Ref)
	assert.Equal(t, "*.yaml", src.Glob)
	assert.True(t, src.Shallow)
}

func TestMatchGlob(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"*.yaml", "test.yaml", true},
		{"*.yaml", "test.json", false},
		{"defs/*.yaml", "defs/test.yaml", true},
		{"defs/*.yaml", "other/test.yaml", false},
		{"**/*.yaml", "test.yaml", true},
		{"**/*.yaml", "defs/test.yaml", true},
		{"**/*.yaml", "a/b/c/test.yaml", true},
		{"**/*.yaml", "test.json", false},
		{"defs/**/*.yaml", "defs/sub/test.yaml", true},
		{"defs/**/*.yaml", "other/test.yaml", false},
		{"**/*", "anything/at/all", true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"_"+tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, matchGlob(tt.pattern, tt.path), "matchGlob(%q, %q)", tt.pattern, tt.path)
		})
	}
}
