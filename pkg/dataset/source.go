package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	gogithttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

// LoadDir reads definition files matching glob under dir. A parse or
// validation failure in any file fails the whole load: local definition
// files are operator-authored and mistakes should stop startup.
func LoadDir(dir, glob string) ([]Definition, error) {
	if glob == "" {
		glob = "*.yaml"
	}

	var defs []Definition
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return nil
		}
		if !matchGlob(glob, filepath.ToSlash(rel)) {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("dataset: failed to read %s: %w", path, err)
		}
		parsed, err := ParseDefinitions(data)
		if err != nil {
			return fmt.Errorf("dataset: %s: %w", path, err)
		}
		defs = append(defs, parsed...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return defs, nil
}

// GitSource loads definitions from a git repository: shallow single-branch
// clone into a temp directory, glob walk, parse, cleanup.
type GitSource struct {
	URL   string
	Ref   string
	Token string
	Glob  string

	// Shallow selects depth-1 clones. Local-path clones in tests need it
	// off.
	Shallow bool

	Logger *slog.Logger
}

// NewGitSource creates a GitSource with the usual defaults: branch main,
// glob *.yaml, shallow clone.
func NewGitSource(url, ref, token, glob string) *GitSource {
	if ref == "" {
		ref = "main"
	}
	if glob == "" {
		glob = "*.yaml"
	}
	return &GitSource{
		URL:     url,
		Ref:     ref,
		Token:   token,
		Glob:    glob,
		Shallow: true,
	}
}

// Load clones the repository and returns the parsed definitions and the
// HEAD commit SHA. Files that fail to parse are logged and skipped, so an
// unrelated YAML file in a shared repo cannot block startup.
func (g *GitSource) Load(ctx context.Context) ([]Definition, string, error) {
	logger := g.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dir, err := os.MkdirTemp("", "statpipe-datasets-*")
	if err != nil {
		return nil, "", fmt.Errorf("dataset: failed to create temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	cloneOpts := &gogit.CloneOptions{
		URL:          g.URL,
		SingleBranch: true,
	}
	if g.Ref != "" {
		cloneOpts.ReferenceName = plumbing.NewBranchReferenceName(g.Ref)
	}
	if g.Shallow {
		cloneOpts.Depth = 1
	}
	if g.Token != "" {
		cloneOpts.Auth = &gogithttp.BasicAuth{
			Username: "git", // ignored for token auth
			Password: g.Token,
		}
	}

	logger.Info("cloning dataset definitions", "url", g.URL, "ref", g.Ref)
	repo, err := gogit.PlainCloneContext(ctx, dir, false, cloneOpts)
	if err != nil {
		return nil, "", fmt.Errorf("dataset: git clone failed for %s: %w", g.URL, err)
	}

	commit := ""
	if head, err := repo.Head(); err == nil {
		commit = head.Hash().String()
	}

	var defs []Definition
	files := 0
	err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return nil
		}
		if !matchGlob(g.Glob, filepath.ToSlash(rel)) {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			logger.Error("failed to read definition file", "file", rel, "error", err)
			return nil
		}
		parsed, err := ParseDefinitions(data)
		if err != nil {
			logger.Error("failed to parse definition file", "file", rel, "error", err)
			return nil
		}
		defs = append(defs, parsed...)
		files++
		return nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("dataset: failed to walk clone: %w", err)
	}

	logger.Info("loaded dataset definitions from git",
		"definitions", len(defs), "files", files, "commit", commit)
	return defs, commit, nil
}

// matchGlob matches a slash-separated path against a glob pattern with
// support for the ** directory wildcard.
func matchGlob(pattern, path string) bool {
	if !strings.Contains(pattern, "**") {
		matched, _ := filepath.Match(pattern, path)
		return matched
	}

	parts := strings.SplitN(pattern, "**", 2)
	prefix := parts[0]
	suffix := strings.TrimLeft(parts[1], "/")

	if prefix != "" && !strings.HasPrefix(path, prefix) {
		return false
	}
	if suffix == "" {
		return true
	}

	trimmed := strings.TrimPrefix(path, prefix)
	segments := strings.Split(trimmed, "/")
	for i := range segments {
		if matched, _ := filepath.Match(suffix, strings.Join(segments[i:], "/")); matched {
			return true
		}
	}
	return false
}
