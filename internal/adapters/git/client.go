// Package git resolves the code revision an analysis runs against by
// shelling out to the git CLI.
package git

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/codepulse/internal/core"
)

// Client wraps the git CLI for one repository.
type Client struct {
	repoPath string
	timeout  time.Duration
}

// NewClient creates a client rooted at repoPath. The path must be inside
// a git repository.
func NewClient(repoPath string) (*Client, error) {
	absPath, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}

	client := &Client{
		repoPath: absPath,
		timeout:  30 * time.Second,
	}
	if _, err := client.run(context.Background(), "rev-parse", "--git-dir"); err != nil {
		return nil, core.ErrValidation("NOT_GIT_REPO",
			fmt.Sprintf("%s is not a git repository", absPath))
	}
	return client, nil
}

// Revision returns the branch, commit, and tag of HEAD. A detached HEAD
// yields an empty branch; an untagged commit yields an empty tag.
func (c *Client) Revision(ctx context.Context) (core.RevisionInfo, error) {
	commit, err := c.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return core.RevisionInfo{}, fmt.Errorf("resolving HEAD: %w", err)
	}

	rev := core.RevisionInfo{Commit: commit}

	branch, err := c.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err == nil && branch != "HEAD" {
		rev.Branch = branch
	}

	// Only exact tags count; a description like v1.2.0-3-gabcdef is not a
	// tag for snapshot purposes.
	if tag, err := c.run(ctx, "describe", "--tags", "--exact-match", "HEAD"); err == nil {
		rev.Tag = tag
	}

	return rev, nil
}

// IsDirty reports whether the working tree has uncommitted changes.
func (c *Client) IsDirty(ctx context.Context) (bool, error) {
	out, err := c.run(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out != "", nil
}

func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = c.repoPath

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", core.ErrTimeout("git command timed out")
		}
		return "", fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(stderr.String()), err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Resolver adapts the client constructor to the pipeline's revision
// resolution port, creating a short-lived client per lookup.
type Resolver struct{}

var _ core.RevisionResolver = Resolver{}

// Resolve reports the revision of the tree at projectPath.
func (Resolver) Resolve(ctx context.Context, projectPath string) (core.RevisionInfo, error) {
	client, err := NewClient(projectPath)
	if err != nil {
		return core.RevisionInfo{}, err
	}
	return client.Revision(ctx)
}
