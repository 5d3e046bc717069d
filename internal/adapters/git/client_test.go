package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	root := t.TempDir()
	for _, args := range [][]string{
		{"init", "-q", "-b", "main"},
		{"config", "user.email", "test@example.com"},
		{"config", "user.name", "test"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = root
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v: %s", args, err, out)
		}
	}
	return root
}

func commit(t *testing.T, root, message string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(root, "file.txt"), []byte(message), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, args := range [][]string{
		{"add", "."},
		{"commit", "-q", "-m", message},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = root
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v: %s", args, err, out)
		}
	}
}

func TestNewClient_NotARepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	if _, err := NewClient(t.TempDir()); err == nil {
		t.Error("expected error outside a repository")
	}
}

func TestRevision(t *testing.T) {
	root := initRepo(t)
	commit(t, root, "initial")

	client, err := NewClient(root)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	rev, err := client.Revision(context.Background())
	if err != nil {
		t.Fatalf("Revision() error = %v", err)
	}
	if rev.Branch != "main" {
		t.Errorf("branch = %q, want main", rev.Branch)
	}
	if len(rev.Commit) != 40 {
		t.Errorf("commit = %q, want full sha", rev.Commit)
	}
	if rev.Tag != "" {
		t.Errorf("tag = %q, want empty on untagged commit", rev.Tag)
	}
}

func TestRevision_Tagged(t *testing.T) {
	root := initRepo(t)
	commit(t, root, "initial")

	cmd := exec.Command("git", "tag", "v1.0.0")
	cmd.Dir = root
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git tag: %v: %s", err, out)
	}

	client, err := NewClient(root)
	if err != nil {
		t.Fatal(err)
	}
	rev, err := client.Revision(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rev.Tag != "v1.0.0" {
		t.Errorf("tag = %q, want v1.0.0", rev.Tag)
	}
}

func TestIsDirty(t *testing.T) {
	root := initRepo(t)
	commit(t, root, "initial")

	client, err := NewClient(root)
	if err != nil {
		t.Fatal(err)
	}

	dirty, err := client.IsDirty(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if dirty {
		t.Error("fresh commit should be clean")
	}

	if err := os.WriteFile(filepath.Join(root, "new.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	dirty, err = client.IsDirty(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !dirty {
		t.Error("untracked file should mark the tree dirty")
	}
}
