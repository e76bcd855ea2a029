package vcsdriver

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run(t, dir, "init")
	run(t, dir, "config", "user.email", "test@example.com")
	run(t, dir, "config", "user.name", "Test")
	writeAndCommit(t, dir, "README.md", "hello", "initial commit")
	return dir
}

func run(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v: %s", args, err, out)
	}
}

func writeAndCommit(t *testing.T, dir, name, content, message string) string {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	run(t, dir, "add", ".")
	run(t, dir, "commit", "-m", message)
	out, err := exec.Command("git", "-C", dir, "rev-parse", "HEAD").Output()
	if err != nil {
		t.Fatal(err)
	}
	return string(out)
}

func TestStrictSkipsMutationUnderDryRun(t *testing.T) {
	dir := initRepo(t)
	r := New(dir, true)

	if _, err := r.Strict("branch", "feature"); err != nil {
		t.Fatalf("dry-run mutating command should not error: %v", err)
	}
	out, err := r.Strict("branch", "--list")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "feature") {
		t.Errorf("dry run should not have created the branch, got branch list %q", out)
	}
}

func TestStrictReadOnlyAlwaysRuns(t *testing.T) {
	dir := initRepo(t)
	r := New(dir, true)
	if _, err := r.Strict("log", "--format=%H"); err != nil {
		t.Fatalf("read-only command should run even under dry-run: %v", err)
	}
}

func TestTryNeverErrors(t *testing.T) {
	dir := initRepo(t)
	r := New(dir, false)
	ok, _, stderr := r.Try("show", "does-not-exist:also-missing")
	if ok {
		t.Fatalf("expected failure for nonexistent blob")
	}
	if stderr == "" {
		t.Errorf("expected stderr output describing the failure")
	}
}

func TestIsAncestor(t *testing.T) {
	dir := initRepo(t)
	r := New(dir, false)
	first, err := r.RevParse("HEAD")
	if err != nil {
		t.Fatal(err)
	}
	writeAndCommit(t, dir, "second.txt", "more", "second commit")
	second, err := r.RevParse("HEAD")
	if err != nil {
		t.Fatal(err)
	}
	if !r.IsAncestor(first, second) {
		t.Errorf("expected %v to be an ancestor of %v", first, second)
	}
	if r.IsAncestor(second, first) {
		t.Errorf("did not expect %v to be an ancestor of %v", second, first)
	}
}

func TestFileAtRev(t *testing.T) {
	dir := initRepo(t)
	r := New(dir, false)
	content, ok := r.FileAtRev("HEAD", "README.md")
	if !ok || content != "hello" {
		t.Errorf("got %q, %v, want %q, true", content, ok, "hello")
	}
	if _, ok := r.FileAtRev("HEAD", "missing.txt"); ok {
		t.Errorf("expected ok=false for missing path")
	}
}
