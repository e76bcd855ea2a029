package syncengine

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/line-cook-bot/line-cook/upstream"
	"github.com/line-cook-bot/line-cook/vcsdriver"
)

func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v: %v: %s", args, err, out)
	}
	return string(out)
}

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	full := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func initRepo(t *testing.T, dir string) {
	t.Helper()
	runGit(t, dir, "init")
	runGit(t, dir, "config", "user.email", "t@example.com")
	runGit(t, dir, "config", "user.name", "T")
}

func commit(t *testing.T, dir, msg string) string {
	t.Helper()
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-m", msg)
	return strings.TrimSpace(runGit(t, dir, "rev-parse", "HEAD"))
}

func testRegistry(t *testing.T) *upstream.Registry {
	t.Helper()
	reg, err := upstream.NewRegistry(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func TestGetCurrentPointerSingleTrailer(t *testing.T) {
	dir := t.TempDir()
	initRepo(t, dir)
	writeFile(t, dir, "README.md", "hi")
	commit(t, dir, "initial")
	writeFile(t, dir, "cookbooks/nginx/metadata.rb", "v1")
	commit(t, dir, "Sync nginx\n\nUpstream-Commit: abc1234")

	repo := vcsdriver.New(dir, false)
	reg := testRegistry(t)
	sha, found, err := GetCurrentPointer(repo, repo, reg.Primary)
	if err != nil {
		t.Fatal(err)
	}
	if !found || sha != "abc1234" {
		t.Errorf("got (%q, %v), want (abc1234, true)", sha, found)
	}
}

func TestGetCurrentPointerNoTrailer(t *testing.T) {
	dir := t.TempDir()
	initRepo(t, dir)
	writeFile(t, dir, "README.md", "hi")
	commit(t, dir, "initial")

	repo := vcsdriver.New(dir, false)
	reg := testRegistry(t)
	_, found, err := GetCurrentPointer(repo, repo, reg.Primary)
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Errorf("expected no pointer to be found")
	}
}

func TestGetCurrentPointerSquashPrefersDescendant(t *testing.T) {
	// Build a small upstream history: c1 -> c2, so c2 is a descendant of c1.
	upstreamDir := t.TempDir()
	initRepo(t, upstreamDir)
	writeFile(t, upstreamDir, "nginx/metadata.rb", "v1")
	c1 := commit(t, upstreamDir, "c1")
	writeFile(t, upstreamDir, "nginx/metadata.rb", "v2")
	c2 := commit(t, upstreamDir, "c2")

	downstreamDir := t.TempDir()
	initRepo(t, downstreamDir)
	writeFile(t, downstreamDir, "README.md", "hi")
	commit(t, downstreamDir, "initial")
	runGit(t, downstreamDir, "remote", "add", "upstream", upstreamDir)
	runGit(t, downstreamDir, "fetch", "upstream")

	writeFile(t, downstreamDir, "cookbooks/nginx/metadata.rb", "v2")
	message := "Squash sync\n\nUpstream-Commit: " + c1 + "\nUpstream-Commit: " + c2
	commit(t, downstreamDir, message)

	downstreamRepo := vcsdriver.New(downstreamDir, false)
	upstreamRepo := vcsdriver.New(downstreamDir, false)
	reg := testRegistry(t)

	sha, found, err := GetCurrentPointer(downstreamRepo, upstreamRepo, reg.Primary)
	if err != nil {
		t.Fatal(err)
	}
	if !found || sha != c2 {
		t.Errorf("got (%q, %v), want (%q, true)", sha, found, c2)
	}
}

func TestUpstreamCommitsSinceOrdersOldestFirst(t *testing.T) {
	dir := t.TempDir()
	initRepo(t, dir)
	writeFile(t, dir, "a.txt", "1")
	c1 := commit(t, dir, "c1")
	writeFile(t, dir, "a.txt", "2")
	c2 := commit(t, dir, "c2")
	writeFile(t, dir, "a.txt", "3")
	c3 := commit(t, dir, "c3")

	repo := vcsdriver.New(dir, false)
	commits, err := UpstreamCommitsSince(repo, "HEAD", c1)
	if err != nil {
		t.Fatal(err)
	}
	if len(commits) != 2 || commits[0] != c2 || commits[1] != c3 {
		t.Errorf("got %v, want [%s %s]", commits, c2, c3)
	}
}
