package syncengine

import (
	"strings"
	"testing"

	"github.com/line-cook-bot/line-cook/classify"
	"github.com/line-cook-bot/line-cook/platform"
	"github.com/line-cook-bot/line-cook/upstream"
	"github.com/line-cook-bot/line-cook/vcsdriver"
)

// addOriginRemote gives downstreamDir a local "origin" remote so the bot's
// "push --force origin <branch>" calls have somewhere real to land.
func addOriginRemote(t *testing.T, downstreamDir string) {
	t.Helper()
	originDir := t.TempDir()
	runGit(t, originDir, "init", "--bare")
	runGit(t, downstreamDir, "remote", "add", "origin", originDir)
}

func testOpts(downstreamDir string, reg *upstream.Registry) Options {
	return Options{
		DownstreamDir:      downstreamDir,
		DownstreamRepoSlug: "owner/repo",
		BaseBranch:         "main",
		PRBranchPrefix:     "line-cook",
		BotLabel:           "line-cook",
		Registry:           reg,
	}
}

// TestRunOneUpstreamOnboardsWithoutFixup covers spec scenario 1: a fresh
// clone with every owned cookbook already matching an upstream commit
// produces only an onboarding PR, no fixup PR.
func TestRunOneUpstreamOnboardsWithoutFixup(t *testing.T) {
	upstreamDir := t.TempDir()
	initRepo(t, upstreamDir)
	writeFile(t, upstreamDir, "apache/metadata.rb", "v1")
	apacheSha := commit(t, upstreamDir, "add apache")
	runGit(t, upstreamDir, "branch", "-M", "main")

	downstreamDir := t.TempDir()
	initRepo(t, downstreamDir)
	writeFile(t, downstreamDir, "cookbooks/fb_apache/metadata.rb", "v1")
	commit(t, downstreamDir, "initial")
	runGit(t, downstreamDir, "branch", "-M", "main")
	addOriginRemote(t, downstreamDir)

	reg, err := upstream.NewRegistry(&upstream.OverrideSpec{RepoURL: upstreamDir}, nil)
	if err != nil {
		t.Fatal(err)
	}
	c := classify.New(reg)
	p := platform.New("owner/repo", true)
	downstreamRepo := vcsdriver.New(downstreamDir, false)

	result, err := runOneUpstream(testOpts(downstreamDir, reg), downstreamRepo, c, p, reg.Primary)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Onboarded {
		t.Fatalf("expected onboarding, got %+v", result)
	}
	if result.FixupPRNumber != 0 {
		t.Errorf("expected no fixup PR, got %+v", result)
	}

	if _, err := downstreamRepo.Strict("rev-parse", "--verify", "line-cook/fb_fix_missing_baselines"); err == nil {
		t.Errorf("expected no fixup branch to have been created")
	}

	msg := runGit(t, downstreamDir, "show", "--quiet", "--pretty=format:%B", "line-cook/fb_onboard")
	if !strings.Contains(msg, "Upstream-Commit: "+apacheSha) {
		t.Errorf("expected onboarding commit to carry baseline trailer %s, got %q", apacheSha, msg)
	}
}

// TestRunOneUpstreamOnboardsWithFixup covers spec scenario 2: a cookbook with
// no matching upstream history gets a separate fixup PR, overwritten to the
// detected baseline commit, not the upstream's current tip.
func TestRunOneUpstreamOnboardsWithFixup(t *testing.T) {
	upstreamDir := t.TempDir()
	initRepo(t, upstreamDir)
	writeFile(t, upstreamDir, "apache/metadata.rb", "v1")
	writeFile(t, upstreamDir, "custom/metadata.rb", "upstream-custom-v1")
	baselineSha := commit(t, upstreamDir, "add apache and custom")
	writeFile(t, upstreamDir, "custom/metadata.rb", "upstream-custom-v2")
	commit(t, upstreamDir, "bump custom") // tip advances past the baseline
	runGit(t, upstreamDir, "branch", "-M", "main")

	downstreamDir := t.TempDir()
	initRepo(t, downstreamDir)
	writeFile(t, downstreamDir, "cookbooks/fb_apache/metadata.rb", "v1")
	writeFile(t, downstreamDir, "cookbooks/fb_custom/metadata.rb", "locally authored, matches nothing upstream")
	commit(t, downstreamDir, "initial")
	runGit(t, downstreamDir, "branch", "-M", "main")
	addOriginRemote(t, downstreamDir)

	reg, err := upstream.NewRegistry(&upstream.OverrideSpec{RepoURL: upstreamDir}, nil)
	if err != nil {
		t.Fatal(err)
	}
	c := classify.New(reg)
	p := platform.New("owner/repo", true)
	downstreamRepo := vcsdriver.New(downstreamDir, false)

	result, err := runOneUpstream(testOpts(downstreamDir, reg), downstreamRepo, c, p, reg.Primary)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Onboarded {
		t.Fatalf("expected onboarding, got %+v", result)
	}
	// The dry-run platform client reports every PR number as 0, so the fixup
	// PR is checked through the branch it is opened from.
	if _, err := downstreamRepo.Strict("rev-parse", "--verify", "line-cook/fb_fix_missing_baselines"); err != nil {
		t.Fatalf("expected the fixup branch to have been created for the fixup PR: %v", err)
	}

	onboardMsg := runGit(t, downstreamDir, "show", "--quiet", "--pretty=format:%B", "line-cook/fb_onboard")
	if !strings.Contains(onboardMsg, "Upstream-Commit: "+baselineSha) {
		t.Errorf("expected onboarding commit to carry baseline trailer %s, got %q", baselineSha, onboardMsg)
	}

	got := runGit(t, downstreamDir, "show", "line-cook/fb_fix_missing_baselines:cookbooks/fb_custom/metadata.rb")
	if got != "upstream-custom-v1" {
		t.Errorf("expected fb_custom fixed up to baseline content %q, got %q", "upstream-custom-v1", got)
	}
	fixupMsg := runGit(t, downstreamDir, "show", "--quiet", "--pretty=format:%B", "line-cook/fb_fix_missing_baselines")
	if !strings.Contains(fixupMsg, "fb_custom") || !strings.Contains(fixupMsg, baselineSha) {
		t.Errorf("expected fixup commit message to name fb_custom and baseline %s, got %q", baselineSha, fixupMsg)
	}
}

// TestRunOneUpstreamSyncBranchName covers spec scenario 3's literal
// assertion: a normal sync run opens its PR from "<pr_prefix>/<prefix>_/update".
func TestRunOneUpstreamSyncBranchName(t *testing.T) {
	upstreamDir := t.TempDir()
	initRepo(t, upstreamDir)
	writeFile(t, upstreamDir, "apache/recipes/default.rb", "v1")
	pointerSha := commit(t, upstreamDir, "add apache")
	runGit(t, upstreamDir, "branch", "-M", "main")

	downstreamDir := t.TempDir()
	initRepo(t, downstreamDir)
	writeFile(t, downstreamDir, "cookbooks/fb_apache/recipes/default.rb", "v1")
	commit(t, downstreamDir, "Onboard\n\nUpstream-Commit: "+pointerSha)
	runGit(t, downstreamDir, "branch", "-M", "main")
	addOriginRemote(t, downstreamDir)

	writeFile(t, upstreamDir, "apache/recipes/x.rb", "new recipe")
	newSha := commit(t, upstreamDir, "add x.rb")

	reg, err := upstream.NewRegistry(&upstream.OverrideSpec{RepoURL: upstreamDir}, nil)
	if err != nil {
		t.Fatal(err)
	}
	c := classify.New(reg)
	p := platform.New("owner/repo", true)
	downstreamRepo := vcsdriver.New(downstreamDir, false)

	result, err := runOneUpstream(testOpts(downstreamDir, reg), downstreamRepo, c, p, reg.Primary)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.AppliedCommits) != 1 || result.AppliedCommits[0] != newSha {
		t.Fatalf("expected exactly %s applied, got %v", newSha, result.AppliedCommits)
	}

	if _, err := downstreamRepo.Strict("rev-parse", "--verify", "line-cook/fb_/update"); err != nil {
		t.Errorf("expected sync branch line-cook/fb_/update to exist: %v", err)
	}
}
