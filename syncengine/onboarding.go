package syncengine

import (
	"fmt"
	"strings"

	"github.com/line-cook-bot/line-cook/baseline"
	"github.com/line-cook-bot/line-cook/classify"
	"github.com/line-cook-bot/line-cook/platform"
	"github.com/line-cook-bot/line-cook/upstream"
	"github.com/line-cook-bot/line-cook/vcsdriver"
)

// OnboardingPlan is what Onboard found and intends to stage.
type OnboardingPlan struct {
	Baseline string
	Missing  []string
}

// Onboard runs baseline detection for an upstream that has no recorded
// pointer yet, and returns the plan to stage: a baseline-recording commit for
// the onboarding PR, plus (if any cookbooks have no matching history) a
// fixup commit overwriting them to the detected baseline, for a separate
// fixup PR.
func Onboard(downstreamRepo, upstreamRepo *vcsdriver.Repo, c *classify.Classifier, u *upstream.Upstream, branch string) (*OnboardingPlan, error) {
	cookbooks, err := ListLocalCookbooks(downstreamRepo.Dir)
	if err != nil {
		return nil, fmt.Errorf("listing local cookbooks: %w", err)
	}
	owned := CookbooksOwnedBy(c, cookbooks, u)
	if len(owned) == 0 {
		return &OnboardingPlan{}, nil
	}

	detector := baseline.New(c, baseline.CompareTrees(upstreamRepo, downstreamRepo))
	result, err := detector.DetectGlobalBaseline(upstreamRepo, branch, u, owned, downstreamRepo.Dir, "HEAD")
	if err != nil {
		return nil, fmt.Errorf("detecting baseline: %w", err)
	}
	return &OnboardingPlan{Baseline: result.Baseline, Missing: result.Missing}, nil
}

// StageOnboardingCommit creates, on downstreamRepo's currently checked-out
// branch, the single empty commit that records the detected baseline
// trailer. It's a no-op (returning "") if no baseline was found at all.
func StageOnboardingCommit(downstreamRepo *vcsdriver.Repo, u *upstream.Upstream, plan *OnboardingPlan) (string, error) {
	if plan.Baseline == "" {
		return "", nil
	}
	message := fmt.Sprintf("Record %s baseline\n\n%s: %s", u.Prefix, u.TrailerKey(), plan.Baseline)
	if _, err := downstreamRepo.Strict("commit", "--allow-empty", "-m", message); err != nil {
		return "", fmt.Errorf("recording baseline commit: %w", err)
	}
	return downstreamRepo.RevParse("HEAD")
}

// StageFixupCommit creates, on downstreamRepo's currently checked-out
// branch, a single commit that overwrites every cookbook in plan.Missing
// with the upstream subtree at plan.Baseline - the same commit the other
// cookbooks were already matched to, not the upstream's current tip.
func StageFixupCommit(downstreamRepo, upstreamRepo *vcsdriver.Repo, c *classify.Classifier, u *upstream.Upstream, plan *OnboardingPlan) (string, error) {
	if len(plan.Missing) == 0 {
		return "", nil
	}
	for _, cookbook := range plan.Missing {
		upstreamPath := c.UpstreamPathFor(cookbook, u)
		downstreamPath := classify.CookbooksDir + "/" + cookbook
		if err := downstreamRepo.CheckoutPathFromOtherRepo(upstreamRepo.Dir, plan.Baseline, upstreamPath, downstreamPath); err != nil {
			return "", fmt.Errorf("overwriting %q from baseline: %w", cookbook, err)
		}
		if _, err := downstreamRepo.Strict("add", "--", downstreamPath); err != nil {
			return "", err
		}
	}
	message := fmt.Sprintf("Sync %s to baseline %s", strings.Join(plan.Missing, ", "), plan.Baseline)
	if _, err := downstreamRepo.Strict("commit", "-m", message); err != nil {
		return "", fmt.Errorf("committing fixup: %w", err)
	}
	return downstreamRepo.RevParse("HEAD")
}

// CreateOnboardingPR opens (or, per dry-run, would open) the onboarding PR.
// Its body carries a single trailer identifying the detected baseline.
func CreateOnboardingPR(p *platform.Client, base, branch, prBranchPrefix, botLabel string, u *upstream.Upstream, plan *OnboardingPlan) (int, error) {
	title := fmt.Sprintf("[%s] Onboard %s cookbooks", prBranchPrefix, u.Prefix)
	body := fmt.Sprintf("Recording baseline for upstream `%s`.\n\n%s: %s\n", u.Prefix, u.TrailerKey(), plan.Baseline)
	return p.CreatePR(platform.CreatePROptions{
		Head:   branch,
		Base:   base,
		Title:  title,
		Body:   body,
		Labels: []string{botLabel, "onboarding"},
	})
}

// CreateFixupPR opens (or, per dry-run, would open) the fixup PR for
// cookbooks that had no matching baseline. Its body lists the directories
// being synced to the baseline.
func CreateFixupPR(p *platform.Client, base, branch, prBranchPrefix, botLabel string, u *upstream.Upstream, plan *OnboardingPlan) (int, error) {
	title := fmt.Sprintf("[%s] Fix missing baselines for %s", prBranchPrefix, u.Prefix)
	body := fmt.Sprintf("Syncing the following cookbooks to baseline `%s` for upstream `%s`: %v\n", plan.Baseline, u.Prefix, plan.Missing)
	return p.CreatePR(platform.CreatePROptions{
		Head:   branch,
		Base:   base,
		Title:  title,
		Body:   body,
		Labels: []string{botLabel, "onboarding"},
	})
}
