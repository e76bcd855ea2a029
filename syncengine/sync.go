// Package syncengine orchestrates a full sync run: for each configured
// upstream, fetch, resolve the current pointer (or onboard if there isn't
// one yet), detect local drift, cherry-pick new upstream commits with
// provenance trailers, open/update the sync PR, and garbage-collect
// conflict issues that have since been resolved.
package syncengine

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/line-cook-bot/line-cook/cherrypick"
	"github.com/line-cook-bot/line-cook/classify"
	"github.com/line-cook-bot/line-cook/platform"
	"github.com/line-cook-bot/line-cook/upstream"
	"github.com/line-cook-bot/line-cook/vcsdriver"
)

// Options configures a single sync run.
type Options struct {
	DryRun        bool
	DownstreamDir string
	// DownstreamRepoSlug is "owner/name", used for gh invocations.
	DownstreamRepoSlug string
	BaseBranch         string
	PRBranchPrefix     string
	BotLabel           string
	Registry           *upstream.Registry
}

// UpstreamResult reports what happened while syncing one upstream.
type UpstreamResult struct {
	Upstream *upstream.Upstream
	// Skipped explains why nothing happened, if anything.
	Skipped string
	// Onboarded is set if this upstream had no pointer and was onboarded.
	Onboarded bool
	// AppliedCommits lists upstream commits that were cherry-picked.
	AppliedCommits []string
	// ConflictIssue is the issue number raised if a cherry-pick hit a real
	// conflict, stopping further processing of this upstream this run.
	ConflictIssue int
	// PRNumber is the sync or onboarding PR opened/updated for this upstream, if any.
	PRNumber int
	// FixupPRNumber is the fixup PR opened for cookbooks with no matching
	// baseline, if onboarding found any.
	FixupPRNumber int
}

// Run processes every configured upstream, primary first, each isolated by
// its own error boundary so a failure syncing one upstream doesn't prevent
// the others from being attempted. Concurrency is capped at 1: upstreams
// share the same downstream working tree and must be processed in a fixed,
// deterministic order.
func Run(opts Options) ([]*UpstreamResult, error) {
	downstreamRepo := vcsdriver.New(opts.DownstreamDir, opts.DryRun)
	c := classify.New(opts.Registry)
	p := platform.New(opts.DownstreamRepoSlug, opts.DryRun)

	var results []*UpstreamResult
	g := new(errgroup.Group)
	g.SetLimit(1)
	for _, u := range opts.Registry.All() {
		u := u
		g.Go(func() error {
			result, err := runOneUpstream(opts, downstreamRepo, c, p, u)
			if result != nil {
				results = append(results, result)
			}
			if err != nil {
				fmt.Printf("==== Error syncing upstream %q: %v\n", u.Prefix, err)
			}
			return nil // Never abort the group: each upstream's errors are isolated.
		})
	}
	g.Wait() // never returns a non-nil error: every Go func above always returns nil.
	return results, nil
}

func runOneUpstream(opts Options, downstreamRepo *vcsdriver.Repo, c *classify.Classifier, p *platform.Client, u *upstream.Upstream) (*UpstreamResult, error) {
	result := &UpstreamResult{Upstream: u}
	fmt.Printf("==== Syncing upstream %q (%s)\n", u.Prefix, u.RepoURL)

	// A remote left over from a previous run is harmless to remove; ignore
	// failure, since it usually just means the remote didn't exist yet.
	downstreamRepo.Try("remote", "remove", u.RemoteName())
	if _, err := downstreamRepo.Strict("remote", "add", u.RemoteName(), u.RepoURL); err != nil {
		return result, fmt.Errorf("adding remote: %w", err)
	}
	branch := u.Branch
	if branch == "" {
		branch = "main"
	}
	if _, err := downstreamRepo.Strict("fetch", u.RemoteName(), branch); err != nil {
		return result, fmt.Errorf("fetching: %w", err)
	}

	upstreamRepo := vcsdriver.New(opts.DownstreamDir, opts.DryRun)
	upstreamRef := u.RemoteName() + "/" + branch

	pointer, found, err := GetCurrentPointer(downstreamRepo, upstreamRepo, u)
	if err != nil {
		return result, fmt.Errorf("resolving current pointer: %w", err)
	}

	if !found {
		plan, err := Onboard(downstreamRepo, upstreamRepo, c, u, upstreamRef)
		if err != nil {
			return result, fmt.Errorf("onboarding: %w", err)
		}
		if plan.Baseline == "" && len(plan.Missing) == 0 {
			result.Skipped = "no cookbooks owned by this upstream"
			return result, nil
		}
		onboardBranch := fmt.Sprintf("%s/%s_onboard", opts.PRBranchPrefix, u.Prefix)
		if _, err := downstreamRepo.Strict("checkout", "-B", onboardBranch, "HEAD"); err != nil {
			return result, fmt.Errorf("creating onboarding branch: %w", err)
		}
		if _, err := StageOnboardingCommit(downstreamRepo, u, plan); err != nil {
			return result, fmt.Errorf("staging onboarding commit: %w", err)
		}
		if _, err := downstreamRepo.Strict("push", "--force", "origin", onboardBranch); err != nil {
			return result, fmt.Errorf("pushing onboarding branch: %w", err)
		}
		prNumber, err := CreateOnboardingPR(p, opts.BaseBranch, onboardBranch, opts.PRBranchPrefix, opts.BotLabel, u, plan)
		if err != nil {
			return result, fmt.Errorf("creating onboarding PR: %w", err)
		}
		result.Onboarded = true
		result.PRNumber = prNumber

		if len(plan.Missing) > 0 && plan.Baseline != "" {
			fixupBranch := fmt.Sprintf("%s/%s_fix_missing_baselines", opts.PRBranchPrefix, u.Prefix)
			if _, err := downstreamRepo.Strict("checkout", "-B", fixupBranch, onboardBranch); err != nil {
				return result, fmt.Errorf("creating fixup branch: %w", err)
			}
			if _, err := StageFixupCommit(downstreamRepo, upstreamRepo, c, u, plan); err != nil {
				return result, fmt.Errorf("staging fixup commit: %w", err)
			}
			if _, err := downstreamRepo.Strict("push", "--force", "origin", fixupBranch); err != nil {
				return result, fmt.Errorf("pushing fixup branch: %w", err)
			}
			fixupPRNumber, err := CreateFixupPR(p, opts.BaseBranch, fixupBranch, opts.PRBranchPrefix, opts.BotLabel, u, plan)
			if err != nil {
				return result, fmt.Errorf("creating fixup PR: %w", err)
			}
			result.FixupPRNumber = fixupPRNumber
		}

		downstreamRepo.Strict("checkout", opts.BaseBranch)
		return result, nil
	}

	cookbooks, err := ListLocalCookbooks(opts.DownstreamDir)
	if err != nil {
		return result, fmt.Errorf("listing local cookbooks: %w", err)
	}
	owned := CookbooksOwnedBy(c, cookbooks, u)

	diverging, err := DetectLocalChanges(downstreamRepo, upstreamRepo, c, u, pointer, owned)
	if err != nil {
		return result, fmt.Errorf("detecting local changes: %w", err)
	}
	if len(diverging) > 0 {
		if err := reportLocalChanges(p, opts.BotLabel, u, diverging); err != nil {
			return result, fmt.Errorf("reporting local changes: %w", err)
		}
	}

	commits, err := UpstreamCommitsSince(upstreamRepo, upstreamRef, pointer)
	if err != nil {
		return result, fmt.Errorf("listing upstream commits since %s: %w", pointer, err)
	}
	if len(commits) == 0 {
		result.Skipped = "up to date"
		return result, nil
	}

	prBranch := fmt.Sprintf("%s/%s_/update", opts.PRBranchPrefix, u.Prefix)
	if _, err := downstreamRepo.Strict("checkout", "-B", prBranch, "HEAD"); err != nil {
		return result, fmt.Errorf("creating sync branch: %w", err)
	}

	for _, sha := range commits {
		applied, err := cherrypick.IsAlreadyApplied(upstreamRepo, c, u, sha, downstreamRepo)
		if err != nil {
			return result, fmt.Errorf("checking %s already applied: %w", sha, err)
		}
		if applied {
			continue
		}
		outcome, err := cherrypick.Apply(downstreamRepo, c, u, sha)
		if err != nil {
			var conflictErr *cherrypick.ConflictError
			if asConflictError(err, &conflictErr) {
				issueNum, issueErr := createConflictIssue(p, opts.BotLabel, u, conflictErr)
				if issueErr != nil {
					return result, fmt.Errorf("creating conflict issue: %w", issueErr)
				}
				result.ConflictIssue = issueNum
				break
			}
			return result, fmt.Errorf("cherry-picking %s: %w", sha, err)
		}
		if outcome.Applied {
			result.AppliedCommits = append(result.AppliedCommits, sha)
		}
	}

	if len(result.AppliedCommits) > 0 {
		if _, err := downstreamRepo.Strict("push", "--force", "origin", prBranch); err != nil {
			return result, fmt.Errorf("pushing sync branch: %w", err)
		}
		prNumber, err := createOrUpdateSyncPR(p, opts, u, prBranch, result.AppliedCommits)
		if err != nil {
			return result, fmt.Errorf("creating/updating sync PR: %w", err)
		}
		result.PRNumber = prNumber
	}

	if err := closeResolvedConflictIssues(p, upstreamRepo, opts.BotLabel, u, pointerAfter(result, pointer)); err != nil {
		return result, fmt.Errorf("closing resolved conflict issues: %w", err)
	}

	downstreamRepo.Strict("checkout", opts.BaseBranch)
	return result, nil
}

func pointerAfter(result *UpstreamResult, original string) string {
	if len(result.AppliedCommits) == 0 {
		return original
	}
	return result.AppliedCommits[len(result.AppliedCommits)-1]
}

// asConflictError is a small helper so callers don't need to import errors
// just to type-assert a wrapped *cherrypick.ConflictError.
func asConflictError(err error, target **cherrypick.ConflictError) bool {
	ce, ok := err.(*cherrypick.ConflictError)
	if ok {
		*target = ce
	}
	return ok
}

func reportLocalChanges(p *platform.Client, botLabel string, u *upstream.Upstream, diverging []string) error {
	title := fmt.Sprintf("Local changes detected in %s cookbooks", u.Prefix)
	issues, err := p.ListOpenIssuesByLabel(botLabel)
	if err != nil {
		return err
	}
	body := fmt.Sprintf("The following cookbooks for upstream `%s` have diverged from their recorded sync pointer and were not touched by this sync run: %v\n", u.Prefix, diverging)
	for _, issue := range issues {
		if issue.Title == title {
			return p.CommentOnIssue(issue.Number, body)
		}
	}
	_, err = p.CreateIssue(platform.CreateIssueOptions{
		Title:  title,
		Body:   body,
		Labels: []string{botLabel, "local-changes"},
	})
	return err
}

func createConflictIssue(p *platform.Client, botLabel string, u *upstream.Upstream, ce *cherrypick.ConflictError) (int, error) {
	shortSha := ce.Sha
	if len(shortSha) > 7 {
		shortSha = shortSha[:7]
	}
	title := fmt.Sprintf("Sync conflict applying upstream commit %s", shortSha)
	body := fmt.Sprintf("Cherry-picking `%s` from upstream `%s` hit a conflict in:\n\n%v\n\n%s", ce.Sha, u.Prefix, ce.Real, ce.Snapshot)
	return p.CreateIssue(platform.CreateIssueOptions{
		Title:  title,
		Body:   body,
		Labels: []string{botLabel, "conflict"},
	})
}

func createOrUpdateSyncPR(p *platform.Client, opts Options, u *upstream.Upstream, branch string, applied []string) (int, error) {
	title := fmt.Sprintf("[%s] Sync %d commit(s) from %s", opts.PRBranchPrefix, len(applied), u.Prefix)
	body := formatSyncPRBody(u, applied)
	existing, ok, err := p.FindOpenPRByBranch(branch)
	if err != nil {
		return 0, err
	}
	if ok {
		if err := p.EditPRBody(existing.Number, body); err != nil {
			return 0, err
		}
		return existing.Number, nil
	}
	return p.CreatePR(platform.CreatePROptions{
		Head:   branch,
		Base:   opts.BaseBranch,
		Title:  title,
		Body:   body,
		Labels: []string{opts.BotLabel},
	})
}

// formatSyncPRBody lists every applied commit's trailer value as one line,
// oldest first: this is the ordered trailer list prsplit's trailersInOrder
// reads back.
func formatSyncPRBody(u *upstream.Upstream, applied []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Syncing %d commit(s) from upstream `%s`.\n\n", len(applied), u.Prefix)
	for _, sha := range applied {
		fmt.Fprintf(&b, "- %s: %s\n", u.TrailerKey(), sha)
	}
	return b.String()
}

var conflictIssueTitle = regexp.MustCompile(`^Sync conflict applying upstream commit ([0-9a-fA-F]+)$`)

// closeResolvedConflictIssues closes every open bot-labeled conflict issue
// whose commit is now an ancestor of (or equal to) currentPointer, leaving open
// whichever issue (if any) is still actively blocking this run.
func closeResolvedConflictIssues(p *platform.Client, upstreamRepo *vcsdriver.Repo, botLabel string, u *upstream.Upstream, currentPointer string) error {
	issues, err := p.ListOpenIssuesByLabel(botLabel)
	if err != nil {
		return err
	}
	for _, issue := range issues {
		m := conflictIssueTitle.FindStringSubmatch(issue.Title)
		if m == nil {
			continue
		}
		shortSha := m[1]
		full, resolveErr := upstreamRepo.RevParse(shortSha)
		if resolveErr != nil {
			continue
		}
		if full == currentPointer || upstreamRepo.IsAncestor(full, currentPointer) {
			if err := p.CloseIssue(issue.Number, "Resolved: this commit has since been applied."); err != nil {
				return err
			}
		}
	}
	return nil
}
