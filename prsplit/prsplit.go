// Package prsplit implements the bot-comment command surface: splitting a
// range of commits off an open sync PR into a PR of its own, and rebasing an
// open PR's branch onto the current base branch.
package prsplit

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/line-cook-bot/line-cook/platform"
	"github.com/line-cook-bot/line-cook/upstream"
	"github.com/line-cook-bot/line-cook/vcsdriver"
)

// ParseCommand extracts a verb and its argument string from the first line
// of a triggering comment, e.g. "#linecook split abc123-def456" parses to
// ("split", "abc123-def456"). ok is false if the comment doesn't start with
// prefix at all.
func ParseCommand(comment, prefix string) (verb, args string, ok bool) {
	line := strings.SplitN(strings.TrimSpace(comment), "\n", 2)[0]
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, prefix) {
		return "", "", false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(line, prefix))
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", "", false
	}
	return fields[0], strings.Join(fields[1:], " "), true
}

// ParseSplitArgs splits "fromSha-toSha" into its two short SHAs.
func ParseSplitArgs(args string) (from, to string, ok bool) {
	parts := strings.Split(args, "-")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

var trailerLinePattern = regexp.MustCompile(`(?m)^(?:-\s*)?(?:([A-Za-z0-9]+)_)?Upstream-Commit:\s*([0-9a-fA-F]{7,40})\s*$`)

// trailersInOrder returns every trailer value in body in the order they
// appear (the ordering syncengine.formatSyncPRBody writes them in: oldest
// first), alongside the upstream prefix each was written against (empty for
// the primary upstream).
func trailersInOrder(body string) []trailerEntry {
	matches := trailerLinePattern.FindAllStringSubmatch(body, -1)
	entries := make([]trailerEntry, 0, len(matches))
	for _, m := range matches {
		entries = append(entries, trailerEntry{Prefix: m[1], Sha: strings.ToLower(m[2])})
	}
	return entries
}

type trailerEntry struct {
	Prefix string
	Sha    string
}

// DetermineUpstreamFromPR identifies which configured upstream a PR concerns,
// first from its branch name (every sync/onboarding branch this bot creates
// is named "<prBranchPrefix>/<upstreamPrefix>_..."), falling back to the
// first commit trailer found in its body.
func DetermineUpstreamFromPR(reg *upstream.Registry, prBranchPrefix, headRefName, body string) (*upstream.Upstream, bool) {
	rest := strings.TrimPrefix(headRefName, prBranchPrefix+"/")
	if rest != headRefName {
		candidate := rest
		if idx := strings.IndexByte(rest, '_'); idx >= 0 {
			candidate = rest[:idx]
		}
		if u, ok := reg.ByPrefix(candidate); ok {
			return u, true
		}
	}
	entries := trailersInOrder(body)
	if len(entries) == 0 {
		return nil, false
	}
	if entries[0].Prefix == "" {
		return reg.Primary, true
	}
	return reg.ByPrefix(entries[0].Prefix)
}

// Split carves the inclusive range [fromSha, toSha] out of the sync PR
// prNumber and opens it as its own PR, rewriting the original PR's body to
// list only the commits that remain. The range must be a contiguous prefix
// or suffix of the PR's ordered trailer list; a middle range can't be split
// out without reordering history, which this bot never does.
func Split(p *platform.Client, downstreamRepo *vcsdriver.Repo, reg *upstream.Registry, prBranchPrefix, baseBranch, splitLabel, botLabel string, prNumber int, args string) error {
	fromShort, toShort, ok := ParseSplitArgs(args)
	if !ok {
		return fmt.Errorf("invalid split arguments %q: expected \"<fromSha>-<toSha>\"", args)
	}

	pr, err := p.ViewPR(prNumber)
	if err != nil {
		return fmt.Errorf("viewing PR #%d: %w", prNumber, err)
	}
	u, ok := DetermineUpstreamFromPR(reg, prBranchPrefix, pr.HeadRefName, pr.Body)
	if !ok {
		return fmt.Errorf("could not determine upstream for PR #%d", prNumber)
	}

	entries := trailersInOrder(pr.Body)
	fromIdx := indexByShaPrefix(entries, fromShort)
	toIdx := indexByShaPrefix(entries, toShort)
	if fromIdx < 0 || toIdx < 0 || toIdx < fromIdx {
		return fmt.Errorf("invalid commit SHAs %q: not found in PR #%d", args, prNumber)
	}
	if fromIdx != 0 && toIdx != len(entries)-1 {
		return fmt.Errorf("split range must be contiguous from one end of the PR's commit list")
	}

	splitOut := entries[fromIdx : toIdx+1]
	remaining := append(append([]trailerEntry{}, entries[:fromIdx]...), entries[toIdx+1:]...)

	if err := p.EditPRBody(prNumber, formatTrailerBody(u, remaining)); err != nil {
		return fmt.Errorf("updating original PR body: %w", err)
	}

	splitBranch := fmt.Sprintf("%s/%s-split-%s", prBranchPrefix, u.Prefix, fromShort)
	if _, err := downstreamRepo.Strict("checkout", "-B", splitBranch, baseBranch); err != nil {
		return fmt.Errorf("creating split branch: %w", err)
	}
	for _, entry := range splitOut {
		if _, err := downstreamRepo.Strict("cherry-pick", entry.Sha); err != nil {
			downstreamRepo.Try("cherry-pick", "--abort")
			return fmt.Errorf("cherry-picking %s onto split branch: %w", entry.Sha, err)
		}
	}
	if _, err := downstreamRepo.Strict("push", "--force", "origin", splitBranch); err != nil {
		return fmt.Errorf("pushing split branch: %w", err)
	}

	title := fmt.Sprintf("[%s] Split from #%d: %s", prBranchPrefix, prNumber, u.Prefix)
	newPRNumber, err := p.CreatePR(platform.CreatePROptions{
		Head:   splitBranch,
		Base:   baseBranch,
		Title:  title,
		Body:   formatTrailerBody(u, splitOut),
		Labels: []string{botLabel, splitLabel},
	})
	if err != nil {
		return fmt.Errorf("creating split PR: %w", err)
	}

	if _, err := downstreamRepo.Strict("checkout", baseBranch); err != nil {
		return fmt.Errorf("returning to base branch: %w", err)
	}

	return p.CommentOnPR(prNumber, fmt.Sprintf("Split %d commit(s) out into #%d.", len(splitOut), newPRNumber))
}

func indexByShaPrefix(entries []trailerEntry, short string) int {
	short = strings.ToLower(short)
	for i, e := range entries {
		if strings.HasPrefix(e.Sha, short) {
			return i
		}
	}
	return -1
}

func formatTrailerBody(u *upstream.Upstream, entries []trailerEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Syncing %d commit(s) from upstream `%s`.\n\n", len(entries), u.Prefix)
	for _, e := range entries {
		fmt.Fprintf(&b, "- %s: %s\n", u.TrailerKey(), e.Sha)
	}
	return b.String()
}

// Rebase fetches the PR's head branch and baseBranch from origin, rebases the
// PR's branch onto origin/baseBranch, and force-pushes the result. The
// upstream's own remote is not fetched. A conflict aborts the rebase and returns
// an error describing it, leaving the branch untouched for manual
// resolution.
func Rebase(p *platform.Client, downstreamRepo *vcsdriver.Repo, reg *upstream.Registry, prBranchPrefix, baseBranch string, prNumber int) error {
	pr, err := p.ViewPR(prNumber)
	if err != nil {
		return fmt.Errorf("viewing PR #%d: %w", prNumber, err)
	}
	_, ok := DetermineUpstreamFromPR(reg, prBranchPrefix, pr.HeadRefName, pr.Body)
	if !ok {
		return fmt.Errorf("could not determine upstream for PR #%d", prNumber)
	}

	if _, err := downstreamRepo.Strict("fetch", "origin", pr.HeadRefName); err != nil {
		return fmt.Errorf("fetching %s: %w", pr.HeadRefName, err)
	}
	if _, err := downstreamRepo.Strict("checkout", "-B", pr.HeadRefName, "origin/"+pr.HeadRefName); err != nil {
		return fmt.Errorf("checking out %s: %w", pr.HeadRefName, err)
	}
	if _, err := downstreamRepo.Strict("fetch", "origin", baseBranch); err != nil {
		return fmt.Errorf("fetching %s: %w", baseBranch, err)
	}
	if _, err := downstreamRepo.Strict("rebase", "origin/"+baseBranch); err != nil {
		downstreamRepo.Try("rebase", "--abort")
		return fmt.Errorf("Rebase failed with conflicts: %w", err)
	}
	if _, err := downstreamRepo.Strict("push", "--force", "origin", pr.HeadRefName); err != nil {
		return fmt.Errorf("pushing rebased branch: %w", err)
	}

	if err := p.EditPRBody(prNumber, pr.Body); err != nil {
		return fmt.Errorf("updating PR body after rebase: %w", err)
	}
	return p.CommentOnPR(prNumber, "Rebased onto "+baseBranch+".")
}

// HandleCommand parses a triggering comment and dispatches to the matching
// command, posting a comment back on failure (unknown verb or command
// error) instead of letting either propagate to the caller: a malformed
// bot command shouldn't fail the whole event handler.
func HandleCommand(p *platform.Client, downstreamRepo *vcsdriver.Repo, reg *upstream.Registry, prBranchPrefix, baseBranch, splitLabel, botLabel, botCommandPrefix, comment string, prNumber int) {
	verb, args, ok := ParseCommand(comment, botCommandPrefix)
	if !ok {
		return
	}

	var err error
	switch verb {
	case "split":
		err = Split(p, downstreamRepo, reg, prBranchPrefix, baseBranch, splitLabel, botLabel, prNumber, args)
	case "rebase":
		err = Rebase(p, downstreamRepo, reg, prBranchPrefix, baseBranch, prNumber)
	default:
		p.CommentOnPR(prNumber, "Unknown command: "+verb)
		return
	}
	if err != nil {
		p.CommentOnPR(prNumber, fmt.Sprintf("Failed to execute command: %v", err))
	}
}
