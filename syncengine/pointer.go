package syncengine

import (
	"regexp"
	"strings"

	"github.com/line-cook-bot/line-cook/upstream"
	"github.com/line-cook-bot/line-cook/vcsdriver"
)

// trailerPattern matches a "<Key>: <sha>" commit trailer line.
func trailerPattern(key string) *regexp.Regexp {
	return regexp.MustCompile(`(?m)^` + regexp.QuoteMeta(key) + `:\s*([0-9a-fA-F]{7,40})\s*$`)
}

// GetCurrentPointer walks downstream history newest-first looking for u's
// trailer. The first commit (newest) carrying the trailer wins. A commit
// produced by a squash merge may carry the same trailer key more than once,
// one per upstream commit folded into the squash; in that case the winner
// is found by pairwise ancestry reduction against upstreamRepo, preferring
// the descendant (the more recently-published upstream commit). Ties
// between unrelated commits are broken by keeping whichever trailer value
// was encountered first in the commit message, not by any newer heuristic.
func GetCurrentPointer(downstreamRepo *vcsdriver.Repo, upstreamRepo *vcsdriver.Repo, u *upstream.Upstream) (sha string, found bool, err error) {
	hashes, err := downstreamRepo.LogHashes("HEAD", ".")
	if err != nil {
		return "", false, err
	}
	pattern := trailerPattern(u.TrailerKey())
	for _, commit := range hashes {
		message, err := downstreamRepo.CommitMessage(commit)
		if err != nil {
			return "", false, err
		}
		matches := pattern.FindAllStringSubmatch(message, -1)
		if len(matches) == 0 {
			continue
		}
		candidate := strings.ToLower(matches[0][1])
		for _, m := range matches[1:] {
			next := strings.ToLower(m[1])
			if upstreamRepo.IsAncestor(candidate, next) {
				candidate = next
			}
			// If next is an ancestor of candidate, or the two are unrelated,
			// candidate (the first-encountered value) is kept.
		}
		return candidate, true, nil
	}
	return "", false, nil
}

// UpstreamCommitsSince returns every commit reachable from branch but not
// from pointer, oldest first (the order they should be synced in).
func UpstreamCommitsSince(upstreamRepo *vcsdriver.Repo, branch, pointer string) ([]string, error) {
	out, err := upstreamRepo.Strict("rev-list", "--reverse", pointer+".."+branch)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}
