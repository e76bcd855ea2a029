// Package cherrypick applies one upstream commit onto the downstream repo,
// recording provenance, and routes the two ways a cherry-pick attempt can
// fail (already applied, or a genuine conflict) to their respective
// handlers.
package cherrypick

import (
	"fmt"
	"strings"

	"github.com/line-cook-bot/line-cook/classify"
	"github.com/line-cook-bot/line-cook/commitfilter"
	"github.com/line-cook-bot/line-cook/conflict"
	"github.com/line-cook-bot/line-cook/upstream"
	"github.com/line-cook-bot/line-cook/vcsdriver"
)

// ConflictError is returned when a cherry-pick hits a real (unresolvable)
// conflict. The caller is expected to surface Snapshot in a conflict issue
// and stop processing this upstream for the current run.
type ConflictError struct {
	Sha      string
	Real     []string
	Snapshot string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("cherry-pick of %s hit a real conflict in %d path(s)", e.Sha, len(e.Real))
}

// Outcome reports what Apply actually did.
type Outcome struct {
	// Applied is true if a new commit was created.
	Applied bool
	// Sha is the new downstream commit, if Applied.
	Sha string
}

// upstreamToDownstreamPath maps a path as it appears in the upstream's own
// repository ("redis/metadata.rb") to its path in the downstream repo
// ("cookbooks/pd_redis/metadata.rb").
func upstreamToDownstreamPath(path string, c *classify.Classifier, u *upstream.Upstream) string {
	name, rest, _ := strings.Cut(path, "/")
	return classify.CookbooksDir + "/" + c.DownstreamCookbookName(name, u) + "/" + rest
}

// IsAlreadyApplied compares each in-scope path the candidate commit touches
// (a path inside a cookbook directory that u syncs) against the current
// downstream HEAD. If every such path's content already matches downstream,
// the commit is a no-op. A commit that touches no in-scope paths at all
// (only top-level files, ignored cookbooks, or an empty/merge commit) is
// also considered already applied.
func IsAlreadyApplied(upstreamRepo *vcsdriver.Repo, c *classify.Classifier, u *upstream.Upstream, candidateSha string, downstreamRepo *vcsdriver.Repo) (bool, error) {
	out, err := upstreamRepo.Strict("show", "--name-only", "--pretty=format:", candidateSha)
	if err != nil {
		return false, fmt.Errorf("listing files touched by %s: %w", candidateSha, err)
	}
	touched := strings.FieldsFunc(out, func(r rune) bool { return r == '\n' })
	for _, upstreamPath := range touched {
		downstreamPath := upstreamToDownstreamPath(upstreamPath, c, u)
		if !strings.Contains(upstreamPath, "/") || !c.InScope(downstreamPath, u) {
			continue
		}
		upstreamContent, upstreamOK := upstreamRepo.FileAtRev(candidateSha, upstreamPath)
		downstreamContent, downstreamOK := downstreamRepo.FileAtRev("HEAD", downstreamPath)
		if upstreamOK != downstreamOK || upstreamContent != downstreamContent {
			return false, nil
		}
	}
	return true, nil
}

// Apply cherry-picks sha from the upstream onto downstreamRepo (which must
// have the upstream's commit already fetched/reachable). On success, the
// change is filtered and committed via commitfilter; on conflict, the
// cherry-pick is aborted and a *ConflictError is returned.
func Apply(downstreamRepo *vcsdriver.Repo, c *classify.Classifier, u *upstream.Upstream, sha string) (*Outcome, error) {
	// Upstream paths ("apache/...") live under a renamed directory downstream
	// ("cookbooks/fb_apache/..."); directoryRenames=true moves files the
	// commit adds there instead of reporting a file-location conflict.
	ok, _, _ := downstreamRepo.Try("-c", "merge.directoryRenames=true", "cherry-pick", "--no-commit", "--strategy-option=theirs", sha)
	if !ok {
		conflictingPaths, err := conflict.ConflictingFiles(downstreamRepo)
		if err != nil {
			conflict.AbortCherryPickSafely(downstreamRepo)
			return nil, fmt.Errorf("reading conflict state for %s: %w", sha, err)
		}
		cat := conflict.Categorize(c, conflictingPaths, u)
		if len(cat.Real) == 0 {
			if err := conflict.ResolveAutomatically(downstreamRepo, cat.AutoResolvable); err != nil {
				conflict.AbortCherryPickSafely(downstreamRepo)
				return nil, fmt.Errorf("auto-resolving conflict for %s: %w", sha, err)
			}
			result, err := commitfilter.FilterAndCommit(downstreamRepo, c, u, sha, sha)
			if err != nil {
				conflict.AbortCherryPickSafely(downstreamRepo)
				return nil, err
			}
			if !result.Committed {
				conflict.AbortCherryPickSafely(downstreamRepo)
				return &Outcome{Applied: false}, nil
			}
			return &Outcome{Applied: true, Sha: result.Sha}, nil
		}
		snapshot := conflict.CaptureConflictDetails(downstreamRepo, cat.Real)
		conflict.AbortCherryPickSafely(downstreamRepo)
		return nil, &ConflictError{Sha: sha, Real: cat.Real, Snapshot: snapshot}
	}

	result, err := commitfilter.FilterAndCommit(downstreamRepo, c, u, sha, sha)
	if err != nil {
		conflict.AbortCherryPickSafely(downstreamRepo)
		return nil, err
	}
	if !result.Committed {
		conflict.AbortCherryPickSafely(downstreamRepo)
		return &Outcome{Applied: false}, nil
	}
	return &Outcome{Applied: true, Sha: result.Sha}, nil
}
