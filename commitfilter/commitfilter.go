// Package commitfilter commits only the in-scope portion of whatever is
// currently staged/modified in the working tree, after a cherry-pick (or a
// merge) lands changes outside one upstream's ownership.
package commitfilter

import (
	"fmt"
	"strings"

	"github.com/line-cook-bot/line-cook/classify"
	"github.com/line-cook-bot/line-cook/upstream"
	"github.com/line-cook-bot/line-cook/vcsdriver"
)

// Result reports what FilterAndCommit actually did.
type Result struct {
	// Committed is true if a new commit was created.
	Committed bool
	// Sha is the new commit's hash, if Committed.
	Sha string
	// KeptPaths lists the paths that were staged and committed.
	KeptPaths []string
}

// FilterAndCommit unstages everything, re-stages only paths that classifier
// says belong to u, and commits them preserving author and message from
// sourceRev, appending the trailer if not already present. If nothing
// remains staged after filtering, it's a no-op (Result.Committed == false).
func FilterAndCommit(repo *vcsdriver.Repo, c *classify.Classifier, u *upstream.Upstream, sourceRev, trailerSha string) (*Result, error) {
	if _, err := repo.Strict("reset"); err != nil {
		return nil, fmt.Errorf("resetting index: %w", err)
	}

	// List untracked files individually: after the reset, files the change
	// added are untracked, and plain --porcelain would fold them into their
	// parent directory.
	status, err := repo.Strict("status", "--porcelain", "--untracked-files=all")
	if err != nil {
		return nil, fmt.Errorf("reading status: %w", err)
	}
	var lines []string
	if status != "" {
		lines = strings.Split(status, "\n")
	}

	var kept []string
	for _, line := range lines {
		path := statusPath(line)
		if path == "" {
			continue
		}
		if c.InScope(path, u) {
			if _, err := repo.Strict("add", "--", path); err != nil {
				return nil, fmt.Errorf("staging %q: %w", path, err)
			}
			kept = append(kept, path)
		}
	}

	if len(kept) == 0 {
		return &Result{Committed: false}, nil
	}

	message, err := repo.CommitMessage(sourceRev)
	if err != nil {
		return nil, fmt.Errorf("reading source commit message: %w", err)
	}
	author, err := repo.CommitAuthor(sourceRev)
	if err != nil {
		return nil, fmt.Errorf("reading source commit author: %w", err)
	}

	trailerLine := fmt.Sprintf("%s: %s", u.TrailerKey(), trailerSha)
	if !strings.Contains(message, trailerLine) {
		message = strings.TrimRight(message, "\n") + "\n\n" + trailerLine
	}

	if _, err := repo.Strict("commit", "--author", author, "-m", message); err != nil {
		return nil, fmt.Errorf("committing filtered change: %w", err)
	}
	sha, err := repo.RevParse("HEAD")
	if err != nil {
		return nil, err
	}
	return &Result{Committed: true, Sha: sha, KeptPaths: kept}, nil
}

// statusPath extracts the path from a "git status --porcelain" line, which
// is "XY path" or, for renames, "XY old -> new" (the new path is kept).
func statusPath(line string) string {
	if len(line) < 4 {
		return ""
	}
	rest := strings.TrimSpace(line[2:])
	if idx := strings.Index(rest, " -> "); idx >= 0 {
		rest = rest[idx+4:]
	}
	return strings.Trim(rest, `"`)
}
