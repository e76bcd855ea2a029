// Package conflict classifies and captures the aftermath of a failed
// cherry-pick: which conflicting paths are "real" (owned by the upstream
// currently being synced, and therefore unresolvable automatically) versus
// "auto-resolvable" (everything else, safely resolved by keeping HEAD's
// side), and renders a snapshot of the real conflicts for a GitHub issue.
package conflict

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/line-cook-bot/line-cook/classify"
	"github.com/line-cook-bot/line-cook/upstream"
	"github.com/line-cook-bot/line-cook/vcsdriver"
)

// Categorized splits a conflicted cherry-pick's touched paths into the ones
// that must block (Real) and the ones that can be silently resolved
// (AutoResolvable).
type Categorized struct {
	Real           []string
	AutoResolvable []string
}

// ConflictingFiles parses "git status --porcelain" output, returning every
// path in an unmerged state (any 'U' in the XY pair, or the AA/DD special
// cases for both-added/both-deleted).
func ConflictingFiles(repo *vcsdriver.Repo) ([]string, error) {
	lines, err := repo.StatusPorcelain()
	if err != nil {
		return nil, fmt.Errorf("reading status: %w", err)
	}
	var files []string
	for _, line := range lines {
		if len(line) < 4 {
			continue
		}
		xy := line[:2]
		if strings.Contains(xy, "U") || xy == "AA" || xy == "DD" {
			files = append(files, strings.TrimSpace(line[2:]))
		}
	}
	return files, nil
}

// Categorize splits conflicting paths by ownership: a path is "real" only if
// it belongs to the upstream currently being synced.
func Categorize(c *classify.Classifier, conflictingPaths []string, u *upstream.Upstream) *Categorized {
	cat := &Categorized{}
	for _, path := range conflictingPaths {
		if c.InScope(path, u) {
			cat.Real = append(cat.Real, path)
		} else {
			cat.AutoResolvable = append(cat.AutoResolvable, path)
		}
	}
	return cat
}

// ResolveAutomatically resolves every auto-resolvable path by taking HEAD's
// (the downstream's) side, and stages it.
func ResolveAutomatically(repo *vcsdriver.Repo, paths []string) error {
	for _, path := range paths {
		if _, err := repo.Strict("checkout", "--no-overlay", "--ours", "--", path); err != nil {
			return fmt.Errorf("resolving %q to our side: %w", path, err)
		}
		if _, err := repo.Strict("add", "--", path); err != nil {
			return fmt.Errorf("staging resolved %q: %w", path, err)
		}
	}
	return nil
}

// CaptureConflictDetails renders a Markdown snapshot of each real
// conflicting file's raw, marker-bearing content, for use in a conflict
// issue body. Files that can no longer be read (e.g. deleted by one side)
// are noted rather than causing a failure.
func CaptureConflictDetails(repo *vcsdriver.Repo, realPaths []string) string {
	var b strings.Builder
	for _, path := range realPaths {
		fmt.Fprintf(&b, "### %s\n\n", path)
		content, err := os.ReadFile(filepath.Join(repo.Dir, path))
		if err != nil {
			fmt.Fprintf(&b, "_(could not read file: %v)_\n\n", err)
			continue
		}
		b.WriteString("```\n")
		b.Write(content)
		if !strings.HasSuffix(string(content), "\n") {
			b.WriteString("\n")
		}
		b.WriteString("```\n\n")
	}
	return b.String()
}

// AbortCherryPickSafely tries "git cherry-pick --abort" first, falling back
// to a hard reset plus clean if the abort itself fails (e.g. because no
// cherry-pick sequencer state exists, or state is already corrupted).
func AbortCherryPickSafely(repo *vcsdriver.Repo) {
	if ok, _, _ := repo.Try("cherry-pick", "--abort"); ok {
		return
	}
	repo.Try("reset", "--hard", "HEAD")
	repo.Try("clean", "-fd")
}
