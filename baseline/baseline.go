// Package baseline infers the upstream commit a cookbook was originally
// vendored from, for cookbooks that don't yet carry a provenance trailer.
package baseline

import (
	"fmt"
	"strings"

	"github.com/line-cook-bot/line-cook/classify"
	"github.com/line-cook-bot/line-cook/upstream"
	"github.com/line-cook-bot/line-cook/vcsdriver"
)

// TreeEqual compares the tree of upstreamDir at rev, restricted to
// upstreamPath, against the tree of downstreamDir at downstreamRev,
// restricted to downstreamPath.
type TreeEqual func(upstreamDir, rev, upstreamPath, downstreamDir, downstreamRev, downstreamPath string) (bool, error)

// Detector finds per-cookbook baselines and reduces them to one global
// baseline per upstream.
type Detector struct {
	Classifier *classify.Classifier
	TreeEqual  TreeEqual
}

// New builds a Detector. treeEqual is injected so tests can avoid a full
// two-repository git fixture; production code should pass CompareTrees.
func New(c *classify.Classifier, treeEqual TreeEqual) *Detector {
	return &Detector{Classifier: c, TreeEqual: treeEqual}
}

// FindBaselineForCookbook walks the upstream history (starting from
// upstreamRev, e.g. a remote-tracking branch) of upstreamPath newest first
// and returns the first (most recent) upstream commit whose content for
// that path matches the downstream tree at downstreamRev. Returns ok=false
// if no match is found in the upstream's history.
func (d *Detector) FindBaselineForCookbook(upstreamRepo *vcsdriver.Repo, upstreamRev, upstreamPath string, downstreamDir, downstreamRev, downstreamPath string) (sha string, ok bool, err error) {
	hashes, err := upstreamRepo.LogHashes(upstreamRev, upstreamPath)
	if err != nil {
		return "", false, fmt.Errorf("listing upstream history for %q: %w", upstreamPath, err)
	}
	for _, candidate := range hashes {
		equal, err := d.TreeEqual(upstreamRepo.Dir, candidate, upstreamPath, downstreamDir, downstreamRev, downstreamPath)
		if err != nil {
			return "", false, err
		}
		if equal {
			return candidate, true, nil
		}
	}
	return "", false, nil
}

// GlobalResult is the outcome of reducing every cookbook's baseline down to
// one commit per upstream.
type GlobalResult struct {
	// Baseline is the single upstream commit every found cookbook baseline
	// reduces to via pairwise merge-base.
	Baseline string
	// Missing lists cookbooks for which no baseline could be found at all.
	Missing []string
}

// DetectGlobalBaseline finds a baseline for each cookbook u owns (in
// registry/declaration order, which is also iteration order here, since the
// pairwise merge-base reduction is order-dependent per design) and reduces
// them to a single commit.
func (d *Detector) DetectGlobalBaseline(upstreamRepo *vcsdriver.Repo, upstreamRev string, u *upstream.Upstream, cookbooks []string, downstreamDir, downstreamRev string) (*GlobalResult, error) {
	result := &GlobalResult{}
	var found []string
	for _, cookbook := range cookbooks {
		upstreamPath := d.Classifier.UpstreamPathFor(cookbook, u)
		downstreamPath := classify.CookbooksDir + "/" + cookbook
		sha, ok, err := d.FindBaselineForCookbook(upstreamRepo, upstreamRev, upstreamPath, downstreamDir, downstreamRev, downstreamPath)
		if err != nil {
			return nil, fmt.Errorf("finding baseline for %q: %w", cookbook, err)
		}
		if !ok {
			result.Missing = append(result.Missing, cookbook)
			continue
		}
		found = append(found, sha)
	}
	if len(found) == 0 {
		return result, nil
	}
	reduced := found[0]
	for _, next := range found[1:] {
		mb, err := upstreamRepo.MergeBase(reduced, next)
		if err != nil {
			return nil, fmt.Errorf("reducing baselines: %w", err)
		}
		reduced = mb
	}
	result.Baseline = reduced
	return result, nil
}

// CompareTrees is the production TreeEqual: it compares the "git ls-tree -r"
// blob listing of upstreamPath at rev in upstreamRepo against that of
// downstreamPath at downstreamRev in downstreamRepo, file by file, keyed by
// path relative to each directory. File modes are not compared.
func CompareTrees(upstreamRepo *vcsdriver.Repo, downstreamRepo *vcsdriver.Repo) TreeEqual {
	return func(_ string, rev, upstreamPath string, _ string, downstreamRev, downstreamPath string) (bool, error) {
		upstreamFiles, err := listFiles(upstreamRepo, rev, upstreamPath)
		if err != nil {
			return false, err
		}
		downstreamFiles, err := listFiles(downstreamRepo, downstreamRev, downstreamPath)
		if err != nil {
			return false, err
		}
		if len(upstreamFiles) != len(downstreamFiles) {
			return false, nil
		}
		for relPath, upstreamBlob := range upstreamFiles {
			downstreamBlob, ok := downstreamFiles[relPath]
			if !ok || downstreamBlob != upstreamBlob {
				return false, nil
			}
		}
		return true, nil
	}
}

// listFiles returns path (relative to prefix) -> blob hash for every file
// under prefix at rev.
func listFiles(repo *vcsdriver.Repo, rev, prefix string) (map[string]string, error) {
	out, err := repo.Strict("ls-tree", "-r", rev, "--", prefix)
	if err != nil {
		return nil, err
	}
	files := map[string]string{}
	if out == "" {
		return files, nil
	}
	for _, line := range strings.Split(out, "\n") {
		// "<mode> SP <type> SP <object> TAB <file>"
		tabIdx := strings.IndexByte(line, '\t')
		if tabIdx < 0 {
			continue
		}
		fields := strings.Fields(line[:tabIdx])
		if len(fields) < 3 {
			continue
		}
		files[strings.TrimPrefix(line[tabIdx+1:], prefix+"/")] = fields[2]
	}
	return files, nil
}
