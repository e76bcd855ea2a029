package syncengine

import (
	"os"
	"strings"

	"github.com/line-cook-bot/line-cook/classify"
	"github.com/line-cook-bot/line-cook/upstream"
	"github.com/line-cook-bot/line-cook/vcsdriver"
)

// ListLocalCookbooks returns the names of every directory directly under
// cookbooks/ in the downstream working tree.
func ListLocalCookbooks(downstreamDir string) ([]string, error) {
	entries, err := os.ReadDir(downstreamDir + "/" + classify.CookbooksDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// CookbooksOwnedBy filters cookbooks to the ones owned (and actually
// synced) by u.
func CookbooksOwnedBy(c *classify.Classifier, cookbooks []string, u *upstream.Upstream) []string {
	var owned []string
	for _, cookbook := range cookbooks {
		owner, synced := c.Owner(cookbook)
		if synced && owner.Prefix == u.Prefix {
			owned = append(owned, cookbook)
		}
	}
	return owned
}

// DetectLocalChanges compares the downstream content of each cookbook u owns
// against the upstream content at pointer, and returns the cookbooks whose
// downstream content has drifted out from under the recorded pointer
// (edited directly downstream, rather than through a sync).
func DetectLocalChanges(downstreamRepo, upstreamRepo *vcsdriver.Repo, c *classify.Classifier, u *upstream.Upstream, pointer string, cookbooks []string) ([]string, error) {
	var diverging []string
	for _, cookbook := range cookbooks {
		upstreamPath := c.UpstreamPathFor(cookbook, u)
		downstreamPath := classify.CookbooksDir + "/" + cookbook
		equal, err := compareDirectories(upstreamRepo, pointer, upstreamPath, downstreamRepo, "HEAD", downstreamPath)
		if err != nil {
			return nil, err
		}
		if !equal {
			diverging = append(diverging, cookbook)
		}
	}
	return diverging, nil
}

// compareDirectories compares the ls-tree listing of two directories at two
// revisions across two repos.
func compareDirectories(aRepo *vcsdriver.Repo, aRev, aPath string, bRepo *vcsdriver.Repo, bRev, bPath string) (bool, error) {
	aFiles, err := treeFiles(aRepo, aRev, aPath)
	if err != nil {
		return false, err
	}
	bFiles, err := treeFiles(bRepo, bRev, bPath)
	if err != nil {
		return false, err
	}
	if len(aFiles) != len(bFiles) {
		return false, nil
	}
	for rel, blob := range aFiles {
		if bFiles[rel] != blob {
			return false, nil
		}
	}
	return true, nil
}

func treeFiles(repo *vcsdriver.Repo, rev, prefix string) (map[string]string, error) {
	out, err := repo.Strict("ls-tree", "-r", rev, "--", prefix)
	if err != nil {
		return nil, err
	}
	files := map[string]string{}
	if out == "" {
		return files, nil
	}
	for _, line := range strings.Split(out, "\n") {
		tab := strings.IndexByte(line, '\t')
		if tab < 0 {
			continue
		}
		fields := strings.Fields(line[:tab])
		if len(fields) < 3 {
			continue
		}
		files[strings.TrimPrefix(line[tab+1:], prefix+"/")] = fields[2]
	}
	return files, nil
}
