// Package classify maps cookbooks/ paths to the upstream that owns them.
package classify

import (
	"strings"

	"github.com/line-cook-bot/line-cook/upstream"
)

// CookbooksDir is the root directory every cookbook lives under.
const CookbooksDir = "cookbooks"

// Classifier resolves a repository path to the owning upstream and cookbook name.
type Classifier struct {
	Registry *upstream.Registry
}

// New builds a Classifier bound to reg.
func New(reg *upstream.Registry) *Classifier {
	return &Classifier{Registry: reg}
}

// CookbookName returns the top-level cookbook directory name for a
// "cookbooks/<name>/..." path, or "" if path isn't under cookbooks/.
func CookbookName(path string) string {
	rest, ok := strings.CutPrefix(path, CookbooksDir+"/")
	if !ok {
		return ""
	}
	name, _, _ := strings.Cut(rest, "/")
	return name
}

// Owner returns the upstream that owns cookbookName, and whether it's a
// cookbook that's actually synced (false if no upstream's prefix matches, or
// the matching upstream ignores it). A cookbookName that starts with no
// registered upstream's "<prefix>_" is unowned, including for the primary
// upstream: primary cookbooks are prefixed in cookbooks/ like any other
// upstream's.
func (c *Classifier) Owner(cookbookName string) (u *upstream.Upstream, owned bool) {
	if cookbookName == "" {
		return nil, false
	}
	var best *upstream.Upstream
	for _, candidate := range c.Registry.All() {
		prefix := candidate.Prefix + "_"
		if strings.HasPrefix(cookbookName, prefix) {
			if best == nil || len(candidate.Prefix) > len(best.Prefix) {
				best = candidate
			}
		}
	}
	if best == nil {
		return nil, false
	}
	if best.Ignores(cookbookName) {
		return best, false
	}
	return best, true
}

// InScope reports whether path (a repo-relative path) belongs to u: it's
// under cookbooks/, its cookbook name is owned by u, and u actually syncs it.
func (c *Classifier) InScope(path string, u *upstream.Upstream) bool {
	name := CookbookName(path)
	if name == "" {
		return false
	}
	owner, owned := c.Owner(name)
	return owned && owner.Prefix == u.Prefix
}

// UpstreamPathFor converts a downstream cookbook directory name to the path
// it has in the upstream's own repository (upstream repos don't carry the
// prefix in their own directory names).
func (c *Classifier) UpstreamPathFor(cookbookName string, u *upstream.Upstream) string {
	rest, ok := strings.CutPrefix(cookbookName, u.Prefix+"_")
	if !ok {
		return cookbookName
	}
	return rest
}

// DownstreamCookbookName converts an upstream-relative cookbook directory
// name to its downstream name, prefixed with u.Prefix like any other
// upstream's.
func (c *Classifier) DownstreamCookbookName(upstreamName string, u *upstream.Upstream) string {
	return u.Prefix + "_" + upstreamName
}
