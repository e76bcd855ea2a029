// Package upstream models the registry of upstream repositories line-cook
// mirrors cookbook directories from.
package upstream

import "fmt"

// DefaultPrefix, DefaultRepoURL, and DefaultIgnoreCookbooks describe the
// built-in primary upstream used when a config file doesn't override it.
const (
	DefaultPrefix  = "fb"
	DefaultRepoURL = "https://www.github.com/facebook/chef-cookbooks.git"
)

// DefaultIgnoreCookbooks lists cookbooks the primary upstream never syncs.
var DefaultIgnoreCookbooks = []string{"fb_init", "fb_init_sample"}

// Upstream is one registered source repository.
type Upstream struct {
	// Key is the config-file key this upstream was declared under
	// ("upstream_overrides" collapses to Key == Prefix).
	Key string
	// Prefix is the short identifier used in cookbook directory names,
	// branch names, and trailer keys.
	Prefix string
	// RepoURL is the git remote to fetch from.
	RepoURL string
	// Branch is the upstream branch synced from. Empty means "main".
	Branch string
	// IgnoreCookbooks lists cookbook directory names under this upstream's
	// prefix that are never synced.
	IgnoreCookbooks []string
	// IsPrimary is true for the single upstream whose trailer key has no
	// prefix (Upstream-Commit rather than <prefix>_Upstream-Commit). Its
	// cookbooks are still stored under the Prefix-prefixed directory name
	// in cookbooks/, like any other upstream's.
	IsPrimary bool
}

// RemoteName is the git remote name this upstream is fetched under.
func (u *Upstream) RemoteName() string {
	return u.Prefix + "_upstream"
}

// TrailerKey is the commit trailer key used to record provenance for
// commits cherry-picked from this upstream.
func (u *Upstream) TrailerKey() string {
	if u.IsPrimary {
		return "Upstream-Commit"
	}
	return u.Prefix + "_Upstream-Commit"
}

// Ignores reports whether cookbook is in this upstream's ignore list.
func (u *Upstream) Ignores(cookbook string) bool {
	for _, c := range u.IgnoreCookbooks {
		if c == cookbook {
			return true
		}
	}
	return false
}

// Registry is the full set of configured upstreams, keyed by prefix.
type Registry struct {
	// Primary is the upstream whose trailer key carries no prefix.
	Primary *Upstream
	// Universe holds every other configured upstream, in declaration order.
	Universe []*Upstream
}

// All returns every upstream, primary first, in a stable order.
func (r *Registry) All() []*Upstream {
	all := make([]*Upstream, 0, 1+len(r.Universe))
	all = append(all, r.Primary)
	all = append(all, r.Universe...)
	return all
}

// ByPrefix looks up a registered upstream by its prefix.
func (r *Registry) ByPrefix(prefix string) (*Upstream, bool) {
	for _, u := range r.All() {
		if u.Prefix == prefix {
			return u, true
		}
	}
	return nil, false
}

// OverrideSpec carries the fields a config file may set for the primary upstream.
type OverrideSpec struct {
	Prefix          string
	RepoURL         string
	IgnoreCookbooks []string
}

// UniverseSpec carries the fields a config file sets for an additional upstream.
type UniverseSpec struct {
	Key             string
	Prefix          string
	RepoURL         string
	Branch          string
	IgnoreCookbooks []string
}

// NewRegistry builds a Registry from an optional primary override and zero
// or more additional upstreams, applying the built-in defaults wherever the
// override leaves a field unset.
func NewRegistry(override *OverrideSpec, universe []UniverseSpec) (*Registry, error) {
	primary := &Upstream{
		Key:             DefaultPrefix,
		Prefix:          DefaultPrefix,
		RepoURL:         DefaultRepoURL,
		IgnoreCookbooks: append([]string(nil), DefaultIgnoreCookbooks...),
		IsPrimary:       true,
	}
	if override != nil {
		if override.Prefix != "" {
			primary.Key = override.Prefix
			primary.Prefix = override.Prefix
		}
		if override.RepoURL != "" {
			primary.RepoURL = override.RepoURL
		}
		if override.IgnoreCookbooks != nil {
			primary.IgnoreCookbooks = override.IgnoreCookbooks
		}
	}

	reg := &Registry{Primary: primary}
	seen := map[string]string{primary.Prefix: primary.Key}
	for _, u := range universe {
		if u.Prefix == "" {
			return nil, fmt.Errorf("universe upstream %q missing required 'prefix'", u.Key)
		}
		if u.RepoURL == "" {
			return nil, fmt.Errorf("universe upstream %q missing required 'repo_url'", u.Key)
		}
		if owner, dup := seen[u.Prefix]; dup {
			return nil, fmt.Errorf("duplicate upstream prefix %q used by %q and %q", u.Prefix, owner, u.Key)
		}
		seen[u.Prefix] = u.Key
		reg.Universe = append(reg.Universe, &Upstream{
			Key:             u.Key,
			Prefix:          u.Prefix,
			RepoURL:         u.RepoURL,
			Branch:          u.Branch,
			IgnoreCookbooks: u.IgnoreCookbooks,
			IsPrimary:       false,
		})
	}
	return reg, nil
}
