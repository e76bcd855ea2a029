package classify

import (
	"testing"

	"github.com/line-cook-bot/line-cook/upstream"
)

func testRegistry(t *testing.T) *upstream.Registry {
	t.Helper()
	reg, err := upstream.NewRegistry(nil, []upstream.UniverseSpec{
		{Key: "pd-cookbooks", Prefix: "pd", RepoURL: "https://example.com/pd.git"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func TestCookbookName(t *testing.T) {
	cases := map[string]string{
		"cookbooks/nginx/recipes/default.rb": "nginx",
		"cookbooks/pd_redis/metadata.rb":     "pd_redis",
		"README.md":                          "",
		"cookbooks":                          "",
	}
	for path, want := range cases {
		if got := CookbookName(path); got != want {
			t.Errorf("CookbookName(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestOwnerPrimary(t *testing.T) {
	c := New(testRegistry(t))
	u, owned := c.Owner("fb_nginx")
	if !owned || !u.IsPrimary {
		t.Errorf("expected fb_nginx owned by primary, got %+v, %v", u, owned)
	}
}

func TestOwnerUnknownPrefix(t *testing.T) {
	c := New(testRegistry(t))
	u, owned := c.Owner("nginx")
	if owned || u != nil {
		t.Errorf("expected nginx (no matching prefix) unowned, got %+v, %v", u, owned)
	}
	u, owned = c.Owner("unknown_cookbook")
	if owned || u != nil {
		t.Errorf("expected unknown_cookbook unowned, got %+v, %v", u, owned)
	}
}

func TestOwnerPrefixed(t *testing.T) {
	c := New(testRegistry(t))
	u, owned := c.Owner("pd_redis")
	if !owned || u.Prefix != "pd" {
		t.Errorf("expected pd_redis owned by pd, got %+v, %v", u, owned)
	}
}

func TestOwnerIgnored(t *testing.T) {
	c := New(testRegistry(t))
	u, owned := c.Owner("fb_init")
	if owned || !u.IsPrimary {
		t.Errorf("expected fb_init ignored by primary, got %+v, %v", u, owned)
	}
}

func TestInScope(t *testing.T) {
	c := New(testRegistry(t))
	reg := testRegistry(t)
	pd, _ := reg.ByPrefix("pd")
	if !c.InScope("cookbooks/pd_redis/metadata.rb", pd) {
		t.Errorf("expected pd_redis path in scope for pd")
	}
	if c.InScope("cookbooks/fb_nginx/metadata.rb", pd) {
		t.Errorf("expected fb_nginx path out of scope for pd")
	}
}

func TestUpstreamPathRoundTrip(t *testing.T) {
	c := New(testRegistry(t))
	reg := testRegistry(t)
	pd, _ := reg.ByPrefix("pd")
	if got := c.UpstreamPathFor("pd_redis", pd); got != "redis" {
		t.Errorf("got %q, want redis", got)
	}
	if got := c.DownstreamCookbookName("redis", pd); got != "pd_redis" {
		t.Errorf("got %q, want pd_redis", got)
	}
}
