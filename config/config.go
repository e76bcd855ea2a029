// Package config loads and validates line-cook's YAML configuration file.
package config

import (
	"fmt"
	"os"
	"sort"

	"go.yaml.in/yaml/v4"
	"golang.org/x/text/transform"

	"github.com/line-cook-bot/line-cook/stringutil"
	"github.com/line-cook-bot/line-cook/upstream"
)

// Defaults for the keys a config file may set. The primary upstream's
// defaults live in the upstream package (upstream.DefaultPrefix and friends).
const (
	DefaultBotLabel         = "line-cook"
	DefaultSplitLabel       = "line-cook-pr-split"
	DefaultBotCommandPrefix = "#linecook"
	DefaultBaseBranch       = "main"
	DefaultPRBranchPrefix   = "line-cook"
)

// upstreamOverrideFile is the "upstream_overrides" section of the YAML file.
type upstreamOverrideFile struct {
	Prefix          string   `yaml:"prefix"`
	RepoURL         string   `yaml:"repo_url"`
	IgnoreCookbooks []string `yaml:"ignore_cookbooks"`
}

// universeUpstreamFile is one entry of the "universe_upstreams" map.
type universeUpstreamFile struct {
	Prefix          string   `yaml:"prefix"`
	RepoURL         string   `yaml:"repo_url"`
	Branch          string   `yaml:"branch"`
	IgnoreCookbooks []string `yaml:"ignore_cookbooks"`
}

// file is the raw decode target for line-cook.yml.
type file struct {
	BotLabel          string                          `yaml:"bot_label"`
	SplitLabel        string                          `yaml:"split_label"`
	BotCommandPrefix  string                          `yaml:"bot_command_prefix"`
	BaseBranch        string                          `yaml:"base_branch"`
	PRBranchPrefix    string                          `yaml:"pr_branch_prefix"`
	UpstreamOverrides upstreamOverrideFile            `yaml:"upstream_overrides"`
	UniverseUpstreams map[string]universeUpstreamFile `yaml:"universe_upstreams"`
}

// Config is the fully resolved, defaulted, and validated configuration.
type Config struct {
	BotLabel         string
	SplitLabel       string
	BotCommandPrefix string
	BaseBranch       string
	PRBranchPrefix   string
	Registry         *upstream.Registry
}

// Load reads and validates the config at path. If path doesn't exist, the
// built-in defaults are used as-is (no error).
func Load(path string) (*Config, error) {
	var f file
	if _, err := os.Stat(path); err == nil {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %q: %w", path, err)
		}
		normalized, _, err := transform.Bytes(stringutil.CRLFToLF{}, raw)
		if err != nil {
			return nil, fmt.Errorf("normalizing config file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(normalized, &f); err != nil {
			return nil, fmt.Errorf("parsing config file %q: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("checking config file %q: %w", path, err)
	}

	c := &Config{
		BotLabel:         firstNonEmpty(f.BotLabel, DefaultBotLabel),
		SplitLabel:       firstNonEmpty(f.SplitLabel, DefaultSplitLabel),
		BotCommandPrefix: firstNonEmpty(f.BotCommandPrefix, DefaultBotCommandPrefix),
		BaseBranch:       firstNonEmpty(f.BaseBranch, DefaultBaseBranch),
		PRBranchPrefix:   firstNonEmpty(f.PRBranchPrefix, DefaultPRBranchPrefix),
	}

	var override *upstream.OverrideSpec
	if f.UpstreamOverrides.Prefix != "" || f.UpstreamOverrides.RepoURL != "" || f.UpstreamOverrides.IgnoreCookbooks != nil {
		override = &upstream.OverrideSpec{
			Prefix:          f.UpstreamOverrides.Prefix,
			RepoURL:         f.UpstreamOverrides.RepoURL,
			IgnoreCookbooks: f.UpstreamOverrides.IgnoreCookbooks,
		}
	}

	// f.UniverseUpstreams is a Go map: iterating it directly would make
	// Registry.Universe's order non-deterministic across runs of the same
	// config, breaking the fixed processing order syncengine relies on.
	// Sort by key for a stable, reproducible registry-declaration order.
	keys := make([]string, 0, len(f.UniverseUpstreams))
	for key := range f.UniverseUpstreams {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var universe []upstream.UniverseSpec
	for _, key := range keys {
		u := f.UniverseUpstreams[key]
		universe = append(universe, upstream.UniverseSpec{
			Key:             key,
			Prefix:          u.Prefix,
			RepoURL:         u.RepoURL,
			Branch:          u.Branch,
			IgnoreCookbooks: u.IgnoreCookbooks,
		})
	}

	reg, err := upstream.NewRegistry(override, universe)
	if err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	c.Registry = reg
	return c, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
