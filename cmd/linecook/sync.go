package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/line-cook-bot/line-cook/config"
	"github.com/line-cook-bot/line-cook/executil"
	"github.com/line-cook-bot/line-cook/subcmd"
	"github.com/line-cook-bot/line-cook/syncengine"
)

func init() {
	subcommands = append(subcommands, new(syncCmd))
}

type syncCmd struct{}

func (syncCmd) Name() string { return "sync" }

func (syncCmd) Summary() string {
	return "Sync configured upstreams into the downstream repo, opening/updating PRs."
}

func (syncCmd) Description() string {
	return `

Fetches every configured upstream, cherry-picks new commits touching
cookbooks it owns onto a sync branch with a provenance trailer, and
opens or updates the corresponding PR. Upstreams with no recorded sync
pointer are onboarded instead: their cookbooks' baselines are detected
and recorded in a dedicated PR.
`
}

func (syncCmd) Handle(p subcmd.ParseFunc) error {
	configPath := flag.String("config", "line-cook.yml", "Path to the line-cook YAML config file.")
	dir := flag.String("dir", ".", "Path to the downstream repo's working tree.")
	repo := flag.String("repo", "", "[Required] The downstream repo, in 'owner/name' form.")
	dryRun := flag.Bool("dry-run", false, "Report what would happen without pushing, committing, or calling the hosting platform.")

	if err := p(); err != nil {
		os.Exit(2)
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}
	if *repo == "" {
		fmt.Fprintln(os.Stderr, "configuration error: -repo is required")
		os.Exit(2)
	}
	if _, err := executil.MakeWorkDir(*dir); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}

	results, err := syncengine.Run(syncengine.Options{
		DryRun:             *dryRun,
		DownstreamDir:      *dir,
		DownstreamRepoSlug: *repo,
		BaseBranch:         cfg.BaseBranch,
		PRBranchPrefix:     cfg.PRBranchPrefix,
		BotLabel:           cfg.BotLabel,
		Registry:           cfg.Registry,
	})
	if err != nil {
		os.Exit(1)
		return err
	}

	for _, r := range results {
		switch {
		case r.Skipped != "":
			fmt.Printf("%s: skipped (%s)\n", r.Upstream.Prefix, r.Skipped)
		case r.Onboarded:
			fmt.Printf("%s: onboarded, PR #%d\n", r.Upstream.Prefix, r.PRNumber)
		case r.ConflictIssue != 0:
			fmt.Printf("%s: applied %d commit(s), stopped on conflict, issue #%d\n", r.Upstream.Prefix, len(r.AppliedCommits), r.ConflictIssue)
		default:
			fmt.Printf("%s: applied %d commit(s), PR #%d\n", r.Upstream.Prefix, len(r.AppliedCommits), r.PRNumber)
		}
	}
	return nil
}
