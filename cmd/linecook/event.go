package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/line-cook-bot/line-cook/config"
	"github.com/line-cook-bot/line-cook/platform"
	"github.com/line-cook-bot/line-cook/prsplit"
	"github.com/line-cook-bot/line-cook/subcmd"
	"github.com/line-cook-bot/line-cook/vcsdriver"
)

// botCreatedPROrIssueClosed reports whether event is a "closed" action on a
// pull request carrying botLabel. It's the only place GITHUB_EVENT_NAME is
// consulted: a "pull_request"-family webhook shares the "closed" action
// value with other event types, so the event name is what actually
// distinguishes "a PR got closed" from, say, a plain issue closing.
func botCreatedPROrIssueClosed(githubEventName string, event commentEvent, botLabel string) bool {
	if githubEventName == "issue_comment" || event.Action != "closed" {
		return false
	}
	for _, l := range event.PullRequest.Labels {
		if l.Name == botLabel {
			return true
		}
	}
	return false
}

func init() {
	subcommands = append(subcommands, new(eventCmd))
}

// commentEvent is the subset of a hosting-platform "issue_comment" webhook
// payload line-cook needs. PR comments are delivered as issue comments, with
// the PR number in Issue.Number; non-PR issue comments are ignored.
type commentEvent struct {
	Action  string `json:"action"`
	Comment struct {
		Body string `json:"body"`
	} `json:"comment"`
	Issue struct {
		Number      int       `json:"number"`
		PullRequest *struct{} `json:"pull_request"`
	} `json:"issue"`
	PullRequest struct {
		Labels []platform.Label `json:"labels"`
	} `json:"pull_request"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

type eventCmd struct{}

func (eventCmd) Name() string { return "event" }

func (eventCmd) Summary() string {
	return "Handle a hosting-platform webhook event, dispatching bot commands found in PR comments."
}

func (eventCmd) Description() string {
	return `

Reads a webhook event payload from -event-path. If it's a "created" comment
on a pull request whose first line begins with the configured command
prefix, dispatches to the matching command (split, rebase). Command
failures are reported as a PR comment rather than a nonzero exit: this
command always exits 0 once the payload has been parsed.
`
}

func (eventCmd) Handle(p subcmd.ParseFunc) error {
	configPath := flag.String("config", "line-cook.yml", "Path to the line-cook YAML config file.")
	dir := flag.String("dir", ".", "Path to the downstream repo's working tree.")
	repo := flag.String("repo", "", "[Required] The downstream repo, in 'owner/name' form.")
	eventPath := flag.String("event-path", "", "[Required] Path to the webhook event JSON payload.")
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
	if *repo == "" || *eventPath == "" {
		fmt.Fprintln(os.Stderr, "configuration error: -repo and -event-path are required")
		os.Exit(2)
	}

	raw, err := os.ReadFile(*eventPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reading event payload: %v\n", err)
		return nil
	}
	var event commentEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		fmt.Fprintf(os.Stderr, "decoding event payload: %v\n", err)
		return nil
	}

	if botCreatedPROrIssueClosed(os.Getenv("GITHUB_EVENT_NAME"), event, cfg.BotLabel) {
		fmt.Println("bot-labeled pull request closed; nothing further to do")
		return nil
	}
	if event.Action != "created" || event.Issue.PullRequest == nil {
		fmt.Println("not a new PR comment; nothing to do")
		return nil
	}

	downstreamRepo := vcsdriver.New(*dir, *dryRun)
	client := platform.New(*repo, *dryRun)
	prsplit.HandleCommand(client, downstreamRepo, cfg.Registry, cfg.PRBranchPrefix, cfg.BaseBranch, cfg.SplitLabel, cfg.BotLabel, cfg.BotCommandPrefix, event.Comment.Body, event.Issue.Number)
	return nil
}
