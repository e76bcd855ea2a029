// Package platform wraps the hosting platform's CLI (the "gh" tool) as an
// opaque subprocess. line-cook never talks to GitHub's REST or GraphQL API
// directly: every PR/issue operation shells out to "gh", the way the
// original implementation does.
package platform

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// Client runs "gh" commands against one repository.
type Client struct {
	// Repo is "owner/name".
	Repo string
	// DryRun skips any command that would mutate GitHub state, logging what
	// would have run instead.
	DryRun bool
}

// New returns a Client bound to repo ("owner/name").
func New(repo string, dryRun bool) *Client {
	return &Client{Repo: repo, DryRun: dryRun}
}

func (c *Client) run(args ...string) (string, error) {
	fmt.Printf("---- Running command: gh %v\n", args)
	cmd := exec.Command("gh", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("gh %v: %w: %s", args, err, out)
	}
	return string(out), nil
}

// PR is the subset of "gh pr view --json ..." fields line-cook needs.
type PR struct {
	Number      int     `json:"number"`
	HeadRefName string  `json:"headRefName"`
	Body        string  `json:"body"`
	Title       string  `json:"title"`
	Labels      []Label `json:"labels"`
	State       string  `json:"state"`
}

// Label is one "gh ... --json labels" entry.
type Label struct {
	Name string `json:"name"`
}

// HasLabel reports whether pr carries the named label.
func (pr *PR) HasLabel(name string) bool {
	for _, l := range pr.Labels {
		if l.Name == name {
			return true
		}
	}
	return false
}

var prJSONFields = "number,headRefName,body,title,labels,state"

// FindOpenPRByBranch returns the open PR whose head branch is branch, or
// ok=false if none exists.
func (c *Client) FindOpenPRByBranch(branch string) (pr *PR, ok bool, err error) {
	out, err := c.run("pr", "list", "--repo", c.Repo, "--head", branch, "--state", "open", "--json", prJSONFields)
	if err != nil {
		return nil, false, err
	}
	var prs []PR
	if err := json.Unmarshal([]byte(out), &prs); err != nil {
		return nil, false, fmt.Errorf("decoding gh pr list output: %w", err)
	}
	if len(prs) == 0 {
		return nil, false, nil
	}
	return &prs[0], true, nil
}

// ViewPR returns the current state of PR number n.
func (c *Client) ViewPR(n int) (*PR, error) {
	out, err := c.run("pr", "view", fmt.Sprint(n), "--repo", c.Repo, "--json", prJSONFields)
	if err != nil {
		return nil, err
	}
	var pr PR
	if err := json.Unmarshal([]byte(out), &pr); err != nil {
		return nil, fmt.Errorf("decoding gh pr view output: %w", err)
	}
	return &pr, nil
}

// CreatePROptions carries everything needed to open a PR.
type CreatePROptions struct {
	Head   string
	Base   string
	Title  string
	Body   string
	Labels []string
}

// CreatePR opens a PR and returns its number. Under dry-run, it logs the
// would-be command and returns number 0.
func (c *Client) CreatePR(opts CreatePROptions) (number int, err error) {
	if c.DryRun {
		fmt.Printf("---- (dry run, skipped) gh pr create --repo %s --head %s --base %s --title %q\n", c.Repo, opts.Head, opts.Base, opts.Title)
		return 0, nil
	}
	args := []string{"pr", "create", "--repo", c.Repo, "--head", opts.Head, "--base", opts.Base, "--title", opts.Title, "--body", opts.Body}
	for _, l := range opts.Labels {
		args = append(args, "--label", l)
	}
	out, err := c.run(args...)
	if err != nil {
		return 0, err
	}
	return parseTrailingNumber(out)
}

// EditPRBody replaces a PR's body.
func (c *Client) EditPRBody(n int, body string) error {
	if c.DryRun {
		fmt.Printf("---- (dry run, skipped) gh pr edit %d --repo %s --body ...\n", n, c.Repo)
		return nil
	}
	_, err := c.run("pr", "edit", fmt.Sprint(n), "--repo", c.Repo, "--body", body)
	return err
}

// AddLabelsToPR adds one or more labels to an existing PR.
func (c *Client) AddLabelsToPR(n int, labels ...string) error {
	if len(labels) == 0 {
		return nil
	}
	if c.DryRun {
		fmt.Printf("---- (dry run, skipped) gh pr edit %d --repo %s --add-label %v\n", n, c.Repo, labels)
		return nil
	}
	args := []string{"pr", "edit", fmt.Sprint(n), "--repo", c.Repo}
	for _, l := range labels {
		args = append(args, "--add-label", l)
	}
	_, err := c.run(args...)
	return err
}

// CommentOnPR posts a comment on a PR.
func (c *Client) CommentOnPR(n int, body string) error {
	if c.DryRun {
		fmt.Printf("---- (dry run, skipped) gh pr comment %d --repo %s\n", n, c.Repo)
		return nil
	}
	_, err := c.run("pr", "comment", fmt.Sprint(n), "--repo", c.Repo, "--body", body)
	return err
}

// Issue is the subset of "gh issue view --json ..." fields line-cook needs.
type Issue struct {
	Number int     `json:"number"`
	Title  string  `json:"title"`
	State  string  `json:"state"`
	Labels []Label `json:"labels"`
}

// HasLabel reports whether the issue carries the named label.
func (i *Issue) HasLabel(name string) bool {
	for _, l := range i.Labels {
		if l.Name == name {
			return true
		}
	}
	return false
}

var issueJSONFields = "number,title,state,labels"

// ListOpenIssuesByLabel returns every open issue carrying label.
func (c *Client) ListOpenIssuesByLabel(label string) ([]Issue, error) {
	out, err := c.run("issue", "list", "--repo", c.Repo, "--label", label, "--state", "open", "--json", issueJSONFields)
	if err != nil {
		return nil, err
	}
	var issues []Issue
	if err := json.Unmarshal([]byte(out), &issues); err != nil {
		return nil, fmt.Errorf("decoding gh issue list output: %w", err)
	}
	return issues, nil
}

// CreateIssueOptions carries everything needed to open an issue.
type CreateIssueOptions struct {
	Title  string
	Body   string
	Labels []string
}

// CreateIssue opens an issue and returns its number.
func (c *Client) CreateIssue(opts CreateIssueOptions) (number int, err error) {
	if c.DryRun {
		fmt.Printf("---- (dry run, skipped) gh issue create --repo %s --title %q\n", c.Repo, opts.Title)
		return 0, nil
	}
	args := []string{"issue", "create", "--repo", c.Repo, "--title", opts.Title, "--body", opts.Body}
	for _, l := range opts.Labels {
		args = append(args, "--label", l)
	}
	out, err := c.run(args...)
	if err != nil {
		return 0, err
	}
	return parseTrailingNumber(out)
}

// CommentOnIssue posts a comment on an issue.
func (c *Client) CommentOnIssue(n int, body string) error {
	if c.DryRun {
		fmt.Printf("---- (dry run, skipped) gh issue comment %d --repo %s\n", n, c.Repo)
		return nil
	}
	_, err := c.run("issue", "comment", fmt.Sprint(n), "--repo", c.Repo, "--body", body)
	return err
}

// CloseIssue closes an issue, optionally with a closing comment.
func (c *Client) CloseIssue(n int, comment string) error {
	if c.DryRun {
		fmt.Printf("---- (dry run, skipped) gh issue close %d --repo %s\n", n, c.Repo)
		return nil
	}
	args := []string{"issue", "close", fmt.Sprint(n), "--repo", c.Repo}
	if comment != "" {
		args = append(args, "--comment", comment)
	}
	_, err := c.run(args...)
	return err
}

// parseTrailingNumber extracts the PR/issue number from the URL "gh ...
// create" prints on its last non-empty line, e.g.
// "https://github.com/owner/repo/pull/42".
func parseTrailingNumber(out string) (int, error) {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	idx := strings.LastIndexByte(last, '/')
	if idx < 0 {
		return 0, fmt.Errorf("could not parse number from gh output: %q", out)
	}
	var n int
	if _, err := fmt.Sscanf(last[idx+1:], "%d", &n); err != nil {
		return 0, fmt.Errorf("could not parse number from %q: %w", last, err)
	}
	return n, nil
}
