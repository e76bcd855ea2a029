// Package vcsdriver wraps the git CLI the way the rest of a sync run needs
// it: a small set of primitives that either return an error when git fails
// ("strict") or never raise an error on git's own failure ("try", for
// commands whose failure is meaningful control flow, like a cherry-pick
// conflict or a content comparison).
//
// Every write-mutating command also passes through a single dry-run choke
// point so callers never need their own dry-run branch.
package vcsdriver

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/line-cook-bot/line-cook/executil"
)

// readOnlyVerbs never mutate the working tree or refs, so they always run
// even under dry-run.
var readOnlyVerbs = map[string]bool{
	"status":     true,
	"log":        true,
	"show":       true,
	"diff":       true,
	"rev-parse":  true,
	"merge-base": true,
	"ls-remote":  true,
	"fetch":      true,
	"cat-file":   true,
	"rev-list":   true,
	"ls-tree":    true,
	"config":     true,
}

// readOnlySubcommands handles verbs that are read-only only for specific
// subcommand forms, such as "branch --list" (read) vs "branch foo" (write).
var readOnlySubcommands = map[string]string{
	"branch": "--list",
}

// Repo is a working tree rooted at Dir, the unit every vcsdriver call operates on.
type Repo struct {
	Dir    string
	DryRun bool
}

// New returns a driver bound to an existing working tree.
func New(dir string, dryRun bool) *Repo {
	return &Repo{Dir: dir, DryRun: dryRun}
}

func isReadOnly(args []string) bool {
	if len(args) == 0 {
		return true
	}
	if readOnlyVerbs[args[0]] {
		return true
	}
	if want, ok := readOnlySubcommands[args[0]]; ok && len(args) > 1 && args[1] == want {
		return true
	}
	return false
}

// Strict runs "git <args...>" and returns trimmed combined output, erroring
// on non-zero exit. Mutating commands are skipped under dry-run and return
// ("", nil) instead, after being logged with a "(dry run, skipped)" marker.
func (r *Repo) Strict(args ...string) (string, error) {
	if r.DryRun && !isReadOnly(args) {
		fmt.Printf("---- (dry run, skipped) git %v\n", args)
		return "", nil
	}
	return executil.SpaceTrimmedCombinedOutput(executil.Dir(r.Dir, "git", args...))
}

// Try runs "git <args...>" and never returns an error for git's own
// non-zero exit: ok reports whether the command succeeded, and stdout/stderr
// are both populated regardless. Try is for commands whose failure is
// meaningful, expected control flow (merge-base ancestry checks, cherry-pick
// attempts, content comparisons) rather than an operational fault.
//
// Like Strict, Try skips mutating commands under dry-run, reporting
// (true, "", "") after logging them with a "(dry run, skipped)" marker.
func (r *Repo) Try(args ...string) (ok bool, stdout, stderr string) {
	if r.DryRun && !isReadOnly(args) {
		fmt.Printf("---- (dry run, skipped) git %v\n", args)
		return true, "", ""
	}
	cmd := executil.Dir(r.Dir, "git", args...)
	var outBuf, errBuf strings.Builder
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	fmt.Printf("---- Running command (try): %v %v\n", cmd.Path, cmd.Args)
	err := cmd.Run()
	return err == nil, strings.TrimSpace(outBuf.String()), strings.TrimSpace(errBuf.String())
}

// IsAncestor reports whether ancestor is an ancestor of (or equal to) descendant.
func (r *Repo) IsAncestor(ancestor, descendant string) bool {
	ok, _, _ := r.Try("merge-base", "--is-ancestor", ancestor, descendant)
	return ok
}

// MergeBase returns the best common ancestor of a and b.
func (r *Repo) MergeBase(a, b string) (string, error) {
	return r.Strict("merge-base", a, b)
}

// RevParse resolves rev to a full commit hash.
func (r *Repo) RevParse(rev string) (string, error) {
	return r.Strict("rev-parse", rev)
}

// LogHashes returns the commit hashes reachable from rev that touch path,
// newest first. rev may be any revision, including a remote-tracking branch
// like "fb_upstream/main" — the working tree doesn't need to have rev
// checked out.
func (r *Repo) LogHashes(rev, path string) ([]string, error) {
	out, err := r.Strict("log", "--format=%H", rev, "--", path)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// StatusPorcelain returns "git status --porcelain" lines.
func (r *Repo) StatusPorcelain() ([]string, error) {
	out, err := r.Strict("status", "--porcelain")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// CommitMessage returns the raw commit message body (%B) of rev.
func (r *Repo) CommitMessage(rev string) (string, error) {
	return executil.CombinedOutput(executil.Dir(r.Dir, "git", "show", "--quiet", "--pretty=format:%B", rev))
}

// CommitAuthor returns "Name <email>" for rev.
func (r *Repo) CommitAuthor(rev string) (string, error) {
	return r.Strict("show", "--quiet", "--pretty=format:%an <%ae>", rev)
}

// FileAtRev returns the blob content of path as it exists at rev, or ok=false
// if the path doesn't exist there.
func (r *Repo) FileAtRev(rev, path string) (content string, ok bool) {
	success, out, _ := r.Try("show", rev+":"+path)
	if !success {
		return "", false
	}
	return out, true
}

// CheckoutPathFromOtherRepo materializes srcPath as it exists at srcRev in
// srcRepoDir (a different repository, e.g. an upstream remote's clone)
// directly onto dstPath within r's own working tree, replacing whatever is
// there. Onboarding uses it to overwrite a cookbook that has no baseline
// match in history with its content at the detected baseline commit.
func (r *Repo) CheckoutPathFromOtherRepo(srcRepoDir, srcRev, srcPath, dstPath string) error {
	data, err := executil.Dir(srcRepoDir, "git", "archive", "--format=tar", srcRev, "--", srcPath).Output()
	if err != nil {
		return fmt.Errorf("archiving %q at %q from %q: %w", srcPath, srcRev, srcRepoDir, err)
	}

	absDst := filepath.Join(r.Dir, dstPath)
	if err := os.RemoveAll(absDst); err != nil {
		return fmt.Errorf("clearing %q before checkout: %w", absDst, err)
	}

	tr := tar.NewReader(bytes.NewReader(data))
	for {
		hdr, err := tr.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("reading tar entry: %w", err)
		}
		if !filepath.IsLocal(hdr.Name) || hdr.Typeflag != tar.TypeReg {
			continue
		}
		targetPath := filepath.Join(absDst, strings.TrimPrefix(hdr.Name, srcPath+"/"))
		if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
			return fmt.Errorf("creating directory for %q: %w", targetPath, err)
		}
		f, err := os.Create(targetPath)
		if err != nil {
			return fmt.Errorf("creating %q: %w", targetPath, err)
		}
		_, copyErr := io.Copy(f, tr)
		closeErr := f.Close()
		if copyErr != nil {
			return fmt.Errorf("writing %q: %w", targetPath, copyErr)
		}
		if closeErr != nil {
			return fmt.Errorf("closing %q: %w", targetPath, closeErr)
		}
	}
	return nil
}
