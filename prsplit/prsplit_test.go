package prsplit

import (
	"strings"
	"testing"

	"github.com/line-cook-bot/line-cook/upstream"
)

func testRegistry(t *testing.T) *upstream.Registry {
	t.Helper()
	reg, err := upstream.NewRegistry(nil, []upstream.UniverseSpec{
		{Key: "pd", Prefix: "pd", RepoURL: "test.git"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func TestParseCommandSplit(t *testing.T) {
	verb, args, ok := ParseCommand("#linecook split abc123-def456", "#linecook")
	if !ok || verb != "split" || args != "abc123-def456" {
		t.Errorf("got (%q, %q, %v)", verb, args, ok)
	}
}

func TestParseCommandRebase(t *testing.T) {
	verb, args, ok := ParseCommand("#linecook rebase", "#linecook")
	if !ok || verb != "rebase" || args != "" {
		t.Errorf("got (%q, %q, %v)", verb, args, ok)
	}
}

func TestParseCommandInvalid(t *testing.T) {
	_, _, ok := ParseCommand("random comment", "#linecook")
	if ok {
		t.Errorf("expected ok=false for a non-command comment")
	}
}

func TestParseSplitArgsValid(t *testing.T) {
	from, to, ok := ParseSplitArgs("abc1234-def5678")
	if !ok || from != "abc1234" || to != "def5678" {
		t.Errorf("got (%q, %q, %v)", from, to, ok)
	}
}

func TestParseSplitArgsInvalid(t *testing.T) {
	if _, _, ok := ParseSplitArgs("invalid"); ok {
		t.Errorf("expected ok=false for a single part")
	}
	if _, _, ok := ParseSplitArgs("too-many-parts-here"); ok {
		t.Errorf("expected ok=false for more than two parts")
	}
}

func TestDetermineUpstreamFromBranchName(t *testing.T) {
	reg := testRegistry(t)
	u, ok := DetermineUpstreamFromPR(reg, "line-cook", "line-cook/pd_update", "")
	if !ok || u.Prefix != "pd" {
		t.Fatalf("got (%v, %v), want pd", u, ok)
	}
}

func TestDetermineUpstreamFromTrailerPrimary(t *testing.T) {
	reg := testRegistry(t)
	u, ok := DetermineUpstreamFromPR(reg, "line-cook", "some-branch", "Some changes\nUpstream-Commit: abc1234567")
	if !ok || u.Prefix != "fb" {
		t.Fatalf("got (%v, %v), want fb", u, ok)
	}
}

func TestDetermineUpstreamFromTrailerNonPrimary(t *testing.T) {
	reg := testRegistry(t)
	u, ok := DetermineUpstreamFromPR(reg, "line-cook", "some-branch", "Some changes\npd_Upstream-Commit: abc1234567")
	if !ok || u.Prefix != "pd" {
		t.Fatalf("got (%v, %v), want pd", u, ok)
	}
}

func TestTrailersInOrderPreservesSequence(t *testing.T) {
	body := "Upstream commits:\n" +
		"Upstream-Commit: aaaa1234567890123456789012345678901234ab\n" +
		"Upstream-Commit: bbbb1234567890123456789012345678901234ab\n" +
		"Upstream-Commit: cccc1234567890123456789012345678901234ab\n"
	entries := trailersInOrder(body)
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if !strings.HasPrefix(entries[0].Sha, "aaaa") || !strings.HasPrefix(entries[2].Sha, "cccc") {
		t.Errorf("unexpected order: %v", entries)
	}
}

func TestIndexByShaPrefixMiddleRangeRejected(t *testing.T) {
	entries := []trailerEntry{{Sha: "aaaa1234"}, {Sha: "bbbb1234"}, {Sha: "cccc1234"}, {Sha: "dddd1234"}}
	fromIdx := indexByShaPrefix(entries, "bbbb1234")
	toIdx := indexByShaPrefix(entries, "cccc1234")
	if fromIdx != 1 || toIdx != 2 {
		t.Fatalf("got (%d, %d)", fromIdx, toIdx)
	}
	isPrefix := fromIdx == 0
	isSuffix := toIdx == len(entries)-1
	if isPrefix || isSuffix {
		t.Errorf("expected neither a prefix nor a suffix range")
	}
}
