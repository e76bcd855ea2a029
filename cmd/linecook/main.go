// Command linecook syncs cookbook directories from one or more upstream
// repositories into a downstream chef-repo, opening and maintaining PRs for
// the result, and handles bot-command comments (split, rebase) on those PRs.
package main

import (
	"log"

	"github.com/line-cook-bot/line-cook/subcmd"
)

const description = `
linecook mirrors cookbook directories from configured upstream repositories
into a downstream chef-repo, preserving provenance via commit trailers, and
answers bot commands posted as comments on the PRs it opens.
`

// subcommands is the list of subcommand options, populated by each file's
// init function.
var subcommands []subcmd.Option

func main() {
	if err := subcmd.Run("linecook", description, subcommands); err != nil {
		log.Fatal(err)
	}
}
