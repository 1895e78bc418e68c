// peersync replicates documents between SQLite databases, locally or with
// peers over WebSocket. See "peersync help" for the commands.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/peersync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
