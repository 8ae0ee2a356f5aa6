// Command giftmatch generates and checks gift exchange assignments.
package main

import (
	"fmt"
	"os"

	"giftmatch/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "giftmatch:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
