// Command examclient is a headless lab workstation client. It registers the
// machine, starts an exam attempt and runs the lockdown heartbeat loop while
// the participant answers on the terminal.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
