// Command vaultctl is the operator tool for a groupvault deployment. It talks
// to the same MongoDB database as the bot: it issues bootstrap secrets,
// inspects and retries pending deletions, and manages roles.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
