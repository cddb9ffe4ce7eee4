// Command reputationctl runs reputation maintenance tasks against the
// configured store and issues development tokens.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(openBackend).Execute(); err != nil {
		os.Exit(1)
	}
}
