// ModPackUpdater distributes the latest snapshot of modpack content trees
// to syncing clients and imports uploaded pack archives.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
