// Command assetregistry is the single binary this service ships as: the
// HTTP surface of C8 plus a CLI for operational tasks (serve, one-shot
// scans, pruning, schema migration, status). Grounded on the teacher's
// single-binary cobra CLI (cmd/bd), generalized from a daemon-fronted issue
// tracker to a directly-served asset registry with no background daemon.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
