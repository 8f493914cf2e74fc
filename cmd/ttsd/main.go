package main

import (
	"os"
)

// Set by -ldflags at build time.
var (
	version   = "dev"
	gitCommit = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
