// Package main is the entry point for loopcast.
package main

import (
	"os"

	"github.com/jmylchreest/loopcast/cmd/loopcast/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
