// Package main is the entry point for the studiod daemon.
package main

import (
	"os"

	"github.com/broadcastkit/studiod/cmd/studiod/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
