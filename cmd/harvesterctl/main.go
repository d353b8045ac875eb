// Package main is the entry point for the harvester operator CLI.
package main

import (
	"os"

	"harvester/cmd/harvesterctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
