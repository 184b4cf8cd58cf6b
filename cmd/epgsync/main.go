// Package main is the entry point for the epgsync application.
package main

import (
	"os"

	"github.com/epgsync/epgsync/cmd/epgsync/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
