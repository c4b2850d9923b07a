// Package main provides the entry point for the askdoc CLI.
package main

import (
	"os"

	"github.com/askdoc/askdoc/cmd/askdoc/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
