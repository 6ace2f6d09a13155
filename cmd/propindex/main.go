// Package main provides the entry point for the propindex CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/propindex/cmd/propindex/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
