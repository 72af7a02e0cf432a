// Package main is the entry point for the devika CLI client.
package main

import (
	"fmt"
	"os"

	"github.com/stitionai/devika-go/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
