// Package main is the entry point for the leadrelay CLI.
package main

import (
	"fmt"
	"os"

	"github.com/bargom/leadrelay/cmd/leadrelay/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
