// Package main provides the crystal CLI for storing, reading and searching
// crystals, and for running the efficiency monitor as a service.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
