// Package main provides the drivepool CLI entry point.
// drivepool presents multiple backing storage accounts as one virtual drive.
package main

import (
	"fmt"
	"os"

	"github.com/drivepool/drivepool/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
