// Package main provides turradb, the consistency core of the turra
// archive: transactional table writes, integrity validation and guided
// repair.
package main

import (
	"os"

	"github.com/turrero/turradb/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Stdout, os.Stderr, os.Args))
}
