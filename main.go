// gosh - Go Shell
// POSIX-compatible shell implementation written from scratch in Go.
// Copyright (c) 2025 gosh project - 0BSD License

package main

import (
	"os"

	"github.com/cryptexctl/gosh/v2/cmd"
)

var (
	version   = "2.0.0"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	os.Exit(cmd.Execute(version, buildTime, gitCommit))
}
