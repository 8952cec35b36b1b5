package main

import (
	"fmt"
	"os"

	"github.com/tphakala/parrot-tester/cmd"
	"github.com/tphakala/parrot-tester/internal/app"
	"github.com/tphakala/parrot-tester/internal/buildinfo"
)

// Set at build time with -ldflags "-X main.version=...".
var (
	version   string
	commit    string
	buildDate string
)

func main() {
	ctx := &app.Context{Build: buildinfo.NewContext(version, commit, buildDate)}

	rootCmd := cmd.RootCommand(ctx)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
