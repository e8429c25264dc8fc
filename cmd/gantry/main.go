// Package main provides the entry point for the gantry CLI.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gantrybuild/gantry/internal/cli"
	"github.com/gantrybuild/gantry/internal/errors"
)

// Build information populated via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234 -X main.date=2026-08-23T12:00:00Z"
//
//nolint:gochecknoglobals // Set at build time via ldflags
var (
	version string
	commit  string
	date    string
)

func main() {
	ctx := context.Background()

	err := cli.Execute(ctx, cli.BuildInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
	})
	cli.CloseLogFile()
	if err == nil {
		return
	}

	// Cobra has already printed the error itself; add the suggested
	// fix when one is known.
	if _, action := errors.Actionable(err); action != "" {
		fmt.Fprintln(os.Stderr, action)
	}
	os.Exit(cli.ExitCodeForError(err))
}
