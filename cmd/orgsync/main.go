// Package main is the entry point for the orgsync CLI.
//
// orgsync connects every member account of an AWS organization to the
// Stream Security platform. It registers accounts with the control plane,
// deploys the platform's provisioning stacks and keeps the declared
// region sets in step with where each account actually runs workloads.
//
// Commands: integrate, offboard, align-names, version, completion.
//
// For detailed usage information, run:
//
//	orgsync --help
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/imamik/orgsync/cmd/orgsync/commands"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
