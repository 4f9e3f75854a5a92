package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
)

// applyOptions is the flag surface of the apply subcommand
type applyOptions struct {
	File        string   `short:"f" long:"file" description:"Path to the desired-state SQL file" value-name:"path"`
	URL         string   `short:"u" long:"url" description:"Database connection string, falls back to $DATABASE_URL" value-name:"conn"`
	Schemas     []string `short:"s" long:"schema" description:"Managed schema, repeatable (default: public)" value-name:"name"`
	AutoApprove bool     `long:"auto-approve" description:"Skip the destructive-operations confirmation prompt"`
	DryRun      bool     `long:"dry-run" description:"Print the plan and exit without touching the database"`
	Format      string   `long:"format" description:"Dry-run output format" choice:"text" choice:"json" default:"text"`
	LockName    string   `long:"lock-name" description:"Advisory-lock name serializing concurrent runs" value-name:"name"`
	LockTimeout int      `long:"lock-timeout" description:"Seconds to wait for the advisory lock" value-name:"sec"`
	Help        bool     `short:"h" long:"help" description:"Show this help"`
}

const exitUsage = 2

// parseApplyOptions parses apply's arguments, exiting with the usage
// code on malformed input. Defaults that live in dbterra.toml are
// resolved by the caller, so zero values mean "not given".
func parseApplyOptions(args []string) *applyOptions {
	var opts applyOptions
	parser := flags.NewParser(&opts, flags.None)
	parser.Usage = "apply [options]"

	rest, err := parser.ParseArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		parser.WriteHelp(os.Stderr)
		os.Exit(exitUsage)
	}

	if opts.Help {
		parser.WriteHelp(os.Stdout)
		os.Exit(0)
	}

	if len(rest) > 0 {
		fmt.Fprintf(os.Stderr, "Error: unexpected argument(s): %v\n\n", rest)
		parser.WriteHelp(os.Stderr)
		os.Exit(exitUsage)
	}

	if opts.LockTimeout < 0 {
		fmt.Fprintf(os.Stderr, "Error: --lock-timeout must be a positive integer\n")
		os.Exit(exitUsage)
	}

	return &opts
}
