// Command blockip adds, refreshes or lifts an address block.
//
//	blockip <address> [--reason text] [--unblock]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"trafficwatch/internal/blocklist"
	"trafficwatch/internal/database"
	"trafficwatch/internal/domain"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file found. Using system environment variables.")
	}
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	address string
	reason  string
	unblock bool
}

// parseArgs accepts flags before or after the address.
func parseArgs(args []string, stderr io.Writer) (options, error) {
	var opts options

	fs := flag.NewFlagSet("blockip", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.reason, "reason", "", "Reason for blocking this IP")
	fs.BoolVar(&opts.unblock, "unblock", false, "Deactivate the block instead of adding it")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: blockip <address> [--reason text] [--unblock]")
		fs.PrintDefaults()
	}

	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return options{}, err
		}
		if fs.NArg() == 0 {
			break
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}

	if len(positional) != 1 {
		fs.Usage()
		return options{}, errors.New("exactly one address is required")
	}
	opts.address = positional[0]
	return opts, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(stderr, "Error:", err)
		}
		return 2
	}

	if _, ok := domain.NormalizeAddress(opts.address); !ok {
		fmt.Fprintf(stderr, "Invalid IP address: %s\n", opts.address)
		return 1
	}

	if _, err := database.SetupDB(); err != nil {
		fmt.Fprintln(stderr, "Error connecting to database:", err)
		return 1
	}
	defer func() {
		if err := database.CloseDB(); err != nil {
			log.Warn("error closing database", "error", err)
		}
	}()

	if opts.unblock {
		return unblock(ctx, opts.address, stdout, stderr)
	}
	return block(ctx, opts, stdout, stderr)
}

func block(ctx context.Context, opts options, stdout, stderr io.Writer) int {
	result, err := blocklist.Block(ctx, opts.address, opts.reason)
	switch {
	case errors.Is(err, blocklist.ErrInvalidAddress):
		fmt.Fprintf(stderr, "Invalid IP address: %s\n", opts.address)
		return 1
	case err != nil:
		fmt.Fprintf(stderr, "Error blocking IP: %v\n", err)
		return 1
	}

	if result.Created {
		fmt.Fprintf(stdout, "Successfully blocked IP: %s\n", result.Entry.IPAddress)
	} else {
		fmt.Fprintf(stdout, "IP %s was already blocked. Updated the reason.\n", result.Entry.IPAddress)
	}
	return 0
}

func unblock(ctx context.Context, address string, stdout, stderr io.Writer) int {
	err := blocklist.Unblock(ctx, address)
	switch {
	case errors.Is(err, blocklist.ErrInvalidAddress):
		fmt.Fprintf(stderr, "Invalid IP address: %s\n", address)
		return 1
	case errors.Is(err, blocklist.ErrNotBlocked):
		fmt.Fprintf(stderr, "IP %s is not blocked\n", address)
		return 1
	case err != nil:
		fmt.Fprintf(stderr, "Error unblocking IP: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Unblocked IP: %s\n", address)
	return 0
}
