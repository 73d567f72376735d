// Package main provides the filewatch CLI application.
//
// filewatch serves change notifications for files under a proposal root
// over HTTP polling and websockets. It also offers local helpers to hash a
// file, follow its changes and inspect the change journal.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"
)

// version is set during build time.
var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run executes the main application logic.
func run(argv []string) error {
	fs := flag.NewFlagSet("filewatch", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	showVersion := fs.Bool("version", false, "show version information")

	if err := fs.Parse(argv); err != nil {
		return err
	}

	if *showVersion {
		fmt.Printf("filewatch %s\n", version)
		return nil
	}

	args := fs.Args()
	if len(args) == 0 {
		return showUsage()
	}

	command := args[0]
	rest := args[1:]

	switch command {
	case "serve":
		cmd, err := parseServeFlags(*configPath, rest)
		if err != nil {
			return err
		}
		return cmd.Execute()
	case "hash":
		cmd, err := parseHashFlags(rest)
		if err != nil {
			return err
		}
		return cmd.Execute()
	case "tail":
		cmd, err := parseTailFlags(*configPath, rest, stdoutIsTerminal())
		if err != nil {
			return err
		}
		return cmd.Execute()
	case "history":
		cmd, err := parseHistoryFlags(*configPath, rest)
		if err != nil {
			return err
		}
		return cmd.Execute()
	case "proposals":
		cmd, err := parseProposalsFlags(*configPath, rest)
		if err != nil {
			return err
		}
		return cmd.Execute()
	case "config":
		cmd := &configCommand{configPath: *configPath}
		return cmd.Execute(rest)
	case "help":
		return showUsage()
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func parseServeFlags(configPath string, args []string) (*serveCommand, error) {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", "", "listen address (overrides config)")
	root := fs.String("root", "", "proposal root directory (overrides config)")
	noHistory := fs.Bool("no-history", false, "disable the change journal")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	return &serveCommand{
		configPath: configPath,
		addr:       *addr,
		root:       *root,
		noHistory:  *noHistory,
	}, nil
}

func parseHashFlags(args []string) (*hashCommand, error) {
	fs := flag.NewFlagSet("hash", flag.ContinueOnError)
	format := fs.String("format", "simple", "output format (simple, table, json)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() == 0 {
		return nil, fmt.Errorf("hash: at least one file is required")
	}

	return &hashCommand{
		files:  fs.Args(),
		format: *format,
	}, nil
}

// parseTailFlags defaults to table output on a terminal and JSON lines
// otherwise.
func parseTailFlags(configPath string, args []string, terminal bool) (*tailCommand, error) {
	defaultFormat := "json"
	if terminal {
		defaultFormat = "table"
	}

	fs := flag.NewFlagSet("tail", flag.ContinueOnError)
	format := fs.String("format", defaultFormat, "output format (table, simple, json)")
	full := fs.Bool("full", false, "print full checksums")
	retry := fs.Duration("retry", time.Second, "interval for re-establishing lost watches")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() == 0 {
		return nil, fmt.Errorf("tail: at least one file is required")
	}

	return &tailCommand{
		configPath: configPath,
		files:      fs.Args(),
		format:     *format,
		full:       *full,
		retry:      *retry,
	}, nil
}

func parseHistoryFlags(configPath string, args []string) (*historyCommand, error) {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "maximum records per file (0 for all)")
	format := fs.String("format", "table", "output format (table, simple, json)")
	full := fs.Bool("full", false, "print full checksums")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	return &historyCommand{
		configPath: configPath,
		files:      fs.Args(),
		limit:      *limit,
		format:     *format,
		full:       *full,
	}, nil
}

func parseProposalsFlags(configPath string, args []string) (*proposalsCommand, error) {
	fs := flag.NewFlagSet("proposals", flag.ContinueOnError)
	format := fs.String("format", "table", "output format (table, simple, json)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	return &proposalsCommand{
		configPath: configPath,
		format:     *format,
	}, nil
}

// showUsage displays usage information.
func showUsage() error {
	usage := `filewatch - file change notifications for proposal directories

Usage:
  filewatch [flags] <command> [command flags]

Commands:
  serve       Run the HTTP and websocket server
  hash        Print the checksum of files
  tail        Follow files and print verified changes
  history     Show journaled changes
  proposals   List proposal directories under the root
  config      Configuration management (show, path, reset)
  help        Show this help message

Global Flags:
  -config     Path to configuration file
  -version    Show version information

Serve Command Flags:
  -addr       Listen address (overrides config)
  -root       Proposal root directory (overrides config)
  -no-history Disable the change journal

Tail Command Flags:
  -format     Output format (table, simple, json; default: table on a terminal, json otherwise)
  -full       Print full checksums
  -retry      Interval for re-establishing lost watches (default: 1s)

History Command Flags:
  -limit      Maximum records per file (default: 20, 0 for all)
  -format     Output format (table, simple, json)
  -full       Print full checksums

Examples:
  # Serve the configured proposal root
  filewatch serve

  # Serve another root on another port
  filewatch serve -addr :9000 -root /srv/proposals

  # Checksum a file the way clients see it
  filewatch hash /srv/proposals/p1/context.py

  # Follow changes as JSON lines
  filewatch tail /srv/proposals/p1/log.txt | jq .

  # Show the last 5 changes of a file
  filewatch history -limit 5 /srv/proposals/p1/context.py

Version: %s
`

	fmt.Printf(usage, version)
	return nil
}
