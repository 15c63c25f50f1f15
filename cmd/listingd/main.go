package main

import (
	"fmt"
	"os"
)

const version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	switch os.Args[1] {
	case "infer":
		if err := runInfer(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "mcp":
		if err := runMCP(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "sessions":
		if err := runSessions(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "config":
		if err := runConfig(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "version", "--version", "-v":
		fmt.Printf("listingd %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`listingd %s — Conversational auction listing assistant

Usage:
  listingd <command> [arguments]

Commands:
  infer <utterance>   Run one inference call against a listing form
  mcp                 Serve the assistant over MCP stdio transport
  sessions            List persisted listing sessions
  config              Show resolved configuration with provenance
  version             Print version

Infer Flags:
  --form <json>       Current form state as a JSON object
  --categories <json> Available categories as a JSON array
  --context <file>    Session context file to load and update
  --session <id>      Persist context under this session id instead
  --item <id>         Ground extraction against this item
  --field <name>      Force extraction of a single field
  --sequential        Extract candidate fields one at a time

Common Flags:
  --llm <spec>        Completion provider as provider/model
  --db <path>         Session database path
  --config <path>     Config file path
  -h, --help          Show this help message
  -v, --version       Print version
`, version)
}
