package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "run", "run-once":
		return runCatalog(args[1:])
	case "image":
		return runImage(args[1:])
	case "providers":
		return runProviders(args[1:])
	case "serve":
		return runServe(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "relabel CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  relabel <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health     Verify storefront (and database) connectivity")
	fmt.Fprintln(os.Stderr, "  run        Translate every product image in the store")
	fmt.Fprintln(os.Stderr, "  run-once   Alias for run")
	fmt.Fprintln(os.Stderr, "  image      Translate a single product image by image id")
	fmt.Fprintln(os.Stderr, "  providers  List registered detector and translation providers")
	fmt.Fprintln(os.Stderr, "  serve      Start Echo API server")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"relabel <command> -h\" for command-specific flags.")
}
