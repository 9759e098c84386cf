package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"horse.fit/relabel/internal/cli"
	"horse.fit/relabel/internal/config"
	"horse.fit/relabel/internal/logging"
)

func runProviders(args []string) int {
	fs := flag.NewFlagSet("providers", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	svcs, err := buildServices(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build services: %v\n", err)
		return 1
	}
	defer svcs.Close()

	detectors, translators := svcs.ProviderNames()
	fmt.Printf("detectors: %s (default: %s)\n", strings.Join(detectors, ", "), svcs.detectors.DefaultEngine())
	fmt.Printf("translators: %s (default: %s)\n", strings.Join(translators, ", "), svcs.translators.DefaultProvider())
	return 0
}
