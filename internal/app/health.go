package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/relabel/internal/cli"
	"horse.fit/relabel/internal/config"
	"horse.fit/relabel/internal/logging"
	"horse.fit/relabel/internal/store"
	"horse.fit/relabel/internal/storefront"
)

func runHealth(args []string) int {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 10*time.Second, "Health check timeout")

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

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	source := storefront.NewClient(storefront.Options{
		BaseURL:     cfg.ShopifyBaseURL(),
		APIKey:      cfg.ShopifyAPIKey,
		APIPassword: cfg.ShopifyAPIPassword,
		APIVersion:  cfg.ShopifyAPIVersion,
	})
	if err := source.Ping(ctx); err != nil {
		logger.Error().Err(err).Msg("storefront health check failed")
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		return 1
	}

	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		st, err := store.Open(cfg.DatabaseURL)
		if err != nil {
			logger.Error().Err(err).Msg("store health check failed")
			fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
			return 1
		}
		defer st.Close()
		if err := st.Ping(ctx); err != nil {
			logger.Error().Err(err).Msg("database ping failed")
			fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
			return 1
		}
	}

	logger.Info().Dur("timeout", *timeout).Msg("health check passed")
	fmt.Println("ok: storefront reachable")
	return 0
}
