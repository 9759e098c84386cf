package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/relabel/internal/cli"
	"horse.fit/relabel/internal/config"
	"horse.fit/relabel/internal/langdetect"
	"horse.fit/relabel/internal/logging"
	"horse.fit/relabel/internal/pipeline"
)

func runCatalog(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Minute, "Command timeout")
	lang := fs.String("lang", "", "Target language (ISO 639-1, for example: en)")
	detector := fs.String("detector", "", "Detector engine name (for example: vision, tesseract)")
	provider := fs.String("provider", "", "Translation provider name (for example: google, local)")
	concurrency := fs.Int("concurrency", 0, "Images processed in parallel (default from config)")
	dryRun := fs.Bool("dry-run", false, "Process images without uploading results")
	force := fs.Bool("force", false, "Bypass the translation cache")

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

	targetLang := langdetect.NormalizeCode(*lang)
	if targetLang == "" {
		targetLang = langdetect.NormalizeCode(cfg.TargetLang)
	}
	if targetLang == "" {
		fmt.Fprintln(os.Stderr, "--lang (or TARGET_LANG) must be a valid language code")
		return 2
	}

	resolvedConcurrency := *concurrency
	if resolvedConcurrency <= 0 {
		resolvedConcurrency = cfg.Concurrency
	}

	svcs, err := buildServices(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("run command failed to build services")
		fmt.Fprintf(os.Stderr, "Failed to build services: %v\n", err)
		return 1
	}
	defer svcs.Close()

	svc, err := svcs.Pipeline(*detector, *provider)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	stats, err := svc.Run(ctx, pipeline.RunOptions{
		TargetLang:  targetLang,
		Concurrency: resolvedConcurrency,
		DryRun:      *dryRun,
		Force:       *force,
	})
	if err != nil {
		logger.Error().Err(err).Msg("catalog run failed")
		fmt.Fprintf(os.Stderr, "Run failed: %v\n", err)
		return 1
	}

	logger.Info().
		Int("images", stats.Images).
		Int("translated", stats.Translated).
		Int("unchanged", stats.Unchanged).
		Int("failed", stats.Failed).
		Msg("catalog run completed")
	fmt.Printf(
		"run lang=%s images=%d translated=%d unchanged=%d failed=%d regions=%d skipped=%d cache_hits=%d dry_run=%t\n",
		targetLang,
		stats.Images,
		stats.Translated,
		stats.Unchanged,
		stats.Failed,
		stats.RegionsTranslated,
		stats.RegionsSkipped,
		stats.CacheHits,
		*dryRun,
	)
	if stats.Failed > 0 {
		return 1
	}
	return 0
}
