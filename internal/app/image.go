package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"horse.fit/relabel/internal/cli"
	"horse.fit/relabel/internal/config"
	"horse.fit/relabel/internal/langdetect"
	"horse.fit/relabel/internal/logging"
	"horse.fit/relabel/internal/pipeline"
)

func runImage(args []string) int {
	fs := flag.NewFlagSet("image", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 5*time.Minute, "Command timeout")
	lang := fs.String("lang", "", "Target language (ISO 639-1, for example: en)")
	detector := fs.String("detector", "", "Detector engine name (for example: vision, tesseract)")
	provider := fs.String("provider", "", "Translation provider name (for example: google, local)")
	dryRun := fs.Bool("dry-run", false, "Process the image without uploading the result")
	force := fs.Bool("force", false, "Bypass the translation cache")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "image requires one <image_id> argument")
		return 2
	}

	imageID, err := strconv.ParseInt(strings.TrimSpace(fs.Arg(0)), 10, 64)
	if err != nil || imageID <= 0 {
		fmt.Fprintln(os.Stderr, "image argument must be a positive integer id")
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

	svcs, err := buildServices(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("image command failed to build services")
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

	stats, err := svc.RunImage(ctx, imageID, pipeline.RunOptions{
		TargetLang: targetLang,
		DryRun:     *dryRun,
		Force:      *force,
	})
	if err != nil {
		if errors.Is(err, pipeline.ErrImageNotFound) {
			fmt.Fprintf(os.Stderr, "Image not found: %d\n", imageID)
			return 1
		}
		logger.Error().Err(err).Int64("image_id", imageID).Msg("image run failed")
		fmt.Fprintf(os.Stderr, "Image run failed: %v\n", err)
		return 1
	}

	fmt.Printf(
		"image id=%d lang=%s translated=%d unchanged=%d failed=%d regions=%d skipped=%d dry_run=%t\n",
		imageID,
		targetLang,
		stats.Translated,
		stats.Unchanged,
		stats.Failed,
		stats.RegionsTranslated,
		stats.RegionsSkipped,
		*dryRun,
	)
	if stats.Failed > 0 {
		return 1
	}
	return 0
}
