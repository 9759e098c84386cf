package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"horse.fit/relabel/internal/globaltime"
	"horse.fit/relabel/internal/store"
	"horse.fit/relabel/internal/storefront"
)

const (
	defaultConcurrency = 4
	maxConcurrency     = 32
)

// ErrImageNotFound is returned when a requested image id is not in the catalog.
var ErrImageNotFound = errors.New("product image not found")

// RunOptions controls a catalog run.
type RunOptions struct {
	TargetLang string
	// Concurrency bounds how many images are in flight at once. Each image
	// issues at most one outstanding request per external API, so this also
	// bounds the per-API request rate.
	Concurrency int
	// DryRun processes images but never uploads.
	DryRun bool
	// Force bypasses the translation cache.
	Force bool
}

// RunStats reports pipeline execution counters.
type RunStats struct {
	Images            int `json:"images"`
	Translated        int `json:"translated"`
	Unchanged         int `json:"unchanged"`
	Failed            int `json:"failed"`
	RegionsDetected   int `json:"regions_detected"`
	RegionsTranslated int `json:"regions_translated"`
	RegionsSkipped    int `json:"regions_skipped"`
	CacheHits         int `json:"cache_hits"`
}

// Run processes every product image in the store. Images are independent, so
// failures are isolated: a failed image is counted and logged, and the run
// continues. The returned stats summarize the whole run.
func (s *Service) Run(ctx context.Context, opts RunOptions) (RunStats, error) {
	if s == nil || s.source == nil {
		return RunStats{}, fmt.Errorf("pipeline service is not initialized")
	}

	images, err := s.source.ListProductImages(ctx)
	if err != nil {
		return RunStats{}, &StorefrontError{Op: "list images", Err: err}
	}

	workers := opts.Concurrency
	if workers <= 0 {
		workers = defaultConcurrency
	}
	if workers > maxConcurrency {
		workers = maxConcurrency
	}
	if workers > len(images) {
		workers = len(images)
	}

	stats := RunStats{Images: len(images)}
	if len(images) == 0 {
		return stats, nil
	}

	jobs := make(chan storefront.ProductImage)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for img := range jobs {
				outcome := s.processOne(ctx, img, opts)
				mu.Lock()
				stats.merge(outcome)
				mu.Unlock()
			}
		}()
	}

dispatch:
	for _, img := range images {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- img:
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return stats, err
	}
	return stats, nil
}

// RunImage processes a single image by its Shopify image id.
func (s *Service) RunImage(ctx context.Context, imageID int64, opts RunOptions) (RunStats, error) {
	if s == nil || s.source == nil {
		return RunStats{}, fmt.Errorf("pipeline service is not initialized")
	}

	images, err := s.source.ListProductImages(ctx)
	if err != nil {
		return RunStats{}, &StorefrontError{Op: "list images", Err: err}
	}

	for _, img := range images {
		if img.ImageID != imageID {
			continue
		}
		stats := RunStats{Images: 1}
		stats.merge(s.processOne(ctx, img, opts))
		return stats, nil
	}
	return RunStats{}, fmt.Errorf("%w: %d", ErrImageNotFound, imageID)
}

type imageOutcome struct {
	result ProcessResult
	failed bool
}

func (s *Service) processOne(ctx context.Context, img storefront.ProductImage, opts RunOptions) imageOutcome {
	result, err := s.ProcessImage(ctx, img, ProcessOptions{
		TargetLang: opts.TargetLang,
		Force:      opts.Force,
	})
	if err != nil {
		s.logger.Error().
			Err(err).
			Int64("product_id", img.ProductID).
			Int64("image_id", img.ImageID).
			Str("src", img.SourceURL).
			Msg("image processing failed")
		s.recordLedger(ctx, img, result, store.StatusFailed, err)
		return imageOutcome{result: result, failed: true}
	}

	if !result.Changed {
		s.logger.Debug().
			Int64("product_id", img.ProductID).
			Int64("image_id", img.ImageID).
			Msg("image unchanged")
		s.recordLedger(ctx, img, result, store.StatusUnchanged, nil)
		return imageOutcome{result: result}
	}

	if opts.DryRun {
		s.recordLedger(ctx, img, result, store.StatusTranslated, nil)
		return imageOutcome{result: result}
	}

	if err := s.source.ReplaceImage(ctx, img.ProductID, img.ImageID, result.Output); err != nil {
		uploadErr := &StorefrontError{Op: "replace image", Err: err}
		s.logger.Error().
			Err(uploadErr).
			Int64("product_id", img.ProductID).
			Int64("image_id", img.ImageID).
			Msg("image upload failed")
		s.recordLedger(ctx, img, result, store.StatusFailed, uploadErr)
		return imageOutcome{result: result, failed: true}
	}

	s.logger.Info().
		Int64("product_id", img.ProductID).
		Int64("image_id", img.ImageID).
		Int("regions", result.RegionsTranslated).
		Msg("image translated and replaced")
	s.recordLedger(ctx, img, result, store.StatusTranslated, nil)
	return imageOutcome{result: result}
}

func (s *Service) recordLedger(ctx context.Context, img storefront.ProductImage, result ProcessResult, status string, cause error) {
	row := store.ImageRecord{
		ProductID:         img.ProductID,
		ImageID:           img.ImageID,
		SourceURL:         img.SourceURL,
		ContentHash:       result.ContentHash,
		Status:            status,
		RegionsDetected:   result.RegionsDetected,
		RegionsTranslated: result.RegionsTranslated,
		RegionsSkipped:    result.RegionsSkipped,
		ProcessedAt:       globaltime.UTC(),
	}
	if cause != nil {
		row.Error = cause.Error()
	}
	if err := s.store.RecordImage(ctx, row); err != nil {
		s.logger.Warn().Err(err).Int64("image_id", img.ImageID).Msg("image ledger write failed")
	}
}

func (st *RunStats) merge(outcome imageOutcome) {
	st.RegionsDetected += outcome.result.RegionsDetected
	st.RegionsTranslated += outcome.result.RegionsTranslated
	st.RegionsSkipped += outcome.result.RegionsSkipped
	st.CacheHits += outcome.result.CacheHits

	switch {
	case outcome.failed:
		st.Failed++
	case outcome.result.Changed:
		st.Translated++
	default:
		st.Unchanged++
	}
}
