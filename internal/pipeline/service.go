package pipeline

import (
	"context"
	"crypto/sha256"
	"strings"

	"github.com/rs/zerolog"

	"horse.fit/relabel/internal/langdetect"
	"horse.fit/relabel/internal/ocr"
	"horse.fit/relabel/internal/render"
	"horse.fit/relabel/internal/store"
	"horse.fit/relabel/internal/storefront"
	"horse.fit/relabel/internal/translation"
)

// Translator is the slice of the provider contract the pipeline needs.
type Translator interface {
	Translate(ctx context.Context, req translation.TranslateRequest) (*translation.TranslateResponse, error)
	Name() string
}

// ImageSource lists, fetches and replaces product images.
type ImageSource interface {
	ListProductImages(ctx context.Context) ([]storefront.ProductImage, error)
	FetchImage(ctx context.Context, url string) ([]byte, error)
	ReplaceImage(ctx context.Context, productID, imageID int64, data []byte) error
}

// LanguageDetector decides whether detected text is already in the target
// language. langdetect.Detector satisfies this.
type LanguageDetector interface {
	IsTargetLanguage(text, targetLang string) bool
}

// Service is the per-image processing pipeline: fetch, detect, translate,
// render. Capabilities are injected once at construction and shared by all
// workers; the service keeps no per-image state.
type Service struct {
	detector   ocr.Engine
	translator Translator
	renderer   render.Renderer
	source     ImageSource
	languages  LanguageDetector
	store      store.Store
	logger     zerolog.Logger
}

func NewService(
	detector ocr.Engine,
	translator Translator,
	renderer render.Renderer,
	source ImageSource,
	languages LanguageDetector,
	st store.Store,
	logger zerolog.Logger,
) *Service {
	if st == nil {
		st = store.NewNoop()
	}
	return &Service{
		detector:   detector,
		translator: translator,
		renderer:   renderer,
		source:     source,
		languages:  languages,
		store:      st,
		logger:     logger,
	}
}

// ProcessOptions controls a single image pass.
type ProcessOptions struct {
	TargetLang string
	// Force bypasses the translation cache.
	Force bool
}

// ProcessResult reports what one pass produced. When no translatable text was
// found, Output is the input bytes unchanged and Changed is false.
type ProcessResult struct {
	Output            []byte
	ContentHash       []byte
	Changed           bool
	RegionsDetected   int
	RegionsTranslated int
	RegionsSkipped    int
	CacheHits         int
}

// ProcessImage runs the detect-translate-render chain for one product image.
// The caller is responsible for uploading the result.
func (s *Service) ProcessImage(ctx context.Context, img storefront.ProductImage, opts ProcessOptions) (ProcessResult, error) {
	targetLang := langdetect.NormalizeCode(opts.TargetLang)
	if targetLang == "" {
		targetLang = "en"
	}

	data, err := s.source.FetchImage(ctx, img.SourceURL)
	if err != nil {
		return ProcessResult{}, &FetchError{URL: img.SourceURL, Err: err}
	}
	contentHash := sha256.Sum256(data)

	result := ProcessResult{
		Output:      data,
		ContentHash: contentHash[:],
	}

	detected, err := s.detector.Detect(ctx, ocr.DetectInput{Image: data})
	if err != nil {
		return result, &DetectorError{Engine: s.detector.Name(), Err: err}
	}
	result.RegionsDetected = len(detected)

	candidates := s.filterRegions(detected, targetLang)
	if len(candidates) == 0 {
		return result, nil
	}

	translated := s.translateRegions(ctx, img, candidates, targetLang, opts.Force, &result)
	if len(translated) == 0 {
		// Every region failed translation; nothing to composite.
		return result, nil
	}

	rendered, err := s.renderer.Render(ctx, data, translated)
	if err != nil {
		return result, &RenderError{Err: err}
	}

	result.Output = rendered
	result.Changed = true
	return result, nil
}

// filterRegions drops regions with no usable text and regions already written
// in the target language. Language identity comes from the provider's locale
// when present, otherwise from the language detector; samples too short to
// classify are kept and left for the translation provider to resolve.
func (s *Service) filterRegions(detected []ocr.DetectedText, targetLang string) []ocr.DetectedText {
	candidates := make([]ocr.DetectedText, 0, len(detected))
	for _, region := range detected {
		text := strings.TrimSpace(region.Text)
		if text == "" || region.Region.IsEmpty() {
			continue
		}
		if region.Locale != "" && langdetect.NormalizeCode(region.Locale) == targetLang {
			continue
		}
		if region.Locale == "" && s.languages != nil && s.languages.IsTargetLanguage(text, targetLang) {
			continue
		}
		candidates = append(candidates, region)
	}
	return candidates
}

func (s *Service) translateRegions(
	ctx context.Context,
	img storefront.ProductImage,
	candidates []ocr.DetectedText,
	targetLang string,
	force bool,
	result *ProcessResult,
) []render.TranslatedRegion {
	// Identical strings inside one image resolve once.
	memo := make(map[string]string, len(candidates))

	translated := make([]render.TranslatedRegion, 0, len(candidates))
	for _, region := range candidates {
		text := strings.TrimSpace(region.Text)

		if cached, ok := memo[text]; ok {
			translated = append(translated, render.TranslatedRegion{
				Region: region.Region,
				Source: text,
				Text:   cached,
			})
			result.RegionsTranslated++
			continue
		}

		output, fromCache, err := s.translateText(ctx, text, region.Locale, targetLang, force)
		if err != nil {
			trErr := &TranslatorError{Provider: s.translator.Name(), Err: err}
			s.logger.Warn().
				Err(trErr).
				Int64("product_id", img.ProductID).
				Int64("image_id", img.ImageID).
				Str("text", text).
				Msg("region translation failed, skipping region")
			result.RegionsSkipped++
			continue
		}

		memo[text] = output
		if fromCache {
			result.CacheHits++
		}
		translated = append(translated, render.TranslatedRegion{
			Region: region.Region,
			Source: text,
			Text:   output,
		})
		result.RegionsTranslated++
	}
	return translated
}

func (s *Service) translateText(ctx context.Context, text, sourceLang, targetLang string, force bool) (string, bool, error) {
	textHash := sha256.Sum256([]byte(text))

	if !force {
		cached, err := s.store.LookupTranslation(ctx, textHash[:], targetLang)
		if err != nil {
			s.logger.Warn().Err(err).Msg("translation cache lookup failed")
		} else if cached != nil && strings.TrimSpace(cached.TranslatedText) != "" {
			return cached.TranslatedText, true, nil
		}
	}

	resp, err := s.translator.Translate(ctx, translation.TranslateRequest{
		Text:       text,
		SourceLang: sourceLang,
		TargetLang: targetLang,
	})
	if err != nil {
		return "", false, err
	}
	output := strings.TrimSpace(resp.Text)
	if output == "" {
		return "", false, &emptyTranslationError{}
	}

	if err := s.store.SaveTranslation(ctx, store.CachedTranslation{
		ContentHash:    textHash[:],
		TargetLang:     targetLang,
		SourceLang:     resp.SourceLang,
		OriginalText:   text,
		TranslatedText: output,
		ProviderName:   resp.ProviderName,
		LatencyMS:      resp.LatencyMs,
	}); err != nil {
		s.logger.Warn().Err(err).Msg("translation cache save failed")
	}

	return output, false, nil
}

type emptyTranslationError struct{}

func (*emptyTranslationError) Error() string { return "provider returned empty translation" }
