package app

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"horse.fit/relabel/internal/config"
	"horse.fit/relabel/internal/langdetect"
	"horse.fit/relabel/internal/ocr"
	"horse.fit/relabel/internal/pipeline"
	"horse.fit/relabel/internal/render"
	"horse.fit/relabel/internal/store"
	"horse.fit/relabel/internal/storefront"
	"horse.fit/relabel/internal/translation"
)

// services wires every capability once and hands out pipeline instances.
// It satisfies httpapi.PipelineFactory.
type services struct {
	cfg         *config.Config
	logger      zerolog.Logger
	detectors   *ocr.Registry
	translators *translation.Registry
	renderer    render.Renderer
	source      *storefront.Client
	languages   *langdetect.Detector
	store       store.Store
}

func buildServices(cfg *config.Config, logger zerolog.Logger) (*services, error) {
	detectors := ocr.NewRegistry(cfg.DetectorProvider)
	if err := detectors.Register(ocr.NewVisionEngine(cfg.VisionEndpoint, cfg.VisionAPIKey)); err != nil {
		return nil, fmt.Errorf("register vision engine: %w", err)
	}
	if err := detectors.Register(ocr.NewTesseractEngine(splitList(cfg.TesseractLanguages))); err != nil {
		return nil, fmt.Errorf("register tesseract engine: %w", err)
	}

	translators := translation.NewRegistry(cfg.TranslationProvider)
	if err := translators.Register(translation.NewGoogleProvider("", cfg.GoogleTranslateKey)); err != nil {
		return nil, fmt.Errorf("register google provider: %w", err)
	}
	if err := translators.Register(translation.NewLocalProvider(cfg.TranslationEndpoint, cfg.TranslationModel)); err != nil {
		return nil, fmt.Errorf("register local provider: %w", err)
	}
	translators.ResolveDefault()

	renderer, err := render.NewBoxRenderer(render.Options{
		FontPath:    cfg.FontPath,
		JPEGQuality: cfg.JPEGQuality,
	})
	if err != nil {
		return nil, err
	}

	source := storefront.NewClient(storefront.Options{
		BaseURL:     cfg.ShopifyBaseURL(),
		APIKey:      cfg.ShopifyAPIKey,
		APIPassword: cfg.ShopifyAPIPassword,
		APIVersion:  cfg.ShopifyAPIVersion,
	})

	var st store.Store = store.NewNoop()
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		st, err = store.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
	}

	return &services{
		cfg:         cfg,
		logger:      logger,
		detectors:   detectors,
		translators: translators,
		renderer:    renderer,
		source:      source,
		languages:   langdetect.NewDetector(),
		store:       st,
	}, nil
}

func (s *services) Close() {
	if s == nil || s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("store close failed")
	}
}

// Pipeline builds a pipeline service for the requested provider names. Empty
// names use the configured defaults.
func (s *services) Pipeline(detector, translator string) (*pipeline.Service, error) {
	engine, err := s.detectors.Engine(detector)
	if err != nil {
		return nil, err
	}
	provider, err := s.translators.Provider(translator)
	if err != nil {
		return nil, err
	}
	return pipeline.NewService(engine, provider, s.renderer, s.source, s.languages, s.store, s.logger), nil
}

func (s *services) ProviderNames() (detectors, translators []string) {
	return s.detectors.EngineNames(), s.translators.ProviderNames()
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			items = append(items, part)
		}
	}
	return items
}
