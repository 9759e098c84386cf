package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	ShopifyStore       string `envconfig:"SHOPIFY_STORE" required:"true"`
	ShopifyAPIKey      string `envconfig:"SHOPIFY_API_KEY" default:""`
	ShopifyAPIPassword string `envconfig:"SHOPIFY_API_PASSWORD" default:""`
	ShopifyAPIVersion  string `envconfig:"SHOPIFY_API_VERSION" default:"2024-04"`

	TargetLang  string `envconfig:"TARGET_LANG" default:"en"`
	Concurrency int    `envconfig:"PIPELINE_CONCURRENCY" default:"4"`

	DetectorProvider   string `envconfig:"DETECTOR_PROVIDER" default:"vision"`
	VisionAPIKey       string `envconfig:"VISION_API_KEY" default:""`
	VisionEndpoint     string `envconfig:"VISION_ENDPOINT" default:""`
	TesseractLanguages string `envconfig:"TESSERACT_LANGUAGES" default:""`

	TranslationProvider string `envconfig:"TRANSLATION_PROVIDER" default:"google"`
	GoogleTranslateKey  string `envconfig:"GOOGLE_TRANSLATE_API_KEY" default:""`
	TranslationEndpoint string `envconfig:"TRANSLATION_ENDPOINT" default:""`
	TranslationModel    string `envconfig:"TRANSLATION_MODEL" default:""`

	FontPath    string `envconfig:"RENDER_FONT_PATH" default:""`
	JPEGQuality int    `envconfig:"RENDER_JPEG_QUALITY" default:"90"`

	DatabaseURL string `envconfig:"DATABASE_URL" default:""`
	APIKeyHash  string `envconfig:"API_KEY_HASH" default:""`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.ShopifyStore) == "" {
		return fmt.Errorf("SHOPIFY_STORE is required")
	}
	if strings.TrimSpace(c.ShopifyAPIVersion) == "" {
		return fmt.Errorf("SHOPIFY_API_VERSION is required")
	}
	if strings.TrimSpace(c.TargetLang) == "" {
		return fmt.Errorf("TARGET_LANG is required")
	}
	if c.Concurrency < 1 || c.Concurrency > 32 {
		return fmt.Errorf("PIPELINE_CONCURRENCY must be between 1 and 32")
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("RENDER_JPEG_QUALITY must be between 1 and 100")
	}
	return nil
}

// ShopifyBaseURL returns the Admin API base URL for the configured store.
func (c *Config) ShopifyBaseURL() string {
	store := strings.TrimSpace(c.ShopifyStore)
	if strings.Contains(store, "://") {
		return strings.TrimRight(store, "/")
	}
	return "https://" + strings.TrimRight(store, "/")
}
