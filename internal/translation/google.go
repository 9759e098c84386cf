package translation

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultGoogleEndpoint is the Google Cloud Translation v2 endpoint.
const DefaultGoogleEndpoint = "https://translation.googleapis.com/language/translate/v2"

// GoogleProvider translates text with the Google Cloud Translation v2 API.
type GoogleProvider struct {
	endpointURL string
	apiKey      string
	client      *http.Client
}

// NewGoogleProvider builds a Google provider for the given endpoint/key. An
// empty endpoint uses the public Google API.
func NewGoogleProvider(endpoint, apiKey string) *GoogleProvider {
	resolvedEndpoint := strings.TrimSpace(endpoint)
	if resolvedEndpoint == "" {
		resolvedEndpoint = DefaultGoogleEndpoint
	}
	return &GoogleProvider{
		endpointURL: resolvedEndpoint,
		apiKey:      strings.TrimSpace(apiKey),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (p *GoogleProvider) Name() string {
	return "google"
}

func (p *GoogleProvider) SupportedLanguages() []string {
	return SupportedTranslationLanguageCodes()
}

func (p *GoogleProvider) Translate(ctx context.Context, req TranslateRequest) (*TranslateResponse, error) {
	if p == nil {
		return nil, fmt.Errorf("google provider is nil")
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, fmt.Errorf("text is required")
	}

	sourceLang := normalizeLangCode(req.SourceLang)
	targetLang := normalizeLangCode(req.TargetLang)
	if targetLang == "" {
		return nil, fmt.Errorf("target language is required")
	}

	form := url.Values{}
	form.Set("q", text)
	form.Set("target", targetLang)
	form.Set("format", "text")
	if sourceLang != "" {
		form.Set("source", sourceLang)
	}
	if p.apiKey != "" {
		form.Set("key", p.apiKey)
	}

	started := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpointURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build translation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send translation request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read translation response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errPayload googleErrorResponse
		if unmarshalErr := json.Unmarshal(respBody, &errPayload); unmarshalErr == nil {
			if msg := strings.TrimSpace(errPayload.Error.Message); msg != "" {
				return nil, fmt.Errorf("translation endpoint status %d: %s", resp.StatusCode, msg)
			}
		}
		return nil, fmt.Errorf("translation endpoint status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed googleTranslateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode translation response: %w", err)
	}
	if len(parsed.Data.Translations) == 0 {
		return nil, fmt.Errorf("translation response missing translations")
	}

	item := parsed.Data.Translations[0]
	translated := strings.TrimSpace(html.UnescapeString(item.TranslatedText))
	if translated == "" {
		return nil, fmt.Errorf("translation response was empty")
	}

	resolvedSourceLang := normalizeLangCode(item.DetectedSourceLanguage)
	if resolvedSourceLang == "" {
		resolvedSourceLang = sourceLang
	}

	return &TranslateResponse{
		Text:         translated,
		SourceLang:   resolvedSourceLang,
		TargetLang:   targetLang,
		ProviderName: p.Name(),
		LatencyMs:    time.Since(started).Milliseconds(),
	}, nil
}

type googleTranslateResponse struct {
	Data struct {
		Translations []struct {
			TranslatedText         string `json:"translatedText"`
			DetectedSourceLanguage string `json:"detectedSourceLanguage,omitempty"`
		} `json:"translations"`
	} `json:"data"`
}

type googleErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
