package langdetect

import (
	"strings"
	"unicode"

	lingua "github.com/pemistahl/lingua-go"
)

// minLetters is the smallest sample lingua gives a usable answer for.
const minLetters = 6

// Detector identifies the language of detected text samples. Build one per
// process and pass it by reference; lingua preloads its models on construction.
type Detector struct {
	detector lingua.LanguageDetector
}

func NewDetector() *Detector {
	return &Detector{
		detector: lingua.NewLanguageDetectorBuilder().
			FromAllLanguages().
			WithPreloadedLanguageModels().
			Build(),
	}
}

// DetectISO6391 returns the two-letter language code for the sample, or an
// empty string when the sample is too short or the language is unknown.
func (d *Detector) DetectISO6391(text string) string {
	if d == nil || d.detector == nil {
		return ""
	}

	sample := strings.TrimSpace(text)
	if sample == "" {
		return ""
	}

	letterCount := 0
	for _, r := range sample {
		if unicode.IsLetter(r) {
			letterCount++
		}
	}
	if letterCount < minLetters {
		return ""
	}

	language, exists := d.detector.DetectLanguageOf(sample)
	if !exists {
		return ""
	}

	code := strings.ToLower(language.IsoCode639_1().String())
	if len(code) != 2 {
		return ""
	}
	return code
}

// IsTargetLanguage reports whether the sample is already written in the target
// language. Samples too short to classify report false so they still get
// translated.
func (d *Detector) IsTargetLanguage(text, targetLang string) bool {
	target := NormalizeCode(targetLang)
	if target == "" {
		return false
	}
	detected := d.DetectISO6391(text)
	if detected == "" {
		return false
	}
	return detected == target
}

// NormalizeTag normalizes a language tag to lowercase and "-" separators.
// Returns an empty string when the value is blank or contains invalid characters.
func NormalizeTag(raw string) string {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" {
		return ""
	}

	trimmed = strings.ReplaceAll(trimmed, "_", "-")
	parts := strings.Split(trimmed, "-")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !isAlphaLower(part) {
			return ""
		}
		normalized = append(normalized, part)
	}

	if len(normalized) == 0 {
		return ""
	}
	return strings.Join(normalized, "-")
}

// NormalizeCode returns the primary language subtag (for example, "en" from "en-US").
func NormalizeCode(raw string) string {
	tag := NormalizeTag(raw)
	if tag == "" {
		return ""
	}
	if dash := strings.IndexByte(tag, '-'); dash >= 0 {
		return tag[:dash]
	}
	return tag
}

func isAlphaLower(value string) bool {
	for _, r := range value {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}
