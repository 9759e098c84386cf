package ocr

import "context"

// Region is a rectangular pixel area of an image, origin in the upper-left corner.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// IsEmpty reports whether the region has non-positive dimensions.
func (r Region) IsEmpty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// DetectedText is one region of text found in an image. Immutable once produced.
type DetectedText struct {
	Region Region `json:"region"`
	Text   string `json:"text"`
	// Locale is the language the provider attributed to the text, when known
	// (ISO 639-1). Empty means the provider did not classify it.
	Locale string `json:"locale,omitempty"`
}

// DetectInput is a single image submitted for text detection.
type DetectInput struct {
	// Image is the encoded image payload (PNG or JPEG).
	Image []byte
	// LanguageHints lists languages the provider should expect, when supported.
	LanguageHints []string
}

// Engine detects text regions in product images.
type Engine interface {
	Name() string
	Detect(ctx context.Context, in DetectInput) ([]DetectedText, error)
}
