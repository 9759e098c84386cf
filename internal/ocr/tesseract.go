package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// TesseractEngine detects text with a local Tesseract install via gosseract.
// Useful for development and air-gapped runs where the Vision API is not
// reachable.
type TesseractEngine struct {
	languages     []string
	clientFactory func() *gosseract.Client
}

// NewTesseractEngine constructs a Tesseract-backed detector. Languages are
// Tesseract trained-data names ("eng", "por"); empty means the install default.
func NewTesseractEngine(languages []string) *TesseractEngine {
	cleaned := make([]string, 0, len(languages))
	for _, lang := range languages {
		lang = strings.TrimSpace(lang)
		if lang != "" {
			cleaned = append(cleaned, lang)
		}
	}
	return &TesseractEngine{
		languages:     cleaned,
		clientFactory: gosseract.NewClient,
	}
}

func (e *TesseractEngine) Name() string {
	return "tesseract"
}

func (e *TesseractEngine) Detect(ctx context.Context, in DetectInput) ([]DetectedText, error) {
	if e == nil {
		return nil, fmt.Errorf("tesseract engine is nil")
	}
	if len(in.Image) == 0 {
		return nil, fmt.Errorf("image payload is required")
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	client := e.clientFactory()
	defer client.Close()

	if err := client.SetImageFromBytes(in.Image); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}

	languages := e.languages
	if len(in.LanguageHints) > 0 {
		languages = in.LanguageHints
	}
	if len(languages) > 0 {
		if err := client.SetLanguage(languages...); err != nil {
			return nil, fmt.Errorf("set languages: %w", err)
		}
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("get bounding boxes: %w", err)
	}

	regions := make([]DetectedText, 0, len(boxes))
	for _, box := range boxes {
		text := strings.TrimSpace(box.Word)
		if text == "" {
			continue
		}
		region := Region{
			X:      box.Box.Min.X,
			Y:      box.Box.Min.Y,
			Width:  box.Box.Dx(),
			Height: box.Box.Dy(),
		}
		if region.IsEmpty() {
			continue
		}
		regions = append(regions, DetectedText{
			Region: region,
			Text:   text,
		})
	}
	return regions, nil
}
