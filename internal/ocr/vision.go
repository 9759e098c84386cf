package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultVisionEndpoint is the Google Cloud Vision annotate endpoint.
const DefaultVisionEndpoint = "https://vision.googleapis.com/v1/images:annotate"

// VisionEngine detects text with the Google Cloud Vision TEXT_DETECTION feature.
type VisionEngine struct {
	endpointURL string
	apiKey      string
	client      *http.Client
}

// NewVisionEngine builds a Vision engine for the given endpoint/key. An empty
// endpoint uses the public Google API.
func NewVisionEngine(endpoint, apiKey string) *VisionEngine {
	resolvedEndpoint := strings.TrimSpace(endpoint)
	if resolvedEndpoint == "" {
		resolvedEndpoint = DefaultVisionEndpoint
	}
	return &VisionEngine{
		endpointURL: resolvedEndpoint,
		apiKey:      strings.TrimSpace(apiKey),
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (e *VisionEngine) Name() string {
	return "vision"
}

func (e *VisionEngine) Detect(ctx context.Context, in DetectInput) ([]DetectedText, error) {
	if e == nil {
		return nil, fmt.Errorf("vision engine is nil")
	}
	if len(in.Image) == 0 {
		return nil, fmt.Errorf("image payload is required")
	}

	annotateReq := visionAnnotateRequest{
		Requests: []visionImageRequest{{
			Image:    visionImage{Content: base64.StdEncoding.EncodeToString(in.Image)},
			Features: []visionFeature{{Type: "TEXT_DETECTION"}},
		}},
	}
	if len(in.LanguageHints) > 0 {
		annotateReq.Requests[0].ImageContext = &visionImageContext{LanguageHints: in.LanguageHints}
	}

	body, err := json.Marshal(annotateReq)
	if err != nil {
		return nil, fmt.Errorf("marshal annotate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.requestURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build annotate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send annotate request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read annotate response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("vision endpoint status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed visionAnnotateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode annotate response: %w", err)
	}
	if len(parsed.Responses) == 0 {
		return nil, fmt.Errorf("annotate response missing responses")
	}

	annotation := parsed.Responses[0]
	if annotation.Error != nil && strings.TrimSpace(annotation.Error.Message) != "" {
		return nil, fmt.Errorf("vision annotation failed: %s", annotation.Error.Message)
	}

	// The first annotation spans the whole image; the per-word annotations follow.
	if len(annotation.TextAnnotations) <= 1 {
		return nil, nil
	}

	regions := make([]DetectedText, 0, len(annotation.TextAnnotations)-1)
	for _, item := range annotation.TextAnnotations[1:] {
		text := strings.TrimSpace(item.Description)
		if text == "" {
			continue
		}
		region := regionFromVertices(item.BoundingPoly.Vertices)
		if region.IsEmpty() {
			continue
		}
		regions = append(regions, DetectedText{
			Region: region,
			Text:   text,
			Locale: strings.ToLower(strings.TrimSpace(item.Locale)),
		})
	}
	return regions, nil
}

func (e *VisionEngine) requestURL() string {
	if e.apiKey == "" {
		return e.endpointURL
	}
	parsed, err := url.Parse(e.endpointURL)
	if err != nil {
		return e.endpointURL
	}
	query := parsed.Query()
	query.Set("key", e.apiKey)
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

func regionFromVertices(vertices []visionVertex) Region {
	if len(vertices) == 0 {
		return Region{}
	}

	minX, minY := vertices[0].X, vertices[0].Y
	maxX, maxY := vertices[0].X, vertices[0].Y
	for _, v := range vertices[1:] {
		if v.X < minX {
			minX = v.X
		}
		if v.Y < minY {
			minY = v.Y
		}
		if v.X > maxX {
			maxX = v.X
		}
		if v.Y > maxY {
			maxY = v.Y
		}
	}

	return Region{
		X:      minX,
		Y:      minY,
		Width:  maxX - minX,
		Height: maxY - minY,
	}
}

type visionAnnotateRequest struct {
	Requests []visionImageRequest `json:"requests"`
}

type visionImageRequest struct {
	Image        visionImage         `json:"image"`
	Features     []visionFeature     `json:"features"`
	ImageContext *visionImageContext `json:"imageContext,omitempty"`
}

type visionImage struct {
	Content string `json:"content"`
}

type visionFeature struct {
	Type string `json:"type"`
}

type visionImageContext struct {
	LanguageHints []string `json:"languageHints,omitempty"`
}

type visionAnnotateResponse struct {
	Responses []visionImageResponse `json:"responses"`
}

type visionImageResponse struct {
	TextAnnotations []visionTextAnnotation `json:"textAnnotations"`
	Error           *visionStatus          `json:"error,omitempty"`
}

type visionTextAnnotation struct {
	Locale       string             `json:"locale,omitempty"`
	Description  string             `json:"description"`
	BoundingPoly visionBoundingPoly `json:"boundingPoly"`
}

type visionBoundingPoly struct {
	Vertices []visionVertex `json:"vertices"`
}

type visionVertex struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type visionStatus struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
