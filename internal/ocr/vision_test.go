package ocr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestVisionEngineDetect(t *testing.T) {
	t.Parallel()

	payload := []byte("fake-jpeg")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("key"); got != "vision-key" {
			t.Errorf("unexpected key query: %q", got)
		}

		var req visionAnnotateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Requests) != 1 {
			t.Fatalf("expected one annotate request, got %d", len(req.Requests))
		}
		decoded, err := base64.StdEncoding.DecodeString(req.Requests[0].Image.Content)
		if err != nil || string(decoded) != string(payload) {
			t.Errorf("unexpected image content: %q (%v)", decoded, err)
		}
		if len(req.Requests[0].Features) != 1 || req.Requests[0].Features[0].Type != "TEXT_DETECTION" {
			t.Errorf("unexpected features: %+v", req.Requests[0].Features)
		}

		w.Write([]byte(`{
			"responses": [{
				"textAnnotations": [
					{
						"locale": "pt",
						"description": "Olá mundo",
						"boundingPoly": {"vertices": [{"x":0,"y":0},{"x":100,"y":0},{"x":100,"y":60},{"x":0,"y":60}]}
					},
					{
						"description": "Olá",
						"boundingPoly": {"vertices": [{"x":10,"y":10},{"x":50,"y":10},{"x":50,"y":20},{"x":10,"y":20}]}
					},
					{
						"description": "mundo",
						"boundingPoly": {"vertices": [{"x":55,"y":10},{"x":95,"y":10},{"x":95,"y":20},{"x":55,"y":20}]}
					}
				]
			}]
		}`))
	}))
	defer server.Close()

	engine := NewVisionEngine(server.URL, "vision-key")
	regions, err := engine.Detect(context.Background(), DetectInput{Image: payload})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(regions) != 2 {
		t.Fatalf("expected 2 regions after dropping the whole-image annotation, got %d", len(regions))
	}
	want := Region{X: 10, Y: 10, Width: 40, Height: 10}
	if regions[0].Region != want {
		t.Fatalf("unexpected region: got %+v want %+v", regions[0].Region, want)
	}
	if regions[0].Text != "Olá" || regions[1].Text != "mundo" {
		t.Fatalf("unexpected texts: %q, %q", regions[0].Text, regions[1].Text)
	}
}

func TestVisionEngineNoText(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"responses":[{}]}`))
	}))
	defer server.Close()

	engine := NewVisionEngine(server.URL, "")
	regions, err := engine.Detect(context.Background(), DetectInput{Image: []byte("img")})
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(regions) != 0 {
		t.Fatalf("expected no regions, got %d", len(regions))
	}
}

func TestVisionEngineAnnotationError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"responses":[{"error":{"code":7,"message":"insufficient permissions"}}]}`))
	}))
	defer server.Close()

	engine := NewVisionEngine(server.URL, "")
	if _, err := engine.Detect(context.Background(), DetectInput{Image: []byte("img")}); err == nil {
		t.Fatal("expected annotation error")
	}
}

func TestVisionEngineHTTPError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	engine := NewVisionEngine(server.URL, "")
	if _, err := engine.Detect(context.Background(), DetectInput{Image: []byte("img")}); err == nil {
		t.Fatal("expected error for 429 response")
	}
}

func TestRegionFromVertices(t *testing.T) {
	t.Parallel()

	vertices := []visionVertex{{X: 50, Y: 20}, {X: 10, Y: 10}, {X: 50, Y: 10}, {X: 10, Y: 20}}
	got := regionFromVertices(vertices)
	want := Region{X: 10, Y: 10, Width: 40, Height: 10}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}

	if got := regionFromVertices(nil); !got.IsEmpty() {
		t.Fatalf("expected empty region, got %+v", got)
	}
}
