package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"horse.fit/relabel/internal/ocr"
	"horse.fit/relabel/internal/render"
	"horse.fit/relabel/internal/store"
	"horse.fit/relabel/internal/storefront"
	"horse.fit/relabel/internal/translation"
)

type stubDetector struct {
	regions []ocr.DetectedText
	err     error
	calls   int
}

func (d *stubDetector) Name() string { return "stub-detector" }

func (d *stubDetector) Detect(_ context.Context, _ ocr.DetectInput) ([]ocr.DetectedText, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return d.regions, nil
}

type stubTranslator struct {
	mu           sync.Mutex
	translations map[string]string
	failFor      map[string]bool
	calls        int
}

func (t *stubTranslator) Name() string { return "stub-translator" }

func (t *stubTranslator) Translate(_ context.Context, req translation.TranslateRequest) (*translation.TranslateResponse, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	if t.failFor[req.Text] {
		return nil, fmt.Errorf("provider unavailable")
	}
	out, ok := t.translations[req.Text]
	if !ok {
		out = "translated:" + req.Text
	}
	return &translation.TranslateResponse{
		Text:         out,
		SourceLang:   req.SourceLang,
		TargetLang:   req.TargetLang,
		ProviderName: t.Name(),
	}, nil
}

type recordingRenderer struct {
	mu     sync.Mutex
	calls  [][]render.TranslatedRegion
	output []byte
	err    error
}

func (r *recordingRenderer) Render(_ context.Context, img []byte, regions []render.TranslatedRegion) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	copied := append([]render.TranslatedRegion(nil), regions...)
	r.calls = append(r.calls, copied)
	if r.output != nil {
		return r.output, nil
	}
	return append(append([]byte(nil), img...), []byte("+rendered")...), nil
}

type replaceCall struct {
	ProductID int64
	ImageID   int64
	Data      []byte
}

type stubSource struct {
	mu         sync.Mutex
	images      []storefront.ProductImage
	imageData   map[string][]byte
	fetchErr    error
	fetchErrFor map[string]error
	listErr     error
	replaceErr  error
	replaced    []replaceCall
}

func (s *stubSource) ListProductImages(_ context.Context) ([]storefront.ProductImage, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.images, nil
}

func (s *stubSource) FetchImage(_ context.Context, url string) ([]byte, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	if err, ok := s.fetchErrFor[url]; ok {
		return nil, err
	}
	data, ok := s.imageData[url]
	if !ok {
		return nil, fmt.Errorf("unknown url %s", url)
	}
	return data, nil
}

func (s *stubSource) ReplaceImage(_ context.Context, productID, imageID int64, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.replaceErr != nil {
		return s.replaceErr
	}
	s.replaced = append(s.replaced, replaceCall{ProductID: productID, ImageID: imageID, Data: data})
	return nil
}

type stubLanguages struct {
	targetTexts map[string]bool
}

func (l *stubLanguages) IsTargetLanguage(text, _ string) bool {
	return l.targetTexts[text]
}

func newTestService(detector *stubDetector, translator *stubTranslator, renderer *recordingRenderer, source *stubSource) *Service {
	return NewService(
		detector,
		translator,
		renderer,
		source,
		&stubLanguages{},
		store.NewNoop(),
		zerolog.Nop(),
	)
}

func testImage() storefront.ProductImage {
	return storefront.ProductImage{
		ProductID: 7,
		ImageID:   42,
		SourceURL: "https://cdn.example.com/a.jpg",
	}
}

func TestProcessImageNoRegionsLeavesBytesUntouched(t *testing.T) {
	t.Parallel()

	input := []byte("jpeg-bytes")
	detector := &stubDetector{}
	renderer := &recordingRenderer{}
	source := &stubSource{imageData: map[string][]byte{"https://cdn.example.com/a.jpg": input}}
	svc := newTestService(detector, &stubTranslator{}, renderer, source)

	result, err := svc.ProcessImage(context.Background(), testImage(), ProcessOptions{TargetLang: "en"})
	if err != nil {
		t.Fatalf("process image: %v", err)
	}
	if result.Changed {
		t.Fatal("expected unchanged result")
	}
	if !bytes.Equal(result.Output, input) {
		t.Fatal("expected output bytes to equal input bytes")
	}
	if len(renderer.calls) != 0 {
		t.Fatalf("renderer should not run without regions, got %d calls", len(renderer.calls))
	}
}

func TestProcessImageScenarioSingleRegion(t *testing.T) {
	t.Parallel()

	// Bounding box [10,10,50,20] expressed as origin + size.
	box := ocr.Region{X: 10, Y: 10, Width: 40, Height: 10}
	detector := &stubDetector{regions: []ocr.DetectedText{{Region: box, Text: "Olá"}}}
	translator := &stubTranslator{translations: map[string]string{"Olá": "Hello"}}
	renderer := &recordingRenderer{}
	source := &stubSource{imageData: map[string][]byte{"https://cdn.example.com/a.jpg": []byte("img")}}
	svc := newTestService(detector, translator, renderer, source)

	result, err := svc.ProcessImage(context.Background(), testImage(), ProcessOptions{TargetLang: "en"})
	if err != nil {
		t.Fatalf("process image: %v", err)
	}
	if !result.Changed {
		t.Fatal("expected changed result")
	}
	if len(renderer.calls) != 1 || len(renderer.calls[0]) != 1 {
		t.Fatalf("expected exactly one rendered region, got %+v", renderer.calls)
	}
	rendered := renderer.calls[0][0]
	if rendered.Region != box {
		t.Fatalf("bounding box changed: got %+v want %+v", rendered.Region, box)
	}
	if rendered.Text != "Hello" {
		t.Fatalf("unexpected rendered text: %q", rendered.Text)
	}
	if result.RegionsTranslated != 1 || result.RegionsSkipped != 0 {
		t.Fatalf("unexpected counters: %+v", result)
	}
}

func TestProcessImageRegionFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	detector := &stubDetector{regions: []ocr.DetectedText{
		{Region: ocr.Region{X: 0, Y: 0, Width: 50, Height: 10}, Text: "Hola"},
		{Region: ocr.Region{X: 0, Y: 20, Width: 50, Height: 10}, Text: "Adiós"},
	}}
	translator := &stubTranslator{
		translations: map[string]string{"Hola": "Hello"},
		failFor:      map[string]bool{"Adiós": true},
	}
	renderer := &recordingRenderer{}
	source := &stubSource{imageData: map[string][]byte{"https://cdn.example.com/a.jpg": []byte("img")}}
	svc := newTestService(detector, translator, renderer, source)

	result, err := svc.ProcessImage(context.Background(), testImage(), ProcessOptions{TargetLang: "en"})
	if err != nil {
		t.Fatalf("expected region failure to be recovered, got: %v", err)
	}
	if !result.Changed {
		t.Fatal("expected changed result from surviving region")
	}
	if result.RegionsTranslated != 1 || result.RegionsSkipped != 1 {
		t.Fatalf("unexpected counters: %+v", result)
	}
	if len(renderer.calls) != 1 || len(renderer.calls[0]) != 1 {
		t.Fatalf("expected one rendered region, got %+v", renderer.calls)
	}
	if renderer.calls[0][0].Text != "Hello" {
		t.Fatalf("unexpected rendered text: %q", renderer.calls[0][0].Text)
	}
}

func TestProcessImageAllRegionsFailLeavesImageUnchanged(t *testing.T) {
	t.Parallel()

	input := []byte("img")
	detector := &stubDetector{regions: []ocr.DetectedText{
		{Region: ocr.Region{X: 0, Y: 0, Width: 10, Height: 10}, Text: "Hola"},
	}}
	translator := &stubTranslator{failFor: map[string]bool{"Hola": true}}
	renderer := &recordingRenderer{}
	source := &stubSource{imageData: map[string][]byte{"https://cdn.example.com/a.jpg": input}}
	svc := newTestService(detector, translator, renderer, source)

	result, err := svc.ProcessImage(context.Background(), testImage(), ProcessOptions{TargetLang: "en"})
	if err != nil {
		t.Fatalf("process image: %v", err)
	}
	if result.Changed {
		t.Fatal("expected unchanged result when every region fails")
	}
	if !bytes.Equal(result.Output, input) {
		t.Fatal("expected original bytes back")
	}
	if len(renderer.calls) != 0 {
		t.Fatal("renderer should not run with zero surviving regions")
	}
}

func TestProcessImageExcludesTargetLanguageRegions(t *testing.T) {
	t.Parallel()

	input := []byte("img")
	detector := &stubDetector{regions: []ocr.DetectedText{
		{Region: ocr.Region{X: 0, Y: 0, Width: 10, Height: 10}, Text: "Hello there", Locale: "en"},
		{Region: ocr.Region{X: 0, Y: 20, Width: 10, Height: 10}, Text: "Already English"},
	}}
	translator := &stubTranslator{}
	renderer := &recordingRenderer{}
	source := &stubSource{imageData: map[string][]byte{"https://cdn.example.com/a.jpg": input}}
	svc := NewService(
		detector,
		translator,
		renderer,
		source,
		&stubLanguages{targetTexts: map[string]bool{"Already English": true}},
		store.NewNoop(),
		zerolog.Nop(),
	)

	result, err := svc.ProcessImage(context.Background(), testImage(), ProcessOptions{TargetLang: "en"})
	if err != nil {
		t.Fatalf("process image: %v", err)
	}
	if result.Changed {
		t.Fatal("expected already-translated image to stay unchanged")
	}
	if translator.calls != 0 {
		t.Fatalf("translator should not be called, got %d calls", translator.calls)
	}
	if !bytes.Equal(result.Output, input) {
		t.Fatal("expected original bytes back")
	}
}

func TestProcessImageTranslatesIdenticalTextOnce(t *testing.T) {
	t.Parallel()

	detector := &stubDetector{regions: []ocr.DetectedText{
		{Region: ocr.Region{X: 0, Y: 0, Width: 10, Height: 10}, Text: "Oferta"},
		{Region: ocr.Region{X: 0, Y: 20, Width: 10, Height: 10}, Text: "Oferta"},
	}}
	translator := &stubTranslator{translations: map[string]string{"Oferta": "Sale"}}
	renderer := &recordingRenderer{}
	source := &stubSource{imageData: map[string][]byte{"https://cdn.example.com/a.jpg": []byte("img")}}
	svc := newTestService(detector, translator, renderer, source)

	result, err := svc.ProcessImage(context.Background(), testImage(), ProcessOptions{TargetLang: "en"})
	if err != nil {
		t.Fatalf("process image: %v", err)
	}
	if translator.calls != 1 {
		t.Fatalf("expected one provider call for identical text, got %d", translator.calls)
	}
	if result.RegionsTranslated != 2 {
		t.Fatalf("expected both regions rendered, got %+v", result)
	}
	if len(renderer.calls[0]) != 2 {
		t.Fatalf("expected two rendered regions, got %d", len(renderer.calls[0]))
	}
}

func TestProcessImageFetchError(t *testing.T) {
	t.Parallel()

	source := &stubSource{fetchErr: fmt.Errorf("connection refused")}
	svc := newTestService(&stubDetector{}, &stubTranslator{}, &recordingRenderer{}, source)

	_, err := svc.ProcessImage(context.Background(), testImage(), ProcessOptions{TargetLang: "en"})
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
}

func TestProcessImageDetectorError(t *testing.T) {
	t.Parallel()

	detector := &stubDetector{err: fmt.Errorf("quota exceeded")}
	source := &stubSource{imageData: map[string][]byte{"https://cdn.example.com/a.jpg": []byte("img")}}
	svc := newTestService(detector, &stubTranslator{}, &recordingRenderer{}, source)

	_, err := svc.ProcessImage(context.Background(), testImage(), ProcessOptions{TargetLang: "en"})
	var detErr *DetectorError
	if !errors.As(err, &detErr) {
		t.Fatalf("expected DetectorError, got %v", err)
	}
	if detErr.Engine != "stub-detector" {
		t.Fatalf("unexpected engine name: %q", detErr.Engine)
	}
}

func TestProcessImageRenderError(t *testing.T) {
	t.Parallel()

	detector := &stubDetector{regions: []ocr.DetectedText{
		{Region: ocr.Region{X: 0, Y: 0, Width: 10, Height: 10}, Text: "Hola"},
	}}
	renderer := &recordingRenderer{err: fmt.Errorf("bad image data")}
	source := &stubSource{imageData: map[string][]byte{"https://cdn.example.com/a.jpg": []byte("img")}}
	svc := newTestService(detector, &stubTranslator{}, renderer, source)

	_, err := svc.ProcessImage(context.Background(), testImage(), ProcessOptions{TargetLang: "en"})
	var renderErr *RenderError
	if !errors.As(err, &renderErr) {
		t.Fatalf("expected RenderError, got %v", err)
	}
}

type cacheStore struct {
	store.Noop
	mu      sync.Mutex
	rows    map[string]store.CachedTranslation
	lookups int
	saves   int
}

func newCacheStore() *cacheStore {
	return &cacheStore{rows: make(map[string]store.CachedTranslation)}
}

func (s *cacheStore) LookupTranslation(_ context.Context, contentHash []byte, targetLang string) (*store.CachedTranslation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	row, ok := s.rows[string(contentHash)+"/"+targetLang]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (s *cacheStore) SaveTranslation(_ context.Context, row store.CachedTranslation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	s.rows[string(row.ContentHash)+"/"+row.TargetLang] = row
	return nil
}

func TestProcessImageUsesTranslationCache(t *testing.T) {
	t.Parallel()

	detector := &stubDetector{regions: []ocr.DetectedText{
		{Region: ocr.Region{X: 0, Y: 0, Width: 10, Height: 10}, Text: "Olá"},
	}}
	translator := &stubTranslator{translations: map[string]string{"Olá": "Hello"}}
	renderer := &recordingRenderer{}
	source := &stubSource{imageData: map[string][]byte{"https://cdn.example.com/a.jpg": []byte("img")}}
	cache := newCacheStore()
	svc := NewService(detector, translator, renderer, source, &stubLanguages{}, cache, zerolog.Nop())

	if _, err := svc.ProcessImage(context.Background(), testImage(), ProcessOptions{TargetLang: "en"}); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if cache.saves != 1 {
		t.Fatalf("expected one cache save, got %d", cache.saves)
	}

	result, err := svc.ProcessImage(context.Background(), testImage(), ProcessOptions{TargetLang: "en"})
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if translator.calls != 1 {
		t.Fatalf("expected cached second pass, provider calls = %d", translator.calls)
	}
	if result.CacheHits != 1 {
		t.Fatalf("expected one cache hit, got %d", result.CacheHits)
	}

	forced, err := svc.ProcessImage(context.Background(), testImage(), ProcessOptions{TargetLang: "en", Force: true})
	if err != nil {
		t.Fatalf("forced pass: %v", err)
	}
	if translator.calls != 2 {
		t.Fatalf("expected force to bypass cache, provider calls = %d", translator.calls)
	}
	if forced.CacheHits != 0 {
		t.Fatalf("expected no cache hits when forced, got %d", forced.CacheHits)
	}
}
