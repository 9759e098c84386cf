package pipeline

import "fmt"

// FetchError means the image bytes could not be retrieved. Fatal for the image.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch image %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// DetectorError means text detection failed. Fatal for the image.
type DetectorError struct {
	Engine string
	Err    error
}

func (e *DetectorError) Error() string {
	return fmt.Sprintf("detect text (%s): %v", e.Engine, e.Err)
}

func (e *DetectorError) Unwrap() error { return e.Err }

// TranslatorError means one region's translation failed. Recovered locally:
// the region is skipped and the image proceeds with the remaining regions.
type TranslatorError struct {
	Provider string
	Err      error
}

func (e *TranslatorError) Error() string {
	return fmt.Sprintf("translate region (%s): %v", e.Provider, e.Err)
}

func (e *TranslatorError) Unwrap() error { return e.Err }

// RenderError means compositing the translated text failed. Fatal for the image.
type RenderError struct {
	Err error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render translated regions: %v", e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// StorefrontError means a store API call (listing or upload) failed. No image
// is left partially uploaded: upload only happens after a full successful render.
type StorefrontError struct {
	Op  string
	Err error
}

func (e *StorefrontError) Error() string {
	return fmt.Sprintf("storefront %s: %v", e.Op, e.Err)
}

func (e *StorefrontError) Unwrap() error { return e.Err }
