package render

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
)

const (
	minFaceSize = 8.0
	faceDPI     = 72.0
)

// faceCache holds a parsed font and memoizes faces by point size. Face
// construction dominates render time for images with many regions.
type faceCache struct {
	parsed *opentype.Font

	mu    sync.Mutex
	faces map[float64]font.Face
}

func newFaceCache(fontPath string) (*faceCache, error) {
	cache := &faceCache{faces: make(map[float64]font.Face)}

	path := strings.TrimSpace(fontPath)
	if path == "" {
		return cache, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read font file %s: %w", path, err)
	}
	parsed, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font file %s: %w", path, err)
	}
	cache.parsed = parsed
	return cache, nil
}

// fit returns the largest face whose rendering of text stays inside a
// width x height box. Without a configured font it returns the fixed bitmap face.
func (c *faceCache) fit(text string, width, height int) (font.Face, error) {
	if c == nil || c.parsed == nil {
		return basicfont.Face7x13, nil
	}

	size := float64(height) * 0.75
	if size < minFaceSize {
		size = minFaceSize
	}

	for size >= minFaceSize {
		face, err := c.face(size)
		if err != nil {
			return nil, err
		}
		if font.MeasureString(face, text).Round() <= width {
			return face, nil
		}
		size -= 2
	}

	return c.face(minFaceSize)
}

func (c *faceCache) face(size float64) (font.Face, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if face, ok := c.faces[size]; ok {
		return face, nil
	}
	face, err := opentype.NewFace(c.parsed, &opentype.FaceOptions{
		Size:    size,
		DPI:     faceDPI,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("build %gpt face: %w", size, err)
	}
	c.faces[size] = face
	return face, nil
}
