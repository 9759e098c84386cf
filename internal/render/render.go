package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"horse.fit/relabel/internal/ocr"
)

// TranslatedRegion pairs a detected region with its translated text. Immutable.
type TranslatedRegion struct {
	Region ocr.Region
	Source string
	Text   string
}

// Renderer composites translated text onto an image at the detected bounding
// boxes and returns the re-encoded image bytes.
type Renderer interface {
	Render(ctx context.Context, img []byte, regions []TranslatedRegion) ([]byte, error)
}

const defaultJPEGQuality = 90

// Options configures a BoxRenderer.
type Options struct {
	// FontPath points to a TTF/OTF file. Empty falls back to the built-in
	// bitmap face, which only covers basic Latin.
	FontPath string
	// JPEGQuality applies when re-encoding JPEG sources; zero uses the default.
	JPEGQuality int
}

// BoxRenderer paints an opaque box over each region, sampled from the region's
// border color, and draws the translated string centered inside it. The
// region geometry is preserved exactly.
type BoxRenderer struct {
	faces       *faceCache
	jpegQuality int
}

func NewBoxRenderer(opts Options) (*BoxRenderer, error) {
	faces, err := newFaceCache(opts.FontPath)
	if err != nil {
		return nil, fmt.Errorf("load render font: %w", err)
	}
	quality := opts.JPEGQuality
	if quality <= 0 || quality > 100 {
		quality = defaultJPEGQuality
	}
	return &BoxRenderer{
		faces:       faces,
		jpegQuality: quality,
	}, nil
}

func (r *BoxRenderer) Render(ctx context.Context, img []byte, regions []TranslatedRegion) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("renderer is nil")
	}
	if len(regions) == 0 {
		return img, nil
	}

	decoded, format, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	canvas := image.NewRGBA(decoded.Bounds())
	draw.Draw(canvas, canvas.Bounds(), decoded, decoded.Bounds().Min, draw.Src)

	for _, region := range regions {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if err := r.renderRegion(canvas, region); err != nil {
			return nil, err
		}
	}

	return encodeImage(canvas, format, r.jpegQuality)
}

func (r *BoxRenderer) renderRegion(canvas *image.RGBA, region TranslatedRegion) error {
	rect := image.Rect(
		region.Region.X,
		region.Region.Y,
		region.Region.X+region.Region.Width,
		region.Region.Y+region.Region.Height,
	).Intersect(canvas.Bounds())
	if rect.Empty() {
		return nil
	}

	background := sampleBorderColor(canvas, rect)
	draw.Draw(canvas, rect, &image.Uniform{C: background}, image.Point{}, draw.Src)

	text := region.Text
	if text == "" {
		return nil
	}

	face, err := r.faces.fit(text, rect.Dx(), rect.Dy())
	if err != nil {
		return fmt.Errorf("size font for region at (%d,%d): %w", region.Region.X, region.Region.Y, err)
	}

	metrics := face.Metrics()
	textWidth := font.MeasureString(face, text)

	dotX := rect.Min.X
	if pad := rect.Dx() - textWidth.Round(); pad > 0 {
		dotX += pad / 2
	}
	textHeight := (metrics.Ascent + metrics.Descent).Round()
	dotY := rect.Min.Y + metrics.Ascent.Round()
	if pad := rect.Dy() - textHeight; pad > 0 {
		dotY += pad / 2
	}

	drawer := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(contrastColor(background)),
		Face: face,
		Dot:  fixed.P(dotX, dotY),
	}
	drawer.DrawString(text)
	return nil
}

// sampleBorderColor averages the pixels just outside the region so the painted
// box blends with the surrounding area.
func sampleBorderColor(img *image.RGBA, rect image.Rectangle) color.Color {
	border := rect.Inset(-1).Intersect(img.Bounds())

	var sumR, sumG, sumB, count uint64
	sample := func(x, y int) {
		if (image.Point{X: x, Y: y}).In(rect) {
			return
		}
		c := img.RGBAAt(x, y)
		sumR += uint64(c.R)
		sumG += uint64(c.G)
		sumB += uint64(c.B)
		count++
	}

	for x := border.Min.X; x < border.Max.X; x++ {
		sample(x, border.Min.Y)
		sample(x, border.Max.Y-1)
	}
	for y := border.Min.Y; y < border.Max.Y; y++ {
		sample(border.Min.X, y)
		sample(border.Max.X-1, y)
	}

	if count == 0 {
		return color.White
	}
	return color.RGBA{
		R: uint8(sumR / count),
		G: uint8(sumG / count),
		B: uint8(sumB / count),
		A: 0xff,
	}
}

func contrastColor(background color.Color) color.Color {
	r, g, b, _ := background.RGBA()
	// Rec. 601 luma on 16-bit channel values.
	luma := (299*r + 587*g + 114*b) / 1000
	if luma > 0x7fff {
		return color.Black
	}
	return color.White
}

func encodeImage(img image.Image, format string, jpegQuality int) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case "png":
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	default:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	}
	return buf.Bytes(), nil
}
