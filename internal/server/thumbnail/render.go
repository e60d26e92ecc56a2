// Package thumbnail renders WebP previews of raster images.
package thumbnail

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime"
	"strings"

	"github.com/chai2010/webp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Quality is the lossy WebP quality of rendered previews.
const Quality = 80

// ContentType of every rendered preview.
const ContentType = "image/webp"

var supported = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// Supported reports whether previews can be rendered for content of type
// contentType. Parameters such as charset are ignored.
func Supported(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(contentType))
	}
	return supported[mt]
}

// Fit returns the dimensions of a w×h image scaled to fit into a size×size
// box with its aspect ratio kept. Images that already fit are not enlarged.
func Fit(w, h, size int) (int, int) {
	if w <= size && h <= size {
		return w, h
	}
	if w >= h {
		return size, max(1, h*size/w)
	}
	return max(1, w*size/h), size
}

// Render decodes an image from r and encodes it as a WebP that fits into a
// size×size box.
func Render(r io.Reader, size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("thumbnail size must be positive, got %d", size)
	}

	src, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	b := src.Bounds()
	w, h := Fit(b.Dx(), b.Dy(), size)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := webp.Encode(&buf, dst, &webp.Options{Quality: Quality}); err != nil {
		return nil, fmt.Errorf("encode webp: %w", err)
	}
	return buf.Bytes(), nil
}
