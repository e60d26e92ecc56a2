package thumbnail

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xwebp "golang.org/x/image/webp"
)

func gradient(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

func TestSupported(t *testing.T) {
	tests := []struct {
		mime string
		want bool
	}{
		{"image/jpeg", true},
		{"image/png", true},
		{"image/gif", true},
		{"image/webp", true},
		{"IMAGE/PNG", true},
		{"image/png; charset=binary", true},
		{"image/svg+xml", false},
		{"application/pdf", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			assert.Equal(t, tt.want, Supported(tt.mime))
		})
	}
}

func TestFit(t *testing.T) {
	tests := []struct {
		name       string
		w, h, size int
		wantW      int
		wantH      int
	}{
		{"landscape", 400, 200, 100, 100, 50},
		{"portrait", 200, 400, 100, 50, 100},
		{"square", 300, 300, 64, 64, 64},
		{"already fits", 40, 30, 64, 40, 30},
		{"thin strip keeps one pixel", 1000, 1, 10, 10, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := Fit(tt.w, tt.h, tt.size)
			assert.Equal(t, tt.wantW, w)
			assert.Equal(t, tt.wantH, h)
		})
	}
}

func TestRender_PNG(t *testing.T) {
	var src bytes.Buffer
	require.NoError(t, png.Encode(&src, gradient(200, 100)))

	out, err := Render(&src, 64)
	require.NoError(t, err)

	cfg, err := xwebp.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Width)
	assert.Equal(t, 32, cfg.Height)
}

func TestRender_JPEG(t *testing.T) {
	var src bytes.Buffer
	require.NoError(t, jpeg.Encode(&src, gradient(90, 180), nil))

	out, err := Render(&src, 30)
	require.NoError(t, err)

	img, err := xwebp.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, image.Pt(15, 30), img.Bounds().Size())
}

func TestRender_Errors(t *testing.T) {
	_, err := Render(strings.NewReader("not an image"), 64)
	require.Error(t, err)

	var src bytes.Buffer
	require.NoError(t, png.Encode(&src, gradient(10, 10)))
	_, err = Render(&src, 0)
	require.Error(t, err)
}
