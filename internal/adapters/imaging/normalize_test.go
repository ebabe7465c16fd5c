package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dailypost/internal/core/domain"
)

func pngOf(t *testing.T, w, h int, fill func(x, y int) color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, fill(x, y))
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestCropRegion(t *testing.T) {
	tests := []struct {
		name    string
		w, h, s int
		want    image.Rectangle
	}{
		{"landscape", 1024, 768, 50, image.Rect(153, 0, 871, 718)},
		{"portrait", 600, 1000, 50, image.Rect(0, 175, 600, 775)},
		{"odd remainder", 101, 60, 10, image.Rect(25, 0, 75, 50)},
		{"square after strip", 500, 550, 50, image.Rect(0, 0, 500, 500)},
		{"no strip", 7, 4, 0, image.Rect(1, 0, 5, 4)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CropRegion(tt.w, tt.h, tt.s)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			side := min(tt.w, tt.h-tt.s)
			assert.Equal(t, (tt.w-side)/2, got.Min.X)
			assert.Equal(t, (tt.h-tt.s-side)/2, got.Min.Y)
			assert.Equal(t, side, got.Dx())
			assert.Equal(t, side, got.Dy())
		})
	}
}

func TestCropRegionUnavailable(t *testing.T) {
	_, err := CropRegion(100, 40, 40)
	assert.ErrorIs(t, err, domain.ErrBoundingRegionUnavailable)
	_, err = CropRegion(0, 40, 0)
	assert.ErrorIs(t, err, domain.ErrBoundingRegionUnavailable)
}

func TestNormalizeProducesTargetSquare(t *testing.T) {
	raw := pngOf(t, 320, 240, func(x, y int) color.Color {
		if y >= 200 {
			return color.RGBA{R: 255, A: 255}
		}
		return color.RGBA{B: 255, A: 255}
	})

	n := NewNormalizer(90)
	c := domain.Constraints{StripBottomPx: 40, TargetSide: 108, MaxBytes: 1 << 20, MIMEType: "image/jpeg"}
	out, err := n.Normalize(domain.RawAsset{Data: raw, MIMEType: "image/png"}, c)
	require.NoError(t, err)
	require.NoError(t, c.Check(out))

	img, err := jpeg.Decode(bytes.NewReader(out.Data))
	require.NoError(t, err)
	assert.Equal(t, 108, img.Bounds().Dx())
	assert.Equal(t, 108, img.Bounds().Dy())

	// The red watermark band is gone: the bottom row stays blue.
	r, _, b, _ := img.At(54, 107).RGBA()
	assert.Less(t, r, uint32(0x4000))
	assert.Greater(t, b, uint32(0xc000))
}

func TestNormalizeErrors(t *testing.T) {
	n := NewNormalizer(90)
	c := domain.Constraints{StripBottomPx: 10, TargetSide: 64}

	_, err := n.Normalize(domain.RawAsset{Data: []byte("not an image")}, c)
	assert.ErrorIs(t, err, domain.ErrDecode)

	_, err = n.Normalize(domain.RawAsset{}, c)
	assert.ErrorIs(t, err, domain.ErrDecode)

	tiny := pngOf(t, 20, 10, func(x, y int) color.Color { return color.White })
	_, err = n.Normalize(domain.RawAsset{Data: tiny}, c)
	assert.ErrorIs(t, err, domain.ErrBoundingRegionUnavailable)
}

func TestNormalizeSizeCeiling(t *testing.T) {
	noisy := pngOf(t, 256, 256, func(x, y int) color.Color {
		return color.RGBA{R: uint8(x * 31 ^ y*17), G: uint8(x*y + 7), B: uint8(x ^ y), A: 255}
	})
	n := NewNormalizer(95)
	_, err := n.Normalize(domain.RawAsset{Data: noisy}, domain.Constraints{TargetSide: 256, MaxBytes: 200})
	assert.ErrorIs(t, err, domain.ErrConstraintViolation)
}
