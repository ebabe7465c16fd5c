package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"dailypost/internal/core/domain"
)

const minQuality = 50

// Normalizer implements ports.Normalizer for still images. Output is always JPEG.
type Normalizer struct {
	quality int
}

// NewNormalizer creates a Normalizer that starts encoding at quality and steps down
// until the output fits the size ceiling.
func NewNormalizer(quality int) *Normalizer {
	if quality <= 0 || quality > 100 {
		quality = jpeg.DefaultQuality
	}
	return &Normalizer{quality: quality}
}

// CropRegion returns the square region kept from a w×h image after removing strip rows
// from the bottom. The side is min(w, h-strip), centered with floor division.
func CropRegion(w, h, strip int) (image.Rectangle, error) {
	if strip < 0 {
		strip = 0
	}
	usable := h - strip
	side := min(w, usable)
	if w <= 0 || side <= 0 {
		return image.Rectangle{}, fmt.Errorf("%w: %dx%d minus %dpx strip", domain.ErrBoundingRegionUnavailable, w, h, strip)
	}
	left := (w - side) / 2
	top := (usable - side) / 2
	return image.Rect(left, top, left+side, top+side), nil
}

// Normalize strips the watermark band, center-crops to a square and resizes to c.TargetSide.
func (n *Normalizer) Normalize(raw domain.RawAsset, c domain.Constraints) (domain.PublishableAsset, error) {
	if len(raw.Data) == 0 {
		return domain.PublishableAsset{}, fmt.Errorf("%w: empty asset", domain.ErrDecode)
	}
	src, format, err := image.Decode(bytes.NewReader(raw.Data))
	if err != nil {
		return domain.PublishableAsset{}, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	if c.TargetSide <= 0 {
		return domain.PublishableAsset{}, fmt.Errorf("%w: target side %d", domain.ErrConstraintViolation, c.TargetSide)
	}

	b := src.Bounds()
	region, err := CropRegion(b.Dx(), b.Dy(), c.StripBottomPx)
	if err != nil {
		return domain.PublishableAsset{}, err
	}
	region = region.Add(b.Min)

	dst := image.NewRGBA(image.Rect(0, 0, c.TargetSide, c.TargetSide))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, region, draw.Src, nil)

	data, err := n.encode(dst, c.MaxBytes)
	if err != nil {
		return domain.PublishableAsset{}, fmt.Errorf("encode %s source: %w", format, err)
	}
	return domain.PublishableAsset{
		Data:     data,
		MIMEType: "image/jpeg",
		Width:    c.TargetSide,
		Height:   c.TargetSide,
	}, nil
}

func (n *Normalizer) encode(img image.Image, maxBytes int) ([]byte, error) {
	var buf bytes.Buffer
	for q := n.quality; ; q -= 8 {
		if q < minQuality {
			q = minQuality
		}
		buf.Reset()
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
			return nil, err
		}
		if maxBytes <= 0 || buf.Len() <= maxBytes {
			return buf.Bytes(), nil
		}
		if q == minQuality {
			return nil, fmt.Errorf("%w: %d bytes at quality %d exceeds %d", domain.ErrConstraintViolation, buf.Len(), q, maxBytes)
		}
	}
}
