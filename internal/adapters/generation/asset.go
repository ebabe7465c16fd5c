package generation

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strings"

	_ "golang.org/x/image/webp"

	"dailypost/internal/core/domain"
)

// describe wraps data as a RawAsset, sniffing the MIME type and dimensions when possible.
func describe(data []byte, source string) domain.RawAsset {
	asset := domain.RawAsset{
		Data:     data,
		MIMEType: http.DetectContentType(data),
		Source:   source,
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		asset.Width = cfg.Width
		asset.Height = cfg.Height
	}
	return asset
}

// Extension returns the file extension matching a sniffed MIME type.
func Extension(mimeType string) string {
	mt := strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
	switch mt {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "video/mp4":
		return ".mp4"
	default:
		return ".bin"
	}
}
