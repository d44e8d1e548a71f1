// Package media handles reference-image preparation and MIME detection for
// generation payloads.
package media

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"

	// Register additional image formats
	_ "image/gif"

	_ "golang.org/x/image/webp"
)

// DefaultMIMEType is assumed when a payload carries no usable type.
const DefaultMIMEType = "image/png"

// SupportedMIMETypes lists the image types the providers accept as
// reference images.
var SupportedMIMETypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// Image is a binary image with its MIME type.
type Image struct {
	MIMEType string
	Data     []byte
	Width    int
	Height   int
}

// DetectMIME returns the MIME type from magic bytes, ignoring any parameters.
func DetectMIME(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	mt := mimetype.Detect(data).String()
	if idx := strings.Index(mt, ";"); idx >= 0 {
		mt = mt[:idx]
	}
	return strings.TrimSpace(mt)
}

// ResolveMIME prefers a declared image type and falls back to sniffing the
// payload, then to DefaultMIMEType.
func ResolveMIME(declared string, data []byte) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if strings.HasPrefix(declared, "image/") {
		return declared
	}
	if detected := DetectMIME(data); strings.HasPrefix(detected, "image/") {
		return detected
	}
	return DefaultMIMEType
}

// Extension returns a file extension (with dot) for the payload.
func Extension(mimeType string, data []byte) string {
	if len(data) > 0 {
		if ext := mimetype.Detect(data).Extension(); ext != "" {
			return ext
		}
	}
	if mt := mimetype.Lookup(strings.ToLower(strings.TrimSpace(mimeType))); mt != nil && mt.Extension() != "" {
		return mt.Extension()
	}
	return ".png"
}

// FitReference downsizes img so neither side exceeds maxDim. Images already
// within bounds, undecodable payloads, and maxDim <= 0 are returned
// unchanged; the provider decides what to do with them.
func FitReference(img Image, maxDim int) (Image, error) {
	img.MIMEType = ResolveMIME(img.MIMEType, img.Data)
	if maxDim <= 0 || len(img.Data) == 0 {
		return img, nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(img.Data))
	if err != nil {
		return img, nil
	}
	img.Width, img.Height = cfg.Width, cfg.Height
	if cfg.Width <= maxDim && cfg.Height <= maxDim {
		return img, nil
	}

	decoded, format, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return img, fmt.Errorf("decode reference image: %w", err)
	}
	resized := imaging.Fit(decoded, maxDim, maxDim, imaging.Lanczos)

	var buf bytes.Buffer
	mimeType := "image/png"
	switch format {
	case "jpeg", "webp":
		err = jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85})
		mimeType = "image/jpeg"
	default:
		err = png.Encode(&buf, resized)
	}
	if err != nil {
		return img, fmt.Errorf("encode reference image: %w", err)
	}

	bounds := resized.Bounds()
	return Image{
		MIMEType: mimeType,
		Data:     buf.Bytes(),
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
	}, nil
}

// IsSupported reports whether mimeType can be attached as a reference image.
func IsSupported(mimeType string) bool {
	return SupportedMIMETypes[strings.ToLower(strings.TrimSpace(mimeType))]
}
