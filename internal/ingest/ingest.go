package ingest

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/vbonduro/caloriesnap/internal/domain"
)

// DefaultMaxBytes bounds uploads when no explicit limit is configured.
const DefaultMaxBytes = 10 << 20 // 10 MB

// Ingestor validates uploaded files and turns them into image assets. It never
// touches the network or the filesystem.
type Ingestor struct {
	maxBytes int64
}

func New(maxBytes int64) *Ingestor {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Ingestor{maxBytes: maxBytes}
}

// MaxBytes is the largest accepted payload.
func (i *Ingestor) MaxBytes() int64 {
	return i.maxBytes
}

// Ingest reads r and returns it as an ImageAsset. declaredType is the media
// type the client claimed for the file (e.g. the multipart part header) and
// must be an image type.
func (i *Ingestor) Ingest(declaredType string, r io.Reader) (*domain.ImageAsset, error) {
	mediaType, err := declaredImageType(declaredType)
	if err != nil {
		return nil, err
	}

	// One extra byte distinguishes "exactly at the limit" from "over it".
	data, err := io.ReadAll(io.LimitReader(r, i.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read image: %w", domain.ErrRead, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: image file is empty", domain.ErrInvalidInput)
	}
	if int64(len(data)) > i.maxBytes {
		return nil, fmt.Errorf("%w: image too large (max %d bytes)", domain.ErrInvalidInput, i.maxBytes)
	}

	mediaType, err = refineMediaType(mediaType, data)
	if err != nil {
		return nil, err
	}
	return domain.NewImageAsset(mediaType, data), nil
}

// IngestDataURL accepts a base64 data URL ("data:image/png;base64,...") and
// applies the same validation as Ingest.
func (i *Ingestor) IngestDataURL(s string) (*domain.ImageAsset, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(s), "data:")
	if !ok {
		return nil, fmt.Errorf("%w: not a data URL", domain.ErrInvalidInput)
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, fmt.Errorf("%w: malformed data URL", domain.ErrInvalidInput)
	}
	mediaType, ok := strings.CutSuffix(header, ";base64")
	if !ok {
		return nil, fmt.Errorf("%w: data URL must be base64 encoded", domain.ErrInvalidInput)
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed base64 payload: %v", domain.ErrInvalidInput, err)
	}
	return i.Ingest(mediaType, bytes.NewReader(raw))
}

func declaredImageType(declared string) (string, error) {
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		return "", fmt.Errorf("%w: not an image (declared type %q)", domain.ErrInvalidInput, declared)
	}
	// The model backends only take raster images.
	if mediaType == "image/svg+xml" {
		return "", fmt.Errorf("%w: vector images (SVG) are not supported", domain.ErrInvalidInput)
	}
	return mediaType, nil
}

// refineMediaType prefers the sniffed type when the magic bytes identify a
// known image format. Content that sniffs as something other than an image is
// rejected; unrecognised binary keeps the declared type (HEIC, AVIF, ...).
func refineMediaType(declared string, data []byte) (string, error) {
	sniffed := sniff(data)
	switch {
	case strings.HasPrefix(sniffed, "image/"):
		return sniffed, nil
	case sniffed == "application/octet-stream":
		return declared, nil
	default:
		return "", fmt.Errorf("%w: content looks like %s, not an image", domain.ErrInvalidInput, sniffed)
	}
}

func sniff(data []byte) string {
	if isWebP(data) {
		return "image/webp"
	}
	detected := http.DetectContentType(data)
	if mediaType, _, err := mime.ParseMediaType(detected); err == nil {
		return mediaType
	}
	return detected
}

// isWebP reports whether data is a WebP image (RIFF container with "WEBP" at
// offset 8). The stdlib sniffer only knows the VP8 variants.
func isWebP(data []byte) bool {
	return len(data) >= 12 &&
		string(data[0:4]) == "RIFF" &&
		string(data[8:12]) == "WEBP"
}
