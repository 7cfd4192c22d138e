package images

import (
	"fmt"
	"strings"

	apperrors "github.com/dcrane/planwise/pkg/errors"
)

// MaxDecodedBytes caps the decoded size of a single inline image.
const MaxDecodedBytes = 5 << 20 // 5 MiB

var allowedMimeTypes = map[string]struct{}{
	"image/jpeg":    {},
	"image/jpg":     {},
	"image/png":     {},
	"image/gif":     {},
	"image/webp":    {},
	"image/svg+xml": {},
}

// ValidateImage rejects disallowed mime types and oversized payloads before
// any persistence or caching occurs. Size is estimated from the base64 length
// rather than decoding the payload.
func ValidateImage(mimeType, base64Data string) error {
	normalized := strings.ToLower(strings.TrimSpace(mimeType))
	if _, ok := allowedMimeTypes[normalized]; !ok {
		return apperrors.ErrImageTypeNotAllowed.WithMessage(
			fmt.Sprintf("image mime type %q is not supported", mimeType))
	}

	if decoded := int64(len(base64Data)) * 3 / 4; decoded > MaxDecodedBytes {
		return apperrors.ErrImageTooLarge
	}

	return nil
}

// extensionForMime derives a file extension from the mime subtype, defaulting
// to png. Structured suffixes like svg+xml map to their base subtype.
func extensionForMime(mimeType string) string {
	_, subtype, ok := strings.Cut(strings.ToLower(mimeType), "/")
	if !ok || subtype == "" {
		return "png"
	}
	if base, _, found := strings.Cut(subtype, "+"); found && base != "" {
		return base
	}
	return subtype
}
