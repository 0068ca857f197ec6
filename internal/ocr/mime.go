package ocr

import (
	"mime"
	"path/filepath"
	"strings"
)

// NormalizeMimeType strips parameters and lower-cases the media type,
// falling back to extension sniffing when the declared type is missing or
// the generic octet-stream.
func NormalizeMimeType(mimeType, filename string) string {
	value := strings.ToLower(strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0]))
	if value != "" && value != "application/octet-stream" && value != "binary/octet-stream" {
		return value
	}
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" {
		if guessed := mime.TypeByExtension(ext); guessed != "" {
			return strings.ToLower(strings.SplitN(guessed, ";", 2)[0])
		}
	}
	if value != "" {
		return value
	}
	return "application/octet-stream"
}

// IsPDFLike reports whether the input must go through the async document
// path (PDF and TIFF are not accepted by the synchronous image endpoint).
func IsPDFLike(mimeType, filename string) bool {
	switch mimeType {
	case "application/pdf", "application/x-pdf", "image/tiff", "image/tif":
		return true
	}
	lower := strings.ToLower(filename)
	return strings.HasSuffix(lower, ".pdf") ||
		strings.HasSuffix(lower, ".tif") ||
		strings.HasSuffix(lower, ".tiff")
}
