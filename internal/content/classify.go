// Package content resolves a request's content source into bytes and
// classifies them by magic-byte sniffing.
package content

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Kind is the detected class of a payload.
type Kind string

const (
	KindDocument Kind = "document"
	KindText     Kind = "text"
	KindImage    Kind = "image"
	KindUnknown  Kind = "unknown"
)

// imageTypes are forwarded to vision models as-is.
var imageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/bmp":  true,
	"image/gif":  true,
	"image/tiff": true,
	"image/webp": true,
}

// documentTypes need a text extractor.
var documentTypes = map[string]bool{
	"application/pdf": true,
	"text/html":       true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
	"application/xml": true,
	"text/xml":        true,
	"application/zip": true,

	// Legacy OLE2 Office formats.
	"application/msword":            true,
	"application/vnd.ms-excel":      true,
	"application/vnd.ms-powerpoint": true,
	"application/x-ole-storage":     true,
}

// Classify sniffs data and returns its kind, base MIME type and a file
// extension hint. The declared filename only fills in the extension when
// sniffing cannot.
func Classify(data []byte, filename string) (Kind, string, string) {
	detected := mimetype.Detect(data)
	base, _, err := mime.ParseMediaType(detected.String())
	if err != nil {
		base = detected.String()
	}

	ext := detected.Extension()
	if declared := strings.ToLower(filepath.Ext(filename)); declared != "" && (ext == "" || ext == ".txt" || ext == ".zip" || base == "application/x-ole-storage") {
		ext = declared
	}

	switch {
	case imageTypes[base]:
		return KindImage, base, ext
	case documentTypes[base]:
		return KindDocument, base, ext
	case strings.HasPrefix(base, "text/"), base == "application/json", base == "application/x-ndjson":
		return KindText, base, ext
	default:
		return KindUnknown, base, ext
	}
}

// IsImage reports whether mimeType is one of the forwarded image types.
func IsImage(mimeType string) bool {
	base, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		base = mimeType
	}
	return imageTypes[base]
}
