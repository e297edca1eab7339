package constants

import "strings"

// MaxDocumentMB caps the size of an uploaded invoice document.
const MaxDocumentMB = 10

// Media types accepted for invoice documents.
const (
	MediaTypeJPEG = "image/jpeg"
	MediaTypePNG  = "image/png"
	MediaTypeWEBP = "image/webp"
	MediaTypePDF  = "application/pdf"
)

// AllowedMediaTypes is the allow-list checked on both the declared and the sniffed type.
var AllowedMediaTypes = map[string]struct{}{
	MediaTypeJPEG: {},
	MediaTypePNG:  {},
	MediaTypeWEBP: {},
	MediaTypePDF:  {},
}

// AllowedExtensions maps lowercased extensions (sans '.') to their media type.
var AllowedExtensions = map[string]string{
	"jpg":  MediaTypeJPEG,
	"jpeg": MediaTypeJPEG,
	"png":  MediaTypePNG,
	"webp": MediaTypeWEBP,
	"pdf":  MediaTypePDF,
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// NormalizeMediaType drops parameters and lowercases a media type ("Image/PNG; q=1" -> "image/png").
func NormalizeMediaType(mt string) string {
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	mt = strings.ToLower(strings.TrimSpace(mt))
	if mt == "image/jpg" {
		return MediaTypeJPEG
	}
	return mt
}

// IsAllowedMediaType reports whether mt (after normalization) is on the allow-list.
func IsAllowedMediaType(mt string) bool {
	_, ok := AllowedMediaTypes[NormalizeMediaType(mt)]
	return ok
}

// MediaTypeForExt resolves an extension to an allowed media type, or "" when unknown.
func MediaTypeForExt(ext string) string {
	return AllowedExtensions[NormalizeExt(ext)]
}
