package ingest

import (
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/invoice-attestor/constants"
)

// AllowedExt checks if a file extension maps to an accepted media type.
func AllowedExt(ext string) bool {
	return constants.MediaTypeForExt(ext) != ""
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".")
}
