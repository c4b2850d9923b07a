// Package parse extracts plain text from uploaded document formats.
package parse

import (
	"fmt"
	"path/filepath"
	"strings"

	askerr "github.com/askdoc/askdoc/internal/errors"
)

// Extensions lists the supported file extensions, lowercase with dot.
var Extensions = []string{".md", ".txt", ".pdf", ".docx", ".pptx", ".xlsx"}

// Supported reports whether the file's extension can be extracted.
func Supported(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Extract returns the plain text content of the document. The format
// is chosen by file extension.
func Extract(filename string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".md", ".txt":
		return string(data), nil
	case ".pdf":
		return extractPDF(data)
	case ".docx":
		return extractDocx(data)
	case ".pptx":
		return extractPptx(data)
	case ".xlsx":
		return extractXlsx(data)
	default:
		return "", askerr.New(askerr.ErrCodeUnsupportedFormat,
			fmt.Sprintf("unsupported file format: %s", filename), nil)
	}
}
