package parse

import (
	"bytes"
	"io"

	"github.com/ledongthuc/pdf"

	askerr "github.com/askdoc/askdoc/internal/errors"
)

// extractPDF pulls the plain text out of every page, pages joined by
// newlines. Pages with no extractable text are skipped.
func extractPDF(data []byte) (string, error) {
	rdr, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", askerr.ParseError("failed to open pdf", err)
	}

	var buf bytes.Buffer
	plain, err := rdr.GetPlainText()
	if err != nil {
		return "", askerr.ParseError("failed to extract pdf text", err)
	}
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", askerr.ParseError("failed to read pdf text", err)
	}
	return buf.String(), nil
}
