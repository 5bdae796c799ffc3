// Package extract converts uploaded file bytes into plain text based on the
// declared filename. Unrecognized formats degrade to a sentinel string rather
// than an error; only I/O failures reading the bytes are reported.
package extract

import (
	"io"
	"path/filepath"
	"strings"
)

// UnsupportedText is stored for formats no extractor recognizes.
const UnsupportedText = "Unsupported file format."

func Extract(r io.Reader, filename string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt":
		return string(data), nil
	case ".docx":
		return extractDocx(data)
	case ".pdf":
		return extractPDF(data)
	default:
		return UnsupportedText, nil
	}
}
