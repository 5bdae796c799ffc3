package app

import (
	"fmt"
	"io"
	"strings"

	"chatrelay/internal/extract"
	"chatrelay/internal/logger"
	"chatrelay/internal/model"
)

// DocumentService extracts text from uploads and stores it for later use as
// generation context.
type DocumentService struct {
	docs    DocumentStore
	textCap int
	log     *logger.Logger
}

func NewDocumentService(docs DocumentStore, textCap int, log *logger.Logger) *DocumentService {
	if textCap <= 0 {
		textCap = 15000
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &DocumentService{docs: docs, textCap: textCap, log: log}
}

// Ingest extracts text from the upload and persists it, capped at the
// configured character count. Unrecognized formats store the sentinel text.
func (s *DocumentService) Ingest(username, filename string, r io.Reader) error {
	username = strings.TrimSpace(username)
	if username == "" || filename == "" {
		return ErrInvalidInput
	}

	text, err := extract.Extract(r, filename)
	if err != nil {
		return fmt.Errorf("extract upload failed: %w", err)
	}

	doc := &model.Document{
		Username: username,
		Filename: filename,
		Content:  truncateChars(text, s.textCap),
	}
	if err := s.docs.Create(doc); err != nil {
		return err
	}

	s.log.Info("document stored", "username", username, "filename", filename, "chars", len(doc.Content))
	return nil
}

// truncateChars caps s at n characters, not bytes, so a multi-byte rune is
// never split.
func truncateChars(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
