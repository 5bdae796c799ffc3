package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestExtract_TxtPassthrough(t *testing.T) {
	text, err := Extract(strings.NewReader("hello"), "notes.txt")
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if text != "hello" {
		t.Errorf("unexpected text: %q", text)
	}
}

func TestExtract_ExtensionCaseInsensitive(t *testing.T) {
	text, err := Extract(strings.NewReader("HELLO"), "NOTES.TXT")
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if text != "HELLO" {
		t.Errorf("unexpected text: %q", text)
	}
}

func TestExtract_UnsupportedFormatSentinel(t *testing.T) {
	for _, name := range []string{"image.png", "archive.tar.gz", "noextension"} {
		text, err := Extract(strings.NewReader("binary junk"), name)
		if err != nil {
			t.Fatalf("%s: extract should not error: %v", name, err)
		}
		if text != UnsupportedText {
			t.Errorf("%s: expected sentinel, got %q", name, text)
		}
	}
}

func TestExtract_Docx(t *testing.T) {
	documentXML := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Hello</w:t></w:r></w:p>
    <w:p><w:r><w:t>docx </w:t></w:r><w:r><w:t>world</w:t></w:r></w:p>
  </w:body>
</w:document>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	part, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("create zip entry failed: %v", err)
	}
	if _, err := part.Write([]byte(documentXML)); err != nil {
		t.Fatalf("write zip entry failed: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip failed: %v", err)
	}

	text, err := Extract(bytes.NewReader(buf.Bytes()), "report.docx")
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if text != "Hello\ndocx world" {
		t.Errorf("unexpected docx text: %q", text)
	}
}

func TestExtract_DocxNotAnArchive(t *testing.T) {
	if _, err := Extract(strings.NewReader("this is not a zip"), "broken.docx"); err == nil {
		t.Error("expected error for a docx that is not a zip archive")
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("disk on fire")
}

func TestExtract_ReadFailure(t *testing.T) {
	if _, err := Extract(failingReader{}, "notes.txt"); err == nil {
		t.Error("expected I/O failure to surface")
	}
}
