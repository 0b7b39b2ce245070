package ingest

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// readPDF extracts plain text from a PDF, tagging each page with a
// "[Page N]" marker so chunk provenance survives splitting. Pages that fail
// to parse are skipped rather than failing the whole document.
func readPDF(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading pdf: %w", err)
	}

	readerAt := bytes.NewReader(data)
	f, err := pdf.NewReader(readerAt, int64(readerAt.Len()))
	if err != nil {
		return "", fmt.Errorf("parsing pdf: %w", err)
	}

	var buf strings.Builder
	// Cache fonts so we don't continually parse charmaps.
	fonts := make(map[string]*pdf.Font)

	for i := 1; i <= f.NumPage(); i++ {
		p := f.Page(i)
		if p.V.IsNull() {
			continue
		}

		for _, name := range p.Fonts() {
			if _, ok := fonts[name]; !ok {
				font := p.Font(name)
				fonts[name] = &font
			}
		}

		text, err := p.GetPlainText(fonts)
		if err != nil {
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		fmt.Fprintf(&buf, "\n[Page %d]\n%s\n", i, text)
	}

	return buf.String(), nil
}

// readTextFile reads a plain text or markdown file.
func readTextFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading file: %w", err)
	}
	return string(data), nil
}
