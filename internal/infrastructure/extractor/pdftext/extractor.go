// Package pdftext pulls a plain-text transcript out of stored documents.
// Extraction is best effort: a document that yields no text still flows
// through the pipeline, its stages just work from the document reference.
package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/chartmill/chartmill/internal/core/domain"
	"github.com/chartmill/chartmill/internal/core/ports"
)

const maxDocumentBytes = 32 << 20

type Extractor struct {
	storage ports.ObjectStorage
}

var _ ports.TranscriptExtractor = (*Extractor)(nil)

func New(storage ports.ObjectStorage) *Extractor {
	return &Extractor{storage: storage}
}

func (e *Extractor) Extract(ctx context.Context, doc *domain.Document) (string, error) {
	reader, err := e.storage.Open(ctx, doc.StorageKey)
	if err != nil {
		return "", fmt.Errorf("open stored document: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(io.LimitReader(reader, maxDocumentBytes))
	if err != nil {
		return "", fmt.Errorf("read stored document: %w", err)
	}

	if bytes.HasPrefix(data, []byte("%PDF")) {
		text, err := extractPDFText(data)
		if err != nil {
			return "", fmt.Errorf("extract pdf text: %w", err)
		}
		return text, nil
	}

	// Plain-text uploads pass through; binary formats we cannot parse yield
	// an empty transcript rather than garbage.
	if utf8.Valid(data) {
		return strings.TrimSpace(string(data)), nil
	}
	return "", nil
}

// The pdf library panics on some malformed files; recover turns that into a
// normal extraction error.
func extractPDFText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var out strings.Builder
	for page := 1; page <= reader.NumPage(); page++ {
		p := reader.Page(page)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			// Keep what earlier pages produced.
			continue
		}
		out.WriteString(text)
		out.WriteString("\n")
	}
	return strings.TrimSpace(out.String()), nil
}
