package pdftext

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/chartmill/chartmill/internal/core/domain"
)

type memoryStorage struct {
	files map[string][]byte
}

func (s *memoryStorage) Save(_ context.Context, key string, data io.Reader) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if s.files == nil {
		s.files = map[string][]byte{}
	}
	s.files[key] = raw
	return nil
}

func (s *memoryStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.files[key])), nil
}

func TestExtractPassesThroughPlainText(t *testing.T) {
	storage := &memoryStorage{files: map[string][]byte{
		"doc-1.txt": []byte("  Chief complaint: shortness of breath.\n"),
	}}
	extractor := New(storage)

	text, err := extractor.Extract(context.Background(), &domain.Document{ID: "doc-1", StorageKey: "doc-1.txt"})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if text != "Chief complaint: shortness of breath." {
		t.Fatalf("unexpected transcript %q", text)
	}
}

func TestExtractBinaryGarbageYieldsEmptyTranscript(t *testing.T) {
	storage := &memoryStorage{files: map[string][]byte{
		"doc-1.bin": {0x00, 0xff, 0xfe, 0x80, 0x81},
	}}
	extractor := New(storage)

	text, err := extractor.Extract(context.Background(), &domain.Document{ID: "doc-1", StorageKey: "doc-1.bin"})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if text != "" {
		t.Fatalf("expected empty transcript, got %q", text)
	}
}

func TestExtractCorruptPDFIsAnError(t *testing.T) {
	storage := &memoryStorage{files: map[string][]byte{
		"doc-1.pdf": []byte("%PDF-1.7 truncated"),
	}}
	extractor := New(storage)

	_, err := extractor.Extract(context.Background(), &domain.Document{ID: "doc-1", StorageKey: "doc-1.pdf"})
	if err == nil {
		t.Fatalf("expected error for corrupt pdf")
	}
}
