package pdfdoc

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
)

func TestInspectorCountsPages(t *testing.T) {
	doc := buildPDF("one", "two", "three")

	pages, err := NewInspector().PageCount(bytes.NewReader(doc), int64(len(doc)))
	if err != nil {
		t.Fatalf("PageCount() error = %v", err)
	}
	if pages != 3 {
		t.Fatalf("expected 3 pages, got %d", pages)
	}
}

func TestInspectorRejectsGarbage(t *testing.T) {
	garbage := []byte("this is not a pdf")
	if _, err := NewInspector().PageCount(bytes.NewReader(garbage), int64(len(garbage))); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestMergePreservesOrderAndPageCount(t *testing.T) {
	first := buildPDF("alpha", "beta")
	second := buildPDF("gamma")
	third := buildPDF("delta", "epsilon")

	var merged bytes.Buffer
	err := NewMerger().Merge(context.Background(), []io.ReadSeeker{
		bytes.NewReader(first),
		bytes.NewReader(second),
		bytes.NewReader(third),
	}, &merged)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	inspector := NewInspector()
	pages, err := inspector.PageCount(bytes.NewReader(merged.Bytes()), int64(merged.Len()))
	if err != nil {
		t.Fatalf("PageCount() error = %v", err)
	}
	if pages != 5 {
		t.Fatalf("expected 5 pages, got %d", pages)
	}

	text, err := inspector.PlainText(bytes.NewReader(merged.Bytes()), int64(merged.Len()))
	if err != nil {
		t.Fatalf("PlainText() error = %v", err)
	}
	last := -1
	for _, word := range []string{"alpha", "beta", "gamma", "delta", "epsilon"} {
		idx := strings.Index(text, word)
		if idx <= last {
			t.Fatalf("expected %q after previous pages in %q", word, text)
		}
		last = idx
	}
}

func TestMergeSingleDocumentCopiesBytes(t *testing.T) {
	doc := buildPDF("solo")
	var out bytes.Buffer
	if err := NewMerger().Merge(context.Background(), []io.ReadSeeker{bytes.NewReader(doc)}, &out); err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if !bytes.Equal(out.Bytes(), doc) {
		t.Fatalf("expected single document unchanged")
	}
}

func TestMergeRequiresInput(t *testing.T) {
	if err := NewMerger().Merge(context.Background(), nil, io.Discard); err == nil {
		t.Fatalf("expected error for empty input")
	}
}
