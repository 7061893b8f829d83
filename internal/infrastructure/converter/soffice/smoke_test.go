package soffice

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/conference-proceedings/internal/infrastructure/pdfdoc"
)

const (
	contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`
	relsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`
	documentXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body><w:p><w:r><w:t>Peatland carbon flux</w:t></w:r></w:p></w:body>
</w:document>`
)

func minimalDocx(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range map[string]string{
		"[Content_Types].xml": contentTypesXML,
		"_rels/.rels":         relsXML,
		"word/document.xml":   documentXML,
	} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

// Runs only where the real engine is installed.
func TestConvertWithInstalledEngine(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping engine smoke test in short mode")
	}
	binary, err := exec.LookPath("soffice")
	if err != nil {
		t.Skip("soffice not installed")
	}

	input := filepath.Join(t.TempDir(), "1.docx")
	if err := os.WriteFile(input, minimalDocx(t), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	out, err := New(binary, Options{Timeout: 2 * time.Minute}).Convert(context.Background(), input)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	raw, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	inspector := pdfdoc.NewInspector()
	pages, err := inspector.PageCount(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("PageCount() error = %v", err)
	}
	if pages < 1 {
		t.Fatalf("expected at least one page")
	}
	text, err := inspector.PlainText(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("PlainText() error = %v", err)
	}
	if !strings.Contains(text, "Peatland") {
		t.Fatalf("expected source text in pdf, got %q", text)
	}
}
