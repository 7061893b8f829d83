package usecase

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/kirillkom/conference-proceedings/internal/core/domain"
)

// MaxUploadBytes is the default size limit for source files.
const MaxUploadBytes int64 = 10 * 1024 * 1024

var allowedExtensions = map[string]struct{}{
	"doc":  {},
	"docx": {},
}

// validateUpload checks extension and declared size and returns the normalized extension.
func validateUpload(upload domain.Upload, maxBytes int64) (string, error) {
	if upload.Body == nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "validate upload", fmt.Errorf("file is required"))
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(strings.TrimSpace(upload.Filename))), ".")
	if _, ok := allowedExtensions[ext]; !ok {
		return "", domain.WrapError(domain.ErrUnsupportedFormat, "validate upload", fmt.Errorf("extension %q not in doc, docx", ext))
	}
	if upload.Size > maxBytes {
		return "", domain.WrapError(domain.ErrFileTooLarge, "validate upload", fmt.Errorf("%d bytes exceeds limit of %d", upload.Size, maxBytes))
	}
	return ext, nil
}

// limitReader fails once more than max bytes are read, so undeclared sizes are still bounded.
type limitReader struct {
	r   io.Reader
	n   int64
	max int64
}

func newLimitReader(r io.Reader, max int64) *limitReader {
	return &limitReader{r: r, max: max}
}

func (l *limitReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.n += int64(n)
	if l.n > l.max {
		return n, domain.WrapError(domain.ErrFileTooLarge, "read upload", fmt.Errorf("stream exceeds limit of %d bytes", l.max))
	}
	return n, err
}
