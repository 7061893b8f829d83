package pdfdoc

import (
	"context"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Merger concatenates PDFs page by page, preserving input order.
type Merger struct {
	conf *model.Configuration
}

func NewMerger() *Merger {
	conf := model.NewDefaultConfiguration()
	// Office output occasionally trips strict validation without being unreadable.
	conf.ValidationMode = model.ValidationRelaxed
	return &Merger{conf: conf}
}

func (m *Merger) Merge(ctx context.Context, docs []io.ReadSeeker, w io.Writer) error {
	if len(docs) == 0 {
		return fmt.Errorf("merge pdf: no input documents")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(docs) == 1 {
		if _, err := docs[0].Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewind pdf: %w", err)
		}
		if _, err := io.Copy(w, docs[0]); err != nil {
			return fmt.Errorf("copy pdf: %w", err)
		}
		return nil
	}
	if err := api.MergeRaw(docs, w, false, m.conf); err != nil {
		return fmt.Errorf("merge pdf: %w", err)
	}
	return nil
}
