package processor

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"rsc.io/pdf"
)

// PDFText extracts the text of a PDF document, one line per text row.
type PDFText struct{}

func (PDFText) Process(ctx context.Context, in Input) (Output, error) {
	if in.MimeType != "application/pdf" {
		return Output{}, invalidInput("%s is not a PDF document (%s)", in.Name, in.MimeType)
	}

	out := filepath.Join(in.OutDir, trimExt(in.Name)+".txt")
	f, err := os.Create(out)
	if err != nil {
		return Output{}, err
	}
	w := bufio.NewWriter(f)
	if err := extractText(ctx, in.Path, w); err != nil {
		f.Close()
		return Output{}, err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return Output{}, err
	}
	if err := f.Close(); err != nil {
		return Output{}, err
	}
	return Output{Path: out}, nil
}

// extractText writes the text of every page. rsc.io/pdf panics on some
// malformed documents, so panics are turned into input errors.
func extractText(ctx context.Context, path string, w *bufio.Writer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = invalidInput("malformed PDF: %v", r)
		}
	}()

	r, err := pdf.Open(path)
	if err != nil {
		return invalidInput("reading PDF: %v", err)
	}

	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		var (
			lastY float64
			open  bool
		)
		for _, t := range page.Content().Text {
			if open && t.Y != lastY {
				w.WriteByte('\n')
			}
			w.WriteString(t.S)
			lastY, open = t.Y, true
		}
		if open {
			w.WriteByte('\n')
		}
	}
	if r.NumPage() == 0 {
		return fmt.Errorf("%w: document has no pages", ErrInvalidInput)
	}
	return nil
}
