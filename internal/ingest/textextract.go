package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
)

// PDFTextExtractor is the concrete ports.TextExtractor backed by
// github.com/ledongthuc/pdf, the PDF text library spec §4.G's extract step
// calls out.
type PDFTextExtractor struct{}

func (PDFTextExtractor) ExtractText(ctx context.Context, pdfBytes []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(pdfBytes), int64(len(pdfBytes)))
	if err != nil {
		return "", fmt.Errorf("ingest: open pdf: %w", err)
	}

	var buf bytes.Buffer
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			if err == io.EOF {
				break
			}
			continue
		}
		buf.WriteString(text)
		buf.WriteByte('\n')
	}
	return buf.String(), nil
}
