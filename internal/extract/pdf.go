package extract

import (
	"fmt"
	"os"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

// StreamPages opens the PDF at path and invokes sink once per page in order.
// A page that fails to yield text produces a PageResult with Err set and is
// otherwise skipped; the failure is isolated to the page, not the document.
// Returns the total page count. Opening a corrupt or non-PDF file fails the
// whole call. Memory stays bounded to one page's text at a time.
func (e *Extractor) StreamPages(path string, sink func(PageResult) error) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open PDF: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat PDF: %w", err)
	}
	r, err := pdf.NewReader(f, info.Size())
	if err != nil {
		return 0, fmt.Errorf("open PDF: %w", err)
	}

	numPages := r.NumPage()
	for i := 1; i <= numPages; i++ {
		res := PageResult{Page: i}
		page := r.Page(i)
		if page.V.IsNull() {
			res.Err = fmt.Errorf("page %d: missing page object", i)
		} else {
			text, textErr := pageText(page)
			if textErr != nil {
				res.Err = fmt.Errorf("page %d: %w", i, textErr)
			} else {
				res.Text = text
			}
		}
		if res.Err != nil {
			e.logger.Warn("pdf page extraction failed, substituting empty text",
				zap.String("path", path), zap.Int("page", i), zap.Error(res.Err))
		}
		if err := sink(res); err != nil {
			return numPages, err
		}
	}
	return numPages, nil
}

// pageText pulls the flat text run of one page, converting panics from the
// underlying parser (corrupt glyph tables) into errors so a bad page cannot
// take down the document.
func pageText(page pdf.Page) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page text panic: %v", r)
		}
	}()
	text, err = page.GetPlainText(nil)
	if err != nil {
		return "", err
	}
	return text + "\n", nil
}
