package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	liberrors "github.com/hyperjump/libris/internal/errors"
	"github.com/ledongthuc/pdf"
)

// extractPages returns the text of each page in order, whitespace-normalized so that
// text items are separated by single spaces. Pages without a text layer yield "".
// The decoder panics on some malformed inputs; those are reported as PARSE_ERROR.
func extractPages(ctx context.Context, content []byte) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = liberrors.Parse("failed to parse PDF", fmt.Errorf("%v", r))
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, liberrors.Parse("failed to open PDF", err)
	}
	numPages := r.NumPage()
	if numPages == 0 {
		return nil, liberrors.Parse("PDF has no pages", nil)
	}
	pages = make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, liberrors.Parse(fmt.Sprintf("failed to extract text from page %d", i), err)
		}
		pages = append(pages, strings.Join(strings.Fields(text), " "))
	}
	return pages, nil
}
