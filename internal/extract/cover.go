package extract

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/gen2brain/go-fitz"
	liberrors "github.com/hyperjump/libris/internal/errors"
)

// renderCover rasterizes one page (0-based) at dpi and encodes it as PNG.
func renderCover(content []byte, pageNum int, dpi float64) ([]byte, error) {
	doc, err := fitz.NewFromMemory(content)
	if err != nil {
		return nil, liberrors.Parse("failed to open PDF for rendering", err)
	}
	defer doc.Close()

	if pageNum >= doc.NumPage() {
		return nil, liberrors.Parse(fmt.Sprintf("PDF has no page %d", pageNum+1), nil)
	}
	img, err := doc.ImageDPI(pageNum, dpi)
	if err != nil {
		return nil, liberrors.Parse(fmt.Sprintf("failed to render page %d", pageNum+1), err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode cover png: %w", err)
	}
	return buf.Bytes(), nil
}
