// Package pdftest writes small, valid PDF documents for tests.
package pdftest

import (
	"bytes"
	"fmt"
	"strings"
)

// Page size in points (US Letter).
const (
	PageWidth  = 612
	PageHeight = 792
)

// Build returns a PDF with one page per entry of pages. Each page is a list of text
// lines set in Helvetica. A page with no lines gets a filled rectangle and no text.
func Build(pages ...[]string) []byte {
	var buf bytes.Buffer
	numObjects := 3 + 2*len(pages)
	offsets := make([]int, numObjects+1)

	writeObj := func(num int, body string) {
		offsets[num] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", num, body)
	}

	buf.WriteString("%PDF-1.4\n")

	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	writeObj(1, "<< /Type /Catalog /Pages 2 0 R >>")
	writeObj(2, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	writeObj(3, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	for i, lines := range pages {
		pageObj := 4 + 2*i
		contentObj := pageObj + 1
		writeObj(pageObj, fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d %d] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>",
			PageWidth, PageHeight, contentObj))
		stream := contentStream(lines)
		writeObj(contentObj, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", numObjects+1)
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= numObjects; i++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", numObjects+1, xref)
	return buf.Bytes()
}

// Lines splits words into lines of perLine words.
func Lines(words []string, perLine int) []string {
	var lines []string
	for start := 0; start < len(words); start += perLine {
		end := min(start+perLine, len(words))
		lines = append(lines, strings.Join(words[start:end], " "))
	}
	return lines
}

// Words returns n distinct words of the form prefix0, prefix1, ...
func Words(prefix string, n int) []string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return words
}

func contentStream(lines []string) string {
	if len(lines) == 0 {
		return "0.2 0.3 0.8 rg\n72 72 468 648 re f"
	}
	var b strings.Builder
	b.WriteString("BT\n/F1 10 Tf\n12 TL\n72 760 Td\n")
	for _, line := range lines {
		fmt.Fprintf(&b, "(%s ) Tj\nT*\n", escape(line))
	}
	b.WriteString("ET")
	return b.String()
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
