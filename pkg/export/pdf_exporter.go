package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// Field is a labelled value printed in a document header or footer.
type Field struct {
	Label string
	Value string
}

// Document is a fixed-layout summary: title, header fields, a table and closing fields.
type Document struct {
	Title  string
	Fields []Field
	Table  Table
	// Widths are relative column weights; equal widths when empty.
	Widths []float64
	Totals []Field
	Footer string
}

// PDFExporter renders documents into A4 PDFs.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

const (
	pageWidth   = 190.0
	labelWidth  = 50.0
	headerLineH = 6.0
	rowLineH    = 7.0
)

// Render lays out the document and returns the PDF bytes.
func (e *PDFExporter) Render(doc Document) ([]byte, error) {
	if len(doc.Table.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one table header")
	}
	widths, err := columnWidths(doc)
	if err != nil {
		return nil, err
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.SetAutoPageBreak(true, 15)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	if doc.Footer != "" {
		pdf.SetFooterFunc(func() {
			pdf.SetY(-12)
			pdf.SetFont("Arial", "I", 8)
			pdf.CellFormat(0, 5, tr(fmt.Sprintf("%s - page %d", doc.Footer, pdf.PageNo())), "", 0, "C", false, 0, "")
		})
	}
	pdf.AddPage()

	if doc.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, tr(doc.Title), "", 1, "C", false, 0, "")
		pdf.Ln(3)
	}

	for _, field := range doc.Fields {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(labelWidth, headerLineH, tr(field.Label), "", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.MultiCell(pageWidth-labelWidth, headerLineH, tr(field.Value), "", "", false)
	}
	pdf.Ln(4)

	header := func() {
		pdf.SetFont("Arial", "B", 9)
		pdf.SetFillColor(230, 230, 230)
		for i, h := range doc.Table.Headers {
			pdf.CellFormat(widths[i], rowLineH+1, tr(h), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 9)
	}
	header()
	_, pageHeight := pdf.GetPageSize()
	for _, row := range doc.Table.Rows {
		if pdf.GetY()+rowLineH > pageHeight-20 {
			pdf.AddPage()
			header()
		}
		for i := range doc.Table.Headers {
			value := ""
			if i < len(row) {
				value = row[i]
			}
			pdf.CellFormat(widths[i], rowLineH, tr(truncate(pdf, value, widths[i]-2)), "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	if len(doc.Totals) > 0 {
		pdf.Ln(3)
		for _, total := range doc.Totals {
			pdf.SetFont("Arial", "B", 10)
			pdf.CellFormat(pageWidth-labelWidth, headerLineH, tr(total.Label), "", 0, "R", false, 0, "")
			pdf.CellFormat(labelWidth, headerLineH, tr(total.Value), "", 1, "R", false, 0, "")
		}
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func columnWidths(doc Document) ([]float64, error) {
	n := len(doc.Table.Headers)
	widths := make([]float64, n)
	if len(doc.Widths) == 0 {
		for i := range widths {
			widths[i] = pageWidth / float64(n)
		}
		return widths, nil
	}
	if len(doc.Widths) != n {
		return nil, fmt.Errorf("pdf has %d column widths for %d headers", len(doc.Widths), n)
	}
	var sum float64
	for _, w := range doc.Widths {
		if w <= 0 {
			return nil, fmt.Errorf("pdf column widths must be positive")
		}
		sum += w
	}
	for i, w := range doc.Widths {
		widths[i] = pageWidth * w / sum
	}
	return widths, nil
}

func truncate(pdf *gofpdf.Fpdf, value string, width float64) string {
	if pdf.GetStringWidth(value) <= width {
		return value
	}
	runes := []rune(value)
	for len(runes) > 0 && pdf.GetStringWidth(string(runes)+"...") > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}
