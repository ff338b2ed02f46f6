package export

import (
	"bytes"
	"fmt"
	"os"

	"github.com/jung-kurt/gofpdf"
)

const slipFontFamily = "slip"

// SlipField is one labelled line on a slip.
type SlipField struct {
	Label string
	Value string
}

// SlipDocument describes a one-page printable slip.
type SlipDocument struct {
	Title    string
	Subtitle string
	Fields   []SlipField
	QRCode   []byte // PNG
	QRNote   string
	Footer   string
}

// PDFExporter renders slips. Core PDF fonts only cover Latin-1, so a UTF-8
// TrueType font (for example a CJK font) must be configured for Chinese text.
type PDFExporter struct {
	fontPath string
}

// NewPDFExporter constructs a PDF exporter. fontPath may be empty.
func NewPDFExporter(fontPath string) (*PDFExporter, error) {
	if fontPath != "" {
		if _, err := os.Stat(fontPath); err != nil {
			return nil, fmt.Errorf("slip font: %w", err)
		}
	}
	return &PDFExporter{fontPath: fontPath}, nil
}

// RenderSlip lays out the slip on an A5 landscape page.
func (e *PDFExporter) RenderSlip(doc SlipDocument) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A5", "")
	pdf.SetMargins(12, 12, 12)
	pdf.SetAutoPageBreak(false, 0)

	family := "Arial"
	text := func(s string) string { return s }
	if e.fontPath != "" {
		pdf.AddUTF8Font(slipFontFamily, "", e.fontPath)
		family = slipFontFamily
	} else {
		text = pdf.UnicodeTranslatorFromDescriptor("")
	}
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("load slip font: %w", err)
	}
	pdf.AddPage()

	pageW, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	contentW := pageW - left - right
	qrSize := 0.0
	if len(doc.QRCode) > 0 {
		qrSize = 42
	}

	pdf.SetFont(family, "", 18)
	pdf.CellFormat(contentW, 10, text(doc.Title), "", 1, "C", false, 0, "")
	if doc.Subtitle != "" {
		pdf.SetFont(family, "", 10)
		pdf.CellFormat(contentW, 6, text(doc.Subtitle), "", 1, "C", false, 0, "")
	}
	pdf.Ln(4)
	top := pdf.GetY()

	labelW := 32.0
	valueW := contentW - labelW - qrSize - 4
	pdf.SetFont(family, "", 11)
	for _, field := range doc.Fields {
		pdf.SetX(left)
		pdf.CellFormat(labelW, 8, text(field.Label), "1", 0, "", false, 0, "")
		pdf.MultiCell(valueW, 8, text(field.Value), "1", "", false)
	}

	if qrSize > 0 {
		opts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
		pdf.RegisterImageOptionsReader("qr", opts, bytes.NewReader(doc.QRCode))
		x := pageW - right - qrSize
		pdf.ImageOptions("qr", x, top, qrSize, qrSize, false, opts, 0, "")
		if doc.QRNote != "" {
			pdf.SetFont(family, "", 8)
			pdf.SetXY(x, top+qrSize+1)
			pdf.MultiCell(qrSize, 4, text(doc.QRNote), "", "C", false)
		}
	}

	if doc.Footer != "" {
		_, pageH := pdf.GetPageSize()
		pdf.SetFont(family, "", 8)
		pdf.SetXY(left, pageH-18)
		pdf.CellFormat(contentW, 5, text(doc.Footer), "", 1, "R", false, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
