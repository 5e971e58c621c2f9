package export

import (
	"bytes"
	"errors"

	"github.com/go-pdf/fpdf"
)

const (
	pdfMargin   = 10.0
	pdfRowH     = 6.0
	pdfFontSize = 7.0
)

// writePDF lays ds out as a landscape A4 table. The header row is drawn by the
// page header callback so it repeats on every page.
func writePDF(ds Dataset) ([]byte, error) {
	if len(ds.Columns) == 0 {
		return nil, errors.New("no columns")
	}

	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(false, pdfMargin)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pageW, pageH := pdf.GetPageSize()
	colW := (pageW - 2*pdfMargin) / float64(len(ds.Columns))

	pdf.SetHeaderFunc(func() {
		if pdf.PageNo() == 1 && ds.Title != "" {
			pdf.SetFont("Helvetica", "B", 14)
			pdf.SetTextColor(0, 0, 0)
			pdf.CellFormat(0, 10, tr(ds.Title), "", 1, "L", false, 0, "")
			pdf.Ln(2)
		}
		pdf.SetFont("Helvetica", "B", pdfFontSize)
		pdf.SetFillColor(0x2c, 0x7b, 0xe5)
		pdf.SetTextColor(255, 255, 255)
		for _, col := range ds.Columns {
			pdf.CellFormat(colW, pdfRowH, fit(pdf, tr(col), colW), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", pdfFontSize)
		pdf.SetTextColor(0, 0, 0)
	})

	pdf.AddPage()
	for _, row := range ds.Rows {
		if pdf.GetY()+pdfRowH > pageH-pdfMargin {
			pdf.AddPage()
		}
		for i := range ds.Columns {
			var text string
			if i < len(row) {
				text = cellText(row[i], PDF)
			}
			pdf.CellFormat(colW, pdfRowH, fit(pdf, tr(text), colW), "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// fit shortens s with an ellipsis until it fits in width w. s is already
// translated to the single-byte core font encoding, so it is cut bytewise.
func fit(pdf *fpdf.Fpdf, s string, w float64) string {
	limit := w - 2
	if pdf.GetStringWidth(s) <= limit {
		return s
	}
	b := []byte(s)
	for len(b) > 0 && pdf.GetStringWidth(string(b)+"...") > limit {
		b = b[:len(b)-1]
	}
	return string(b) + "..."
}
