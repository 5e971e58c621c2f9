package export

import (
	"fmt"
	"strconv"
	"time"
)

// TimeLayout is used for every timestamp cell.
const TimeLayout = "2006-01-02 15:04:05"

// Dataset is a titled table. Cells may be string, bool, int, int64,
// time.Time, *time.Time or nil.
type Dataset struct {
	Title     string
	SheetName string
	Columns   []string
	Rows      [][]any
}

// File is a finished export ready to download.
type File struct {
	Name        string
	ContentType string
	Format      Format
	Body        []byte
	// Warning is set when the requested format could not be produced.
	Warning string
}

// Exporter renders datasets. PDF output is produced only when PDFEnabled is set;
// otherwise PDF requests degrade to CSV.
type Exporter struct {
	PDFEnabled bool
}

// Export renders ds as format under baseName. Excel and PDF failures degrade
// to CSV with a Warning instead of returning an error.
func (e Exporter) Export(ds Dataset, format Format, baseName string) (File, error) {
	switch format {
	case CSV:
		return e.csvFile(ds, baseName, "")
	case Excel:
		body, err := writeExcel(ds)
		if err != nil {
			return e.csvFile(ds, baseName, fmt.Sprintf("Excel export failed (%v). Falling back to CSV.", err))
		}
		return File{Name: baseName + "." + Excel.Ext(), ContentType: Excel.ContentType(), Format: Excel, Body: body}, nil
	case PDF:
		if !e.PDFEnabled {
			return e.csvFile(ds, baseName, "PDF generation not available. Falling back to CSV.")
		}
		body, err := writePDF(ds)
		if err != nil {
			return e.csvFile(ds, baseName, fmt.Sprintf("PDF export failed (%v). Falling back to CSV.", err))
		}
		return File{Name: baseName + "." + PDF.Ext(), ContentType: PDF.ContentType(), Format: PDF, Body: body}, nil
	}
	return File{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, string(format))
}

func (e Exporter) csvFile(ds Dataset, baseName, warning string) (File, error) {
	body, err := writeCSV(ds)
	if err != nil {
		return File{}, err
	}
	return File{
		Name:        baseName + "." + CSV.Ext(),
		ContentType: CSV.ContentType(),
		Format:      CSV,
		Body:        body,
		Warning:     warning,
	}, nil
}

// cellText renders v for format. Booleans read Yes/No in CSV and Excel and
// Attended/Registered in PDF.
func cellText(v any, format Format) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		if format == PDF {
			if x {
				return "Attended"
			}
			return "Registered"
		}
		if x {
			return "Yes"
		}
		return "No"
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case time.Time:
		if x.IsZero() {
			return ""
		}
		return x.Format(TimeLayout)
	case *time.Time:
		if x == nil || x.IsZero() {
			return ""
		}
		return x.Format(TimeLayout)
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}
