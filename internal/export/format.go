// Package export writes tabular attendance records as CSV, Excel or PDF files.
package export

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Format is an export file format.
type Format string

const (
	CSV   Format = "csv"
	Excel Format = "excel"
	PDF   Format = "pdf"
)

// ErrUnsupportedFormat is returned for unknown format tags. Callers fall back to CSV.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// ParseFormat accepts csv, excel (or xlsx) and pdf in any case.
func ParseFormat(tag string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "csv":
		return CSV, nil
	case "excel", "xlsx":
		return Excel, nil
	case "pdf":
		return PDF, nil
	}
	return CSV, fmt.Errorf("%w: %q", ErrUnsupportedFormat, tag)
}

// Ext is the file extension without the dot.
func (f Format) Ext() string {
	switch f {
	case Excel:
		return "xlsx"
	case PDF:
		return "pdf"
	}
	return "csv"
}

// ContentType is the MIME type served for f.
func (f Format) ContentType() string {
	switch f {
	case Excel:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case PDF:
		return "application/pdf"
	}
	return "text/csv; charset=utf-8"
}

const stampLayout = "20060102_150405"

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// SafeName turns a title into a file name fragment: spaces become underscores
// and other characters outside [A-Za-z0-9_.-] are dropped.
func SafeName(title string) string {
	name := strings.ReplaceAll(strings.TrimSpace(title), " ", "_")
	name = unsafeName.ReplaceAllString(name, "")
	if name == "" {
		return "event"
	}
	return name
}

// EventFileBase names a per-event export: <Title>_registrations_<stamp>.
func EventFileBase(title string, at time.Time) string {
	return SafeName(title) + "_registrations_" + at.Format(stampLayout)
}

// AttendanceFileBase names the all-events attendance export.
func AttendanceFileBase(at time.Time) string {
	return "attendance_all_" + at.Format(stampLayout)
}
