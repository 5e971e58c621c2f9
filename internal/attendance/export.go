package attendance

import (
	"context"

	"campusevents/internal/auth"
	"campusevents/internal/export"
)

var (
	rosterColumns  = []string{"Student Name", "Student ID", "Department", "Year", "Registration Time", "Attended", "Check-in Time"}
	checkInColumns = []string{"Student Name", "Student ID", "Department", "Year", "Event Title", "Event Date", "Check-in Time"}
)

// ExportEvent renders an event's registrations. Formats that cannot be
// produced degrade to CSV with File.Warning set.
func (s *Service) ExportEvent(ctx context.Context, caller auth.Identity, eventID int64, format export.Format, attendedOnly bool) (export.File, error) {
	e, list, err := s.Roster(ctx, caller, eventID, attendedOnly)
	if err != nil {
		return export.File{}, err
	}
	ds := export.Dataset{
		Title:     "Registrations - " + e.Title,
		SheetName: "Registrations",
		Columns:   rosterColumns,
		Rows:      make([][]any, 0, len(list)),
	}
	for _, a := range list {
		ds.Rows = append(ds.Rows, []any{a.StudentName, a.StudentNumber, a.Department, a.Year,
			a.RegistrationTime, a.Attended, a.CheckinTime})
	}
	return s.render(ds, format, export.EventFileBase(e.Title, s.now()))
}

// ExportAttendance renders every check-in across events, latest first.
func (s *Service) ExportAttendance(ctx context.Context, caller auth.Identity, format export.Format) (export.File, error) {
	if err := authorize(caller, auth.RoleAdmin); err != nil {
		return export.File{}, err
	}
	records, err := s.repo.CheckIns(ctx, 0)
	if err != nil {
		return export.File{}, err
	}
	ds := export.Dataset{
		Title:     "Attendance Records",
		SheetName: "Attendance",
		Columns:   checkInColumns,
		Rows:      make([][]any, 0, len(records)),
	}
	for _, c := range records {
		ds.Rows = append(ds.Rows, []any{c.StudentName, c.StudentID, c.Department, c.Year,
			c.EventTitle, c.EventDate, c.CheckinTime})
	}
	return s.render(ds, format, export.AttendanceFileBase(s.now()))
}

func (s *Service) render(ds export.Dataset, format export.Format, base string) (export.File, error) {
	f, err := s.exporter.Export(ds, format, base)
	if err != nil {
		return export.File{}, err
	}
	s.metrics.Export(string(format), string(f.Format))
	if f.Warning != "" {
		s.log.Warn().Str("requested", string(format)).Str("file", f.Name).Msg(f.Warning)
	}
	return f, nil
}
