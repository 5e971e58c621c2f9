package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"campusevents/internal/attendance"
	"campusevents/internal/export"
)

type eventRequest struct {
	Title       string `json:"title" validate:"required,max=200,singleline"`
	Description string `json:"description" validate:"max=4000"`
	Date        string `json:"date" validate:"required,eventdate"`
	Time        string `json:"time" validate:"clock"`
	Venue       string `json:"venue" validate:"max=200,singleline"`
	Organizer   string `json:"organizer" validate:"max=200"`
	Capacity    *int   `json:"capacity" validate:"required,gte=0"`
}

func (r eventRequest) input() attendance.EventInput {
	return attendance.EventInput{
		Title:       r.Title,
		Description: r.Description,
		Date:        r.Date,
		Time:        r.Time,
		Venue:       r.Venue,
		Organizer:   r.Organizer,
		Capacity:    *r.Capacity,
	}
}

func (h *handler) allEvents(c *gin.Context) {
	events, err := h.att.AllEvents(c.Request.Context(), caller(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"events": nonNil(events)})
}

func (h *handler) createEvent(c *gin.Context) {
	var req eventRequest
	if !bindJSON(c, &req) {
		return
	}
	e, err := h.att.CreateEvent(c.Request.Context(), caller(c), req.input())
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusCreated, gin.H{"event": e})
}

func (h *handler) updateEvent(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	var req eventRequest
	if !bindJSON(c, &req) {
		return
	}
	e, err := h.att.UpdateEvent(c.Request.Context(), caller(c), id, req.input())
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"event": e})
}

func (h *handler) deleteEvent(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	if err := h.att.DeleteEvent(c.Request.Context(), caller(c), id); err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"deleted": id})
}

func (h *handler) roster(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	e, list, err := h.att.Roster(c.Request.Context(), caller(c), id, queryBool(c, "attendance_only"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"event": e, "registrations": nonNil(list)})
}

func (h *handler) dashboard(c *gin.Context) {
	d, err := h.att.Dashboard(c.Request.Context(), caller(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	d.Recent = nonNil(d.Recent)
	ok(c, http.StatusOK, d)
}

type attendanceRequest struct {
	StudentID string `json:"student_id" validate:"required,max=32"`
	EventID   int64  `json:"event_id" validate:"required,gt=0"`
	Attended  *bool  `json:"attended" validate:"required"`
}

func (h *handler) setAttendance(c *gin.Context) {
	var req attendanceRequest
	if !bindJSON(c, &req) {
		return
	}
	err := h.att.SetAttendance(c.Request.Context(), caller(c), req.StudentID, req.EventID, *req.Attended)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"student_id": req.StudentID, "event_id": req.EventID, "attended": *req.Attended})
}

func (h *handler) exportEvent(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	format, warning := requestedFormat(c)
	f, err := h.att.ExportEvent(c.Request.Context(), caller(c), id, format, queryBool(c, "attendance_only"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	sendFile(c, f, warning)
}

func (h *handler) exportAttendance(c *gin.Context) {
	format, warning := requestedFormat(c)
	f, err := h.att.ExportAttendance(c.Request.Context(), caller(c), format)
	if err != nil {
		h.respondError(c, err)
		return
	}
	sendFile(c, f, warning)
}

// requestedFormat reads ?format=, falling back to CSV for unknown tags.
func requestedFormat(c *gin.Context) (export.Format, string) {
	tag := c.DefaultQuery("format", "csv")
	format, err := export.ParseFormat(tag)
	if err != nil {
		return format, "Unsupported format " + strconv.Quote(tag) + ". Falling back to CSV."
	}
	return format, ""
}

func sendFile(c *gin.Context, f export.File, warning string) {
	if f.Warning != "" {
		warning = f.Warning
	}
	if warning != "" {
		c.Header(warningHeader, warning)
	}
	c.Header("Content-Disposition", `attachment; filename="`+f.Name+`"`)
	c.Data(http.StatusOK, f.ContentType, f.Body)
}

func queryBool(c *gin.Context, key string) bool {
	v, _ := strconv.ParseBool(c.Query(key))
	return v
}
