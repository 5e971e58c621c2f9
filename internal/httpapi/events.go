package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"campusevents/internal/attendance"
	"campusevents/internal/auth"
)

func caller(c *gin.Context) auth.Identity {
	id, _ := auth.FromContext(c)
	return id
}

func (h *handler) upcomingEvents(c *gin.Context) {
	events, err := h.att.UpcomingEvents(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"events": nonNil(events)})
}

func (h *handler) eventDetail(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	e, reg, err := h.att.EventDetail(c.Request.Context(), caller(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"event": e, "seats_left": e.SeatsLeft(), "registration": reg})
}

type registerResponse struct {
	attendance.Registered
	CredentialURL string `json:"credential_url"`
}

func (h *handler) register(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	res, err := h.att.Register(c.Request.Context(), caller(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusCreated, registerResponse{
		Registered:    res,
		CredentialURL: fmt.Sprintf("/v1/me/registrations/%d/credential", id),
	})
}

func (h *handler) myRegistrations(c *gin.Context) {
	list, err := h.att.MyRegistrations(c.Request.Context(), caller(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"registrations": nonNil(list)})
}

func (h *handler) credential(c *gin.Context) {
	id, valid := idParam(c, "event_id")
	if !valid {
		return
	}
	png, ref, err := h.att.Credential(c.Request.Context(), caller(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if png == nil {
		c.Redirect(http.StatusFound, ref)
		return
	}
	c.Header("Cache-Control", "private, max-age=300")
	c.Data(http.StatusOK, "image/png", png)
}

// nonNil keeps empty lists as [] in JSON.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
