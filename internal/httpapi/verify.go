package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type verifyRequest struct {
	Credential string `json:"credential" validate:"required,max=4096"`
}

func (h *handler) verify(c *gin.Context) {
	var req verifyRequest
	if !bindJSON(c, &req) {
		return
	}
	checkIn, err := h.att.Verify(c.Request.Context(), caller(c), req.Credential)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"check_in": checkIn})
}

func (h *handler) recentVerifications(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	list, err := h.att.RecentCheckIns(c.Request.Context(), caller(c), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"check_ins": nonNil(list)})
}

func (h *handler) verificationHistory(c *gin.Context) {
	list, err := h.att.CheckInHistory(c.Request.Context(), caller(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"check_ins": nonNil(list)})
}
