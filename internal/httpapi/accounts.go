package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"campusevents/internal/accounts"
	"campusevents/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email" validate:"omitempty,max=254"`
	Username string `json:"username" validate:"omitempty,max=64"`
	Password string `json:"password" validate:"required,max=72"`
}

type session struct {
	Token     string        `json:"token"`
	ExpiresAt int64         `json:"expires_at"`
	Account   auth.Identity `json:"account"`
}

func (h *handler) signup(c *gin.Context) {
	var req accounts.Signup
	if !bindJSON(c, &req) {
		return
	}
	id, err := h.acc.SignupStudent(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.startSession(c, http.StatusCreated, id)
}

func (h *handler) login(role auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if !bindJSON(c, &req) {
			return
		}
		login := req.Username
		if role == auth.RoleStudent || login == "" {
			login = req.Email
		}
		if strings.TrimSpace(login) == "" {
			fail(c, http.StatusBadRequest, "VALIDATION", "email or username is required")
			return
		}
		id, err := h.acc.Login(c.Request.Context(), role, login, req.Password)
		if err != nil {
			h.respondError(c, err)
			return
		}
		h.startSession(c, http.StatusOK, id)
	}
}

func (h *handler) startSession(c *gin.Context, status int, id auth.Identity) {
	tok, err := auth.Issue(id, h.tokens.Issuer, h.tokens.SigningKey, h.tokens.TTL)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, status, session{Token: tok.AccessToken, ExpiresAt: tok.ExpiresAt.Unix(), Account: id})
}
