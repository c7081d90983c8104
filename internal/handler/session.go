package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/qunqun-dev/date-poll/backend/internal/domain"
	"github.com/qunqun-dev/date-poll/backend/internal/session"
)

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name" validate:"required"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	user, err := session.NewUser(req.Name)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidUser):
			h.errorResponse(w, r, err.Error())
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	token, expiration, err := h.identity.Issue(user)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}
	h.setSessionCookie(w, token, expiration)

	h.successResponse(w, r, "欢迎，"+user.Name, user)
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	user, _ := sessionUser(r.Context())

	h.successResponse(w, r, "获取会话成功", user)
}

func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	// 把 cookie 设置成过期来删除它
	h.setSessionCookie(w, "", time.Unix(0, 0))

	h.successResponse(w, r, "已退出", nil)
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, value string, expiration time.Time) {
	cookie := &http.Cookie{
		Name:     h.config.Session.CookieName,
		Value:    value,
		Path:     "/",
		Expires:  expiration,
		HttpOnly: true,
	}
	if value == "" {
		cookie.MaxAge = -1
	}
	if h.config.Environment == "production" {
		cookie.Secure = true
		cookie.SameSite = http.SameSiteStrictMode
	}

	http.SetCookie(w, cookie)
}
