package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/stagekit/showcall/internal/middleware"
	"github.com/stagekit/showcall/internal/model"
	"github.com/stagekit/showcall/internal/repository"
	"github.com/stagekit/showcall/internal/show"
)

// SessionHandler exposes the session registry over HTTP: create, join,
// close and role switch.  State machine and presence commands go over
// the websocket, not here.
type SessionHandler struct {
	Registry *show.Registry
	Rooms    *show.Rooms
}

func NewSessionHandler(reg *show.Registry, rooms *show.Rooms) *SessionHandler {
	return &SessionHandler{Registry: reg, Rooms: rooms}
}

// ----- DTOs -----

type createSessionReq struct {
	Name     string `json:"name"`
	Password string `json:"password"` // optional
}
type joinSessionReq struct {
	Code       string `json:"code"`
	Password   string `json:"password"`
	Role       string `json:"role"`
	Department string `json:"department"` // for operator joins
}
type switchRoleReq struct {
	Role string `json:"role"`
}

type sessionPart struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Protected bool      `json:"protected"`
	CreatedBy uint64    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}
type membershipPart struct {
	SessionID string    `json:"session_id"`
	UserID    uint64    `json:"user_id"`
	Role      string    `json:"role"`
	JoinedAt  time.Time `json:"joined_at"`
}
type sessionResp struct {
	Session    sessionPart    `json:"session"`
	Membership membershipPart `json:"membership"`
}

func toSessionPart(s model.Session) sessionPart {
	return sessionPart{
		ID: s.ID, Code: s.Code, Name: s.Name,
		Protected: s.PasswordHash != "",
		CreatedBy: s.CreatedBy, CreatedAt: s.CreatedAt,
	}
}

func toMembershipPart(m model.Membership) membershipPart {
	return membershipPart{SessionID: m.SessionID, UserID: m.UserID, Role: string(m.Role), JoinedAt: m.JoinedAt}
}

// coreStatus maps core errors to HTTP statuses; handlers share it so
// the same error always surfaces the same way.
func coreStatus(err error) int {
	switch {
	case errors.Is(err, show.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, show.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, show.ErrAlreadyEnrolled):
		return http.StatusConflict
	case errors.Is(err, show.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, show.ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func coreError(c echo.Context, err error) error {
	return c.JSON(coreStatus(err), echo.Map{"error": show.ErrorCode(err)})
}

// Create: open a new session; the caller becomes its stage manager.
func (h *SessionHandler) Create(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req createSessionReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	s, m, err := h.Registry.CreateSession(c.Request().Context(), req.Name, req.Password, uid)
	if err != nil {
		return coreError(c, err)
	}
	return c.JSON(http.StatusCreated, sessionResp{Session: toSessionPart(s), Membership: toMembershipPart(m)})
}

// Join: resolve a join code and enroll (or resume) the caller.
func (h *SessionHandler) Join(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req joinSessionReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if strings.TrimSpace(req.Code) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "code required"})
	}

	s, m, err := h.Registry.JoinSession(c.Request().Context(), req.Code, req.Password, uid, model.Role(req.Role), req.Department)
	if err != nil {
		return coreError(c, err)
	}
	return c.JSON(http.StatusOK, sessionResp{Session: toSessionPart(s), Membership: toMembershipPart(m)})
}

// Close: deactivate a session and terminate its live room.
func (h *SessionHandler) Close(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	if err := h.Registry.CloseSession(c.Request().Context(), c.Param("id"), uid); err != nil {
		return coreError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "session closed"})
}

// SwitchRole: change the caller's membership role in place.
func (h *SessionHandler) SwitchRole(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req switchRoleReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Role) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "role required"})
	}

	m, err := h.Registry.SwitchRole(c.Request().Context(), c.Param("id"), uid, model.Role(req.Role))
	if err != nil {
		return coreError(c, err)
	}
	return c.JSON(http.StatusOK, toMembershipPart(m))
}
