package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/stagekit/showcall/internal/middleware"
	"github.com/stagekit/showcall/internal/model"
	"github.com/stagekit/showcall/internal/repository"
	"github.com/stagekit/showcall/internal/show"
)

// CueSheetHandler manages cue sheets: a new sheet is written durably,
// activated in the live room and progress resets to its first cue.
type CueSheetHandler struct {
	Sheets show.CueSheetStore
	Rooms  *show.Rooms
}

func NewCueSheetHandler(sheets show.CueSheetStore, rooms *show.Rooms) *CueSheetHandler {
	return &CueSheetHandler{Sheets: sheets, Rooms: rooms}
}

type cueReq struct {
	Number      string `json:"number"`
	SubNumber   string `json:"sub_number"`
	Department  string `json:"department"`
	Description string `json:"description"`
	Notes       string `json:"notes"`
	Hold        bool   `json:"hold"`
	ColorCode   string `json:"color_code"`
}
type createSheetReq struct {
	Name string   `json:"name"`
	Cues []cueReq `json:"cues"`
}

// Create: store a new sheet with its cues, deactivate the previous one
// and activate the new sheet in the live room.
func (h *CueSheetHandler) Create(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	sessionID := c.Param("id")

	var req createSheetReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || len(req.Cues) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name and cues required"})
	}

	ctx := c.Request().Context()
	room, err := h.Rooms.Get(ctx, sessionID)
	if err != nil {
		return coreError(c, err)
	}
	// Gate before the durable write so a forbidden caller leaves no rows.
	m, ok := room.Member(uid)
	if !ok || !show.CapabilitiesFor(m.Role).DriveCues {
		return coreError(c, show.ErrForbidden)
	}

	sheet := model.CueSheet{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Name:      req.Name,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	cues := make([]model.Cue, len(req.Cues))
	for i, cr := range req.Cues {
		cues[i] = model.Cue{
			ID:          uuid.NewString(),
			SheetID:     sheet.ID,
			OrderIndex:  i,
			Number:      cr.Number,
			SubNumber:   cr.SubNumber,
			Department:  strings.TrimSpace(cr.Department),
			Description: cr.Description,
			Notes:       cr.Notes,
			Hold:        cr.Hold,
			ColorCode:   cr.ColorCode,
		}
	}

	if err := h.Sheets.CreateSheet(ctx, sheet, cues); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "store sheet failed"})
	}
	if err := room.ActivateSheet(ctx, uid, sheet, cues); err != nil {
		return coreError(c, err)
	}

	return c.JSON(http.StatusCreated, show.SheetChange{Sheet: sheet, Cues: cues})
}

// Active: return the session's active sheet with its cues.  Sheets are
// member-only reads; holding an account is not enough to see another
// session's cue list.
func (h *CueSheetHandler) Active(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	sessionID := c.Param("id")

	ctx := c.Request().Context()
	room, err := h.Rooms.Get(ctx, sessionID)
	if err != nil {
		return coreError(c, err)
	}
	if _, ok := room.Member(uid); !ok {
		return coreError(c, show.ErrForbidden)
	}

	sheet, cues, err := h.Sheets.ActiveSheet(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "no active cue sheet"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load sheet failed"})
	}
	return c.JSON(http.StatusOK, show.SheetChange{Sheet: sheet, Cues: cues})
}
