package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/stagekit/showcall/internal/model"
	"github.com/stagekit/showcall/internal/repository"
	"github.com/stagekit/showcall/internal/show"
)

const (
	sheetSession = "sess-http"
	managerID    = uint64(10)
	crewID       = uint64(11)
	strangerID   = uint64(99) // registered account, not a member
)

// sheetStores backs one fixed session with two members and an active
// two-cue sheet; per-interface wrappers cover the colliding method
// names, the same way the show package tests fake their stores.
type sheetStores struct{}

func (s sheetStores) stores() show.Stores {
	return show.Stores{
		Sessions: s, Memberships: sheetMemberships{}, Sheets: s,
		Progress: sheetProgress{}, Operators: sheetOperators{},
		Announcements: sheetAnnouncements{}, Users: sheetUsers{},
	}
}

func (sheetStores) Create(ctx context.Context, s model.Session) error { return nil }
func (sheetStores) GetByID(ctx context.Context, id string) (model.Session, error) {
	if id != sheetSession {
		return model.Session{}, repository.ErrNotFound
	}
	return model.Session{ID: sheetSession, Code: "HTTP01", Name: "HTTP Show", CreatedBy: managerID, IsActive: true}, nil
}
func (sheetStores) GetActiveByCode(ctx context.Context, code string) (model.Session, error) {
	return model.Session{}, repository.ErrNotFound
}
func (sheetStores) SetActive(ctx context.Context, id string, active bool) error { return nil }

func (sheetStores) CreateSheet(ctx context.Context, sheet model.CueSheet, cues []model.Cue) error {
	return nil
}
func (sheetStores) ActiveSheet(ctx context.Context, sessionID string) (model.CueSheet, []model.Cue, error) {
	if sessionID != sheetSession {
		return model.CueSheet{}, nil, repository.ErrNotFound
	}
	return model.CueSheet{ID: "sheet-http", SessionID: sheetSession, Name: "Act I", IsActive: true},
		[]model.Cue{
			{ID: "h0", SheetID: "sheet-http", OrderIndex: 0, Number: "1", Department: "Lighting", Notes: "check followspot"},
			{ID: "h1", SheetID: "sheet-http", OrderIndex: 1, Number: "2", Department: "Sound"},
		}, nil
}

type sheetMemberships struct{}

func (sheetMemberships) Create(ctx context.Context, m model.Membership) error { return nil }
func (sheetMemberships) Get(ctx context.Context, sessionID string, userID uint64) (model.Membership, error) {
	return model.Membership{}, repository.ErrNotFound
}
func (sheetMemberships) UpdateRole(ctx context.Context, sessionID string, userID uint64, role model.Role) error {
	return nil
}
func (sheetMemberships) ListBySession(ctx context.Context, sessionID string) ([]model.Membership, error) {
	return []model.Membership{
		{SessionID: sheetSession, UserID: managerID, Role: model.RoleStageManager},
		{SessionID: sheetSession, UserID: crewID, Role: model.RoleOperator},
	}, nil
}

type sheetProgress struct{}

func (sheetProgress) Save(ctx context.Context, p model.CueProgress) error { return nil }
func (sheetProgress) Get(ctx context.Context, sessionID string) (model.CueProgress, error) {
	return model.CueProgress{}, repository.ErrNotFound
}

type sheetOperators struct{}

func (sheetOperators) Upsert(ctx context.Context, s model.OperatorStatus) error { return nil }
func (sheetOperators) ListBySession(ctx context.Context, sessionID string) ([]model.OperatorStatus, error) {
	return nil, nil
}

type sheetAnnouncements struct{}

func (sheetAnnouncements) Append(ctx context.Context, a model.Announcement) error { return nil }
func (sheetAnnouncements) RecentBySession(ctx context.Context, sessionID string, n int) ([]model.Announcement, error) {
	return nil, nil
}

type sheetUsers struct{}

func (sheetUsers) Entitlements(ctx context.Context, userID uint64) ([]model.Role, error) {
	return nil, nil
}

func activeSheetRequest(t *testing.T, h *CueSheetHandler, userID uint64) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/"+sheetSession+"/cuesheets/active", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/v1/sessions/:id/cuesheets/active")
	c.SetParamNames("id")
	c.SetParamValues(sheetSession)
	if userID != 0 {
		c.Set("user_id", userID)
	}
	if err := h.Active(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	return rec
}

func TestActiveSheetIsMemberOnly(t *testing.T) {
	rooms := show.NewRooms(show.Config{}, sheetStores{}.stores(), nil, nil, zerolog.Nop())
	t.Cleanup(func() { rooms.Shutdown("test done") })
	h := NewCueSheetHandler(sheetStores{}, rooms)

	if rec := activeSheetRequest(t, h, crewID); rec.Code != http.StatusOK {
		t.Fatalf("member read = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if rec := activeSheetRequest(t, h, managerID); rec.Code != http.StatusOK {
		t.Fatalf("manager read = %d, want 200", rec.Code)
	}

	// A valid account alone does not open another session's cue list.
	if rec := activeSheetRequest(t, h, strangerID); rec.Code != http.StatusForbidden {
		t.Fatalf("non-member read = %d, want 403: %s", rec.Code, rec.Body.String())
	}

	if rec := activeSheetRequest(t, h, 0); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous read = %d, want 401", rec.Code)
	}
}
