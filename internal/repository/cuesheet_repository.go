package repository

import (
	"context"
	"database/sql"

	"github.com/stagekit/showcall/internal/model"
)

// CueSheetRepo provides data access to the `cue_sheets` and `cues`
// tables.  Cue rows are written once with their sheet; the core never
// reorders cues after creation, order_index is assigned densely up
// front.
type CueSheetRepo struct{ DB *sql.DB }

func NewCueSheetRepo(db *sql.DB) *CueSheetRepo { return &CueSheetRepo{DB: db} }

// CreateSheet inserts a sheet plus its cues in one transaction and
// deactivates any previously active sheet of the session.  The new
// sheet becomes the active one.
func (r *CueSheetRepo) CreateSheet(ctx context.Context, sheet model.CueSheet, cues []model.Cue) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"UPDATE cue_sheets SET is_active=0 WHERE session_id=? AND is_active=1",
		sheet.SessionID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO cue_sheets (id, session_id, name, is_active) VALUES (?,?,?,1)",
		sheet.ID, sheet.SessionID, sheet.Name); err != nil {
		return err
	}
	for _, c := range cues {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO cues (id, sheet_id, order_index, number, sub_number, department, description, notes, hold, color_code)
			 VALUES (?,?,?,?,?,?,?,?,?,?)`,
			c.ID, sheet.ID, c.OrderIndex, c.Number, c.SubNumber, c.Department, c.Description, c.Notes, c.Hold, c.ColorCode); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ActiveSheet returns the active sheet of a session together with its
// cues ordered by order_index.  ErrNotFound when the session has no
// active sheet yet.
func (r *CueSheetRepo) ActiveSheet(ctx context.Context, sessionID string) (model.CueSheet, []model.Cue, error) {
	var sheet model.CueSheet
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,session_id,name,is_active,created_at FROM cue_sheets WHERE session_id=? AND is_active=1 LIMIT 1",
		sessionID).Scan(&sheet.ID, &sheet.SessionID, &sheet.Name, &sheet.IsActive, &sheet.CreatedAt)
	if err == sql.ErrNoRows {
		return model.CueSheet{}, nil, ErrNotFound
	}
	if err != nil {
		return model.CueSheet{}, nil, err
	}

	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,sheet_id,order_index,number,sub_number,department,description,notes,hold,color_code
		 FROM cues WHERE sheet_id=? ORDER BY order_index`, sheet.ID)
	if err != nil {
		return model.CueSheet{}, nil, err
	}
	defer rows.Close()
	var cues []model.Cue
	for rows.Next() {
		var c model.Cue
		if err := rows.Scan(&c.ID, &c.SheetID, &c.OrderIndex, &c.Number, &c.SubNumber,
			&c.Department, &c.Description, &c.Notes, &c.Hold, &c.ColorCode); err != nil {
			return model.CueSheet{}, nil, err
		}
		cues = append(cues, c)
	}
	return sheet, cues, rows.Err()
}
