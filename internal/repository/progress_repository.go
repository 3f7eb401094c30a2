package repository

import (
	"context"
	"database/sql"

	"github.com/stagekit/showcall/internal/model"
)

// ProgressRepo persists the per-session CueProgress row.  The show
// core writes through this repo before acknowledging any transition;
// a failed write rolls the in-memory state back and suppresses the
// change event.
type ProgressRepo struct{ DB *sql.DB }

func NewProgressRepo(db *sql.DB) *ProgressRepo { return &ProgressRepo{DB: db} }

// Save upserts the progress row for a session.  current_cue_order_index
// is stored as NULL while the session has no active sheet.
func (r *ProgressRepo) Save(ctx context.Context, p model.CueProgress) error {
	idx := sql.NullInt64{Int64: int64(p.CurrentOrderIndex), Valid: p.CurrentOrderIndex != model.NoCue}
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO cue_progress (session_id, current_cue_order_index, phase, updated_by, updated_at)
		 VALUES (?,?,?,?,?)
		 ON DUPLICATE KEY UPDATE current_cue_order_index=VALUES(current_cue_order_index),
		   phase=VALUES(phase), updated_by=VALUES(updated_by), updated_at=VALUES(updated_at)`,
		p.SessionID, idx, string(p.Phase), p.UpdatedBy, p.UpdatedAt.UTC())
	return err
}

// Get loads the progress row of a session; ErrNotFound when the show
// has never been touched.
func (r *ProgressRepo) Get(ctx context.Context, sessionID string) (model.CueProgress, error) {
	var (
		p     model.CueProgress
		idx   sql.NullInt64
		phase string
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT session_id,current_cue_order_index,phase,updated_by,updated_at FROM cue_progress WHERE session_id=? LIMIT 1",
		sessionID).Scan(&p.SessionID, &idx, &phase, &p.UpdatedBy, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return model.CueProgress{}, ErrNotFound
	}
	if err != nil {
		return model.CueProgress{}, err
	}
	p.CurrentOrderIndex = model.NoCue
	if idx.Valid {
		p.CurrentOrderIndex = int(idx.Int64)
	}
	p.Phase = model.Phase(phase)
	return p, nil
}
