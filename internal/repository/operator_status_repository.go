package repository

import (
	"context"
	"database/sql"

	"github.com/stagekit/showcall/internal/model"
)

// OperatorStatusRepo provides data access to the `operator_status`
// table.  One row per (session, operator); the row outlives any single
// connection, only is_online tracks connectivity.
type OperatorStatusRepo struct{ DB *sql.DB }

func NewOperatorStatusRepo(db *sql.DB) *OperatorStatusRepo { return &OperatorStatusRepo{DB: db} }

// Upsert writes the full status row.  All presence mutations funnel
// through here so the durable store never lags the live room by more
// than the in-flight write.
func (r *OperatorStatusRepo) Upsert(ctx context.Context, s model.OperatorStatus) error {
	idx := sql.NullInt64{Int64: int64(s.CurrentOrderIndex), Valid: s.CurrentOrderIndex != model.NoCue}
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO operator_status (session_id, user_id, department, is_ready, is_online, current_cue_order_index, private_notes, last_ping)
		 VALUES (?,?,?,?,?,?,?,?)
		 ON DUPLICATE KEY UPDATE department=VALUES(department), is_ready=VALUES(is_ready),
		   is_online=VALUES(is_online), current_cue_order_index=VALUES(current_cue_order_index),
		   private_notes=VALUES(private_notes), last_ping=VALUES(last_ping)`,
		s.SessionID, s.UserID, s.Department, s.IsReady, s.IsOnline, idx, s.PrivateNotes, s.LastPing.UTC())
	return err
}

// ListBySession returns all operator rows of a session.
func (r *OperatorStatusRepo) ListBySession(ctx context.Context, sessionID string) ([]model.OperatorStatus, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT session_id,user_id,department,is_ready,is_online,current_cue_order_index,private_notes,last_ping
		 FROM operator_status WHERE session_id=?`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.OperatorStatus
	for rows.Next() {
		var (
			s   model.OperatorStatus
			idx sql.NullInt64
		)
		if err := rows.Scan(&s.SessionID, &s.UserID, &s.Department, &s.IsReady, &s.IsOnline,
			&idx, &s.PrivateNotes, &s.LastPing); err != nil {
			return nil, err
		}
		s.CurrentOrderIndex = model.NoCue
		if idx.Valid {
			s.CurrentOrderIndex = int(idx.Int64)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
